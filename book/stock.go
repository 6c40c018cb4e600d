package book

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockEntryInput is a manual stock receipt (IN) or issue (OUT). Kind is
// parsed with ParseMovementKind; RETURN is reserved for returns.
type StockEntryInput struct {
	ProductID    int64
	Qty          decimal.Decimal
	Kind         string
	UnitPrice    *decimal.Decimal
	Counterparty string
	CustomerID   *int64
	Note         string
}

// StockEntryUpdate edits a manual movement. The product cannot change.
type StockEntryUpdate struct {
	ID           int64
	Qty          decimal.Decimal
	Kind         string
	UnitPrice    *decimal.Decimal
	Counterparty string
	CustomerID   *int64
	Note         string
}

func (e *Engine) RecordStockEntry(ctx context.Context, in StockEntryInput) (*Snapshot, error) {
	kind, err := manualKind(in.Kind)
	if err != nil {
		return nil, err
	}
	qty, err := positiveQty(in.Qty)
	if err != nil {
		return nil, err
	}

	return e.mutate(ctx, "record_stock_entry", func(t txn) error {
		p, err := t.activeProduct(in.ProductID)
		if err != nil {
			return err
		}
		c, err := t.customer(in.CustomerID)
		if err != nil {
			return err
		}
		price, err := nonNegativePrice(in.UnitPrice, p.UnitPrice)
		if err != nil {
			return err
		}

		cid, name, _ := customerSnapshot(c)
		m := StockMovement{
			ID:           t.s.Movements().NextID(),
			At:           t.now,
			Kind:         kind,
			ProductID:    p.ID,
			ProductName:  p.Name,
			Qty:          qty,
			UnitPrice:    decPtr(price),
			TotalAmount:  decPtr(Round(qty.Mul(price))),
			Counterparty: strings.TrimSpace(in.Counterparty),
			CustomerID:   cid,
			CustomerName: name,
			Note:         in.Note,
		}
		t.s.Movements().Put(m)
		return t.applyMovement(m, false)
	}, zap.Int64("product_id", in.ProductID), zap.String("kind", string(kind)), zap.String("qty", qty.String()))
}

// UpdateStockEntry reverses the old movement's effect on stock, then
// applies the edited one. Both steps floor at zero.
func (e *Engine) UpdateStockEntry(ctx context.Context, in StockEntryUpdate) (*Snapshot, error) {
	kind, err := manualKind(in.Kind)
	if err != nil {
		return nil, err
	}
	qty, err := positiveQty(in.Qty)
	if err != nil {
		return nil, err
	}

	return e.mutate(ctx, "update_stock_entry", func(t txn) error {
		old, err := t.manualMovement(in.ID)
		if err != nil {
			return err
		}
		p, err := t.product(old.ProductID)
		if err != nil {
			return err
		}
		c, err := t.customer(in.CustomerID)
		if err != nil {
			return err
		}
		fallback := p.UnitPrice
		if old.UnitPrice != nil {
			fallback = *old.UnitPrice
		}
		price, err := nonNegativePrice(in.UnitPrice, fallback)
		if err != nil {
			return err
		}

		if err := t.applyMovement(old, true); err != nil {
			return err
		}
		m := old
		m.Kind = kind
		m.ProductName = p.Name
		m.Qty = qty
		m.UnitPrice = decPtr(price)
		m.TotalAmount = decPtr(Round(qty.Mul(price)))
		m.Counterparty = strings.TrimSpace(in.Counterparty)
		m.CustomerID, m.CustomerName, _ = customerSnapshot(c)
		m.Note = in.Note
		t.s.Movements().Put(m)
		return t.applyMovement(m, false)
	}, zap.Int64("movement_id", in.ID))
}

func (e *Engine) DeleteStockEntry(ctx context.Context, id int64) (*Snapshot, error) {
	return e.mutate(ctx, "delete_stock_entry", func(t txn) error {
		m, err := t.manualMovement(id)
		if err != nil {
			return err
		}
		if err := t.applyMovement(m, true); err != nil {
			return err
		}
		t.s.Movements().Delete(m.ID)
		return nil
	}, zap.Int64("movement_id", id))
}

func (t txn) manualMovement(id int64) (StockMovement, error) {
	m, ok := t.s.Movements().Get(id)
	if !ok {
		return StockMovement{}, movementNotFound(id)
	}
	if !m.IsManual() {
		return StockMovement{}, ErrMovementLinked
	}
	return m, nil
}

// applyMovement moves stock by a manual movement, or undoes it when reverse
// is set.
func (t txn) applyMovement(m StockMovement, reverse bool) error {
	delta := m.Qty
	if m.Kind == MovementOut {
		delta = delta.Neg()
	}
	if reverse {
		delta = delta.Neg()
	}
	return t.adjustStock(m.ProductID, delta)
}

func manualKind(s string) (MovementKind, error) {
	kind, err := ParseMovementKind(s)
	if err != nil {
		return "", err
	}
	if kind == MovementReturn {
		return "", &KindError{Kind: s}
	}
	return kind, nil
}
