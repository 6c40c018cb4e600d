package book

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	noteReturnSettlement = "return settlement"
	noteReturnAdjustment = "return amount adjustment"
	noteReturnReversal   = "return reversal"
)

// ReturnInput records goods coming back. OverrideAmount replaces the
// FIFO-priced total when set.
type ReturnInput struct {
	ProductID      int64
	CustomerID     *int64
	Qty            decimal.Decimal
	Note           string
	OverrideAmount *decimal.Decimal
}

type ReturnUpdate struct {
	ID             int64
	Qty            decimal.Decimal
	Note           string
	OverrideAmount *decimal.Decimal
}

// RecordReturn restocks the product and records a return allocated against
// the pair's sales oldest first. When a customer is attached, the return
// amount is settled against their debt with a payment entry.
//
// A zero quantity is a no-op and returns the current snapshot.
func (e *Engine) RecordReturn(ctx context.Context, in ReturnInput) (*Snapshot, error) {
	qty := Round(in.Qty)
	switch {
	case qty.IsNegative():
		return nil, invalidQuantity(qty)
	case qty.IsZero():
		return e.Snapshot(ctx)
	}
	if err := checkOverride(in.OverrideAmount); err != nil {
		return nil, err
	}

	return e.mutate(ctx, "record_return", func(t txn) error {
		p, err := t.product(in.ProductID)
		if err != nil {
			return err
		}
		c, err := t.customer(in.CustomerID)
		if err != nil {
			return err
		}

		plan, err := Allocate(t.s.Sales().List(), NewPairKey(in.CustomerID, p.ID)).Plan(qty)
		if err != nil {
			return err
		}
		amount := plan.Amount(in.OverrideAmount)

		cid, name, phone := customerSnapshot(c)
		ret := Sale{
			ID:            t.s.Sales().NextID(),
			At:            t.now,
			ProductID:     p.ID,
			ProductName:   p.Name,
			Qty:           qty,
			UnitPrice:     Round(amount.Div(qty)),
			TotalAmount:   amount,
			CustomerID:    cid,
			CustomerName:  name,
			CustomerPhone: phone,
			Note:          in.Note,
			IsCredit:      c != nil && amount.IsPositive(),
			IsReturn:      true,
			OriginSaleID:  plan.OriginSaleID(),
		}
		t.s.Sales().Put(ret)

		if err := t.adjustStock(p.ID, qty); err != nil {
			return err
		}
		t.mirrorMovement(ret)

		if ret.IsCredit {
			t.appendCredit(c, int64Ptr(ret.ID), amount, true, noteOr(in.Note, noteReturnSettlement))
		}
		return nil
	}, zap.Int64("product_id", in.ProductID), zap.String("qty", qty.String()))
}

// UpdateReturn changes a return's quantity or amount. The pair is replayed
// with the new quantity; the money difference is appended to the credit
// log as an adjustment rather than rewriting the original settlement.
func (e *Engine) UpdateReturn(ctx context.Context, in ReturnUpdate) (*Snapshot, error) {
	qty, err := positiveQty(in.Qty)
	if err != nil {
		return nil, err
	}
	if err := checkOverride(in.OverrideAmount); err != nil {
		return nil, err
	}

	return e.mutate(ctx, "update_return", func(t txn) error {
		old, err := t.returnRow(in.ID)
		if err != nil {
			return err
		}

		others := make([]Sale, 0)
		for _, s := range t.s.Sales().List() {
			if s.ID != old.ID {
				others = append(others, s)
			}
		}
		available := Allocate(others, old.Key()).Available()
		if qty.GreaterThan(available) {
			return &OverReturnError{Key: old.Key(), Available: available, Requested: qty}
		}

		ret := old
		ret.Qty = qty
		replay := Allocate(append(others, ret), ret.Key())
		amount := replay.ReturnAmount(ret.ID)
		if in.OverrideAmount != nil {
			amount = Round(*in.OverrideAmount)
		}
		ret.TotalAmount = amount
		ret.UnitPrice = Round(amount.Div(qty))
		ret.Note = in.Note
		ret.IsCredit = ret.CustomerID != nil && amount.IsPositive()
		if portions := replay.Portions[ret.ID]; len(portions) > 0 {
			ret.OriginSaleID = int64Ptr(portions[0].SaleID)
		}
		if p, ok := t.s.Products().Get(ret.ProductID); ok {
			ret.ProductName = p.Name
		}
		t.s.Sales().Put(ret)

		if err := t.adjustStock(ret.ProductID, qty.Sub(old.Qty)); err != nil {
			return err
		}
		t.mirrorMovement(ret)

		diff := amount.Sub(old.TotalAmount)
		if ret.CustomerID != nil && !diff.IsZero() {
			c, err := t.customer(ret.CustomerID)
			if err != nil {
				return err
			}
			t.appendCredit(c, int64Ptr(ret.ID), diff.Abs(), diff.IsPositive(), noteReturnAdjustment)
		}
		return nil
	}, zap.Int64("return_id", in.ID))
}

// DeleteReturn takes the returned goods back out of stock (floored at zero)
// and, for a customer, reinstates the settled amount with a new charge.
func (e *Engine) DeleteReturn(ctx context.Context, id int64) (*Snapshot, error) {
	return e.mutate(ctx, "delete_return", func(t txn) error {
		ret, err := t.returnRow(id)
		if err != nil {
			return err
		}

		if err := t.adjustStock(ret.ProductID, ret.Qty.Neg()); err != nil {
			return err
		}
		for _, m := range t.linkedMovements(ret.ID) {
			t.s.Movements().Delete(m.ID)
		}
		t.s.Sales().Delete(ret.ID)

		if ret.CustomerID != nil && ret.TotalAmount.IsPositive() {
			c, err := t.customer(ret.CustomerID)
			if err != nil {
				return err
			}
			t.appendCredit(c, int64Ptr(ret.ID), ret.TotalAmount, false, noteReturnReversal)
		}
		return nil
	}, zap.Int64("return_id", id))
}

func (t txn) returnRow(id int64) (Sale, error) {
	ret, ok := t.s.Sales().Get(id)
	if !ok || !ret.IsReturn {
		return Sale{}, returnNotFound(id)
	}
	return ret, nil
}

func checkOverride(v *decimal.Decimal) error {
	if v != nil && Round(*v).IsNegative() {
		return invalidAmount(Round(*v))
	}
	return nil
}
