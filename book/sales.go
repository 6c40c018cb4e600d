package book

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleInput records a new sale. UnitPrice defaults to the product price and
// a nil CustomerID is a walk-in.
type SaleInput struct {
	ProductID  int64
	Qty        decimal.Decimal
	UnitPrice  *decimal.Decimal
	CustomerID *int64
	Note       string
	IsCredit   bool
}

// SaleUpdate edits an existing sale. The product cannot change.
type SaleUpdate struct {
	ID         int64
	Qty        decimal.Decimal
	UnitPrice  *decimal.Decimal
	CustomerID *int64
	Note       string
	IsCredit   bool
}

// RecordSale deducts stock (floored at zero), writes the sale and its OUT
// movement, and charges the customer when the sale is on credit.
func (e *Engine) RecordSale(ctx context.Context, in SaleInput) (*Snapshot, error) {
	qty, err := positiveQty(in.Qty)
	if err != nil {
		return nil, err
	}
	if in.IsCredit && in.CustomerID == nil {
		return nil, ErrCustomerRequiredForCredit
	}

	return e.mutate(ctx, "record_sale", func(t txn) error {
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

		cid, name, phone := customerSnapshot(c)
		sale := Sale{
			ID:            t.s.Sales().NextID(),
			At:            t.now,
			ProductID:     p.ID,
			ProductName:   p.Name,
			Qty:           qty,
			UnitPrice:     price,
			TotalAmount:   Round(qty.Mul(price)),
			CustomerID:    cid,
			CustomerName:  name,
			CustomerPhone: phone,
			Note:          in.Note,
			IsCredit:      in.IsCredit,
		}
		t.s.Sales().Put(sale)

		if err := t.adjustStock(p.ID, qty.Neg()); err != nil {
			return err
		}
		t.mirrorMovement(sale)

		if sale.IsCredit {
			t.appendCredit(c, int64Ptr(sale.ID), sale.TotalAmount, false, sale.Note)
		}
		return nil
	}, zap.Int64("product_id", in.ProductID), zap.String("qty", qty.String()))
}

// UpdateSale edits a sale in place and re-applies its side effects: the
// stock delta, the linked movement and the linked charge entry.
func (e *Engine) UpdateSale(ctx context.Context, in SaleUpdate) (*Snapshot, error) {
	qty, err := positiveQty(in.Qty)
	if err != nil {
		return nil, err
	}
	if in.IsCredit && in.CustomerID == nil {
		return nil, ErrCustomerRequiredForCredit
	}

	return e.mutate(ctx, "update_sale", func(t txn) error {
		old, err := t.editableSale(in.ID)
		if err != nil {
			return err
		}
		consumed := Allocate(t.s.Sales().List(), old.Key()).Consumed(old.ID)
		if consumed.IsPositive() && (qty.LessThan(consumed) || !sameID(old.CustomerID, in.CustomerID)) {
			return &SaleHasReturnsError{SaleID: old.ID, Consumed: consumed}
		}

		p, err := t.product(old.ProductID)
		if err != nil {
			return err
		}
		c, err := t.customer(in.CustomerID)
		if err != nil {
			return err
		}
		price, err := nonNegativePrice(in.UnitPrice, old.UnitPrice)
		if err != nil {
			return err
		}

		sale := old
		sale.ProductName = p.Name
		sale.Qty = qty
		sale.UnitPrice = price
		sale.TotalAmount = Round(qty.Mul(price))
		sale.CustomerID, sale.CustomerName, sale.CustomerPhone = customerSnapshot(c)
		sale.CustomerDeleted = false
		sale.Note = in.Note
		sale.IsCredit = in.IsCredit
		t.s.Sales().Put(sale)

		if err := t.checkPairs(sale.ID, consumed, old.Key(), sale.Key()); err != nil {
			return err
		}
		if err := t.adjustStock(sale.ProductID, old.Qty.Sub(qty)); err != nil {
			return err
		}
		t.mirrorMovement(sale)
		t.reconcileCharge(sale, c)
		return nil
	}, zap.Int64("sale_id", in.ID))
}

// DeleteSale removes a sale nothing has been returned against, restoring
// its stock and dropping its movement and charge.
func (e *Engine) DeleteSale(ctx context.Context, id int64) (*Snapshot, error) {
	return e.mutate(ctx, "delete_sale", func(t txn) error {
		sale, err := t.editableSale(id)
		if err != nil {
			return err
		}
		consumed := Allocate(t.s.Sales().List(), sale.Key()).Consumed(sale.ID)
		if consumed.IsPositive() {
			return &SaleHasReturnsError{SaleID: sale.ID, Consumed: consumed}
		}

		if err := t.adjustStock(sale.ProductID, sale.Qty); err != nil {
			return err
		}
		for _, m := range t.linkedMovements(sale.ID) {
			t.s.Movements().Delete(m.ID)
		}
		if charge, ok := t.linkedCharge(sale.ID); ok {
			t.s.Credits().Void(charge.ID)
		}
		t.s.Sales().Delete(sale.ID)
		return nil
	}, zap.Int64("sale_id", id))
}

// editableSale resolves a sale that the sale editing path may touch.
func (t txn) editableSale(id int64) (Sale, error) {
	sale, ok := t.s.Sales().Get(id)
	if !ok {
		return Sale{}, saleNotFound(id)
	}
	if sale.IsReturn {
		return Sale{}, ErrReturnImmutable
	}
	return sale, nil
}

// checkPairs verifies that the returns of every pair touched by an edit
// still fit within that pair's sales.
func (t txn) checkPairs(saleID int64, consumed decimal.Decimal, keys ...PairKey) error {
	sales := t.s.Sales().List()
	for _, k := range keys {
		if Allocate(sales, k).Overdrawn.IsPositive() {
			return &SaleHasReturnsError{SaleID: saleID, Consumed: consumed}
		}
	}
	return nil
}

// reconcileCharge keeps exactly one live charge for a credit sale, with the
// sale's current amount and customer, and none for a cash sale.
func (t txn) reconcileCharge(sale Sale, c *Customer) {
	charge, ok := t.linkedCharge(sale.ID)
	switch {
	case !sale.IsCredit:
		if ok {
			t.s.Credits().Void(charge.ID)
		}
	case ok && charge.CustomerID == c.ID:
		t.s.Credits().Amend(charge.ID, func(entry *CreditEntry) {
			entry.Amount = sale.TotalAmount
			entry.CustomerName = c.Name
			entry.CustomerPhone = c.Phone
			entry.Note = sale.Note
		})
	default:
		if ok {
			t.s.Credits().Void(charge.ID)
		}
		t.appendCredit(c, int64Ptr(sale.ID), sale.TotalAmount, false, sale.Note)
	}
}
