package book

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LOOKUPS
// =============================================================================

// activeProduct resolves a product that can take new sales and receipts.
func (t txn) activeProduct(id int64) (Product, error) {
	p, ok := t.s.Products().Get(id)
	if !ok || p.Archived {
		return Product{}, productNotFound(id)
	}
	return p, nil
}

// product resolves a product including archived ones.
func (t txn) product(id int64) (Product, error) {
	p, ok := t.s.Products().Get(id)
	if !ok {
		return Product{}, productNotFound(id)
	}
	return p, nil
}

// customer resolves an optional customer reference. A nil id is a walk-in.
func (t txn) customer(id *int64) (*Customer, error) {
	if id == nil {
		return nil, nil
	}
	c, ok := t.s.Customers().Get(*id)
	if !ok {
		return nil, customerNotFound(*id)
	}
	return &c, nil
}

func (t txn) linkedMovements(saleID int64) []StockMovement {
	var out []StockMovement
	for _, m := range t.s.Movements().List() {
		if m.SaleID != nil && *m.SaleID == saleID {
			out = append(out, m)
		}
	}
	return out
}

// linkedCharge finds the live charge generated by a credit sale.
func (t txn) linkedCharge(saleID int64) (CreditEntry, bool) {
	for _, c := range t.s.Credits().List(false) {
		if !c.IsPayment && c.SaleID != nil && *c.SaleID == saleID {
			return c, true
		}
	}
	return CreditEntry{}, false
}

// =============================================================================
// SIDE EFFECTS
// =============================================================================

// adjustStock adds delta to the product quantity, flooring at zero.
func (t txn) adjustStock(productID int64, delta decimal.Decimal) error {
	p, err := t.product(productID)
	if err != nil {
		return err
	}
	p.Qty = floor(Round(p.Qty.Add(delta)))
	t.s.Products().Put(p)
	return nil
}

// mirrorMovement keeps the movement generated by a sale or return in step
// with it, creating the movement if it went missing.
func (t txn) mirrorMovement(sale Sale) {
	kind := MovementOut
	if sale.IsReturn {
		kind = MovementReturn
	}
	linked := t.linkedMovements(sale.ID)
	m := StockMovement{At: sale.At}
	if len(linked) > 0 {
		m = linked[0]
		for _, extra := range linked[1:] {
			t.s.Movements().Delete(extra.ID)
		}
	} else {
		m.ID = t.s.Movements().NextID()
	}
	m.Kind = kind
	m.ProductID = sale.ProductID
	m.ProductName = sale.ProductName
	m.Qty = sale.Qty
	m.UnitPrice = decPtr(sale.UnitPrice)
	m.TotalAmount = decPtr(sale.TotalAmount)
	m.CustomerID = sale.CustomerID
	m.CustomerName = sale.CustomerName
	m.Note = sale.Note
	m.SaleID = int64Ptr(sale.ID)
	t.s.Movements().Put(m)
}

func (t txn) appendCredit(c *Customer, saleID *int64, amount decimal.Decimal, payment bool, note string) CreditEntry {
	return t.s.Credits().Append(CreditEntry{
		At:            t.now,
		CustomerID:    c.ID,
		CustomerName:  c.Name,
		CustomerPhone: c.Phone,
		SaleID:        saleID,
		Amount:        amount,
		IsPayment:     payment,
		Note:          note,
	})
}

// =============================================================================
// VALIDATION
// =============================================================================

func positiveQty(q decimal.Decimal) (decimal.Decimal, error) {
	q = Round(q)
	if !q.IsPositive() {
		return q, invalidQuantity(q)
	}
	return q, nil
}

func nonNegativePrice(p *decimal.Decimal, fallback decimal.Decimal) (decimal.Decimal, error) {
	if p == nil {
		return fallback, nil
	}
	v := Round(*p)
	if v.IsNegative() {
		return v, invalidAmount(v)
	}
	return v, nil
}

func required(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", &ValidationError{Field: field, Message: "is required"}
	}
	return v, nil
}

func customerSnapshot(c *Customer) (*int64, string, string) {
	if c == nil {
		return nil, "", ""
	}
	return int64Ptr(c.ID), c.Name, c.Phone
}

func noteOr(note, fallback string) string {
	if strings.TrimSpace(note) == "" {
		return fallback
	}
	return note
}
