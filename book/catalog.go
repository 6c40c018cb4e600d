package book

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InitialStockNote marks the IN movement written for a product's opening stock.
const InitialStockNote = "initial stock"

// =============================================================================
// PRODUCTS
// =============================================================================

type ProductInput struct {
	Name              string
	SKU               string
	UnitPrice         decimal.Decimal
	Note              string
	LowStockThreshold *decimal.Decimal
	InitialQty        *decimal.Decimal
}

type ProductUpdate struct {
	ID                int64
	Name              string
	SKU               string
	UnitPrice         decimal.Decimal
	Note              string
	LowStockThreshold *decimal.Decimal
}

// CreateProduct adds a product. A positive initial quantity is recorded as
// an IN movement.
func (e *Engine) CreateProduct(ctx context.Context, in ProductInput) (*Snapshot, error) {
	name, err := required("name", in.Name)
	if err != nil {
		return nil, err
	}
	price, err := nonNegativePrice(&in.UnitPrice, decimal.Zero)
	if err != nil {
		return nil, err
	}
	threshold, err := threshold(in.LowStockThreshold, DefaultLowStockThreshold)
	if err != nil {
		return nil, err
	}
	initial := decimal.Zero
	if in.InitialQty != nil {
		initial = Round(*in.InitialQty)
		if initial.IsNegative() {
			return nil, invalidQuantity(initial)
		}
	}

	return e.mutate(ctx, "create_product", func(t txn) error {
		if err := t.uniqueProductName(name, 0); err != nil {
			return err
		}
		p := Product{
			ID:                t.s.Products().NextID(),
			Name:              name,
			SKU:               strings.TrimSpace(in.SKU),
			UnitPrice:         price,
			Qty:               initial,
			LowStockThreshold: threshold,
			Note:              in.Note,
			CreatedAt:         t.now,
		}
		t.s.Products().Put(p)

		if initial.IsPositive() {
			t.s.Movements().Put(StockMovement{
				ID:          t.s.Movements().NextID(),
				At:          t.now,
				Kind:        MovementIn,
				ProductID:   p.ID,
				ProductName: p.Name,
				Qty:         initial,
				UnitPrice:   decPtr(price),
				TotalAmount: decPtr(Round(initial.Mul(price))),
				Note:        InitialStockNote,
			})
		}
		return nil
	}, zap.String("product", name))
}

// UpdateProduct edits catalog fields. Quantity only changes through
// movements, sales and returns.
func (e *Engine) UpdateProduct(ctx context.Context, in ProductUpdate) (*Snapshot, error) {
	name, err := required("name", in.Name)
	if err != nil {
		return nil, err
	}
	price, err := nonNegativePrice(&in.UnitPrice, decimal.Zero)
	if err != nil {
		return nil, err
	}

	return e.mutate(ctx, "update_product", func(t txn) error {
		p, err := t.activeProduct(in.ID)
		if err != nil {
			return err
		}
		if err := t.uniqueProductName(name, p.ID); err != nil {
			return err
		}
		th, err := threshold(in.LowStockThreshold, p.LowStockThreshold)
		if err != nil {
			return err
		}
		renamed := p.Name != name
		p.Name = name
		p.SKU = strings.TrimSpace(in.SKU)
		p.UnitPrice = price
		p.Note = in.Note
		p.LowStockThreshold = th
		t.s.Products().Put(p)

		if renamed {
			t.refreshProductName(p)
		}
		return nil
	}, zap.Int64("product_id", in.ID))
}

// DeleteProduct archives the product. Its sales and movements stay in the
// history and it disappears from the product list.
func (e *Engine) DeleteProduct(ctx context.Context, id int64) (*Snapshot, error) {
	return e.mutate(ctx, "delete_product", func(t txn) error {
		p, err := t.activeProduct(id)
		if err != nil {
			return err
		}
		p.Archived = true
		t.s.Products().Put(p)
		return nil
	}, zap.Int64("product_id", id))
}

func (t txn) uniqueProductName(name string, self int64) error {
	for _, p := range t.s.Products().List() {
		if p.ID != self && !p.Archived && strings.EqualFold(p.Name, name) {
			return &ValidationError{Field: "name", Message: "a product with this name already exists"}
		}
	}
	return nil
}

func (t txn) refreshProductName(p Product) {
	for _, s := range t.s.Sales().List() {
		if s.ProductID == p.ID {
			s.ProductName = p.Name
			t.s.Sales().Put(s)
		}
	}
	for _, m := range t.s.Movements().List() {
		if m.ProductID == p.ID {
			m.ProductName = p.Name
			t.s.Movements().Put(m)
		}
	}
}

func threshold(v *decimal.Decimal, fallback decimal.Decimal) (decimal.Decimal, error) {
	if v == nil {
		return fallback, nil
	}
	th := Round(*v)
	if th.IsNegative() {
		return th, &ValidationError{Field: "low_stock_threshold", Message: "must not be negative"}
	}
	return th, nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

type CustomerInput struct {
	Name  string
	Phone string
	Note  string
}

type CustomerUpdate struct {
	ID    int64
	Name  string
	Phone string
	Note  string
}

func (e *Engine) CreateCustomer(ctx context.Context, in CustomerInput) (*Snapshot, error) {
	name, err := required("name", in.Name)
	if err != nil {
		return nil, err
	}
	phone, err := required("phone", in.Phone)
	if err != nil {
		return nil, err
	}

	return e.mutate(ctx, "create_customer", func(t txn) error {
		t.s.Customers().Put(Customer{
			ID:        t.s.Customers().NextID(),
			Name:      name,
			Phone:     phone,
			Note:      in.Note,
			CreatedAt: t.now,
		})
		return nil
	}, zap.String("customer", name))
}

// UpdateCustomer edits the customer and refreshes the name and phone
// snapshots on their sales, movements and credit entries.
func (e *Engine) UpdateCustomer(ctx context.Context, in CustomerUpdate) (*Snapshot, error) {
	name, err := required("name", in.Name)
	if err != nil {
		return nil, err
	}
	phone, err := required("phone", in.Phone)
	if err != nil {
		return nil, err
	}

	return e.mutate(ctx, "update_customer", func(t txn) error {
		c, ok := t.s.Customers().Get(in.ID)
		if !ok {
			return customerNotFound(in.ID)
		}
		c.Name = name
		c.Phone = phone
		c.Note = in.Note
		t.s.Customers().Put(c)
		t.refreshCustomer(c)
		return nil
	}, zap.Int64("customer_id", in.ID))
}

// DeleteCustomer removes the customer. Sales and movements are detached
// (their name snapshots are kept and sales are flagged), and the customer's
// credit entries are voided.
func (e *Engine) DeleteCustomer(ctx context.Context, id int64) (*Snapshot, error) {
	return e.mutate(ctx, "delete_customer", func(t txn) error {
		c, ok := t.s.Customers().Get(id)
		if !ok {
			return customerNotFound(id)
		}
		t.refreshCustomer(c)

		for _, s := range t.s.Sales().List() {
			if s.CustomerID != nil && *s.CustomerID == id {
				s.CustomerID = nil
				s.CustomerDeleted = true
				t.s.Sales().Put(s)
			}
		}
		for _, m := range t.s.Movements().List() {
			if m.CustomerID != nil && *m.CustomerID == id {
				m.CustomerID = nil
				t.s.Movements().Put(m)
			}
		}
		for _, cr := range t.s.Credits().List(false) {
			if cr.CustomerID == id {
				t.s.Credits().Void(cr.ID)
			}
		}
		t.s.Customers().Delete(id)
		return nil
	}, zap.Int64("customer_id", id))
}

func (t txn) refreshCustomer(c Customer) {
	for _, s := range t.s.Sales().List() {
		if s.CustomerID != nil && *s.CustomerID == c.ID && (s.CustomerName != c.Name || s.CustomerPhone != c.Phone) {
			s.CustomerName = c.Name
			s.CustomerPhone = c.Phone
			t.s.Sales().Put(s)
		}
	}
	for _, m := range t.s.Movements().List() {
		if m.CustomerID != nil && *m.CustomerID == c.ID && m.CustomerName != c.Name {
			m.CustomerName = c.Name
			t.s.Movements().Put(m)
		}
	}
	for _, cr := range t.s.Credits().List(false) {
		if cr.CustomerID == c.ID && (cr.CustomerName != c.Name || cr.CustomerPhone != c.Phone) {
			t.s.Credits().Amend(cr.ID, func(entry *CreditEntry) {
				entry.CustomerName = c.Name
				entry.CustomerPhone = c.Phone
			})
		}
	}
}
