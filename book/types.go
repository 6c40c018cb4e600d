/*
Package book provides the ledger consistency engine for a small shop.

PURPOSE:
  This package records sales, returns, stock receipts and credit payments so
  that product quantities, customer credit balances and the transaction
  history always agree with each other. Derived views (outstanding balances,
  remaining-returnable quantity per sale, customer statements) are rebuilt
  from the history on demand rather than maintained incrementally.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product, Customer: catalog entities, edited in place
  - Sale: a sale or, with IsReturn set, a return
  - StockMovement: IN/OUT/RETURN rows, either manual or mirroring a sale
  - CreditEntry: charge or payment rows in the append-only credit log
  - CustomerBalance: derived per-customer totals

DESIGN PRINCIPLES:
  1. Precision: quantities and money are decimal.Decimal rounded to 2 places
  2. Stable identity: integer ids per entity kind, never reused
  3. Two update strategies: catalog/sales/movements are mutable records,
     credit entries are append-only (removal is a tombstone)

SEE ALSO:
  - store.go: Entity store and persistence interfaces
  - allocation.go: FIFO return allocation
  - balance.go: Credit balance fold
  - engine.go: Mutating operations
*/
package book

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for quantities and money.
const Scale = 2

// DefaultLowStockThreshold applies when a product is created without one.
var DefaultLowStockThreshold = decimal.NewFromInt(5)

// Round normalises a quantity or amount to Scale places.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(Scale) }

// Dec parses a decimal literal. Panics on malformed input; intended for
// constants and tests.
func Dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// CATALOG
// =============================================================================

type Product struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	SKU               string          `json:"sku,omitempty"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Qty               decimal.Decimal `json:"qty"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
	Note              string          `json:"note,omitempty"`
	Archived          bool            `json:"archived"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (p Product) RecordID() int64 { return p.ID }

// IsLowStock reports whether the product is at or below its threshold.
func (p Product) IsLowStock() bool {
	return !p.Archived && p.Qty.LessThanOrEqual(p.LowStockThreshold)
}

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Customer) RecordID() int64 { return c.ID }

// =============================================================================
// SALES AND RETURNS
// =============================================================================

// Sale is a recorded sale, or a return when IsReturn is set.
type Sale struct {
	ID              int64           `json:"id"`
	At              time.Time       `json:"ts"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	Qty             decimal.Decimal `json:"qty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CustomerID      *int64          `json:"customer_id"`
	CustomerName    string          `json:"customer_name,omitempty"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	CustomerDeleted bool            `json:"customer_deleted"`
	Note            string          `json:"note,omitempty"`
	IsCredit        bool            `json:"is_credit"`
	IsReturn        bool            `json:"is_return"`
	OriginSaleID    *int64          `json:"origin_sale_id"`
}

func (s Sale) RecordID() int64 { return s.ID }

// Key returns the (customer, product) pair the sale belongs to.
func (s Sale) Key() PairKey { return NewPairKey(s.CustomerID, s.ProductID) }

// SaleState is the derived lifecycle state of a non-return sale.
type SaleState string

const (
	SaleActive            SaleState = "active"
	SalePartiallyReturned SaleState = "partially_returned"
	SaleFullyReturned     SaleState = "fully_returned"
)

// =============================================================================
// STOCK MOVEMENTS
// =============================================================================

type MovementKind string

const (
	MovementIn     MovementKind = "IN"
	MovementOut    MovementKind = "OUT"
	MovementReturn MovementKind = "RETURN"
)

// ParseMovementKind accepts IN/OUT/RETURN in any case. Empty means IN.
func ParseMovementKind(s string) (MovementKind, error) {
	switch MovementKind(strings.ToUpper(strings.TrimSpace(s))) {
	case "", MovementIn:
		return MovementIn, nil
	case MovementOut:
		return MovementOut, nil
	case MovementReturn:
		return MovementReturn, nil
	}
	return "", &KindError{Kind: s}
}

type StockMovement struct {
	ID           int64            `json:"id"`
	At           time.Time        `json:"ts"`
	Kind         MovementKind     `json:"kind"`
	ProductID    int64            `json:"product_id"`
	ProductName  string           `json:"product_name"`
	Qty          decimal.Decimal  `json:"qty"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	TotalAmount  *decimal.Decimal `json:"total_amount"`
	Counterparty string           `json:"counterparty,omitempty"`
	CustomerID   *int64           `json:"customer_id"`
	CustomerName string           `json:"customer_name,omitempty"`
	Note         string           `json:"note,omitempty"`
	SaleID       *int64           `json:"sale_id"`
}

func (m StockMovement) RecordID() int64 { return m.ID }

// IsManual reports whether the movement was entered directly rather than
// generated by a sale or return.
func (m StockMovement) IsManual() bool { return m.SaleID == nil }

// =============================================================================
// CREDIT
// =============================================================================

// CreditEntry is one row of the credit log. Charges increase what the
// customer owes, payments (including return settlements) decrease it.
type CreditEntry struct {
	ID            int64           `json:"id"`
	At            time.Time       `json:"ts"`
	CustomerID    int64           `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	SaleID        *int64          `json:"sale_id"`
	Amount        decimal.Decimal `json:"amount"`
	IsPayment     bool            `json:"is_payment"`
	Note          string          `json:"note,omitempty"`
	Voided        bool            `json:"-"`
}

func (c CreditEntry) RecordID() int64 { return c.ID }

// Signed returns the entry's effect on the debt: positive for charges.
func (c CreditEntry) Signed() decimal.Decimal {
	if c.IsPayment {
		return c.Amount.Neg()
	}
	return c.Amount
}

// CustomerBalance is derived from the credit log, never stored.
type CustomerBalance struct {
	CustomerID    int64           `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	TotalCredit   decimal.Decimal `json:"total_credit"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	LastActivity  *time.Time      `json:"last_activity"`
}

// =============================================================================
// HELPERS
// =============================================================================

func int64Ptr(v int64) *int64 { return &v }

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
