package book

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RETURNS
// =============================================================================

// ReturnCandidates lists what a (customer, product) pair can still return.
type ReturnCandidates struct {
	Key       PairKey          `json:"-"`
	Available decimal.Decimal  `json:"available"`
	Sales     []SaleAllocation `json:"sales"`
}

// ReturnPreview is what RecordReturn would do for the same input.
type ReturnPreview struct {
	Qty          decimal.Decimal `json:"qty"`
	Available    decimal.Decimal `json:"available"`
	Portions     []Portion       `json:"portions"`
	Computed     decimal.Decimal `json:"computed_amount"`
	Amount       decimal.Decimal `json:"amount"`
	OriginSaleID *int64          `json:"origin_sale_id"`
}

// ReturnCandidates returns the pair's sales with returnable quantity left,
// oldest first.
func (e *Engine) ReturnCandidates(ctx context.Context, customerID *int64, productID int64) (*ReturnCandidates, error) {
	var out *ReturnCandidates
	err := e.read(ctx, func(s Store) error {
		if _, ok := s.Products().Get(productID); !ok {
			return productNotFound(productID)
		}
		alloc := Allocate(s.Sales().List(), NewPairKey(customerID, productID))
		out = &ReturnCandidates{
			Key:       alloc.Key,
			Available: alloc.Available(),
			Sales:     alloc.Candidates(),
		}
		return nil
	})
	return out, err
}

// PreviewReturn plans a return without recording it. A zero quantity yields
// an empty preview.
func (e *Engine) PreviewReturn(ctx context.Context, in ReturnInput) (*ReturnPreview, error) {
	qty := Round(in.Qty)
	if qty.IsNegative() {
		return nil, invalidQuantity(qty)
	}
	if err := checkOverride(in.OverrideAmount); err != nil {
		return nil, err
	}

	var out *ReturnPreview
	err := e.read(ctx, func(s Store) error {
		if _, ok := s.Products().Get(in.ProductID); !ok {
			return productNotFound(in.ProductID)
		}
		if in.CustomerID != nil {
			if _, ok := s.Customers().Get(*in.CustomerID); !ok {
				return customerNotFound(*in.CustomerID)
			}
		}
		alloc := Allocate(s.Sales().List(), NewPairKey(in.CustomerID, in.ProductID))
		out = &ReturnPreview{Qty: qty, Available: alloc.Available(), Computed: decimal.Zero, Amount: decimal.Zero}
		if qty.IsZero() {
			return nil
		}
		plan, err := alloc.Plan(qty)
		if err != nil {
			return err
		}
		out.Portions = plan.Portions
		out.Computed = plan.Computed
		out.Amount = plan.Amount(in.OverrideAmount)
		out.OriginSaleID = plan.OriginSaleID()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// CUSTOMER STATEMENT
// =============================================================================

// LedgerKind classifies a line of the combined customer ledger.
type LedgerKind string

const (
	LedgerSale    LedgerKind = "sale"
	LedgerReturn  LedgerKind = "return"
	LedgerCharge  LedgerKind = "charge"
	LedgerPayment LedgerKind = "payment"
)

// LedgerLine is one row of a customer's combined history. Balance is set on
// credit lines only.
type LedgerLine struct {
	Kind        LedgerKind       `json:"kind"`
	Sale        *Sale            `json:"sale,omitempty"`
	Credit      *CreditEntry     `json:"credit,omitempty"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
	sortAt      int64
	sortID      int64
	sortCredits bool
}

// CustomerStatement is the balance and chronological history of a customer.
type CustomerStatement struct {
	Customer Customer        `json:"customer"`
	Balance  CustomerBalance `json:"balance"`
	Lines    []StatementLine `json:"credit_lines"`
	Ledger   []LedgerLine    `json:"ledger"`
}

// CustomerStatement combines the customer's sales, returns and credit
// entries, oldest first, with the running balance after each credit entry.
func (e *Engine) CustomerStatement(ctx context.Context, customerID int64) (*CustomerStatement, error) {
	var out *CustomerStatement
	err := e.read(ctx, func(s Store) error {
		c, ok := s.Customers().Get(customerID)
		if !ok {
			return customerNotFound(customerID)
		}
		credits := s.Credits().List(false)
		balance := Balances([]Customer{c}, credits)[0]
		lines := Statement(c.ID, credits)

		var ledger []LedgerLine
		for _, sale := range s.Sales().List() {
			if sale.CustomerID == nil || *sale.CustomerID != c.ID {
				continue
			}
			sale := sale
			kind := LedgerSale
			if sale.IsReturn {
				kind = LedgerReturn
			}
			ledger = append(ledger, LedgerLine{
				Kind: kind, Sale: &sale,
				sortAt: sale.At.UnixNano(), sortID: sale.ID,
			})
		}
		for i := range lines {
			line := lines[i]
			kind := LedgerCharge
			if line.Entry.IsPayment {
				kind = LedgerPayment
			}
			after := line.After
			ledger = append(ledger, LedgerLine{
				Kind: kind, Credit: &line.Entry, Balance: &after,
				sortAt: line.Entry.At.UnixNano(), sortID: line.Entry.ID, sortCredits: true,
			})
		}
		// Sales sort before the credit entries they generated at the same instant.
		sort.SliceStable(ledger, func(i, j int) bool {
			a, b := ledger[i], ledger[j]
			if a.sortAt != b.sortAt {
				return a.sortAt < b.sortAt
			}
			if a.sortCredits != b.sortCredits {
				return !a.sortCredits
			}
			return a.sortID < b.sortID
		})

		out = &CustomerStatement{Customer: c, Balance: balance, Lines: lines, Ledger: ledger}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// STOCK
// =============================================================================

// LowStock lists active products at or below their threshold, lowest
// quantity first.
func (e *Engine) LowStock(ctx context.Context) ([]Product, error) {
	var out []Product
	err := e.read(ctx, func(s Store) error {
		for _, p := range s.Products().List() {
			if p.IsLowStock() {
				out = append(out, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Qty.Equal(out[j].Qty) {
			return out[i].Qty.LessThan(out[j].Qty)
		}
		return byName(out[i].Name, out[i].ID, out[j].Name, out[j].ID)
	})
	return out, nil
}
