/*
allocation.go - FIFO allocation of returns against prior sales

PURPOSE:
  Answers "how much of product X sold to customer Y can still be returned,
  and from which sales". Returns are not bound to a single parent sale;
  they are matched to sales of the same (customer, product) pair, oldest
  sale first.

ALGORITHM:
  1. Collect the pair's non-return sales, ascending by (At, ID)
  2. Collect the pair's returns, ascending by (At, ID)
  3. Walk the returns; each consumes remaining capacity from the oldest
     sale, spilling into the next one when a sale is exhausted

  The result is recomputed from history on every call. Nothing about the
  allocation is stored, so editing an old sale or return can never leave
  stale allocation state behind.

PRICING:
  Each returned unit is priced at the unit price of the sale it was
  allocated to:

    S1: 3 @ 10, S2: 2 @ 12, return 4
    -> 3 from S1 (30) + 1 from S2 (12) = 42

  An explicit override replaces the money total only; the quantity still
  follows the oldest-first order.
*/
package book

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAIR KEY
// =============================================================================

// PairKey identifies the (customer, product) combination returns are matched
// against. Walk-in sales share the key with HasCustomer false.
type PairKey struct {
	HasCustomer bool
	CustomerID  int64
	ProductID   int64
}

func NewPairKey(customerID *int64, productID int64) PairKey {
	if customerID == nil {
		return PairKey{ProductID: productID}
	}
	return PairKey{HasCustomer: true, CustomerID: *customerID, ProductID: productID}
}

func (k PairKey) String() string {
	if !k.HasCustomer {
		return fmt.Sprintf("walk-in/product %d", k.ProductID)
	}
	return fmt.Sprintf("customer %d/product %d", k.CustomerID, k.ProductID)
}

// =============================================================================
// ALLOCATION
// =============================================================================

// SaleAllocation is one sale with the quantity returns consume from it.
type SaleAllocation struct {
	Sale      Sale            `json:"sale"`
	Returned  decimal.Decimal `json:"returned_qty"`
	Remaining decimal.Decimal `json:"remaining_qty"`
}

// State derives the sale's lifecycle state.
func (a SaleAllocation) State() SaleState {
	switch {
	case a.Returned.IsZero():
		return SaleActive
	case a.Remaining.IsPositive():
		return SalePartiallyReturned
	default:
		return SaleFullyReturned
	}
}

// Portion is the part of a return taken from one sale.
type Portion struct {
	SaleID    int64           `json:"sale_id"`
	Qty       decimal.Decimal `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (p Portion) Amount() decimal.Decimal { return p.Qty.Mul(p.UnitPrice) }

// Allocation is the replayed state of one pair.
type Allocation struct {
	Key   PairKey
	Sales []SaleAllocation

	// Portions lists, per return id, what the return consumed.
	Portions map[int64][]Portion

	// Overdrawn is the quantity returned beyond all sales of the pair.
	// Always zero after a successful operation.
	Overdrawn decimal.Decimal
}

// Available is the total still returnable.
func (a Allocation) Available() decimal.Decimal {
	total := decimal.Zero
	for _, s := range a.Sales {
		total = total.Add(s.Remaining)
	}
	return total
}

// Consumed returns how much of the sale returns have taken.
func (a Allocation) Consumed(saleID int64) decimal.Decimal {
	for _, s := range a.Sales {
		if s.Sale.ID == saleID {
			return s.Returned
		}
	}
	return decimal.Zero
}

// Candidates returns the sales that still have something returnable.
func (a Allocation) Candidates() []SaleAllocation {
	var out []SaleAllocation
	for _, s := range a.Sales {
		if s.Remaining.IsPositive() {
			out = append(out, s)
		}
	}
	return out
}

// ReturnAmount prices a return already in the history from its portions.
func (a Allocation) ReturnAmount(returnID int64) decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.Portions[returnID] {
		total = total.Add(p.Amount())
	}
	return Round(total)
}

// Allocate replays every return of the pair against its sales.
func Allocate(sales []Sale, key PairKey) Allocation {
	var bought, returned []Sale
	for _, s := range sales {
		if s.Key() != key {
			continue
		}
		if s.IsReturn {
			returned = append(returned, s)
		} else {
			bought = append(bought, s)
		}
	}
	sortChronological(bought)
	sortChronological(returned)

	alloc := Allocation{
		Key:       key,
		Sales:     make([]SaleAllocation, len(bought)),
		Portions:  make(map[int64][]Portion),
		Overdrawn: decimal.Zero,
	}
	for i, s := range bought {
		alloc.Sales[i] = SaleAllocation{Sale: s, Returned: decimal.Zero, Remaining: s.Qty}
	}

	idx := 0
	for _, r := range returned {
		need := r.Qty
		for need.IsPositive() && idx < len(alloc.Sales) {
			cur := &alloc.Sales[idx]
			if !cur.Remaining.IsPositive() {
				idx++
				continue
			}
			take := decimal.Min(need, cur.Remaining)
			cur.Remaining = cur.Remaining.Sub(take)
			cur.Returned = cur.Returned.Add(take)
			need = need.Sub(take)
			alloc.Portions[r.ID] = append(alloc.Portions[r.ID], Portion{
				SaleID:    cur.Sale.ID,
				Qty:       take,
				UnitPrice: cur.Sale.UnitPrice,
			})
		}
		if need.IsPositive() {
			alloc.Overdrawn = alloc.Overdrawn.Add(need)
		}
	}
	return alloc
}

// AllocateAll replays every pair that has at least one sale or return.
func AllocateAll(sales []Sale) map[PairKey]Allocation {
	keys := make(map[PairKey]struct{})
	for _, s := range sales {
		keys[s.Key()] = struct{}{}
	}
	result := make(map[PairKey]Allocation, len(keys))
	for k := range keys {
		result[k] = Allocate(sales, k)
	}
	return result
}

func sortChronological(sales []Sale) {
	sort.SliceStable(sales, func(i, j int) bool {
		if !sales[i].At.Equal(sales[j].At) {
			return sales[i].At.Before(sales[j].At)
		}
		return sales[i].ID < sales[j].ID
	})
}

// =============================================================================
// RETURN PLAN - What a new return would consume
// =============================================================================

// ReturnPlan is the ordered consumption of a proposed return.
type ReturnPlan struct {
	Key      PairKey
	Qty      decimal.Decimal
	Portions []Portion

	// Computed is the FIFO-priced amount.
	Computed decimal.Decimal
}

// Plan allocates q units oldest sale first. Nothing is mutated; the caller
// commits the plan. q must be positive.
func (a Allocation) Plan(q decimal.Decimal) (ReturnPlan, error) {
	if !q.IsPositive() {
		return ReturnPlan{}, invalidQuantity(q)
	}
	available := a.Available()
	if q.GreaterThan(available) {
		return ReturnPlan{}, &OverReturnError{Key: a.Key, Available: available, Requested: q}
	}

	plan := ReturnPlan{Key: a.Key, Qty: q, Computed: decimal.Zero}
	need := q
	total := decimal.Zero
	for _, s := range a.Sales {
		if !need.IsPositive() {
			break
		}
		if !s.Remaining.IsPositive() {
			continue
		}
		take := decimal.Min(need, s.Remaining)
		p := Portion{SaleID: s.Sale.ID, Qty: take, UnitPrice: s.Sale.UnitPrice}
		plan.Portions = append(plan.Portions, p)
		total = total.Add(p.Amount())
		need = need.Sub(take)
	}
	plan.Computed = Round(total)
	return plan, nil
}

// Amount is the money value of the return: the override when given,
// otherwise the FIFO-priced total.
func (p ReturnPlan) Amount(override *decimal.Decimal) decimal.Decimal {
	if override != nil {
		return Round(*override)
	}
	return p.Computed
}

// OriginSaleID is the oldest sale the plan touches.
func (p ReturnPlan) OriginSaleID() *int64 {
	if len(p.Portions) == 0 {
		return nil
	}
	return int64Ptr(p.Portions[0].SaleID)
}
