package book_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/book"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var day0 = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func at(hours int) time.Time { return day0.Add(time.Duration(hours) * time.Hour) }

func idp(v int64) *int64 { return &v }

func sale(id int64, customer *int64, product int64, qty, price string, ts time.Time) book.Sale {
	q, p := book.Dec(qty), book.Dec(price)
	return book.Sale{
		ID:          id,
		At:          ts,
		ProductID:   product,
		CustomerID:  customer,
		Qty:         q,
		UnitPrice:   p,
		TotalAmount: q.Mul(p),
	}
}

func ret(id int64, customer *int64, product int64, qty string, ts time.Time) book.Sale {
	r := sale(id, customer, product, qty, "0", ts)
	r.IsReturn = true
	return r
}

func assertDec(t *testing.T, want string, got interface{ String() string }) {
	t.Helper()
	assert.Equal(t, book.Dec(want).String(), got.String())
}

// =============================================================================
// FIFO ALLOCATION
// =============================================================================

func TestPlan_SpillsIntoNextSale_PricedPerSale(t *testing.T) {
	// GIVEN: S1 3 @ 10 then S2 2 @ 12 for the same customer and product
	// WHEN: Planning a return of 4
	// THEN: All of S1 and 1 of S2 are consumed, priced 30 + 12 = 42

	c := idp(7)
	sales := []book.Sale{
		sale(2, c, 1, "2", "12", at(2)),
		sale(1, c, 1, "3", "10", at(1)),
	}

	plan, err := book.Allocate(sales, book.NewPairKey(c, 1)).Plan(book.Dec("4"))
	require.NoError(t, err)

	require.Len(t, plan.Portions, 2)
	assert.Equal(t, int64(1), plan.Portions[0].SaleID)
	assertDec(t, "3", plan.Portions[0].Qty)
	assert.Equal(t, int64(2), plan.Portions[1].SaleID)
	assertDec(t, "1", plan.Portions[1].Qty)
	assertDec(t, "42", plan.Computed)
	assert.Equal(t, int64(1), *plan.OriginSaleID())
}

func TestPlan_OverrideReplacesAmountOnly(t *testing.T) {
	c := idp(7)
	sales := []book.Sale{
		sale(1, c, 1, "3", "10", at(1)),
		sale(2, c, 1, "2", "12", at(2)),
	}

	plan, err := book.Allocate(sales, book.NewPairKey(c, 1)).Plan(book.Dec("4"))
	require.NoError(t, err)

	override := book.Dec("35.5")
	assertDec(t, "35.5", plan.Amount(&override))
	assertDec(t, "42", plan.Amount(nil))
	assert.Len(t, plan.Portions, 2)
}

func TestPlan_OverReturn_Rejected(t *testing.T) {
	// GIVEN: 5 units sold and 4 already returned
	// WHEN: Planning a return of 2
	// THEN: OverReturnError reports 1 available

	c := idp(7)
	sales := []book.Sale{
		sale(1, c, 1, "3", "10", at(1)),
		sale(2, c, 1, "2", "12", at(2)),
		ret(3, c, 1, "4", at(3)),
	}

	_, err := book.Allocate(sales, book.NewPairKey(c, 1)).Plan(book.Dec("2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, book.ErrOverReturn))

	var over *book.OverReturnError
	require.True(t, errors.As(err, &over))
	assertDec(t, "1", over.Available)
	assertDec(t, "2", over.Requested)
}

func TestPlan_NonPositiveQuantity_Rejected(t *testing.T) {
	alloc := book.Allocate(nil, book.NewPairKey(nil, 1))

	_, err := alloc.Plan(book.Dec("0"))
	assert.True(t, errors.Is(err, book.ErrInvalidQuantity))

	_, err = alloc.Plan(book.Dec("-1"))
	assert.True(t, errors.Is(err, book.ErrInvalidQuantity))
}

func TestAllocate_ReplaysReturnsOldestFirst(t *testing.T) {
	// GIVEN: Two sales and two returns totalling 4
	// WHEN: Replaying the pair
	// THEN: S1 is fully returned, S2 partially, and each return has its portions

	c := idp(7)
	sales := []book.Sale{
		sale(1, c, 1, "3", "10", at(1)),
		sale(2, c, 1, "2", "12", at(2)),
		ret(3, c, 1, "2", at(3)),
		ret(4, c, 1, "2", at(4)),
	}

	alloc := book.Allocate(sales, book.NewPairKey(c, 1))

	require.Len(t, alloc.Sales, 2)
	assert.Equal(t, book.SaleFullyReturned, alloc.Sales[0].State())
	assert.Equal(t, book.SalePartiallyReturned, alloc.Sales[1].State())
	assertDec(t, "1", alloc.Available())
	assertDec(t, "3", alloc.Consumed(1))
	assertDec(t, "1", alloc.Consumed(2))
	assert.True(t, alloc.Overdrawn.IsZero())

	assertDec(t, "20", alloc.ReturnAmount(3))
	assertDec(t, "22", alloc.ReturnAmount(4))

	candidates := alloc.Candidates()
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(2), candidates[0].Sale.ID)
}

func TestAllocate_PairsAreIndependent(t *testing.T) {
	// GIVEN: A walk-in sale and a customer sale of the same product
	// WHEN: Allocating the walk-in pair
	// THEN: Only the walk-in sale is returnable

	c := idp(7)
	sales := []book.Sale{
		sale(1, nil, 1, "2", "10", at(1)),
		sale(2, c, 1, "5", "10", at(2)),
		sale(3, nil, 2, "9", "10", at(3)),
	}

	walkIn := book.Allocate(sales, book.NewPairKey(nil, 1))
	assertDec(t, "2", walkIn.Available())

	customer := book.Allocate(sales, book.NewPairKey(c, 1))
	assertDec(t, "5", customer.Available())

	all := book.AllocateAll(sales)
	assert.Len(t, all, 3)
}

func TestAllocate_SameTimestamp_OrderedByID(t *testing.T) {
	c := idp(7)
	sales := []book.Sale{
		sale(5, c, 1, "1", "20", at(1)),
		sale(4, c, 1, "1", "10", at(1)),
	}

	plan, err := book.Allocate(sales, book.NewPairKey(c, 1)).Plan(book.Dec("1"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), plan.Portions[0].SaleID)
	assertDec(t, "10", plan.Computed)
}

func TestAllocate_OverdrawnHistory_Reported(t *testing.T) {
	sales := []book.Sale{
		sale(1, nil, 1, "1", "10", at(1)),
		ret(2, nil, 1, "3", at(2)),
	}

	alloc := book.Allocate(sales, book.NewPairKey(nil, 1))
	assertDec(t, "2", alloc.Overdrawn)
	assertDec(t, "0", alloc.Available())
}
