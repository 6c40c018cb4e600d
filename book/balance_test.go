package book_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/book"
)

func charge(id, customer int64, amount string, hours int) book.CreditEntry {
	return book.CreditEntry{ID: id, CustomerID: customer, Amount: book.Dec(amount), At: at(hours)}
}

func payment(id, customer int64, amount string, hours int) book.CreditEntry {
	e := charge(id, customer, amount, hours)
	e.IsPayment = true
	return e
}

func TestStatement_FloorsDisplayedBalance(t *testing.T) {
	// GIVEN: charge 100, payment 150, charge 30
	// WHEN: Replaying the customer's entries
	// THEN: The displayed balance never goes below zero and ends at
	//       max(130 - 150, 0) = 0

	entries := []book.CreditEntry{
		charge(3, 1, "30", 3),
		payment(2, 1, "150", 2),
		charge(1, 1, "100", 1),
	}

	lines := book.Statement(1, entries)
	require.Len(t, lines, 3)

	assertDec(t, "0", lines[0].Before)
	assertDec(t, "100", lines[0].After)
	assertDec(t, "100", lines[1].Before)
	assertDec(t, "0", lines[1].After)
	assertDec(t, "0", lines[2].Before)
	assertDec(t, "0", lines[2].After)

	assertDec(t, "0", book.Outstanding(1, entries))
}

func TestBalances_TotalsAreUnfloored(t *testing.T) {
	customers := []book.Customer{
		{ID: 2, Name: "bora"},
		{ID: 1, Name: "Ahn"},
		{ID: 3, Name: "Cho"},
	}
	entries := []book.CreditEntry{
		charge(1, 1, "100", 1),
		payment(2, 1, "150", 2),
		charge(3, 1, "30", 3),
		charge(4, 2, "80", 4),
		payment(5, 2, "20", 5),
	}

	balances := book.Balances(customers, entries)
	require.Len(t, balances, 3)

	// sorted by name, case-insensitively
	assert.Equal(t, "Ahn", balances[0].CustomerName)
	assert.Equal(t, "bora", balances[1].CustomerName)
	assert.Equal(t, "Cho", balances[2].CustomerName)

	assertDec(t, "130", balances[0].TotalCredit)
	assertDec(t, "150", balances[0].TotalPaid)
	assertDec(t, "0", balances[0].Outstanding)
	assert.Equal(t, at(3), *balances[0].LastActivity)

	assertDec(t, "60", balances[1].Outstanding)

	assertDec(t, "0", balances[2].Outstanding)
	assert.Nil(t, balances[2].LastActivity)
}

func TestBalances_IgnoreVoidedEntries(t *testing.T) {
	voided := charge(2, 1, "500", 2)
	voided.Voided = true
	entries := []book.CreditEntry{charge(1, 1, "100", 1), voided}

	balances := book.Balances([]book.Customer{{ID: 1, Name: "Ahn"}}, entries)
	assertDec(t, "100", balances[0].Outstanding)
	assertDec(t, "100", book.Outstanding(1, entries))
	assert.Len(t, book.Statement(1, entries), 1)
}

func TestBalanceAround_SingleEntry(t *testing.T) {
	// GIVEN: charge 100 then a payment of 40
	// WHEN: Asking for the balance around the payment
	// THEN: before is 100 and after is 60

	entries := []book.CreditEntry{
		charge(1, 1, "100", 1),
		payment(2, 1, "40", 2),
		charge(3, 2, "999", 1),
	}

	before, after, ok := book.BalanceAround(2, entries)
	require.True(t, ok)
	assertDec(t, "100", before)
	assertDec(t, "60", after)

	_, _, ok = book.BalanceAround(42, entries)
	assert.False(t, ok)
}

func TestBalances_ReplayIsPure(t *testing.T) {
	entries := []book.CreditEntry{
		charge(1, 1, "10.25", 1),
		payment(2, 1, "3.10", 2),
		charge(3, 1, "7", 3),
	}
	customers := []book.Customer{{ID: 1, Name: "Ahn"}}

	first := book.Balances(customers, entries)
	second := book.Balances(customers, entries)
	assert.Equal(t, first, second)
	assertDec(t, "14.15", first[0].Outstanding)
}
