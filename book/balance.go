/*
balance.go - Customer credit balances from the credit log

PURPOSE:
  Computes what each customer owes by replaying their credit entries.
  There is no stored balance that could drift from the history.

FOLD:
  Entries are partitioned by customer and replayed in (At, ID) order.
  Charges add to a running sum, payments subtract. The displayed balance
  before/after an entry is the running sum floored at zero, so a customer
  who prepaid shows 0 rather than a negative debt:

    charge 100 -> 100
    payment 150 -> 0   (raw -50)
    charge 30  -> 0    (raw -20)

  The last displayed value always equals
  Outstanding = max(TotalCredit - TotalPaid, 0).

SEE ALSO:
  - snapshot.go: Includes balances in every snapshot
  - queries.go: CustomerStatement
*/
package book

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CURRENT BALANCES
// =============================================================================

// Balances computes one CustomerBalance per customer, including customers
// without any entries. Voided entries are ignored.
func Balances(customers []Customer, entries []CreditEntry) []CustomerBalance {
	byCustomer := make(map[int64]*CustomerBalance, len(customers))
	result := make([]CustomerBalance, len(customers))
	for i, c := range customers {
		result[i] = CustomerBalance{
			CustomerID:    c.ID,
			CustomerName:  c.Name,
			CustomerPhone: c.Phone,
			TotalCredit:   decimal.Zero,
			TotalPaid:     decimal.Zero,
			Outstanding:   decimal.Zero,
		}
		byCustomer[c.ID] = &result[i]
	}

	for _, e := range entries {
		if e.Voided {
			continue
		}
		b, ok := byCustomer[e.CustomerID]
		if !ok {
			continue
		}
		if e.IsPayment {
			b.TotalPaid = b.TotalPaid.Add(e.Amount)
		} else {
			b.TotalCredit = b.TotalCredit.Add(e.Amount)
		}
		if b.LastActivity == nil || e.At.After(*b.LastActivity) {
			at := e.At
			b.LastActivity = &at
		}
	}

	for i := range result {
		result[i].Outstanding = floor(result[i].TotalCredit.Sub(result[i].TotalPaid))
	}

	sort.SliceStable(result, func(i, j int) bool {
		ni, nj := strings.ToLower(result[i].CustomerName), strings.ToLower(result[j].CustomerName)
		if ni != nj {
			return ni < nj
		}
		return result[i].CustomerID < result[j].CustomerID
	})
	return result
}

// Outstanding is the current debt of one customer.
func Outstanding(customerID int64, entries []CreditEntry) decimal.Decimal {
	raw := decimal.Zero
	for _, e := range entries {
		if e.Voided || e.CustomerID != customerID {
			continue
		}
		raw = raw.Add(e.Signed())
	}
	return floor(raw)
}

// =============================================================================
// POINT-IN-TIME RECONSTRUCTION
// =============================================================================

// StatementLine is one credit entry with the balance around it.
type StatementLine struct {
	Entry  CreditEntry     `json:"entry"`
	Before decimal.Decimal `json:"balance_before"`
	After  decimal.Decimal `json:"balance_after"`
}

// Statement replays a customer's live entries chronologically.
func Statement(customerID int64, entries []CreditEntry) []StatementLine {
	var mine []CreditEntry
	for _, e := range entries {
		if !e.Voided && e.CustomerID == customerID {
			mine = append(mine, e)
		}
	}
	sortCredits(mine)

	lines := make([]StatementLine, len(mine))
	raw := decimal.Zero
	for i, e := range mine {
		before := floor(raw)
		raw = raw.Add(e.Signed())
		lines[i] = StatementLine{Entry: e, Before: before, After: floor(raw)}
	}
	return lines
}

// BalanceAround returns the customer's balance immediately before and after
// the given entry. ok is false when the entry is unknown or voided.
func BalanceAround(entryID int64, entries []CreditEntry) (before, after decimal.Decimal, ok bool) {
	var customerID int64
	found := false
	for _, e := range entries {
		if e.ID == entryID && !e.Voided {
			customerID = e.CustomerID
			found = true
			break
		}
	}
	if !found {
		return decimal.Zero, decimal.Zero, false
	}
	for _, line := range Statement(customerID, entries) {
		if line.Entry.ID == entryID {
			return line.Before, line.After, true
		}
	}
	return decimal.Zero, decimal.Zero, false
}

func sortCredits(entries []CreditEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].At.Equal(entries[j].At) {
			return entries[i].At.Before(entries[j].At)
		}
		return entries[i].ID < entries[j].ID
	})
}

func floor(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
