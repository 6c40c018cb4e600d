/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario loads through ordinary engine operations and
	leaves the book in the state its description promises.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stockbook/book"
)

func findBalance(t *testing.T, snap *book.Snapshot, name string) book.CustomerBalance {
	for _, b := range snap.Balances {
		if b.CustomerName == name {
			return b
		}
	}
	t.Fatalf("no balance for %q", name)
	return book.CustomerBalance{}
}

func TestScenarios_AllLoad(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)
			snap, err := s.handler.loadScenario(context.Background(), sc.ID)
			require.NoError(t, err)
			assert.NotEmpty(t, snap.Products)
			assert.Equal(t, sc.ID, s.handler.currentScenario)
		})
	}
	assert.Len(t, loaders, len(scenarios))
}

func TestScenario_FIFOReturns(t *testing.T) {
	// GIVEN: The fifo-returns scenario
	// WHEN: Loading it
	// THEN: The return of 4 is priced 42 and the customer owes 12
	s := newTestServer(t)

	snap, err := s.handler.loadScenario(context.Background(), "fifo-returns")
	require.NoError(t, err)

	var ret *book.SaleView
	for i := range snap.Sales {
		if snap.Sales[i].IsReturn {
			ret = &snap.Sales[i]
		}
	}
	require.NotNil(t, ret)
	assert.Equal(t, "42", ret.TotalAmount.String())
	assert.Equal(t, "12", findBalance(t, snap, "Choi").Outstanding.String())
	assert.Equal(t, "19", snap.Products[0].Qty.String())
}

func TestScenario_CreditRoundTrip(t *testing.T) {
	s := newTestServer(t)

	snap, err := s.handler.loadScenario(context.Background(), "credit-roundtrip")
	require.NoError(t, err)

	b := findBalance(t, snap, "Jung")
	assert.Equal(t, "0", b.Outstanding.String())
	assert.Equal(t, "500", b.TotalCredit.String())
	assert.Equal(t, "500", b.TotalPaid.String())
	assert.Equal(t, "3", snap.Products[0].Qty.String())
}

func TestScenario_CornerShopHasLowStock(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handler.loadScenario(context.Background(), "corner-shop")
	require.NoError(t, err)

	low, err := s.handler.Engine.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Sugar 1kg", low[0].Name)
}

func TestScenario_ReloadReplacesBook(t *testing.T) {
	// GIVEN: One scenario loaded
	// WHEN: Loading another
	// THEN: Only the second scenario's entities remain
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handler.loadScenario(ctx, "corner-shop")
	require.NoError(t, err)
	snap, err := s.handler.loadScenario(ctx, "edit-guard")
	require.NoError(t, err)

	require.Len(t, snap.Products, 1)
	assert.Equal(t, "Paint 5L", snap.Products[0].Name)
	require.Len(t, snap.Customers, 1)
}

func TestScenarioEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	snap := s.snapshot(s.do("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "edit-guard"}), http.StatusOK)
	assert.NotEmpty(t, snap.Sales)

	rec = s.do("GET", "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"edit-guard"`)

	snap = s.snapshot(s.do("POST", "/api/scenarios/reset", nil), http.StatusOK)
	assert.Empty(t, snap.Products)
	assert.Empty(t, snap.Sales)

	rec = s.do("GET", "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestScenario_EditGuardRejectsShrinking(t *testing.T) {
	s := newTestServer(t)

	snap, err := s.handler.loadScenario(context.Background(), "edit-guard")
	require.NoError(t, err)

	var saleID int64
	for _, sale := range snap.Sales {
		if !sale.IsReturn {
			saleID = sale.ID
		}
	}
	require.NotZero(t, saleID)

	cid := snap.Customers[0].ID
	_, err = s.handler.Engine.UpdateSale(context.Background(), book.SaleUpdate{
		ID: saleID, Qty: book.Dec("1"), CustomerID: &cid, IsCredit: true,
	})
	assert.ErrorIs(t, err, book.ErrSaleHasReturns)
}
