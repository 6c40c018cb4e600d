package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/book"
	"github.com/warp/stockbook/book/store"
	"github.com/warp/stockbook/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestEngine(t *testing.T, db *sqlite.Store) *book.Engine {
	mem, err := store.Open(context.Background(), db)
	require.NoError(t, err)
	ts := time.Date(2025, time.May, 2, 10, 0, 0, 0, time.UTC)
	return book.NewEngine(mem, book.WithClock(func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}))
}

func dec(s string) decimal.Decimal { return book.Dec(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestStore_ReloadReproducesBook(t *testing.T) {
	// GIVEN: A book with a product, a customer, a credit sale, a return and a
	//        manual receipt, written through the SQLite persister
	// WHEN: A fresh in-memory store is loaded from the same database
	// THEN: The reloaded snapshot matches the original

	ctx := context.Background()
	db := newTestStore(t)
	engine := newTestEngine(t, db)

	snap, err := engine.CreateProduct(ctx, book.ProductInput{
		Name: "Rice 20kg", SKU: "R-20", UnitPrice: dec("45.50"), InitialQty: decp("10"),
	})
	require.NoError(t, err)
	productID := snap.Products[0].ID

	snap, err = engine.CreateCustomer(ctx, book.CustomerInput{Name: "Kim", Phone: "010-1234-5678"})
	require.NoError(t, err)
	customerID := snap.Customers[0].ID

	_, err = engine.RecordSale(ctx, book.SaleInput{ProductID: productID, Qty: dec("3"), CustomerID: &customerID, IsCredit: true})
	require.NoError(t, err)
	_, err = engine.RecordReturn(ctx, book.ReturnInput{ProductID: productID, CustomerID: &customerID, Qty: dec("1")})
	require.NoError(t, err)
	original, err := engine.RecordStockEntry(ctx, book.StockEntryInput{
		ProductID: productID, Qty: dec("2.5"), Kind: "IN", Counterparty: "Mill Co",
	})
	require.NoError(t, err)

	reloaded, err := newTestEngine(t, db).Snapshot(ctx)
	require.NoError(t, err)

	require.Len(t, reloaded.Products, 1)
	p := reloaded.Products[0]
	assert.Equal(t, "R-20", p.SKU)
	assert.Equal(t, "10.5", p.Qty.String())
	assert.Equal(t, "45.5", p.UnitPrice.String())
	assert.Equal(t, "5", p.LowStockThreshold.String())

	require.Len(t, reloaded.Sales, len(original.Sales))
	for i := range original.Sales {
		want, got := original.Sales[i], reloaded.Sales[i]
		assert.Equal(t, want.ID, got.ID)
		assert.True(t, want.At.Equal(got.At))
		assert.Equal(t, want.IsReturn, got.IsReturn)
		assert.Equal(t, want.TotalAmount.String(), got.TotalAmount.String())
		assert.Equal(t, want.OriginSaleID, got.OriginSaleID)
		assert.Equal(t, want.State, got.State)
	}

	require.Len(t, reloaded.Movements, len(original.Movements))
	assert.Equal(t, "Mill Co", reloaded.Movements[0].Counterparty)
	assert.Nil(t, reloaded.Movements[0].SaleID)

	require.Len(t, reloaded.Balances, 1)
	assert.Equal(t, "91", reloaded.Balances[0].Outstanding.String())
	assert.Len(t, reloaded.Credits, 2)
}

func TestStore_VoidedCreditsAndSequencesSurviveReload(t *testing.T) {
	// GIVEN: A credit sale that is deleted (its charge is voided) and a reset
	// WHEN: Reloading
	// THEN: The voided entry stays hidden and new ids do not reuse old ones

	ctx := context.Background()
	db := newTestStore(t)
	engine := newTestEngine(t, db)

	snap, err := engine.CreateProduct(ctx, book.ProductInput{Name: "Oil", UnitPrice: dec("9")})
	require.NoError(t, err)
	productID := snap.Products[0].ID
	snap, err = engine.CreateCustomer(ctx, book.CustomerInput{Name: "Lee", Phone: "010"})
	require.NoError(t, err)
	customerID := snap.Customers[0].ID

	snap, err = engine.RecordSale(ctx, book.SaleInput{ProductID: productID, Qty: dec("2"), CustomerID: &customerID, IsCredit: true})
	require.NoError(t, err)
	saleID := snap.Sales[0].ID
	_, err = engine.DeleteSale(ctx, saleID)
	require.NoError(t, err)

	state, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Credits, 1)
	assert.True(t, state.Credits[0].Voided)
	assert.Equal(t, saleID, state.Sequences[book.KindSale])

	reloaded := newTestEngine(t, db)
	snap, err = reloaded.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Credits)

	snap, err = reloaded.RecordSale(ctx, book.SaleInput{ProductID: productID, Qty: dec("1")})
	require.NoError(t, err)
	assert.Greater(t, snap.Sales[0].ID, saleID)
}

func TestStore_ArchivedNameCanBeReused(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	engine := newTestEngine(t, db)

	snap, err := engine.CreateProduct(ctx, book.ProductInput{Name: "Tea", UnitPrice: dec("3")})
	require.NoError(t, err)
	_, err = engine.DeleteProduct(ctx, snap.Products[0].ID)
	require.NoError(t, err)

	_, err = engine.CreateProduct(ctx, book.ProductInput{Name: "TEA", UnitPrice: dec("4")})
	require.NoError(t, err)

	state, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Products, 2)
}

func TestStore_SaveIsAtomic(t *testing.T) {
	// GIVEN: A change set whose second product violates the unique name index
	// WHEN: Saving it
	// THEN: Nothing from the change set is written

	ctx := context.Background()
	db := newTestStore(t)

	err := db.Save(ctx, book.ChangeSet{
		Products: book.Changes[book.Product]{Put: []book.Product{
			{ID: 1, Name: "Salt", UnitPrice: dec("1"), Qty: dec("0"), LowStockThreshold: dec("5")},
			{ID: 2, Name: "salt", UnitPrice: dec("1"), Qty: dec("0"), LowStockThreshold: dec("5")},
		}},
		Sequences: map[book.EntityKind]int64{book.KindProduct: 2},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, book.ErrValidation)

	state, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Products)
	assert.Empty(t, state.Sequences)
}
