package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/book"
	"github.com/warp/stockbook/book/store"
	"github.com/warp/stockbook/store/postgres"
)

func setupTestDB(t *testing.T) *postgres.Store {
	_ = godotenv.Load("../../.env")

	// Integration tests truncate every table, so they only run against a
	// dedicated database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db, err := postgres.New(ctx, pool)
	require.NoError(t, err)
	require.NoError(t, db.Reset(ctx))
	return db
}

func newTestEngine(t *testing.T, db *postgres.Store) *book.Engine {
	mem, err := store.Open(context.Background(), db)
	require.NoError(t, err)
	ts := time.Date(2025, time.May, 2, 10, 0, 0, 0, time.UTC)
	return book.NewEngine(mem, book.WithClock(func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}))
}

func TestNewPool_EmptyURL(t *testing.T) {
	_, err := postgres.NewPool(context.Background(), "")
	require.Error(t, err)
}

func TestStore_ReloadReproducesBook(t *testing.T) {
	// GIVEN: A credit sale, a partial return and a payment written through
	//        the PostgreSQL persister
	// WHEN: A second engine loads from the same database
	// THEN: Stock, balances and return state match
	db := setupTestDB(t)
	ctx := context.Background()
	engine := newTestEngine(t, db)

	initial := book.Dec("12")
	snap, err := engine.CreateProduct(ctx, book.ProductInput{Name: "Flour", UnitPrice: book.Dec("7.25"), InitialQty: &initial})
	require.NoError(t, err)
	productID := snap.Products[0].ID

	snap, err = engine.CreateCustomer(ctx, book.CustomerInput{Name: "Park", Phone: "010-9999"})
	require.NoError(t, err)
	customerID := snap.Customers[0].ID

	_, err = engine.RecordSale(ctx, book.SaleInput{ProductID: productID, Qty: book.Dec("4"), CustomerID: &customerID, IsCredit: true})
	require.NoError(t, err)
	_, err = engine.RecordReturn(ctx, book.ReturnInput{ProductID: productID, CustomerID: &customerID, Qty: book.Dec("1")})
	require.NoError(t, err)
	original, err := engine.RecordCreditPayment(ctx, book.PaymentInput{CustomerID: customerID, Amount: book.Dec("10")})
	require.NoError(t, err)

	reloaded, err := newTestEngine(t, db).Snapshot(ctx)
	require.NoError(t, err)

	require.Len(t, reloaded.Products, 1)
	assert.Equal(t, "9", reloaded.Products[0].Qty.String())
	assert.Equal(t, "7.25", reloaded.Products[0].UnitPrice.String())

	require.Len(t, reloaded.Balances, 1)
	assert.Equal(t, original.Balances[0].Outstanding.String(), reloaded.Balances[0].Outstanding.String())

	require.Len(t, reloaded.Sales, 2)
	for i := range original.Sales {
		assert.Equal(t, original.Sales[i].ID, reloaded.Sales[i].ID)
		assert.Equal(t, original.Sales[i].State, reloaded.Sales[i].State)
		assert.Equal(t, original.Sales[i].OriginSaleID, reloaded.Sales[i].OriginSaleID)
	}
	assert.Len(t, reloaded.Movements, len(original.Movements))
	assert.Len(t, reloaded.Credits, len(original.Credits))
}

func TestStore_DuplicateActiveNameIsValidationError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.Save(ctx, book.ChangeSet{
		Products: book.Changes[book.Product]{Put: []book.Product{
			{ID: 1, Name: "Salt", UnitPrice: book.Dec("1"), Qty: book.Dec("0"), LowStockThreshold: book.Dec("5")},
			{ID: 2, Name: "SALT", UnitPrice: book.Dec("1"), Qty: book.Dec("0"), LowStockThreshold: book.Dec("5")},
		}},
	})
	require.ErrorIs(t, err, book.ErrValidation)

	state, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Products)
}
