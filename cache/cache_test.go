package cache_test

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
	"github.com/warp/stockbook/cache"
)

func TestNoop_NeverHits(t *testing.T) {
	ctx := context.Background()
	var c cache.Noop

	require.NoError(t, c.Set(ctx, &book.Snapshot{Version: 3}))
	snap, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snap)
}

func setupRedis(t *testing.T) *cache.Redis {
	_ = godotenv.Load("../.env")

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping integration test")
	}

	c := cache.NewRedis(addr, os.Getenv("TEST_REDIS_PASSWORD"), 0, time.Minute).
		WithKey("stockbook:test:" + t.Name())
	require.NoError(t, c.Ping(context.Background()))
	t.Cleanup(func() {
		_ = c.Invalidate(context.Background())
		c.Close()
	})
	return c
}

func TestRedis_MissThenHit(t *testing.T) {
	// GIVEN: An empty key
	// WHEN: The engine publishes a snapshot after a mutation
	// THEN: The cache returns the same version and rows
	c := setupRedis(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	engine := book.NewEngine(store.NewTxMemory(), book.WithCache(c))
	qty := book.Dec("4")
	published, err := engine.CreateProduct(ctx, book.ProductInput{Name: "Sugar", UnitPrice: book.Dec("2.5"), InitialQty: &qty})
	require.NoError(t, err)

	cached, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, published.Version, cached.Version)
	require.Len(t, cached.Products, 1)
	assert.Equal(t, "Sugar", cached.Products[0].Name)
	assert.True(t, cached.Products[0].Qty.Equal(qty))
}

func TestRedis_Invalidate(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &book.Snapshot{Version: 1}))
	require.NoError(t, c.Invalidate(ctx))

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
