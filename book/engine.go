/*
engine.go - Single-writer transaction engine

PURPOSE:
  The Engine is the only way to change a book. Each operation validates
  everything up front, applies all of its side effects (stock, linked
  movement, linked credit entry) inside one store transaction, and returns
  the freshly materialized Snapshot.

OPERATIONS:
  catalog.go: CreateProduct, UpdateProduct, DeleteProduct,
              CreateCustomer, UpdateCustomer, DeleteCustomer
  sales.go:   RecordSale, UpdateSale, DeleteSale
  returns.go: RecordReturn, UpdateReturn, DeleteReturn
  stock.go:   RecordStockEntry, UpdateStockEntry, DeleteStockEntry
  credit.go:  RecordCreditPayment, UpdateCreditPayment, DeleteCreditPayment
  queries.go: ReturnCandidates, PreviewReturn, CustomerStatement, LowStock

CONCURRENCY:
  One operation at a time. The engine mutex covers the transaction, the
  version bump and the snapshot materialization, so a snapshot always
  reflects exactly the state just committed.

FAILURE:
  A rejected or failed operation returns a nil snapshot and leaves the
  store, the persisted state and the cache untouched.
*/
package book

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock supplies operation timestamps.
type Clock func() time.Time

// Engine applies operations to a book.
type Engine struct {
	mu        sync.Mutex
	store     TxStore
	cache     SnapshotCache
	log       *zap.Logger
	now       Clock
	version   int64
	published bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCache publishes every materialized snapshot to c.
func WithCache(c SnapshotCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.now = c
		}
	}
}

// NewEngine creates an engine over the given store.
func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Version is the number of operations committed by this engine.
func (e *Engine) Version() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// =============================================================================
// TRANSACTION BOUNDARY
// =============================================================================

// txn is the write context handed to operation bodies.
type txn struct {
	s   Store
	now time.Time
}

// mutate runs fn as one atomic operation and returns the new snapshot.
func (e *Engine) mutate(ctx context.Context, op string, fn func(t txn) error, fields ...zap.Field) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().UTC()
	err := e.store.WithTx(ctx, func(s Store) error {
		return fn(txn{s: s, now: now})
	})
	if err != nil {
		if IsClientError(err) || IsNotFound(err) {
			e.log.Debug("operation rejected", append(fields, zap.String("op", op), zap.Error(err))...)
		} else {
			e.log.Error("operation failed", append(fields, zap.String("op", op), zap.Error(err))...)
		}
		return nil, err
	}

	e.version++
	e.log.Info("operation committed", append(fields, zap.String("op", op), zap.Int64("version", e.version))...)
	return e.materialize(ctx)
}

func (e *Engine) materialize(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := e.store.View(ctx, func(s Store) error {
		snap = Assemble(s, e.version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, snap); err != nil {
			e.log.Warn("snapshot cache write failed", zap.Int64("version", snap.Version), zap.Error(err))
			e.published = false
		} else {
			e.published = true
		}
	}
	return snap, nil
}

// Snapshot returns the current state. It reads through the cache when the
// cached snapshot was published by this engine at the current version.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(ctx)
}

func (e *Engine) snapshotLocked(ctx context.Context) (*Snapshot, error) {
	if e.cache != nil && e.published {
		snap, ok, err := e.cache.Get(ctx)
		if err != nil {
			e.log.Warn("snapshot cache read failed", zap.Error(err))
		} else if ok && snap.Version == e.version {
			return snap, nil
		}
	}
	return e.materialize(ctx)
}

// read runs fn against a consistent read view.
func (e *Engine) read(ctx context.Context, fn func(s Store) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.View(ctx, fn)
}

// Reset removes every entity. Sequences keep counting so ids stay unique.
func (e *Engine) Reset(ctx context.Context) (*Snapshot, error) {
	return e.mutate(ctx, "reset", func(t txn) error {
		t.s.Credits().Purge()
		for _, m := range t.s.Movements().List() {
			t.s.Movements().Delete(m.ID)
		}
		for _, s := range t.s.Sales().List() {
			t.s.Sales().Delete(s.ID)
		}
		for _, c := range t.s.Customers().List() {
			t.s.Customers().Delete(c.ID)
		}
		for _, p := range t.s.Products().List() {
			t.s.Products().Delete(p.ID)
		}
		return nil
	})
}
