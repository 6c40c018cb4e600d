// Package store provides TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/stockbook/book"
)

// =============================================================================
// TABLE - Keyed rows with a sequence and dirty tracking
// =============================================================================

type table[T book.Record] struct {
	rows map[int64]T
	seq  int64

	// dirty tracking, only populated inside a transaction
	tracking bool
	put      map[int64]struct{}
	del      map[int64]struct{}
}

func newTable[T book.Record]() *table[T] {
	return &table[T]{rows: make(map[int64]T)}
}

func (t *table[T]) NextID() int64 {
	t.seq++
	return t.seq
}

func (t *table[T]) Get(id int64) (T, bool) {
	rec, ok := t.rows[id]
	return rec, ok
}

func (t *table[T]) Put(rec T) {
	id := rec.RecordID()
	t.rows[id] = rec
	if id > t.seq {
		t.seq = id
	}
	if t.tracking {
		t.put[id] = struct{}{}
		delete(t.del, id)
	}
}

func (t *table[T]) Delete(id int64) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	if t.tracking {
		delete(t.put, id)
		t.del[id] = struct{}{}
	}
	return true
}

func (t *table[T]) List() []T {
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	result := make([]T, len(ids))
	for i, id := range ids {
		result[i] = t.rows[id]
	}
	return result
}

func (t *table[T]) clone() *table[T] {
	rows := make(map[int64]T, len(t.rows))
	for k, v := range t.rows {
		rows[k] = v
	}
	return &table[T]{rows: rows, seq: t.seq}
}

func (t *table[T]) begin() {
	t.tracking = true
	t.put = make(map[int64]struct{})
	t.del = make(map[int64]struct{})
}

func (t *table[T]) end() {
	t.tracking = false
	t.put = nil
	t.del = nil
}

func (t *table[T]) changes() book.Changes[T] {
	var c book.Changes[T]
	for id := range t.put {
		c.Put = append(c.Put, t.rows[id])
	}
	for id := range t.del {
		c.Delete = append(c.Delete, id)
	}
	sort.Slice(c.Put, func(i, j int) bool { return c.Put[i].RecordID() < c.Put[j].RecordID() })
	sort.Slice(c.Delete, func(i, j int) bool { return c.Delete[i] < c.Delete[j] })
	return c
}

// =============================================================================
// CREDIT LOG - Append-only entries
// =============================================================================

type creditLog struct {
	*table[book.CreditEntry]
}

func (l creditLog) Append(entry book.CreditEntry) book.CreditEntry {
	entry.ID = l.NextID()
	entry.Voided = false
	l.Put(entry)
	return entry
}

func (l creditLog) Amend(id int64, fn func(*book.CreditEntry)) bool {
	entry, ok := l.rows[id]
	if !ok || entry.Voided {
		return false
	}
	fn(&entry)
	entry.ID = id
	entry.Voided = false
	l.Put(entry)
	return true
}

func (l creditLog) Void(id int64) bool {
	entry, ok := l.rows[id]
	if !ok || entry.Voided {
		return false
	}
	entry.Voided = true
	l.Put(entry)
	return true
}

func (l creditLog) List(includeVoided bool) []book.CreditEntry {
	all := l.table.List()
	if includeVoided {
		return all
	}
	live := all[:0]
	for _, e := range all {
		if !e.Voided {
			live = append(live, e)
		}
	}
	return live
}

func (l creditLog) Purge() {
	for id := range l.rows {
		l.table.Delete(id)
	}
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type dataset struct {
	products  *table[book.Product]
	customers *table[book.Customer]
	sales     *table[book.Sale]
	movements *table[book.StockMovement]
	credits   *table[book.CreditEntry]
}

func newDataset() *dataset {
	return &dataset{
		products:  newTable[book.Product](),
		customers: newTable[book.Customer](),
		sales:     newTable[book.Sale](),
		movements: newTable[book.StockMovement](),
		credits:   newTable[book.CreditEntry](),
	}
}

func (d *dataset) Products() book.Table[book.Product]        { return d.products }
func (d *dataset) Customers() book.Table[book.Customer]      { return d.customers }
func (d *dataset) Sales() book.Table[book.Sale]              { return d.sales }
func (d *dataset) Movements() book.Table[book.StockMovement] { return d.movements }
func (d *dataset) Credits() book.CreditLog                   { return creditLog{d.credits} }

func (d *dataset) clone() *dataset {
	return &dataset{
		products:  d.products.clone(),
		customers: d.customers.clone(),
		sales:     d.sales.clone(),
		movements: d.movements.clone(),
		credits:   d.credits.clone(),
	}
}

func (d *dataset) sequences() map[book.EntityKind]int64 {
	return map[book.EntityKind]int64{
		book.KindProduct:  d.products.seq,
		book.KindCustomer: d.customers.seq,
		book.KindSale:     d.sales.seq,
		book.KindMovement: d.movements.seq,
		book.KindCredit:   d.credits.seq,
	}
}

func (d *dataset) begin() {
	d.products.begin()
	d.customers.begin()
	d.sales.begin()
	d.movements.begin()
	d.credits.begin()
}

func (d *dataset) end() {
	d.products.end()
	d.customers.end()
	d.sales.end()
	d.movements.end()
	d.credits.end()
}

func (d *dataset) changes(before map[book.EntityKind]int64) book.ChangeSet {
	cs := book.ChangeSet{
		Products:  d.products.changes(),
		Customers: d.customers.changes(),
		Sales:     d.sales.changes(),
		Movements: d.movements.changes(),
		Credits:   d.credits.changes(),
	}
	for kind, seq := range d.sequences() {
		if seq != before[kind] {
			if cs.Sequences == nil {
				cs.Sequences = make(map[book.EntityKind]int64)
			}
			cs.Sequences[kind] = seq
		}
	}
	return cs
}

// TxMemory is an in-memory TxStore. When a Persister is attached, every
// transaction's changes are saved before the transaction is committed.
type TxMemory struct {
	mu      sync.RWMutex
	data    *dataset
	persist book.Persister
}

// NewTxMemory creates an empty, volatile store.
func NewTxMemory() *TxMemory {
	return &TxMemory{data: newDataset()}
}

// Open loads the persisted state and returns a store that writes through
// to the persister.
func Open(ctx context.Context, p book.Persister) (*TxMemory, error) {
	state, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	m := FromState(state)
	m.persist = p
	return m, nil
}

// FromState builds a volatile store from a loaded state.
func FromState(state *book.State) *TxMemory {
	d := newDataset()
	if state != nil {
		for _, p := range state.Products {
			d.products.Put(p)
		}
		for _, c := range state.Customers {
			d.customers.Put(c)
		}
		for _, s := range state.Sales {
			d.sales.Put(s)
		}
		for _, m := range state.Movements {
			d.movements.Put(m)
		}
		for _, c := range state.Credits {
			d.credits.Put(c)
		}
		restoreSeq(d.products, state.Sequences[book.KindProduct])
		restoreSeq(d.customers, state.Sequences[book.KindCustomer])
		restoreSeq(d.sales, state.Sequences[book.KindSale])
		restoreSeq(d.movements, state.Sequences[book.KindMovement])
		restoreSeq(d.credits, state.Sequences[book.KindCredit])
	}
	return &TxMemory{data: d}
}

func restoreSeq[T book.Record](t *table[T], seq int64) {
	if seq > t.seq {
		t.seq = seq
	}
}

// View runs fn under a read lock.
func (tm *TxMemory) View(_ context.Context, fn func(book.Store) error) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return fn(tm.data)
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(book.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Snapshot current state
	snapshot := tm.data.clone()
	before := tm.data.sequences()

	tm.data.begin()
	defer tm.data.end()

	if err := fn(tm.data); err != nil {
		tm.data = snapshot
		return err
	}

	if tm.persist != nil {
		changes := tm.data.changes(before)
		if !changes.IsEmpty() {
			if err := tm.persist.Save(ctx, changes); err != nil {
				tm.data = snapshot
				return fmt.Errorf("failed to persist changes: %w", err)
			}
		}
	}
	return nil
}

// State returns a copy of everything in the store.
func (tm *TxMemory) State() *book.State {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return &book.State{
		Products:  tm.data.products.List(),
		Customers: tm.data.customers.List(),
		Sales:     tm.data.sales.List(),
		Movements: tm.data.movements.List(),
		Credits:   tm.data.credits.List(),
		Sequences: tm.data.sequences(),
	}
}
