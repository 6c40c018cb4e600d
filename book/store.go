/*
store.go - Entity store and persistence interfaces

PURPOSE:
  Defines the boundary between the engine and where entities live. The
  engine works against an in-process entity store; a Persister makes every
  committed change durable before the operation returns.

KEY INTERFACES:
  Table[T]:  Keyed, mutable collection for one entity kind
  CreditLog: Append-only credit entries (removal is a tombstone)
  Store:     One table per kind plus the credit log
  TxStore:   Read views and atomic write transactions over a Store
  Persister: Load the full state at startup, save a ChangeSet per commit

ATOMICITY:
  WithTx runs the operation against a transactional view. The view records
  every touched row; on success those rows are handed to the Persister as
  one ChangeSet. If the operation or the Persister fails, the in-memory
  state is restored, so no caller ever observes half of an operation.

IDS:
  Each kind has its own monotonic sequence. NextID reserves the next value;
  sequences are part of the ChangeSet so ids are never reused across
  restarts, even after deletions.

IMPLEMENTATIONS:
  - book/store/memory.go: In-memory TxStore (optionally backed by a Persister)
  - store/sqlite/sqlite.go: SQLite Persister
  - store/postgres/postgres.go: PostgreSQL Persister
*/
package book

import "context"

// =============================================================================
// ENTITY STORE
// =============================================================================

// Record is implemented by every stored entity.
type Record interface {
	RecordID() int64
}

// Table is a keyed collection for one entity kind. No cross-entity
// validation happens here.
type Table[T Record] interface {
	// NextID reserves and returns the next id for this kind.
	NextID() int64

	Get(id int64) (T, bool)

	// Put inserts the record or replaces it in place.
	Put(rec T)

	// Delete removes the record. Returns false if it did not exist.
	Delete(id int64) bool

	// List returns all records ordered by id.
	List() []T
}

// CreditLog holds credit entries. Entries are appended and never physically
// removed; Void hides an entry from every view and balance.
type CreditLog interface {
	// Append assigns the next id and stores the entry.
	Append(entry CreditEntry) CreditEntry

	Get(id int64) (CreditEntry, bool)

	// Amend applies fn to a live entry. The id and voided flag cannot change.
	Amend(id int64, fn func(*CreditEntry)) bool

	// Void tombstones a live entry.
	Void(id int64) bool

	List(includeVoided bool) []CreditEntry

	// Purge drops every entry. Only used when resetting a book.
	Purge()
}

// Store groups the collections of one book.
type Store interface {
	Products() Table[Product]
	Customers() Table[Customer]
	Sales() Table[Sale]
	Movements() Table[StockMovement]
	Credits() CreditLog
}

// TxStore provides consistent reads and atomic writes.
type TxStore interface {
	// View runs fn with a read-only view. fn must not mutate.
	View(ctx context.Context, fn func(Store) error) error

	// WithTx runs fn within a transaction.
	// If fn returns error, every change is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Changes lists the rows of one kind written or removed by a transaction.
type Changes[T Record] struct {
	Put    []T
	Delete []int64
}

func (c Changes[T]) IsEmpty() bool { return len(c.Put) == 0 && len(c.Delete) == 0 }

// ChangeSet is everything one committed operation wrote.
type ChangeSet struct {
	Products  Changes[Product]
	Customers Changes[Customer]
	Sales     Changes[Sale]
	Movements Changes[StockMovement]
	Credits   Changes[CreditEntry]

	// Sequences holds the new high-water mark of every sequence that moved.
	Sequences map[EntityKind]int64
}

func (cs ChangeSet) IsEmpty() bool {
	return cs.Products.IsEmpty() && cs.Customers.IsEmpty() && cs.Sales.IsEmpty() &&
		cs.Movements.IsEmpty() && cs.Credits.IsEmpty() && len(cs.Sequences) == 0
}

// State is the full content of a book, as loaded at startup.
type State struct {
	Products  []Product
	Customers []Customer
	Sales     []Sale
	Movements []StockMovement
	Credits   []CreditEntry
	Sequences map[EntityKind]int64
}

// Persister is the durable side of the store.
type Persister interface {
	// Load returns everything stored, including voided credit entries.
	Load(ctx context.Context) (*State, error)

	// Save writes the change set atomically. It must be flushed before it
	// returns nil.
	Save(ctx context.Context, changes ChangeSet) error
}

// SequenceKinds lists the kinds that own an id sequence. Returns share the
// sale sequence.
var SequenceKinds = []EntityKind{KindProduct, KindCustomer, KindSale, KindMovement, KindCredit}
