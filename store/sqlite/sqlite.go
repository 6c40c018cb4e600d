/*
Package sqlite provides a SQLite-backed book.Persister.

PURPOSE:
  Durable storage for a book. The engine works against the in-memory store;
  this package loads the whole book at startup and receives the ChangeSet of
  every committed operation, which it writes in a single SQL transaction.

KEY TABLES:
  products:        Catalog, soft-deleted via archived
  customers:       Customer records
  sales:           Sales and returns (is_return)
  stock_movements: IN/OUT/RETURN rows, sale_id set for generated rows
  credits:         Credit log, voided rows kept as tombstones
  sequences:       High-water mark of each id sequence

ENCODING:
  Money and quantities are stored as TEXT decimals so nothing passes
  through float64. Timestamps are RFC 3339 UTC with nanoseconds.

INDEXES:
  - idx_products_active_name: unique active product names (NOCASE)
  - idx_sales_pair: return allocation lookups per (customer, product)
  - idx_movements_sale, idx_credits_sale: linked rows of a sale

CONCURRENCY:
  Uses sync.RWMutex and a single connection. The engine already serialises
  writers; the mutex keeps Load and Save from interleaving.

USAGE:
  db, err := sqlite.New("./data/stockbook.db")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

  mem, err := store.Open(ctx, db)

SEE ALSO:
  - book/store.go: Persister and ChangeSet
  - book/store/memory.go: The store that calls Save
  - store/postgres: Same contract on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stockbook/book"
)

// Store implements book.Persister using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT,
		unit_price TEXT NOT NULL,
		qty TEXT NOT NULL,
		low_stock_threshold TEXT NOT NULL,
		note TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_active_name
		ON products(name COLLATE NOCASE) WHERE archived = 0;

	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		note TEXT,
		created_at TEXT NOT NULL
	);

	-- Sales and returns share this table
	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY,
		ts TEXT NOT NULL,
		product_id INTEGER NOT NULL,
		product_name TEXT NOT NULL,
		qty TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		customer_id INTEGER,
		customer_name TEXT,
		customer_phone TEXT,
		customer_deleted INTEGER NOT NULL DEFAULT 0,
		note TEXT,
		is_credit INTEGER NOT NULL DEFAULT 0,
		is_return INTEGER NOT NULL DEFAULT 0,
		origin_sale_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sales_pair
		ON sales(customer_id, product_id, ts);

	CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY,
		ts TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('IN', 'OUT', 'RETURN')),
		product_id INTEGER NOT NULL,
		product_name TEXT NOT NULL,
		qty TEXT NOT NULL,
		unit_price TEXT,
		total_amount TEXT,
		counterparty TEXT,
		customer_id INTEGER,
		customer_name TEXT,
		note TEXT,
		sale_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_movements_sale
		ON stock_movements(sale_id) WHERE sale_id IS NOT NULL;

	-- Credit log. Rows are never deleted by operations; voided is a tombstone.
	CREATE TABLE IF NOT EXISTS credits (
		id INTEGER PRIMARY KEY,
		ts TEXT NOT NULL,
		customer_id INTEGER NOT NULL,
		customer_name TEXT NOT NULL,
		customer_phone TEXT,
		sale_id INTEGER,
		amount TEXT NOT NULL,
		is_payment INTEGER NOT NULL DEFAULT 0,
		note TEXT,
		voided INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_credits_customer
		ON credits(customer_id, ts);
	CREATE INDEX IF NOT EXISTS idx_credits_sale
		ON credits(sale_id) WHERE sale_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS sequences (
		kind TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the whole book, including voided credit entries.
func (s *Store) Load(ctx context.Context) (*book.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := &book.State{Sequences: make(map[book.EntityKind]int64)}
	var err error

	if state.Products, err = s.loadProducts(ctx); err != nil {
		return nil, err
	}
	if state.Customers, err = s.loadCustomers(ctx); err != nil {
		return nil, err
	}
	if state.Sales, err = s.loadSales(ctx); err != nil {
		return nil, err
	}
	if state.Movements, err = s.loadMovements(ctx); err != nil {
		return nil, err
	}
	if state.Credits, err = s.loadCredits(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT kind, value FROM sequences")
	if err != nil {
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var value int64
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("failed to scan sequence: %w", err)
		}
		state.Sequences[book.EntityKind(kind)] = value
	}
	return state, rows.Err()
}

func (s *Store) loadProducts(ctx context.Context) ([]book.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sku, unit_price, qty, low_stock_threshold, note, archived, created_at
		FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []book.Product
	for rows.Next() {
		var (
			p         book.Product
			sku, note sql.NullString
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &sku, &p.UnitPrice, &p.Qty, &p.LowStockThreshold, &note, &p.Archived, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.SKU = sku.String
		p.Note = note.String
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) loadCustomers(ctx context.Context) ([]book.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, note, created_at FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var out []book.Customer
	for rows.Next() {
		var (
			c         book.Customer
			note      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.Note = note.String
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadSales(ctx context.Context) ([]book.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, product_id, product_name, qty, unit_price, total_amount,
		       customer_id, customer_name, customer_phone, customer_deleted, note,
		       is_credit, is_return, origin_sale_id
		FROM sales ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var out []book.Sale
	for rows.Next() {
		var (
			sale                 book.Sale
			ts                   string
			customerID, originID sql.NullInt64
			name, phone, note    sql.NullString
		)
		err := rows.Scan(
			&sale.ID, &ts, &sale.ProductID, &sale.ProductName, &sale.Qty, &sale.UnitPrice, &sale.TotalAmount,
			&customerID, &name, &phone, &sale.CustomerDeleted, &note,
			&sale.IsCredit, &sale.IsReturn, &originID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sale.At = parseTime(ts)
		sale.CustomerID = int64Ptr(customerID)
		sale.CustomerName = name.String
		sale.CustomerPhone = phone.String
		sale.Note = note.String
		sale.OriginSaleID = int64Ptr(originID)
		out = append(out, sale)
	}
	return out, rows.Err()
}

func (s *Store) loadMovements(ctx context.Context) ([]book.StockMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, kind, product_id, product_name, qty, unit_price, total_amount,
		       counterparty, customer_id, customer_name, note, sale_id
		FROM stock_movements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var out []book.StockMovement
	for rows.Next() {
		var (
			m                            book.StockMovement
			ts, kind                     string
			unitPrice, total             decimal.NullDecimal
			counterparty, custName, note sql.NullString
			customerID, saleID           sql.NullInt64
		)
		err := rows.Scan(
			&m.ID, &ts, &kind, &m.ProductID, &m.ProductName, &m.Qty, &unitPrice, &total,
			&counterparty, &customerID, &custName, &note, &saleID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		m.At = parseTime(ts)
		m.Kind = book.MovementKind(kind)
		m.UnitPrice = decPtr(unitPrice)
		m.TotalAmount = decPtr(total)
		m.Counterparty = counterparty.String
		m.CustomerID = int64Ptr(customerID)
		m.CustomerName = custName.String
		m.Note = note.String
		m.SaleID = int64Ptr(saleID)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) loadCredits(ctx context.Context) ([]book.CreditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, customer_id, customer_name, customer_phone, sale_id, amount, is_payment, note, voided
		FROM credits ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	defer rows.Close()

	var out []book.CreditEntry
	for rows.Next() {
		var (
			c           book.CreditEntry
			ts          string
			phone, note sql.NullString
			saleID      sql.NullInt64
		)
		err := rows.Scan(&c.ID, &ts, &c.CustomerID, &c.CustomerName, &phone, &saleID, &c.Amount, &c.IsPayment, &note, &c.Voided)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit entry: %w", err)
		}
		c.At = parseTime(ts)
		c.CustomerPhone = phone.String
		c.SaleID = int64Ptr(saleID)
		c.Note = note.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// SAVE
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save writes one operation's changes atomically. Deletes run before
// upserts so a name freed in the same change set can be reused.
func (s *Store) Save(ctx context.Context, cs book.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	deletes := []struct {
		table string
		ids   []int64
	}{
		{"credits", cs.Credits.Delete},
		{"stock_movements", cs.Movements.Delete},
		{"sales", cs.Sales.Delete},
		{"customers", cs.Customers.Delete},
		{"products", cs.Products.Delete},
	}
	for _, d := range deletes {
		if err := deleteRows(ctx, sqlTx, d.table, d.ids); err != nil {
			return err
		}
	}

	for _, p := range cs.Products.Put {
		if err := putProduct(ctx, sqlTx, p); err != nil {
			return err
		}
	}
	for _, c := range cs.Customers.Put {
		if err := putCustomer(ctx, sqlTx, c); err != nil {
			return err
		}
	}
	for _, sale := range cs.Sales.Put {
		if err := putSale(ctx, sqlTx, sale); err != nil {
			return err
		}
	}
	for _, m := range cs.Movements.Put {
		if err := putMovement(ctx, sqlTx, m); err != nil {
			return err
		}
	}
	for _, c := range cs.Credits.Put {
		if err := putCredit(ctx, sqlTx, c); err != nil {
			return err
		}
	}
	for kind, value := range cs.Sequences {
		_, err := sqlTx.ExecContext(ctx,
			"INSERT OR REPLACE INTO sequences (kind, value) VALUES (?, ?)", string(kind), value)
		if err != nil {
			return fmt.Errorf("failed to save sequence %s: %w", kind, err)
		}
	}

	return sqlTx.Commit()
}

func deleteRows(ctx context.Context, db execer, table string, ids []int64) error {
	for _, id := range ids {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return nil
}

// putProduct upserts rather than replaces: REPLACE would resolve a name
// conflict by deleting the other product.
func putProduct(ctx context.Context, db execer, p book.Product) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO products
		(id, name, sku, unit_price, qty, low_stock_threshold, note, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			sku = excluded.sku,
			unit_price = excluded.unit_price,
			qty = excluded.qty,
			low_stock_threshold = excluded.low_stock_threshold,
			note = excluded.note,
			archived = excluded.archived`,
		p.ID, p.Name, nullString(p.SKU), p.UnitPrice, p.Qty, p.LowStockThreshold,
		nullString(p.Note), p.Archived, formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &book.ValidationError{Field: "name", Message: "a product with this name already exists"}
		}
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func putCustomer(ctx context.Context, db execer, c book.Customer) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO customers (id, name, phone, note, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Phone, nullString(c.Note), formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

func putSale(ctx context.Context, db execer, s book.Sale) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sales
		(id, ts, product_id, product_name, qty, unit_price, total_amount,
		 customer_id, customer_name, customer_phone, customer_deleted, note,
		 is_credit, is_return, origin_sale_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, formatTime(s.At), s.ProductID, s.ProductName, s.Qty, s.UnitPrice, s.TotalAmount,
		s.CustomerID, nullString(s.CustomerName), nullString(s.CustomerPhone), s.CustomerDeleted, nullString(s.Note),
		s.IsCredit, s.IsReturn, s.OriginSaleID,
	)
	if err != nil {
		return fmt.Errorf("failed to save sale: %w", err)
	}
	return nil
}

func putMovement(ctx context.Context, db execer, m book.StockMovement) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO stock_movements
		(id, ts, kind, product_id, product_name, qty, unit_price, total_amount,
		 counterparty, customer_id, customer_name, note, sale_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, formatTime(m.At), string(m.Kind), m.ProductID, m.ProductName, m.Qty,
		nullDecimal(m.UnitPrice), nullDecimal(m.TotalAmount),
		nullString(m.Counterparty), m.CustomerID, nullString(m.CustomerName), nullString(m.Note), m.SaleID,
	)
	if err != nil {
		return fmt.Errorf("failed to save stock movement: %w", err)
	}
	return nil
}

func putCredit(ctx context.Context, db execer, c book.CreditEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO credits
		(id, ts, customer_id, customer_name, customer_phone, sale_id, amount, is_payment, note, voided)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, formatTime(c.At), c.CustomerID, c.CustomerName, nullString(c.CustomerPhone),
		c.SaleID, c.Amount, c.IsPayment, nullString(c.Note), c.Voided,
	)
	if err != nil {
		return fmt.Errorf("failed to save credit entry: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
