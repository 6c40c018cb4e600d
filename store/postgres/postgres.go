/*
Package postgres provides a PostgreSQL-backed book.Persister.

PURPOSE:
  Same contract as store/sqlite, on a pgx connection pool. Useful when the
  book lives on a shared server rather than next to the binary.

ENCODING:
  NUMERIC(14,2) for money and quantities, TIMESTAMPTZ for timestamps.
  Each Save is one transaction; its statements are sent as a single batch.

USAGE:
  pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
  db, err := postgres.New(ctx, pool)
  mem, err := store.Open(ctx, db)
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/stockbook/book"
)

// NewPool connects to PostgreSQL and verifies the connection.
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// Store implements book.Persister on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New migrates the schema and returns the store. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS products (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		unit_price NUMERIC(14,2) NOT NULL,
		qty NUMERIC(14,2) NOT NULL,
		low_stock_threshold NUMERIC(14,2) NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		archived BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_active_name
		ON products (lower(name)) WHERE NOT archived;

	CREATE TABLE IF NOT EXISTS customers (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales (
		id BIGINT PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		product_id BIGINT NOT NULL,
		product_name TEXT NOT NULL,
		qty NUMERIC(14,2) NOT NULL,
		unit_price NUMERIC(14,2) NOT NULL,
		total_amount NUMERIC(14,2) NOT NULL,
		customer_id BIGINT,
		customer_name TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		customer_deleted BOOLEAN NOT NULL DEFAULT false,
		note TEXT NOT NULL DEFAULT '',
		is_credit BOOLEAN NOT NULL DEFAULT false,
		is_return BOOLEAN NOT NULL DEFAULT false,
		origin_sale_id BIGINT
	);

	CREATE INDEX IF NOT EXISTS idx_sales_pair ON sales (customer_id, product_id, ts);

	CREATE TABLE IF NOT EXISTS stock_movements (
		id BIGINT PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('IN', 'OUT', 'RETURN')),
		product_id BIGINT NOT NULL,
		product_name TEXT NOT NULL,
		qty NUMERIC(14,2) NOT NULL,
		unit_price NUMERIC(14,2),
		total_amount NUMERIC(14,2),
		counterparty TEXT NOT NULL DEFAULT '',
		customer_id BIGINT,
		customer_name TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		sale_id BIGINT
	);

	CREATE INDEX IF NOT EXISTS idx_movements_sale ON stock_movements (sale_id) WHERE sale_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS credits (
		id BIGINT PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		customer_id BIGINT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_phone TEXT NOT NULL DEFAULT '',
		sale_id BIGINT,
		amount NUMERIC(14,2) NOT NULL,
		is_payment BOOLEAN NOT NULL DEFAULT false,
		note TEXT NOT NULL DEFAULT '',
		voided BOOLEAN NOT NULL DEFAULT false
	);

	CREATE INDEX IF NOT EXISTS idx_credits_customer ON credits (customer_id, ts);

	CREATE TABLE IF NOT EXISTS sequences (
		kind TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	);
	`)
	return err
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the whole book inside one read-only transaction.
func (s *Store) Load(ctx context.Context) (*book.State, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	state := &book.State{Sequences: make(map[book.EntityKind]int64)}

	state.Products, err = collect(ctx, tx, `
		SELECT id, name, sku, unit_price, qty, low_stock_threshold, note, archived, created_at
		FROM products ORDER BY id`,
		func(row pgx.CollectableRow) (book.Product, error) {
			var p book.Product
			err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.UnitPrice, &p.Qty, &p.LowStockThreshold, &p.Note, &p.Archived, &p.CreatedAt)
			p.CreatedAt = p.CreatedAt.UTC()
			return p, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	state.Customers, err = collect(ctx, tx, `
		SELECT id, name, phone, note, created_at FROM customers ORDER BY id`,
		func(row pgx.CollectableRow) (book.Customer, error) {
			var c book.Customer
			err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Note, &c.CreatedAt)
			c.CreatedAt = c.CreatedAt.UTC()
			return c, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}

	state.Sales, err = collect(ctx, tx, `
		SELECT id, ts, product_id, product_name, qty, unit_price, total_amount,
		       customer_id, customer_name, customer_phone, customer_deleted, note,
		       is_credit, is_return, origin_sale_id
		FROM sales ORDER BY id`,
		func(row pgx.CollectableRow) (book.Sale, error) {
			var sale book.Sale
			err := row.Scan(
				&sale.ID, &sale.At, &sale.ProductID, &sale.ProductName, &sale.Qty, &sale.UnitPrice, &sale.TotalAmount,
				&sale.CustomerID, &sale.CustomerName, &sale.CustomerPhone, &sale.CustomerDeleted, &sale.Note,
				&sale.IsCredit, &sale.IsReturn, &sale.OriginSaleID,
			)
			sale.At = sale.At.UTC()
			return sale, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}

	state.Movements, err = collect(ctx, tx, `
		SELECT id, ts, kind, product_id, product_name, qty, unit_price, total_amount,
		       counterparty, customer_id, customer_name, note, sale_id
		FROM stock_movements ORDER BY id`,
		func(row pgx.CollectableRow) (book.StockMovement, error) {
			var (
				m    book.StockMovement
				kind string
			)
			err := row.Scan(
				&m.ID, &m.At, &kind, &m.ProductID, &m.ProductName, &m.Qty, &m.UnitPrice, &m.TotalAmount,
				&m.Counterparty, &m.CustomerID, &m.CustomerName, &m.Note, &m.SaleID,
			)
			m.At = m.At.UTC()
			m.Kind = book.MovementKind(kind)
			return m, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load stock movements: %w", err)
	}

	state.Credits, err = collect(ctx, tx, `
		SELECT id, ts, customer_id, customer_name, customer_phone, sale_id, amount, is_payment, note, voided
		FROM credits ORDER BY id`,
		func(row pgx.CollectableRow) (book.CreditEntry, error) {
			var c book.CreditEntry
			err := row.Scan(&c.ID, &c.At, &c.CustomerID, &c.CustomerName, &c.CustomerPhone, &c.SaleID,
				&c.Amount, &c.IsPayment, &c.Note, &c.Voided)
			c.At = c.At.UTC()
			return c, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load credits: %w", err)
	}

	rows, err := tx.Query(ctx, "SELECT kind, value FROM sequences")
	if err != nil {
		return nil, fmt.Errorf("failed to load sequences: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load sequences: %w", err)
	}

	return state, nil
}

func collect[T any](ctx context.Context, tx pgx.Tx, query string, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, fn)
}

// =============================================================================
// SAVE
// =============================================================================

var (
	productColumns  = []string{"id", "name", "sku", "unit_price", "qty", "low_stock_threshold", "note", "archived", "created_at"}
	customerColumns = []string{"id", "name", "phone", "note", "created_at"}
	saleColumns     = []string{"id", "ts", "product_id", "product_name", "qty", "unit_price", "total_amount",
		"customer_id", "customer_name", "customer_phone", "customer_deleted", "note", "is_credit", "is_return", "origin_sale_id"}
	movementColumns = []string{"id", "ts", "kind", "product_id", "product_name", "qty", "unit_price", "total_amount",
		"counterparty", "customer_id", "customer_name", "note", "sale_id"}
	creditColumns = []string{"id", "ts", "customer_id", "customer_name", "customer_phone", "sale_id", "amount", "is_payment", "note", "voided"}
)

// Save writes one operation's changes in a single transaction. Deletes are
// queued before upserts so a name freed in the same change set can be reused.
func (s *Store) Save(ctx context.Context, cs book.ChangeSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}

	queueDeletes(batch, "credits", cs.Credits.Delete)
	queueDeletes(batch, "stock_movements", cs.Movements.Delete)
	queueDeletes(batch, "sales", cs.Sales.Delete)
	queueDeletes(batch, "customers", cs.Customers.Delete)
	queueDeletes(batch, "products", cs.Products.Delete)

	upsertProduct := upsertSQL("products", productColumns)
	for _, p := range cs.Products.Put {
		batch.Queue(upsertProduct, p.ID, p.Name, p.SKU, p.UnitPrice, p.Qty, p.LowStockThreshold, p.Note, p.Archived, p.CreatedAt)
	}
	upsertCustomer := upsertSQL("customers", customerColumns)
	for _, c := range cs.Customers.Put {
		batch.Queue(upsertCustomer, c.ID, c.Name, c.Phone, c.Note, c.CreatedAt)
	}
	upsertSale := upsertSQL("sales", saleColumns)
	for _, sale := range cs.Sales.Put {
		batch.Queue(upsertSale, sale.ID, sale.At, sale.ProductID, sale.ProductName, sale.Qty, sale.UnitPrice, sale.TotalAmount,
			sale.CustomerID, sale.CustomerName, sale.CustomerPhone, sale.CustomerDeleted, sale.Note,
			sale.IsCredit, sale.IsReturn, sale.OriginSaleID)
	}
	upsertMovement := upsertSQL("stock_movements", movementColumns)
	for _, m := range cs.Movements.Put {
		batch.Queue(upsertMovement, m.ID, m.At, string(m.Kind), m.ProductID, m.ProductName, m.Qty, m.UnitPrice, m.TotalAmount,
			m.Counterparty, m.CustomerID, m.CustomerName, m.Note, m.SaleID)
	}
	upsertCredit := upsertSQL("credits", creditColumns)
	for _, c := range cs.Credits.Put {
		batch.Queue(upsertCredit, c.ID, c.At, c.CustomerID, c.CustomerName, c.CustomerPhone, c.SaleID,
			c.Amount, c.IsPayment, c.Note, c.Voided)
	}
	for kind, value := range cs.Sequences {
		batch.Queue(`INSERT INTO sequences (kind, value) VALUES ($1, $2)
			ON CONFLICT (kind) DO UPDATE SET value = excluded.value`, string(kind), value)
	}

	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return &book.ValidationError{Field: "name", Message: "a product with this name already exists"}
		}
		return fmt.Errorf("failed to save changes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset drops every row. Used by integration tests.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE TABLE products, customers, sales, stock_movements, credits, sequences")
	return err
}

func queueDeletes(batch *pgx.Batch, table string, ids []int64) {
	if len(ids) == 0 {
		return
	}
	batch.Queue("DELETE FROM "+table+" WHERE id = ANY($1)", ids)
}

// upsertSQL builds INSERT ... ON CONFLICT (id) DO UPDATE for all columns.
func upsertSQL(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns)-1)
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "id" {
			updates = append(updates, col+" = excluded."+col)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
