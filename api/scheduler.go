/*
scheduler.go - Periodic low-stock monitor

PURPOSE:
  Periodically checks for products at or below their low-stock threshold
  and reports them, so the shopkeeper hears about a shortage without
  opening the product list.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Reports only when the set of low products (or their quantities)
    changed since the last check, to avoid repeating the same warning
  - OnAlert lets the server forward alerts elsewhere; the default only logs

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether monitor is active (default: true)

USAGE:
  monitor := NewLowStockMonitor(engine, logger)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - handlers.go: ListLowStock endpoint (on-demand check)
  - book/queries.go: LowStock
*/
package api

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/stockbook/book"
)

// LowStockMonitor reports low-stock products on a schedule.
type LowStockMonitor struct {
	Engine        *book.Engine
	Log           *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	// OnAlert is called with the current low-stock products whenever they
	// change. May be nil.
	OnAlert func([]book.Product)

	ticker   *time.Ticker
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	lastSeen string
}

// NewLowStockMonitor creates a new monitor.
func NewLowStockMonitor(engine *book.Engine, log *zap.Logger) *LowStockMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &LowStockMonitor{
		Engine:        engine,
		Log:           log.Named("low-stock"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the monitor.
func (m *LowStockMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled || m.CheckInterval <= 0 {
		m.Log.Info("monitor disabled, not starting")
		return
	}
	if m.ticker != nil {
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go m.run(m.ticker, m.stop)

	m.Log.Info("monitor started", zap.Duration("interval", m.CheckInterval))
}

// Stop stops the monitor and waits for a running check to finish.
func (m *LowStockMonitor) Stop() {
	m.mu.Lock()
	if m.ticker == nil {
		m.mu.Unlock()
		return
	}
	m.ticker.Stop()
	close(m.stop)
	m.ticker = nil
	m.mu.Unlock()

	m.wg.Wait()
	m.Log.Info("monitor stopped")
}

func (m *LowStockMonitor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()

	// Run immediately on start
	m.Check(context.Background())

	for {
		select {
		case <-ticker.C:
			m.Check(context.Background())
		case <-stop:
			return
		}
	}
}

// Check runs one pass. It reports whether an alert was raised.
func (m *LowStockMonitor) Check(ctx context.Context) bool {
	products, err := m.Engine.LowStock(ctx)
	if err != nil {
		m.Log.Error("low stock check failed", zap.Error(err))
		return false
	}

	fingerprint := lowStockFingerprint(products)

	m.mu.Lock()
	changed := fingerprint != m.lastSeen
	m.lastSeen = fingerprint
	m.mu.Unlock()

	if !changed || len(products) == 0 {
		return false
	}

	for _, p := range products {
		m.Log.Warn("product low on stock",
			zap.Int64("product_id", p.ID),
			zap.String("product", p.Name),
			zap.String("qty", p.Qty.String()),
			zap.String("threshold", p.LowStockThreshold.String()),
		)
	}
	if m.OnAlert != nil {
		m.OnAlert(products)
	}
	return true
}

func lowStockFingerprint(products []book.Product) string {
	keys := make([]string, len(products))
	for i, p := range products {
		keys[i] = strconv.FormatInt(p.ID, 10) + "=" + p.Qty.String()
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}
