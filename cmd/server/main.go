/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stockbook server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the logger
  3. Open the persister and load the book into memory
  4. Connect the snapshot cache (Redis when configured)
  5. Create engine, API handler and router
  6. Start the low-stock monitor and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: PORT or 8080)
  -db      SQLite database path (default: SQLITE_PATH or stockbook.db)
           Use ":memory:" for in-memory database
  -driver  sqlite, postgres or memory (default: STORE_DRIVER or sqlite)

ENVIRONMENT:
  See config/config.go. DATABASE_URL is required for postgres;
  REDIS_ADDR enables the shared snapshot cache.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the low-stock monitor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close cache and database connections

EXAMPLES:
  ./server -db="./data/shop.db"
  ./server -driver=memory -port=3000
  STORE_DRIVER=postgres DATABASE_URL=postgres://... ./server

SEE ALSO:
  - api/server.go: Router configuration
  - book/engine.go: Engine
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Persisters
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/stockbook/api"
	"github.com/warp/stockbook/book"
	"github.com/warp/stockbook/book/store"
	"github.com/warp/stockbook/cache"
	"github.com/warp/stockbook/config"
	"github.com/warp/stockbook/store/postgres"
	"github.com/warp/stockbook/store/sqlite"
)

func main() {
	cfg := config.Load()
	if err := cfg.ParseFlags(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	mem, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Snapshot cache
	var snapshots book.SnapshotCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rc := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SnapshotTTL)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			// The book works without the cache; reads fall back to the store.
			logger.Warn("redis unavailable, snapshot cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			rc.Close()
		} else {
			logger.Info("snapshot cache connected", zap.String("addr", cfg.RedisAddr))
			snapshots = rc
			defer rc.Close()
		}
	}

	engine := book.NewEngine(mem,
		book.WithLogger(logger.Named("book")),
		book.WithCache(snapshots),
	)

	handler := api.NewHandler(engine, logger.Named("api"))
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	monitor := api.NewLowStockMonitor(engine, logger)
	monitor.CheckInterval = cfg.LowStockInterval
	monitor.Start()
	defer monitor.Stop()

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("driver", cfg.StoreDriver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")
	monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore loads the book from the configured persister. The returned
// func releases the database.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*store.TxMemory, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return store.NewTxMemory(), func() {}, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		mem, err := store.Open(ctx, db)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to load book: %w", err)
		}
		logger.Info("book loaded from postgres")
		return mem, pool.Close, nil

	default:
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		mem, err := store.Open(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to load book: %w", err)
		}
		logger.Info("book loaded from sqlite", zap.String("path", cfg.SQLitePath))
		return mem, func() { db.Close() }, nil
	}
}

// newLogger builds a development logger for "debug" and a production
// (JSON) logger otherwise, at the requested level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = lvl
	return zcfg.Build()
}
