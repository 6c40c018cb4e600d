// Package config loads server settings from .env, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port             int
	StoreDriver      string
	SQLitePath       string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	SnapshotTTL      time.Duration
	AllowedOrigins   []string
	LogLevel         string
	LowStockInterval time.Duration
}

// Load reads .env (a missing file is ignored) and the environment.
func Load() Config {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port < 1 {
		port = 8080
	}
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Port:             port,
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:       getEnv("SQLITE_PATH", "stockbook.db"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          redisDB,
		SnapshotTTL:      getDuration("SNAPSHOT_TTL", 0),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LowStockInterval: getDuration("LOW_STOCK_INTERVAL", time.Hour),
	}
}

// ParseFlags overrides the loaded values with command-line flags.
func (c *Config) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("stockbook", flag.ContinueOnError)
	fs.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	fs.StringVar(&c.SQLitePath, "db", c.SQLitePath, `SQLite database path (":memory:" for in-memory)`)
	fs.StringVar(&c.StoreDriver, "driver", c.StoreDriver, "store driver: sqlite, postgres or memory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks that the selected driver has what it needs.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
