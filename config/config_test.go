package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "STORE_DRIVER", "SQLITE_PATH", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "SNAPSHOT_TTL", "ALLOWED_ORIGINS", "LOG_LEVEL", "LOW_STOCK_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "stockbook.db", cfg.SQLitePath)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Hour, cfg.LowStockInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/stockbook")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ALLOWED_ORIGINS", " https://shop.example , ")
	t.Setenv("LOW_STOCK_INTERVAL", "15m")

	cfg := Load()
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, []string{"https://shop.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.LowStockInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "abc")
	t.Setenv("LOW_STOCK_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, time.Hour, cfg.LowStockInterval)
}

func TestParseFlags_OverrideEnvironment(t *testing.T) {
	// GIVEN: Environment selecting postgres on port 9000
	// WHEN: Flags select the memory driver on port 3000
	// THEN: Flags win
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "postgres")

	cfg := Load()
	require.NoError(t, cfg.ParseFlags([]string{"-port=3000", "-driver=memory"}))
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, ":3000", cfg.Address())
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	cfg.StoreDriver = DriverPostgres
	assert.Error(t, cfg.Validate())

	cfg.StoreDriver = "mongo"
	assert.Error(t, cfg.Validate())

	cfg.StoreDriver = DriverSQLite
	cfg.SQLitePath = ""
	assert.Error(t, cfg.Validate())
}
