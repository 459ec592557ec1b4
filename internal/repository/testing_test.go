package repository

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/config"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const postgresDSNEnv = "GINEE_SYNC_TEST_POSTGRES_DSN"

func quietLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Output = io.Discard
	return logger.New(cfg)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	}
	db, err := InitDB(cfg, quietLogger())
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func setupPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	cfg := &config.DatabaseConfig{
		Driver:       "postgres",
		URL:          dsn,
		MaxOpenConns: 8,
		AutoMigrate:  true,
		LogLevel:     "silent",
	}
	db, err := InitDB(cfg, quietLogger())
	require.NoError(t, err)

	require.NoError(t, db.Exec("TRUNCATE order_items, order_details, orders, fetch_attempts, sync_watermarks, sync_units RESTART IDENTITY CASCADE").Error)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
