// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"go-and-tell/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated SQLite database in t's temp dir. A single
// connection serializes writers, so concurrent tests never see SQLITE_BUSY.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, "?_busy_timeout=5000&_foreign_keys=on", 1)
}

// NewPooledDB returns a migrated WAL-mode SQLite database served by conns
// connections, so transactions from different goroutines really overlap.
// Writers take the lock at BEGIN and wait on the busy timeout.
func NewPooledDB(t testing.TB, conns int) *gorm.DB {
	t.Helper()
	return open(t, "?_busy_timeout=10000&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate", conns)
}

func open(t testing.TB, params string, conns int) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "goandtell.db") + params
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return db
}
