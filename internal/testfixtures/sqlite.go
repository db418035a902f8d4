package testfixtures

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence/sqlite"
	"github.com/nuru484/BeThere-server/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides a migrated SQLite store for integration-style tests.
type SQLiteHarness struct {
	Store *sqlite.Store
}

// HarnessOption configures NewSQLiteHarness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	onDisk bool
	now    func() time.Time
}

// OnDisk backs the harness with a file in the test's temp directory instead
// of a private in-memory database, which allows several open connections.
func OnDisk() HarnessOption {
	return func(c *harnessConfig) { c.onDisk = true }
}

// WithStoreClock sets the time source used for persisted timestamps.
func WithStoreClock(now func() time.Time) HarnessOption {
	return func(c *harnessConfig) { c.now = now }
}

// NewSQLiteHarness opens and migrates a store that reads and writes dates in
// UTC. The store is closed when tb finishes.
func NewSQLiteHarness(tb testing.TB, opts ...HarnessOption) *SQLiteHarness {
	tb.Helper()

	cfg := harnessConfig{now: NewClock(time.Time{}).Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	dbConfig := migration.InMemoryTestSQLiteConfig()
	if cfg.onDisk {
		dbConfig = migration.TempFileTestSQLiteConfig(filepath.Join(tb.TempDir(), "bethere.db"))
	}

	store, err := sqlite.Open(sqlite.Options{
		Config:   dbConfig,
		Location: time.UTC,
		Logger:   DiscardLogger(),
		Now:      cfg.now,
	})
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return &SQLiteHarness{Store: store}
}
