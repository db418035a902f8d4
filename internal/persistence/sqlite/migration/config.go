package migration

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig holds SQLite connection settings.
type SQLiteConfig struct {
	// DSN is the database file path or a file: URI.
	DSN string

	BusyTimeout       time.Duration
	EnableForeignKeys bool
	// JournalMode sets the SQLite journal mode (WAL, DELETE, MEMORY, ...).
	JournalMode string
	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF).
	Synchronous string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

var (
	validJournalModes = map[string]bool{"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true}
	validSyncModes    = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
)

// Validate checks the configuration.
func (c SQLiteConfig) Validate() error {
	switch {
	case c.DSN == "":
		return fmt.Errorf("DSN cannot be empty")
	case c.BusyTimeout < 0:
		return fmt.Errorf("BusyTimeout cannot be negative")
	case c.JournalMode != "" && !validJournalModes[strings.ToUpper(c.JournalMode)]:
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	case c.Synchronous != "" && !validSyncModes[strings.ToUpper(c.Synchronous)]:
		return fmt.Errorf("invalid synchronous mode: %s", c.Synchronous)
	case c.MaxOpenConns < 0 || c.MaxIdleConns < 0 || c.ConnMaxLifetime < 0:
		return fmt.Errorf("connection pool settings cannot be negative")
	}
	return nil
}

// ConnectionString renders the DSN with per-connection pragmas so that every
// pooled connection gets the same settings.
func (c SQLiteConfig) ConnectionString() string {
	pragmas := url.Values{}
	add := func(p string) { pragmas.Add("_pragma", p) }

	add(fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	if c.EnableForeignKeys {
		add("foreign_keys(1)")
	}
	if c.JournalMode != "" {
		add(fmt.Sprintf("journal_mode(%s)", strings.ToUpper(c.JournalMode)))
	}
	if c.Synchronous != "" {
		add(fmt.Sprintf("synchronous(%s)", strings.ToUpper(c.Synchronous)))
	}

	dsn := c.DSN
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + pragmas.Encode()
}

// OpenDatabase opens and pings a SQLite database configured by c.
func OpenDatabase(c SQLiteConfig) (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}

	db, err := sql.Open("sqlite", c.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return db, nil
}

// DefaultSQLiteConfig returns the production configuration for a database file.
func DefaultSQLiteConfig(dsn string) SQLiteConfig {
	return SQLiteConfig{
		DSN:               dsn,
		BusyTimeout:       30 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
		Synchronous:       "NORMAL",
		MaxOpenConns:      8,
		MaxIdleConns:      4,
		ConnMaxLifetime:   5 * time.Minute,
	}
}

// InMemoryTestSQLiteConfig returns a configuration for a private in-memory
// database. A single connection keeps every query on the same database.
func InMemoryTestSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		DSN:               ":memory:",
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "MEMORY",
		Synchronous:       "OFF",
		MaxOpenConns:      1,
		MaxIdleConns:      1,
	}
}

// TempFileTestSQLiteConfig returns a configuration for a temporary database file.
func TempFileTestSQLiteConfig(path string) SQLiteConfig {
	return SQLiteConfig{
		DSN:               path,
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
		Synchronous:       "OFF",
		MaxOpenConns:      4,
		MaxIdleConns:      2,
	}
}
