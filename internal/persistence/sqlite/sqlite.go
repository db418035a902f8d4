package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	// timestampLayout keeps a fixed width so stored instants sort lexically.
	timestampLayout = "2006-01-02T15:04:05.000000Z"
	dateLayout      = "2006-01-02"
)

// Options configure a Store.
type Options struct {
	Config migration.SQLiteConfig
	// Location is the calendar used for date-only columns. Defaults to time.Local.
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Store implements persistence.Store on SQLite.
type Store struct {
	pool     *ConnectionPool
	retry    lockRetry
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by opts. Call Migrate before use.
func Open(opts Options) (*Store, error) {
	pool, err := NewConnectionPool(opts.Config)
	if err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		pool:     pool,
		retry:    defaultLockRetry(),
		location: loc,
		logger:   logger,
		now:      now,
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles),
		migration.NewExecutor(s.pool.DB()),
		"migrations",
		s.logger,
	)
	if _, err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := s.retry.do(ctx, func() error {
		var execErr error
		result, execErr = s.pool.DB().ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func (s *Store) formatDate(t time.Time) string {
	return t.In(s.location).Format(dateLayout)
}

func (s *Store) parseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, s.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse date %q: %w", value, err)
	}
	return t, nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
