// Package postgres implements persistence.Store on PostgreSQL through GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

const dateLayout = "2006-01-02"

// Options configure a Store.
type Options struct {
	DSN string
	// Location is the calendar used for date-only columns. Defaults to time.Local.
	Location        *time.Location
	Logger          *slog.Logger
	Now             func() time.Time
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Store implements persistence.Store on PostgreSQL.
type Store struct {
	db       *gorm.DB
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by opts. Call Migrate before use.
func Open(opts Options) (*Store, error) {
	if opts.DSN == "" {
		return nil, errors.New("postgres: DSN is required")
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

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  opts.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.New(slogWriter{logger: logger}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return &Store{db: db, location: loc, logger: logger, now: now}, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&userRow{}, &eventRow{}, &sessionRow{}, &attendanceRow{}, &jobRow{}); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	// GORM cannot express partial indexes; a finished job frees its dedupe key.
	const activeJobKey = `CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active_key ON jobs (dedupe_key) WHERE status IN ('pending', 'running')`
	if err := db.Exec(activeJobKey).Error; err != nil {
		return fmt.Errorf("postgres: migrate jobs index: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) formatDate(t time.Time) string {
	return t.In(s.location).Format(dateLayout)
}

func (s *Store) parseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, s.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: parse date %q: %w", value, err)
	}
	return t, nil
}

// slogWriter routes GORM's printf-style logger to slog.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.logger.Warn(fmt.Sprintf(format, args...), "component", "gorm")
}
