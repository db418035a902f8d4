package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/persistence/sqlite/migration"
)

// ConnectionPool owns the database handle of a Store.
type ConnectionPool struct {
	db *sql.DB
}

// NewConnectionPool opens a pool configured by config.
func NewConnectionPool(config migration.SQLiteConfig) (*ConnectionPool, error) {
	db, err := migration.OpenDatabase(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &ConnectionPool{db: db}, nil
}

// DB returns the underlying database handle.
func (cp *ConnectionPool) DB() *sql.DB {
	return cp.db
}

// Close closes the pool. It is safe on a pool that failed to open.
func (cp *ConnectionPool) Close() error {
	if cp == nil || cp.db == nil {
		return nil
	}
	return cp.db.Close()
}

// Ping checks that the database answers.
func (cp *ConnectionPool) Ping(ctx context.Context) error {
	return cp.db.PingContext(ctx)
}

// WithTransaction runs fn in a transaction that is committed when fn returns
// nil and rolled back on error or panic.
func (cp *ConnectionPool) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := cp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// mapError translates driver errors into persistence sentinels. The
// original error text is kept for logs.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "PRIMARY KEY constraint failed"):
		return fmt.Errorf("%w: %s", persistence.ErrDuplicate, msg)
	case containsAny(msg, "FOREIGN KEY constraint failed", "CHECK constraint failed", "NOT NULL constraint failed"):
		return fmt.Errorf("%w: %s", persistence.ErrConstraintViolation, msg)
	}
	return err
}

func containsAny(s string, substrings ...string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// lockRetry retries writes that lose a race for the database lock. Job
// claims from several workers contend for the same rows, so a short doubling
// backoff is enough.
type lockRetry struct {
	attempts int
	initial  time.Duration
	max      time.Duration
}

func defaultLockRetry() lockRetry {
	return lockRetry{attempts: 4, initial: 50 * time.Millisecond, max: time.Second}
}

// do runs fn until it succeeds, fails with a non-lock error or runs out of
// attempts. Errors are returned through mapError.
func (r lockRetry) do(ctx context.Context, fn func() error) error {
	delay := r.initial
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !isLockError(err) {
			return mapError(err)
		}
		if attempt >= r.attempts {
			return fmt.Errorf("database still locked after %d attempts: %w", attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(2*delay, r.max)
	}
}

func isLockError(err error) bool {
	return containsAny(err.Error(), "database is locked", "database table is locked", "SQLITE_BUSY", "database is busy")
}
