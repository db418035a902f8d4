package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Executor applies migrations and tracks them in schema_migrations.
type Executor struct {
	db *sql.DB
}

// NewExecutor creates an Executor for db.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist.
func (e *Executor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT,
			execution_time_ms INTEGER
		)`
	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return NewDatabaseError("", createTableSQL, "create schema_migrations table", err)
	}
	return nil
}

// Apply runs every statement of m and records it within one transaction.
func (e *Executor) Apply(ctx context.Context, m Migration, appliedAt time.Time) (err error) {
	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		return NewMigrationError(m.Version, m.FilePath, "parse SQL", fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	start := time.Now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return NewDatabaseError(m.Version, "", "begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback error: %v)", err, rbErr)
			}
		}
	}()

	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return NewDatabaseError(m.Version, stmt, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	const insertSQL = `INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`
	if _, execErr := tx.ExecContext(ctx, insertSQL, m.Version, appliedAt.UTC().Format(time.RFC3339), m.Checksum, time.Since(start).Milliseconds()); execErr != nil {
		return NewDatabaseError(m.Version, insertSQL, "record migration", execErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return NewDatabaseError(m.Version, "", "commit transaction", commitErr)
	}
	return nil
}

// AppliedMigrations returns every recorded migration ordered by version.
func (e *Executor) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	const querySQL = `
		SELECT version, applied_at, COALESCE(execution_time_ms, 0), COALESCE(checksum, '')
		FROM schema_migrations
		ORDER BY CAST(version AS INTEGER) ASC`

	rows, err := e.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, NewDatabaseError("", querySQL, "get applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			am        AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&am.Version, &appliedAt, &elapsedMs, &am.Checksum); err != nil {
			return nil, NewDatabaseError("", querySQL, "scan applied migration", err)
		}
		if am.AppliedAt, err = time.Parse(time.RFC3339, appliedAt); err != nil {
			return nil, NewDatabaseError(am.Version, querySQL, "parse applied_at", err)
		}
		am.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, am)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", querySQL, "iterate applied migrations", err)
	}
	return applied, nil
}

// splitStatements splits SQL on semicolons and drops comment-only fragments.
func splitStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
