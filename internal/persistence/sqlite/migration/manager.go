package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Manager runs pending migrations from a directory of a Scanner.
type Manager struct {
	scanner  *Scanner
	executor *Executor
	dir      string
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a Manager. A nil logger falls back to slog.Default.
func NewManager(scanner *Scanner, executor *Executor, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:  scanner,
		executor: executor,
		dir:      dir,
		logger:   logger.With("component", "migration"),
		now:      time.Now,
	}
}

// Run applies pending migrations in version order and returns how many ran.
func (m *Manager) Run(ctx context.Context) (int, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}
	if len(status.Pending) == 0 {
		m.logger.DebugContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	started := time.Now()
	for i, pending := range status.Pending {
		m.logger.InfoContext(ctx, "applying migration",
			"version", pending.Version,
			"description", pending.Description,
			"position", fmt.Sprintf("%d/%d", i+1, len(status.Pending)),
		)
		if err := m.executor.Apply(ctx, pending, m.now()); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", pending.Version, "error", err)
			return i, NewMigrationError(pending.Version, pending.FilePath, "execute migration", fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
	}

	m.logger.InfoContext(ctx, "migrations applied", "count", len(status.Pending), "duration", time.Since(started))
	return len(status.Pending), nil
}

// Status reports the applied and pending migrations.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}

	available, err := m.scanner.ScanMigrations(m.dir)
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.AppliedMigrations(ctx)
	if err != nil {
		return Status{}, err
	}
	if err := validateSequence(available, applied); err != nil {
		return Status{}, err
	}

	done := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		done[a.Version] = struct{}{}
	}

	status := Status{Applied: applied}
	for _, candidate := range available {
		if _, ok := done[candidate.Version]; !ok {
			status.Pending = append(status.Pending, candidate)
		}
	}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	return status, nil
}

// validateSequence rejects gaps in the available versions, applied versions
// without a file, and applied files whose checksum changed.
func validateSequence(available []Migration, applied []AppliedMigration) error {
	byVersion := make(map[int]Migration, len(available))
	for i, candidate := range available {
		v, err := strconv.Atoi(candidate.Version)
		if err != nil {
			return NewMigrationError(candidate.Version, candidate.FilePath, "validate sequence", fmt.Errorf("%w: version '%s' is not numeric", ErrInvalidVersion, candidate.Version))
		}
		if i > 0 {
			prev, _ := strconv.Atoi(available[i-1].Version)
			if v != prev+1 {
				return fmt.Errorf("%w: missing migration version %03d in sequence", ErrVersionConflict, prev+1)
			}
		}
		byVersion[v] = candidate
	}

	for _, a := range applied {
		v, err := strconv.Atoi(a.Version)
		if err != nil {
			return fmt.Errorf("%w: applied version '%s' is not numeric", ErrInvalidVersion, a.Version)
		}
		file, ok := byVersion[v]
		if !ok {
			return fmt.Errorf("%w: applied migration %03d not found in available migrations", ErrVersionConflict, v)
		}
		if a.Checksum != "" && a.Checksum != file.Checksum {
			return NewMigrationError(a.Version, file.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	return nil
}
