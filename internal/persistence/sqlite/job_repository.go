package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

const jobColumns = `id, task, dedupe_key, payload, run_at, status, attempts, max_attempts, last_error, locked_until, created_at, updated_at`

// EnqueueJob stores a pending job. A pending or running job with the same
// dedupe key makes it fail with persistence.ErrDuplicate.
func (s *Store) EnqueueJob(ctx context.Context, job persistence.Job) error {
	if job.ID == "" || job.Task == "" {
		return persistence.ErrConstraintViolation
	}
	if job.DedupeKey == "" {
		job.DedupeKey = job.ID
	}
	if job.Status == "" {
		job.Status = persistence.JobPending
	}
	now := s.now()

	const query = `
		INSERT INTO jobs (id, task, dedupe_key, payload, run_at, status, attempts, max_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, query,
		job.ID,
		job.Task,
		job.DedupeKey,
		string(job.Payload),
		formatTime(job.RunAt),
		string(job.Status),
		job.Attempts,
		job.MaxAttempts,
		formatTime(now),
		formatTime(now),
	)
	return err
}

// ClaimDueJobs leases pending jobs whose run time has passed, as well as
// running jobs whose lease expired, and increments their attempt counter.
func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]persistence.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	cutoff := formatTime(now)
	query := fmt.Sprintf(`
		UPDATE jobs SET
			status = 'running',
			attempts = attempts + 1,
			locked_until = ?,
			updated_at = ?
		WHERE id IN (
			SELECT id FROM jobs
			WHERE (status = 'pending' AND run_at <= ?)
			   OR (status = 'running' AND locked_until <= ?)
			ORDER BY run_at ASC
			LIMIT %d
		)
		RETURNING %s`, limit, jobColumns)

	var jobs []persistence.Job
	err := s.retry.do(ctx, func() error {
		jobs = jobs[:0]
		rows, err := s.pool.DB().QueryContext(ctx, query, formatTime(now.Add(lease)), cutoff, cutoff, cutoff)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// FinishJob moves a claimed job to a terminal status.
func (s *Store) FinishJob(ctx context.Context, id string, status persistence.JobStatus, lastError string, at time.Time) error {
	result, err := s.exec(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, locked_until = NULL, updated_at = ? WHERE id = ?`,
		string(status), nullableString(lastError), formatTime(at), id)
	if err != nil {
		return err
	}
	return requireOne(result)
}

// RescheduleJob returns a claimed job to pending with a new run time.
func (s *Store) RescheduleJob(ctx context.Context, id string, runAt time.Time, lastError string, at time.Time) error {
	result, err := s.exec(ctx,
		`UPDATE jobs SET status = 'pending', run_at = ?, last_error = ?, locked_until = NULL, updated_at = ? WHERE id = ?`,
		formatTime(runAt), nullableString(lastError), formatTime(at), id)
	if err != nil {
		return err
	}
	return requireOne(result)
}

// GetJob returns a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (persistence.Job, error) {
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func requireOne(result sql.Result) error {
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func scanJob(row rowScanner) (persistence.Job, error) {
	var (
		job                    persistence.Job
		payload, runAt         string
		status                 string
		lastError, lockedUntil sql.NullString
		createdAt, updatedAt   string
	)
	err := row.Scan(&job.ID, &job.Task, &job.DedupeKey, &payload, &runAt, &status, &job.Attempts, &job.MaxAttempts,
		&lastError, &lockedUntil, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Job{}, mapError(err)
	}

	job.Payload = []byte(payload)
	job.Status = persistence.JobStatus(status)
	job.LastError = lastError.String
	if job.RunAt, err = parseTime(runAt); err != nil {
		return persistence.Job{}, err
	}
	if lockedUntil.Valid {
		until, err := parseTime(lockedUntil.String)
		if err != nil {
			return persistence.Job{}, err
		}
		job.LockedUntil = &until
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Job{}, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Job{}, err
	}
	return job, nil
}
