package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

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
	if job.Payload == nil {
		job.Payload = []byte{}
	}
	now := s.now()
	job.CreatedAt, job.UpdatedAt = now, now
	row := newJobRow(job)
	return mapError(s.db.WithContext(ctx).Create(&row).Error)
}

// ClaimDueJobs leases pending jobs whose run time has passed, as well as
// running jobs whose lease expired. Concurrent workers skip rows locked by
// each other.
func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]persistence.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	const query = `
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
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`

	var rows []jobRow
	err := s.db.WithContext(ctx).Raw(query, now.Add(lease), now, now, now, limit).Scan(&rows).Error
	if err != nil {
		return nil, mapError(err)
	}
	jobs := make([]persistence.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.domain())
	}
	return jobs, nil
}

// FinishJob moves a claimed job to a terminal status.
func (s *Store) FinishJob(ctx context.Context, id string, status persistence.JobStatus, lastError string, at time.Time) error {
	return s.updateJob(ctx, id, map[string]any{
		"status":       string(status),
		"last_error":   lastError,
		"locked_until": gorm.Expr("NULL"),
		"updated_at":   at,
	})
}

// RescheduleJob returns a claimed job to pending with a new run time.
func (s *Store) RescheduleJob(ctx context.Context, id string, runAt time.Time, lastError string, at time.Time) error {
	return s.updateJob(ctx, id, map[string]any{
		"status":       string(persistence.JobPending),
		"run_at":       runAt,
		"last_error":   lastError,
		"locked_until": gorm.Expr("NULL"),
		"updated_at":   at,
	})
}

// GetJob returns a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (persistence.Job, error) {
	var row jobRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return persistence.Job{}, mapError(err)
	}
	return row.domain(), nil
}

func (s *Store) updateJob(ctx context.Context, id string, values map[string]any) error {
	result := s.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
