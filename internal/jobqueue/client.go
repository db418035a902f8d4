// Package jobqueue runs delayed tasks from a durable job table with a bounded
// worker pool.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/scheduler"
)

// DefaultMaxAttempts bounds how often a failing job runs.
const DefaultMaxAttempts = 3

// JobStore persists jobs.
type JobStore interface {
	EnqueueJob(ctx context.Context, job persistence.Job) error
	ClaimDueJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]persistence.Job, error)
	FinishJob(ctx context.Context, id string, status persistence.JobStatus, lastError string, at time.Time) error
	RescheduleJob(ctx context.Context, id string, runAt time.Time, lastError string, at time.Time) error
}

// Client enqueues tasks. It implements scheduler.Queue.
type Client struct {
	jobs        JobStore
	idGenerator func() string
	maxAttempts int
	logger      *slog.Logger
}

var _ scheduler.Queue = (*Client)(nil)

// NewClient constructs a Client. maxAttempts below one uses DefaultMaxAttempts.
func NewClient(jobs JobStore, idGenerator func() string, maxAttempts int, logger *slog.Logger) *Client {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{jobs: jobs, idGenerator: idGenerator, maxAttempts: maxAttempts, logger: logger}
}

// Schedule stores the task as a pending job. A task whose dedupe key is held
// by a pending or running job returns scheduler.ErrAlreadyScheduled.
func (c *Client) Schedule(ctx context.Context, task scheduler.Task) error {
	if task.Name == "" {
		return errors.New("jobqueue: task name is required")
	}
	job := persistence.Job{
		ID:          c.idGenerator(),
		Task:        task.Name,
		DedupeKey:   task.DedupeKey,
		Payload:     task.Payload,
		RunAt:       task.RunAt,
		Status:      persistence.JobPending,
		MaxAttempts: c.maxAttempts,
	}
	if err := c.jobs.EnqueueJob(ctx, job); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return scheduler.ErrAlreadyScheduled
		}
		return fmt.Errorf("jobqueue: enqueue %s: %w", task.Name, err)
	}
	c.logger.DebugContext(ctx, "job enqueued", "job_id", job.ID, "task", job.Task, "run_at", job.RunAt)
	return nil
}
