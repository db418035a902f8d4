package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// Handler runs one job. Returning an error wrapped with Permanent fails the
// job without retry, and returning Drop finishes it as dropped.
type Handler func(ctx context.Context, job persistence.Job) error

// WorkerOptions configure a Worker.
type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
	// Lease bounds how long a claimed job stays invisible to other workers.
	Lease  time.Duration
	Retry  RetryPolicy
	Now    func() time.Time
	Logger *slog.Logger
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.Retry.Base <= 0 {
		o.Retry = DefaultRetryPolicy()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Worker claims due jobs and runs their handlers concurrently.
type Worker struct {
	jobs JobStore
	opts WorkerOptions

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewWorker constructs a Worker over jobs.
func NewWorker(jobs JobStore, opts WorkerOptions) *Worker {
	return &Worker{jobs: jobs, opts: opts.withDefaults(), handlers: make(map[string]Handler)}
}

// Register binds a handler to a task name.
func (w *Worker) Register(task string, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[task] = handler
}

func (w *Worker) handler(task string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[task]
	return h, ok
}

// Run polls for due jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.opts.Logger.With("component", "jobqueue")
	logger.InfoContext(ctx, "worker started", "concurrency", w.opts.Concurrency, "poll_interval", w.opts.PollInterval)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		for {
			n, err := w.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "job poll failed", "error", err)
			}
			// a full batch suggests more work is waiting
			if err != nil || n < w.opts.Concurrency {
				break
			}
		}
		select {
		case <-ctx.Done():
			logger.InfoContext(context.WithoutCancel(ctx), "worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch of due jobs and waits for all of them. It returns
// the number of jobs processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.jobs.ClaimDueJobs(ctx, w.opts.Now(), w.opts.Concurrency, w.opts.Lease)
	if err != nil {
		return 0, fmt.Errorf("jobqueue: claim: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			return w.process(ctx, job)
		})
	}
	return len(jobs), g.Wait()
}

func (w *Worker) process(ctx context.Context, job persistence.Job) error {
	logger := w.opts.Logger.With("component", "jobqueue", "job_id", job.ID, "task", job.Task, "attempt", job.Attempts)

	handler, ok := w.handler(job.Task)
	if !ok {
		logger.ErrorContext(ctx, "no handler registered")
		return w.jobs.FinishJob(ctx, job.ID, persistence.JobFailed, "no handler registered for "+job.Task, w.opts.Now())
	}

	// an expired lease is reclaimed with another attempt, so a job that keeps
	// crashing its worker ends up here past its budget
	if job.Attempts > job.MaxAttempts {
		logger.ErrorContext(ctx, "job exceeded max attempts", "max_attempts", job.MaxAttempts)
		return w.jobs.FinishJob(ctx, job.ID, persistence.JobFailed,
			fmt.Sprintf("lease expired after %d attempts", job.MaxAttempts), w.opts.Now())
	}

	logger.DebugContext(ctx, "job started")
	runErr := safeRun(ctx, handler, job)
	now := w.opts.Now()
	// record the outcome even when shutdown cancelled the handler
	ctx = context.WithoutCancel(ctx)

	if runErr == nil {
		logger.InfoContext(ctx, "job done")
		return w.jobs.FinishJob(ctx, job.ID, persistence.JobDone, "", now)
	}
	if reason, dropped := isDrop(runErr); dropped {
		logger.InfoContext(ctx, "job dropped", "reason", reason)
		return w.jobs.FinishJob(ctx, job.ID, persistence.JobDropped, reason, now)
	}
	if IsPermanent(runErr) || job.Attempts >= job.MaxAttempts {
		logger.ErrorContext(ctx, "job failed", "error", runErr, "permanent", IsPermanent(runErr), "max_attempts", job.MaxAttempts)
		return w.jobs.FinishJob(ctx, job.ID, persistence.JobFailed, runErr.Error(), now)
	}

	delay := w.opts.Retry.Backoff(job.Attempts)
	logger.WarnContext(ctx, "job will be retried", "error", runErr, "retry_in", delay)
	return w.jobs.RescheduleJob(ctx, job.ID, now.Add(delay), runErr.Error(), now)
}

func safeRun(ctx context.Context, handler Handler, job persistence.Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	return handler(ctx, job)
}
