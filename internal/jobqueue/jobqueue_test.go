package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/scheduler"
)

type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]persistence.Job
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[string]persistence.Job)}
}

func (m *memoryJobStore) EnqueueJob(ctx context.Context, job persistence.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.jobs {
		active := existing.Status == persistence.JobPending || existing.Status == persistence.JobRunning
		if active && existing.DedupeKey == job.DedupeKey {
			return persistence.ErrDuplicate
		}
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *memoryJobStore) ClaimDueJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]persistence.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, job := range m.jobs {
		due := job.Status == persistence.JobPending && !job.RunAt.After(now)
		expired := job.Status == persistence.JobRunning && job.LockedUntil != nil && !job.LockedUntil.After(now)
		if due || expired {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	claimed := make([]persistence.Job, 0, len(ids))
	for _, id := range ids {
		job := m.jobs[id]
		job.Status = persistence.JobRunning
		job.Attempts++
		until := now.Add(lease)
		job.LockedUntil = &until
		m.jobs[id] = job
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (m *memoryJobStore) FinishJob(ctx context.Context, id string, status persistence.JobStatus, lastError string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return persistence.ErrNotFound
	}
	job.Status = status
	job.LastError = lastError
	job.LockedUntil = nil
	m.jobs[id] = job
	return nil
}

func (m *memoryJobStore) RescheduleJob(ctx context.Context, id string, runAt time.Time, lastError string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return persistence.ErrNotFound
	}
	job.Status = persistence.JobPending
	job.RunAt = runAt
	job.LastError = lastError
	job.LockedUntil = nil
	m.jobs[id] = job
	return nil
}

func (m *memoryJobStore) get(id string) persistence.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("job-%02d", n)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClient_Schedule(t *testing.T) {
	t.Parallel()

	store := newMemoryJobStore()
	client := NewClient(store, sequentialIDs(), 0, discardLogger())

	task := scheduler.Task{Name: "test.task", Payload: []byte(`{}`), RunAt: start, DedupeKey: "key-1"}
	if err := client.Schedule(context.Background(), task); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	job := store.get("job-01")
	if job.Task != "test.task" || job.MaxAttempts != DefaultMaxAttempts || job.Status != persistence.JobPending || !job.RunAt.Equal(start) {
		t.Fatalf("unexpected job: %+v", job)
	}

	if err := client.Schedule(context.Background(), task); !errors.Is(err, scheduler.ErrAlreadyScheduled) {
		t.Fatalf("expected ErrAlreadyScheduled, got %v", err)
	}

	if err := client.Schedule(context.Background(), scheduler.Task{}); err == nil {
		t.Fatalf("expected error for unnamed task")
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{Base: 5 * time.Second, Max: 30 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 10 * time.Second},
		{attempt: 3, want: 20 * time.Second},
		{attempt: 4, want: 30 * time.Second},
		{attempt: 10, want: 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			if got := policy.Backoff(tt.attempt); got != tt.want {
				t.Fatalf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestWorker_Outcomes(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name        string
		handler     Handler
		wantStatus  persistence.JobStatus
		wantError   string
		wantRetryAt time.Time
	}{
		{
			name:       "success",
			handler:    func(ctx context.Context, job persistence.Job) error { return nil },
			wantStatus: persistence.JobDone,
		},
		{
			name:       "drop",
			handler:    func(ctx context.Context, job persistence.Job) error { return Drop("event deleted") },
			wantStatus: persistence.JobDropped,
			wantError:  "event deleted",
		},
		{
			name:       "permanent failure",
			handler:    func(ctx context.Context, job persistence.Job) error { return Permanent(boom) },
			wantStatus: persistence.JobFailed,
			wantError:  "boom",
		},
		{
			name:        "transient failure is retried",
			handler:     func(ctx context.Context, job persistence.Job) error { return boom },
			wantStatus:  persistence.JobPending,
			wantError:   "boom",
			wantRetryAt: start.Add(5 * time.Second),
		},
		{
			name:        "panic is retried",
			handler:     func(ctx context.Context, job persistence.Job) error { panic("kaboom") },
			wantStatus:  persistence.JobPending,
			wantError:   "handler panic: kaboom",
			wantRetryAt: start.Add(5 * time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemoryJobStore()
			clock := &manualClock{now: start}
			client := NewClient(store, sequentialIDs(), 3, discardLogger())
			worker := NewWorker(store, WorkerOptions{Concurrency: 1, Now: clock.Now, Logger: discardLogger()})
			worker.Register("test.task", tt.handler)

			if err := client.Schedule(context.Background(), scheduler.Task{Name: "test.task", RunAt: start, DedupeKey: "k"}); err != nil {
				t.Fatalf("Schedule returned error: %v", err)
			}
			n, err := worker.RunOnce(context.Background())
			if err != nil || n != 1 {
				t.Fatalf("RunOnce = %d, %v", n, err)
			}

			job := store.get("job-01")
			if job.Status != tt.wantStatus || job.LastError != tt.wantError {
				t.Fatalf("unexpected job state: %+v", job)
			}
			if !tt.wantRetryAt.IsZero() && !job.RunAt.Equal(tt.wantRetryAt) {
				t.Fatalf("expected retry at %v, got %v", tt.wantRetryAt, job.RunAt)
			}
		})
	}
}

func TestWorker_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	store := newMemoryJobStore()
	clock := &manualClock{now: start}
	client := NewClient(store, sequentialIDs(), 3, discardLogger())
	worker := NewWorker(store, WorkerOptions{Concurrency: 1, Now: clock.Now, Logger: discardLogger()})

	var calls int
	worker.Register("test.task", func(ctx context.Context, job persistence.Job) error {
		calls++
		return errors.New("still failing")
	})
	if err := client.Schedule(context.Background(), scheduler.Task{Name: "test.task", RunAt: start, DedupeKey: "k"}); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	for _, wait := range []time.Duration{0, 5 * time.Second, 10 * time.Second} {
		clock.Advance(wait)
		if n, err := worker.RunOnce(context.Background()); err != nil || n != 1 {
			t.Fatalf("RunOnce = %d, %v", n, err)
		}
	}

	job := store.get("job-01")
	if calls != 3 || job.Status != persistence.JobFailed || job.Attempts != 3 {
		t.Fatalf("expected failure after 3 attempts, got calls=%d job=%+v", calls, job)
	}

	clock.Advance(time.Hour)
	if n, _ := worker.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected failed job to stay failed")
	}
}

func TestWorker_FailsJobsReclaimedPastMaxAttempts(t *testing.T) {
	t.Parallel()

	store := newMemoryJobStore()
	clock := &manualClock{now: start}
	client := NewClient(store, sequentialIDs(), 2, discardLogger())
	lease := time.Minute
	worker := NewWorker(store, WorkerOptions{Concurrency: 1, Lease: lease, Now: clock.Now, Logger: discardLogger()})

	var calls int
	worker.Register("test.task", func(ctx context.Context, job persistence.Job) error {
		calls++
		return nil
	})
	if err := client.Schedule(context.Background(), scheduler.Task{Name: "test.task", RunAt: start, DedupeKey: "k"}); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	// two workers claim the job and die before finishing it
	for i := 0; i < 2; i++ {
		claimed, err := store.ClaimDueJobs(context.Background(), clock.Now(), 1, lease)
		if err != nil || len(claimed) != 1 {
			t.Fatalf("claim %d = %v, %v", i+1, claimed, err)
		}
		clock.Advance(lease)
	}

	if n, err := worker.RunOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	job := store.get("job-01")
	if calls != 0 || job.Status != persistence.JobFailed || job.Attempts != 3 {
		t.Fatalf("expected job to fail without running, got calls=%d job=%+v", calls, job)
	}

	clock.Advance(time.Hour)
	if n, _ := worker.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected failed job to stay failed")
	}
}

func TestWorker_BackoffIsRespected(t *testing.T) {
	t.Parallel()

	store := newMemoryJobStore()
	clock := &manualClock{now: start}
	client := NewClient(store, sequentialIDs(), 3, discardLogger())
	worker := NewWorker(store, WorkerOptions{Concurrency: 1, Now: clock.Now, Logger: discardLogger()})
	worker.Register("test.task", func(ctx context.Context, job persistence.Job) error { return errors.New("nope") })

	_ = client.Schedule(context.Background(), scheduler.Task{Name: "test.task", RunAt: start, DedupeKey: "k"})
	_, _ = worker.RunOnce(context.Background())

	clock.Advance(4 * time.Second)
	if n, _ := worker.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected job to wait for its backoff")
	}
	clock.Advance(time.Second)
	if n, _ := worker.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected job to run after its backoff")
	}
}

func TestWorker_UnknownTaskFails(t *testing.T) {
	t.Parallel()

	store := newMemoryJobStore()
	client := NewClient(store, sequentialIDs(), 3, discardLogger())
	worker := NewWorker(store, WorkerOptions{Now: func() time.Time { return start }, Logger: discardLogger()})

	_ = client.Schedule(context.Background(), scheduler.Task{Name: "unknown", RunAt: start, DedupeKey: "k"})
	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if job := store.get("job-01"); job.Status != persistence.JobFailed {
		t.Fatalf("expected failed job, got %+v", job)
	}
}

func TestWorker_RunsJobsConcurrently(t *testing.T) {
	t.Parallel()

	store := newMemoryJobStore()
	client := NewClient(store, sequentialIDs(), 3, discardLogger())
	worker := NewWorker(store, WorkerOptions{Concurrency: 2, Now: func() time.Time { return start }, Logger: discardLogger()})

	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	worker.Register("test.task", func(ctx context.Context, job persistence.Job) error {
		started.Done()
		select {
		case <-release:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("peer job never started")
		}
	})

	for _, key := range []string{"event-a", "event-b"} {
		if err := client.Schedule(context.Background(), scheduler.Task{Name: "test.task", RunAt: start, DedupeKey: key}); err != nil {
			t.Fatalf("Schedule returned error: %v", err)
		}
	}

	go func() {
		started.Wait()
		close(release)
	}()

	if n, err := worker.RunOnce(context.Background()); err != nil || n != 2 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	for _, id := range []string{"job-01", "job-02"} {
		if job := store.get(id); job.Status != persistence.JobDone {
			t.Fatalf("expected %s done, got %+v", id, job)
		}
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := newMemoryJobStore()
	worker := NewWorker(store, WorkerOptions{PollInterval: 10 * time.Millisecond, Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}
}
