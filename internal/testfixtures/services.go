package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nuru484/BeThere-server/internal/application"
	"github.com/nuru484/BeThere-server/internal/jobqueue"
	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/persistence/sqlite"
	"github.com/nuru484/BeThere-server/internal/recurrence"
	"github.com/nuru484/BeThere-server/internal/scheduler"
)

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Stack is the full service graph of the server and the worker over one
// SQLite store, driven by a shared fake clock.
type Stack struct {
	Clock *Clock
	IDs   *IDGenerator
	Store *sqlite.Store

	Engine     *recurrence.Engine
	Queue      *jobqueue.Client
	Driver     *scheduler.Driver
	Worker     *jobqueue.Worker
	Events     *application.EventService
	Sessions   *application.SessionService
	Attendance *application.AttendanceService
	Users      *application.UserService
}

// StackOption configures NewStack.
type StackOption func(*stackConfig)

type stackConfig struct {
	clock   *Clock
	logger  *slog.Logger
	harness []HarnessOption
}

// WithClock overrides the clock used by the stack.
func WithClock(clock *Clock) StackOption {
	return func(c *stackConfig) { c.clock = clock }
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) StackOption {
	return func(c *stackConfig) { c.logger = logger }
}

// WithHarness passes options to the underlying SQLiteHarness.
func WithHarness(opts ...HarnessOption) StackOption {
	return func(c *stackConfig) { c.harness = append(c.harness, opts...) }
}

// NewStack wires every service the way the binaries do, in UTC.
func NewStack(tb testing.TB, opts ...StackOption) *Stack {
	tb.Helper()

	cfg := stackConfig{logger: DiscardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = NewClock(time.Time{})
	}

	ids := NewIDGenerator()
	harness := NewSQLiteHarness(tb, append([]HarnessOption{WithStoreClock(cfg.clock.Now)}, cfg.harness...)...)
	store := harness.Store
	engine := recurrence.NewEngine(time.UTC)
	now := cfg.clock.NowFunc()

	queue := jobqueue.NewClient(store, ids.For("job"), jobqueue.DefaultMaxAttempts, cfg.logger)
	driver := scheduler.NewDriver(queue, store, engine, now, cfg.logger)
	sessions := application.NewSessionServiceWithLogger(store, driver, engine, ids.For("ses"), now, cfg.logger)

	worker := jobqueue.NewWorker(store, jobqueue.WorkerOptions{
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		Lease:        time.Minute,
		Retry:        jobqueue.RetryPolicy{Base: time.Second, Max: time.Minute},
		Now:          now,
		Logger:       cfg.logger,
	})
	worker.Register(scheduler.TaskMaterializeSession, sessions.HandleMaterializeJob)

	return &Stack{
		Clock:      cfg.clock,
		IDs:        ids,
		Store:      store,
		Engine:     engine,
		Queue:      queue,
		Driver:     driver,
		Worker:     worker,
		Events:     application.NewEventServiceWithLogger(store, store, driver, engine, ids.For("evt"), now, cfg.logger),
		Sessions:   sessions,
		Attendance: application.NewAttendanceServiceWithLogger(store, engine, ids.For("att"), now, cfg.logger),
		Users:      application.NewUserServiceWithLogger(store, ids.For("user"), now, cfg.logger),
	}
}

// AddUser stores the fixture and returns the persisted record.
func (s *Stack) AddUser(tb testing.TB, fixture UserFixture) persistence.User {
	tb.Helper()
	record, err := fixture.Record(s.Clock.Now())
	if err != nil {
		tb.Fatalf("hash password: %v", err)
	}
	user, err := s.Store.UpsertUserByEmail(context.Background(), record)
	if err != nil {
		tb.Fatalf("store user: %v", err)
	}
	return user
}

// DrainJobs runs worker batches until no job is due at the current clock time
// and returns how many ran.
func (s *Stack) DrainJobs(tb testing.TB) int {
	tb.Helper()
	total := 0
	for {
		n, err := s.Worker.RunOnce(context.Background())
		if err != nil {
			tb.Fatalf("worker batch failed: %v", err)
		}
		if n == 0 {
			return total
		}
		total += n
	}
}
