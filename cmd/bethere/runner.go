package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/nuru484/BeThere-server/internal/application"
	"github.com/nuru484/BeThere-server/internal/config"
	"github.com/nuru484/BeThere-server/internal/jobqueue"
	"github.com/nuru484/BeThere-server/internal/logging"
	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/persistence/postgres"
	"github.com/nuru484/BeThere-server/internal/persistence/sqlite"
	"github.com/nuru484/BeThere-server/internal/persistence/sqlite/migration"
	"github.com/nuru484/BeThere-server/internal/recurrence"
	"github.com/nuru484/BeThere-server/internal/scheduler"
)

// store is what every command needs from a storage backend.
type store interface {
	persistence.Store
	Ping(ctx context.Context) error
}

// runner holds the configuration, logger and migrated store of one command.
type runner struct {
	cfg    config.Config
	logger *slog.Logger
	store  store
}

// bootstrap loads configuration, builds the logger and opens storage. Keys in
// required must be set for the command to start.
func bootstrap(ctx context.Context, required ...string) (*runner, error) {
	cfg, err := config.Load(required...)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &runner{cfg: cfg, logger: logger, store: st}, nil
}

func openStore(cfg config.Config, logger *slog.Logger) (store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		st, err := postgres.Open(postgres.Options{
			DSN:      cfg.DatabaseURL,
			Location: cfg.Location,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return st, nil
	default:
		st, err := sqlite.Open(sqlite.Options{
			Config:   migration.DefaultSQLiteConfig(cfg.DatabaseURL),
			Location: cfg.Location,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, nil
	}
}

func (r *runner) close() {
	if err := r.store.Close(); err != nil {
		r.logger.Error("failed to close storage", "error", err)
	}
}

// services is the application graph shared by the server and the worker.
type services struct {
	engine     *recurrence.Engine
	queue      *jobqueue.Client
	driver     *scheduler.Driver
	events     *application.EventService
	sessions   *application.SessionService
	attendance *application.AttendanceService
	users      *application.UserService
}

func (r *runner) services() *services {
	engine := recurrence.NewEngine(r.cfg.Location)
	queue := jobqueue.NewClient(r.store, uuid.NewString, r.cfg.JobMaxAttempts, r.logger)
	driver := scheduler.NewDriver(queue, r.store, engine, nil, r.logger)
	return &services{
		engine:     engine,
		queue:      queue,
		driver:     driver,
		events:     application.NewEventServiceWithLogger(r.store, r.store, driver, engine, uuid.NewString, nil, r.logger),
		sessions:   application.NewSessionServiceWithLogger(r.store, driver, engine, uuid.NewString, nil, r.logger),
		attendance: application.NewAttendanceServiceWithLogger(r.store, engine, uuid.NewString, nil, r.logger),
		users:      application.NewUserServiceWithLogger(r.store, uuid.NewString, nil, r.logger),
	}
}

// newWorker builds a job worker with the materialize handler registered.
func (r *runner) newWorker(svc *services) *jobqueue.Worker {
	worker := jobqueue.NewWorker(r.store, jobqueue.WorkerOptions{
		Concurrency:  r.cfg.WorkerConcurrency,
		PollInterval: r.cfg.JobPollInterval,
		Retry:        jobqueue.RetryPolicy{Base: r.cfg.JobBackoffBase, Max: r.cfg.JobBackoffMax},
		Logger:       r.logger,
	})
	worker.Register(scheduler.TaskMaterializeSession, svc.sessions.HandleMaterializeJob)
	return worker
}
