package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
)

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "run queued jobs and the scheduled sweep",
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context)
			if err != nil {
				return err
			}
			defer rt.close()
			return rt.runWorker(c.Context, rt.services())
		},
	}
}

// runWorker sweeps once, then polls for jobs and repeats the sweep on the
// configured schedule until ctx is cancelled.
func (r *runner) runWorker(ctx context.Context, svc *services) error {
	cronLogger := cronLogAdapter{logger: r.logger.With("component", "cron")}
	sweeps := cron.New(
		cron.WithLocation(r.cfg.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := sweeps.AddFunc(r.cfg.SweepSchedule, func() { r.sweep(ctx, svc) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", r.cfg.SweepSchedule, err)
	}

	r.sweep(ctx, svc)
	sweeps.Start()
	defer func() { <-sweeps.Stop().Done() }()

	return r.newWorker(svc).Run(ctx)
}

func (r *runner) sweep(ctx context.Context, svc *services) {
	if ctx.Err() != nil {
		return
	}
	// failures are logged by the driver and retried on the next tick
	_, _ = svc.driver.Sweep(ctx)
}

// cronLogAdapter routes cron's logr-style calls to slog.
type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
