package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nuru484/BeThere-server/internal/logging"
	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/recurrence"
)

// EventSource reads the state the driver decides on.
type EventSource interface {
	ListEventStates(ctx context.Context) ([]persistence.EventState, error)
	FindSessionByEventAndDate(ctx context.Context, eventID string, startDate time.Time) (persistence.Session, error)
}

// SweepResult summarizes one sweep over all events.
type SweepResult struct {
	Scanned   int
	Scheduled int
	Recovered int
	Invalid   int
	Failed    int
}

// Driver turns event lifecycle changes into materialize tasks.
type Driver struct {
	queue  Queue
	events EventSource
	engine *recurrence.Engine
	now    func() time.Time
	logger *slog.Logger
}

// NewDriver constructs a Driver. A nil engine evaluates rules in time.Local.
func NewDriver(queue Queue, events EventSource, engine *recurrence.Engine, now func() time.Time, logger *slog.Logger) *Driver {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{queue: queue, events: events, engine: engine, now: now, logger: logger}
}

func (d *Driver) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = d.logger
	}
	return logger.With(append([]any{"component", "scheduler", "operation", operation}, attrs...)...)
}

// OnEventCreated schedules the first session of a new event.
func (d *Driver) OnEventCreated(ctx context.Context, event persistence.Event) error {
	rule, err := RuleFromEvent(event)
	if err != nil {
		return err
	}
	decision, err := d.engine.Next(rule, nil)
	if err != nil {
		return err
	}
	if !decision.Due {
		d.loggerWith(ctx, "OnEventCreated", "event_id", event.ID).InfoContext(ctx, "event has no session to schedule", "reason", decision.Reason)
		return nil
	}
	return d.schedule(ctx, event.ID, decision.Target, d.runAt(decision.Target))
}

// OnEventUpdated reschedules when a change affects which session comes next:
// a different start day, a toggled recurrence flag, or an event that never
// produced a session.
func (d *Driver) OnEventUpdated(ctx context.Context, before, after persistence.EventState) error {
	startMoved := !d.engine.StartOfDay(before.Event.StartDate).Equal(d.engine.StartOfDay(after.Event.StartDate))
	recurrenceToggled := before.Event.IsRecurring != after.Event.IsRecurring
	if !startMoved && !recurrenceToggled && after.SessionCount > 0 {
		return nil
	}

	rule, err := RuleFromEvent(after.Event)
	if err != nil {
		return err
	}
	decision, err := d.engine.Next(rule, after.LatestSessionStart)
	if err != nil {
		return err
	}
	if !decision.Due {
		return nil
	}
	exists, err := d.sessionExists(ctx, after.Event.ID, decision.Target)
	if err != nil || exists {
		return err
	}
	return d.schedule(ctx, after.Event.ID, decision.Target, d.runAt(decision.Target))
}

// ScheduleFollowing schedules the session chained after a materialized one.
// Targets already in the past run immediately so a lagging chain catches up.
func (d *Driver) ScheduleFollowing(ctx context.Context, eventID string, target time.Time) error {
	target = d.engine.StartOfDay(target)
	return d.schedule(ctx, eventID, target, d.runAt(target))
}

// Sweep schedules tomorrow's sessions and recovers overdue ones that were
// never materialized. Events with an invalid configuration are counted and
// skipped. A lookup or enqueue failure only affects its own event; the sweep
// carries on and returns the joined failures once every event is scanned.
func (d *Driver) Sweep(ctx context.Context) (result SweepResult, err error) {
	logger := d.loggerWith(ctx, "Sweep")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sweep failed", "error", err, "scanned", result.Scanned, "failed", result.Failed)
			return
		}
		logger.InfoContext(ctx, "sweep finished",
			"scanned", result.Scanned,
			"scheduled", result.Scheduled,
			"recovered", result.Recovered,
			"invalid", result.Invalid,
		)
	}()

	states, err := d.events.ListEventStates(ctx)
	if err != nil {
		return result, fmt.Errorf("scheduler: list events: %w", err)
	}

	now := d.now()
	today := d.engine.StartOfDay(now)
	tomorrow := d.engine.AddDays(today, 1)

	var failures []error
	for _, state := range states {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(append(failures, err)...)
		}
		result.Scanned++

		rule, ruleErr := RuleFromEvent(state.Event)
		var decision recurrence.Decision
		if ruleErr == nil {
			decision, ruleErr = d.engine.Next(rule, state.LatestSessionStart)
		}
		if ruleErr != nil {
			result.Invalid++
			logger.WarnContext(ctx, "skipping event with invalid recurrence", "event_id", state.Event.ID, "error", ruleErr)
			continue
		}
		if !decision.Due || decision.Target.After(tomorrow) {
			continue
		}

		outcome, err := d.sweepOne(ctx, state.Event.ID, decision.Target, tomorrow, now)
		switch {
		case err != nil:
			result.Failed++
			failures = append(failures, err)
			logger.WarnContext(ctx, "event left for the next sweep", "event_id", state.Event.ID, "error", err)
		case outcome == sweepScheduled:
			result.Scheduled++
		case outcome == sweepRecovered:
			result.Recovered++
		}
	}
	return result, errors.Join(failures...)
}

type sweepOutcome int

const (
	sweepSkipped sweepOutcome = iota
	sweepScheduled
	sweepRecovered
)

// sweepOne enqueues the session for target unless it already exists.
// Tomorrow's session runs at the day boundary; anything earlier runs now.
func (d *Driver) sweepOne(ctx context.Context, eventID string, target, tomorrow, now time.Time) (sweepOutcome, error) {
	exists, err := d.sessionExists(ctx, eventID, target)
	if err != nil || exists {
		return sweepSkipped, err
	}
	if target.Equal(tomorrow) {
		return sweepScheduled, d.schedule(ctx, eventID, target, tomorrow)
	}
	return sweepRecovered, d.schedule(ctx, eventID, target, now)
}

func (d *Driver) runAt(target time.Time) time.Time {
	now := d.now()
	if target.After(now) {
		return target
	}
	return now
}

func (d *Driver) sessionExists(ctx context.Context, eventID string, target time.Time) (bool, error) {
	_, err := d.events.FindSessionByEventAndDate(ctx, eventID, target)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, persistence.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("scheduler: find session: %w", err)
	}
}

func (d *Driver) schedule(ctx context.Context, eventID string, target, runAt time.Time) error {
	task, err := NewMaterializeTask(eventID, target, runAt)
	if err != nil {
		return err
	}
	logger := d.loggerWith(ctx, "schedule", "event_id", eventID, "target_date", target.Format(targetDateLayout))
	if err := d.queue.Schedule(ctx, task); err != nil {
		if errors.Is(err, ErrAlreadyScheduled) {
			logger.DebugContext(ctx, "session already scheduled")
			return nil
		}
		return fmt.Errorf("scheduler: enqueue %s: %w", task.DedupeKey, err)
	}
	logger.InfoContext(ctx, "session scheduled", "run_at", runAt)
	return nil
}
