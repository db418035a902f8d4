package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/recurrence"
	"github.com/nuru484/BeThere-server/internal/scheduler"
)

// SessionRepository captures the persistence interactions needed to materialize sessions.
type SessionRepository interface {
	GetEvent(ctx context.Context, id string) (persistence.Event, error)
	FindLatestSession(ctx context.Context, eventID string) (persistence.Session, error)
	FindSessionByEventAndDate(ctx context.Context, eventID string, startDate time.Time) (persistence.Session, error)
	CreateSession(ctx context.Context, session persistence.Session) error
}

// FollowingScheduler chains the next session after one is materialized.
type FollowingScheduler interface {
	ScheduleFollowing(ctx context.Context, eventID string, target time.Time) error
}

// SessionService materializes sessions from event recurrence rules.
type SessionService struct {
	store       SessionRepository
	scheduler   FollowingScheduler
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSessionService wires dependencies for session materialization.
func NewSessionService(store SessionRepository, scheduler FollowingScheduler, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *SessionService {
	return NewSessionServiceWithLogger(store, scheduler, engine, idGenerator, now, nil)
}

// NewSessionServiceWithLogger wires dependencies with a specified logger.
func NewSessionServiceWithLogger(store SessionRepository, scheduler FollowingScheduler, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SessionService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		store:       store,
		scheduler:   scheduler,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// Materialize creates the session that is due next for an event. Running it
// again for the same target is a no-op, so jobs may be delivered more than once.
func (s *SessionService) Materialize(ctx context.Context, params MaterializeParams) (result MaterializeResult, err error) {
	if s == nil || s.store == nil {
		return MaterializeResult{}, fmt.Errorf("session repository not configured")
	}
	logger := s.loggerWith(ctx, "Materialize", "event_id", params.EventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "materialize failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		attrs := []any{"outcome", result.Outcome}
		if result.Reason != "" {
			attrs = append(attrs, "reason", result.Reason)
		}
		if result.Session != nil {
			attrs = append(attrs, "session_id", result.Session.ID, "start_date", result.Session.StartDate.Format(time.DateOnly))
		}
		logger.InfoContext(ctx, "materialize finished", attrs...)
	}()

	event, err := s.store.GetEvent(ctx, params.EventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return MaterializeResult{Outcome: OutcomeDropped, Reason: "event no longer exists"}, nil
		}
		return MaterializeResult{}, err
	}

	rule, err := scheduler.RuleFromEvent(event)
	if err != nil {
		return MaterializeResult{}, err
	}

	var lastStart *time.Time
	latest, err := s.store.FindLatestSession(ctx, event.ID)
	switch {
	case err == nil:
		lastStart = &latest.StartDate
	case errors.Is(err, persistence.ErrNotFound):
	default:
		return MaterializeResult{}, err
	}

	decision, err := s.engine.Next(rule, lastStart)
	if err != nil {
		return MaterializeResult{}, err
	}
	if !decision.Due {
		return MaterializeResult{Outcome: OutcomeCompleted, Reason: string(decision.Reason)}, nil
	}

	target := decision.Target
	if params.TargetDate != nil && !s.engine.StartOfDay(*params.TargetDate).Equal(target) {
		return MaterializeResult{Outcome: OutcomeSkipped, Reason: "stale target " + params.TargetDate.Format(time.DateOnly)}, nil
	}

	if _, err = s.store.FindSessionByEventAndDate(ctx, event.ID, target); err == nil {
		return MaterializeResult{Outcome: OutcomeSkipped, Reason: "session already exists"}, nil
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return MaterializeResult{}, err
	}

	window, err := s.engine.Window(rule, target)
	if err != nil {
		return MaterializeResult{}, err
	}
	session := persistence.Session{
		ID:        s.idGenerator(),
		EventID:   event.ID,
		StartDate: window.StartDate,
		EndDate:   window.EndDate,
		StartTime: window.StartTime,
		EndTime:   window.EndTime,
		CreatedAt: s.now(),
	}
	if err = s.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return MaterializeResult{Outcome: OutcomeSkipped, Reason: "session already exists"}, nil
		}
		return MaterializeResult{}, err
	}

	if s.scheduler != nil {
		if next, due := s.engine.Following(rule, target); due {
			if err = s.scheduler.ScheduleFollowing(ctx, event.ID, next); err != nil {
				// the session exists; the sweep picks the chain up again
				logger.ErrorContext(ctx, "failed to schedule following session", "target_date", next.Format(time.DateOnly), "error", err)
				err = nil
			}
		}
	}

	return MaterializeResult{Outcome: OutcomeCreated, Session: &session}, nil
}
