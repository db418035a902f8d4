package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nuru484/BeThere-server/internal/geo"
	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/recurrence"
)

// EventRepository captures the persistence interactions needed by the event service.
type EventRepository interface {
	CreateEvent(ctx context.Context, event persistence.Event) error
	UpdateEvent(ctx context.Context, event persistence.Event) error
	GetEvent(ctx context.Context, id string) (persistence.Event, error)
	ListEvents(ctx context.Context) ([]persistence.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// SessionHistory summarizes the sessions already materialized for an event.
type SessionHistory interface {
	FindLatestSession(ctx context.Context, eventID string) (persistence.Session, error)
	CountSessions(ctx context.Context, eventID string) (int, error)
}

// EventScheduler reacts to event lifecycle changes by scheduling sessions.
type EventScheduler interface {
	OnEventCreated(ctx context.Context, event persistence.Event) error
	OnEventUpdated(ctx context.Context, before, after persistence.EventState) error
}

const (
	maxTitleLength        = 255
	maxDescriptionLength  = 500
	maxLocationNameLength = 255
	maxPlaceLength        = 100
)

// EventService validates and persists events and keeps their session
// schedule in step.
type EventService struct {
	events      EventRepository
	sessions    SessionHistory
	scheduler   EventScheduler
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService wires dependencies for event operations.
func NewEventService(events EventRepository, sessions SessionHistory, scheduler EventScheduler, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, sessions, scheduler, engine, idGenerator, now, nil)
}

// NewEventServiceWithLogger wires dependencies for event operations with a specified logger.
func NewEventServiceWithLogger(events EventRepository, sessions SessionHistory, scheduler EventScheduler, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:      events,
		sessions:    sessions,
		scheduler:   scheduler,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates the input, stores the event and schedules its first session.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event persistence.Event, err error) {
	if s == nil {
		return persistence.Event{}, fmt.Errorf("EventService is nil")
	}
	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "create event failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event created", "event_id", event.ID, "is_recurring", event.IsRecurring)
	}()

	if !params.Principal.IsAdmin {
		return persistence.Event{}, ErrForbidden
	}

	input := normalizeEventInput(params.Input)
	if vErr := s.validateEventInput(input); vErr.HasErrors() {
		return persistence.Event{}, vErr
	}

	now := s.now()
	event = persistence.Event{
		ID:                     s.idGenerator(),
		Title:                  input.Title,
		Description:            input.Description,
		Type:                   input.Type,
		Location:               persistence.Location(input.Location),
		StartDate:              s.engine.StartOfDay(input.StartDate),
		EndDate:                s.dayPtr(input.EndDate),
		IsRecurring:            input.IsRecurring,
		RecurrenceIntervalDays: input.RecurrenceIntervalDays,
		DurationDays:           s.durationFor(input),
		StartTime:              input.StartTime,
		EndTime:                input.EndTime,
		CreatedBy:              params.Principal.UserID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if s.events == nil {
		return event, nil
	}
	if err = s.events.CreateEvent(ctx, event); err != nil {
		return persistence.Event{}, mapRepoError(err, "event", event.ID)
	}

	if s.scheduler != nil {
		// the daily sweep recovers a session whose job could not be enqueued
		if schedErr := s.scheduler.OnEventCreated(ctx, event); schedErr != nil {
			logger.ErrorContext(ctx, "failed to schedule first session", "event_id", event.ID, "error", schedErr)
		}
	}
	return event, nil
}

// UpdateEvent applies a partial update. A non-recurring event that already
// ended may only be updated when the update turns it into a recurring one.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (event persistence.Event, err error) {
	if s == nil {
		return persistence.Event{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return persistence.Event{}, fmt.Errorf("event repository not configured")
	}
	logger := s.loggerWith(ctx, "UpdateEvent", "principal_id", params.Principal.UserID, "event_id", params.EventID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "update event failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	if !params.Principal.IsAdmin {
		return persistence.Event{}, ErrForbidden
	}

	existing, err := s.events.GetEvent(ctx, params.EventID)
	if err != nil {
		return persistence.Event{}, mapRepoError(err, "event", params.EventID)
	}

	patch := params.Patch
	if !existing.IsRecurring && s.hasEnded(existing) && (patch.IsRecurring == nil || !*patch.IsRecurring) {
		vErr := &ValidationError{}
		vErr.add("is_recurring", "cannot update a non-recurring event that has already ended; set is_recurring to true to convert it")
		return persistence.Event{}, vErr
	}

	input := normalizeEventInput(applyPatch(existing, patch))
	if vErr := s.validateEventInput(input); vErr.HasErrors() {
		return persistence.Event{}, vErr
	}

	updated := existing
	updated.Title = input.Title
	updated.Description = input.Description
	updated.Type = input.Type
	updated.Location = persistence.Location(input.Location)
	updated.StartDate = s.engine.StartOfDay(input.StartDate)
	updated.EndDate = s.dayPtr(input.EndDate)
	updated.IsRecurring = input.IsRecurring
	updated.RecurrenceIntervalDays = input.RecurrenceIntervalDays
	updated.DurationDays = s.durationFor(input)
	updated.StartTime = input.StartTime
	updated.EndTime = input.EndTime
	updated.UpdatedAt = s.now()

	before, err := s.eventState(ctx, existing)
	if err != nil {
		return persistence.Event{}, err
	}

	if err = s.events.UpdateEvent(ctx, updated); err != nil {
		return persistence.Event{}, mapRepoError(err, "event", updated.ID)
	}

	if s.scheduler != nil {
		after := before
		after.Event = updated
		if schedErr := s.scheduler.OnEventUpdated(ctx, before, after); schedErr != nil {
			logger.ErrorContext(ctx, "failed to reschedule sessions", "error", schedErr)
		}
	}
	return updated, nil
}

// GetEvent returns one event.
func (s *EventService) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if s == nil || s.events == nil {
		return persistence.Event{}, fmt.Errorf("event repository not configured")
	}
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return persistence.Event{}, mapRepoError(err, "event", id)
	}
	return event, nil
}

// ListEvents returns every event, newest start date first.
func (s *EventService) ListEvents(ctx context.Context) ([]persistence.Event, error) {
	if s == nil || s.events == nil {
		return nil, fmt.Errorf("event repository not configured")
	}
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteEvent removes an event together with its sessions and attendance.
// Jobs still queued for it are dropped when they run.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil || s.events == nil {
		return fmt.Errorf("event repository not configured")
	}
	logger := s.loggerWith(ctx, "DeleteEvent", "principal_id", principal.UserID, "event_id", id)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "delete event failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	if !principal.IsAdmin {
		return ErrForbidden
	}
	if err = s.events.DeleteEvent(ctx, id); err != nil {
		return mapRepoError(err, "event", id)
	}
	return nil
}

func (s *EventService) eventState(ctx context.Context, event persistence.Event) (persistence.EventState, error) {
	state := persistence.EventState{Event: event}
	if s.sessions == nil {
		return state, nil
	}
	count, err := s.sessions.CountSessions(ctx, event.ID)
	if err != nil {
		return state, err
	}
	state.SessionCount = count
	if count == 0 {
		return state, nil
	}
	latest, err := s.sessions.FindLatestSession(ctx, event.ID)
	if err != nil {
		return state, err
	}
	start := latest.StartDate
	state.LatestSessionStart = &start
	return state, nil
}

func (s *EventService) hasEnded(event persistence.Event) bool {
	last := event.StartDate
	if event.EndDate != nil {
		last = *event.EndDate
	}
	return s.engine.StartOfDay(last).Before(s.engine.StartOfDay(s.now()))
}

func (s *EventService) validateEventInput(input EventInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Title == "" {
		vErr.add("title", "title is required")
	} else if utf8.RuneCountInString(input.Title) > maxTitleLength {
		vErr.add("title", fmt.Sprintf("title must not exceed %d characters", maxTitleLength))
	}
	if utf8.RuneCountInString(input.Description) > maxDescriptionLength {
		vErr.add("description", fmt.Sprintf("description must not exceed %d characters", maxDescriptionLength))
	}
	if input.Type == "" {
		vErr.add("type", "type is required")
	}

	vErr.merge(validateLocation(input.Location))

	if input.StartDate.IsZero() {
		vErr.add("start_date", "start date is required")
	}

	startClock, startErr := recurrence.ParseClock(input.StartTime)
	if startErr != nil {
		vErr.add("start_time", "start time must be in HH:MM format")
	}
	endClock, endErr := recurrence.ParseClock(input.EndTime)
	if endErr != nil {
		vErr.add("end_time", "end time must be in HH:MM format")
	}
	if startErr == nil && endErr == nil && !startClock.Before(endClock) {
		vErr.add("end_time", "end time must be after start time")
	}

	if input.IsRecurring {
		if input.RecurrenceIntervalDays < 1 {
			vErr.add("recurrence_interval_days", "recurrence interval must be at least one day")
		}
		if input.DurationDays < 1 {
			vErr.add("duration_days", "duration must be at least one day")
		}
	} else if input.EndDate == nil {
		vErr.add("end_date", "end date is required for non-recurring events")
	}

	if input.EndDate != nil && !input.StartDate.IsZero() &&
		s.engine.StartOfDay(*input.EndDate).Before(s.engine.StartOfDay(input.StartDate)) {
		vErr.add("end_date", "end date must not be before start date")
	}

	return vErr
}

func validateLocation(loc LocationInput) *ValidationError {
	vErr := &ValidationError{}
	if loc.Name == "" {
		vErr.add("location.name", "location name is required")
	} else if utf8.RuneCountInString(loc.Name) > maxLocationNameLength {
		vErr.add("location.name", fmt.Sprintf("location name must not exceed %d characters", maxLocationNameLength))
	}
	if err := (geo.Point{Latitude: loc.Latitude, Longitude: 0}).Validate(); err != nil {
		vErr.add("location.latitude", "latitude must be between -90 and 90")
	}
	if err := (geo.Point{Latitude: 0, Longitude: loc.Longitude}).Validate(); err != nil {
		vErr.add("location.longitude", "longitude must be between -180 and 180")
	}
	if utf8.RuneCountInString(loc.City) > maxPlaceLength {
		vErr.add("location.city", fmt.Sprintf("city must not exceed %d characters", maxPlaceLength))
	}
	if utf8.RuneCountInString(loc.Country) > maxPlaceLength {
		vErr.add("location.country", fmt.Sprintf("country must not exceed %d characters", maxPlaceLength))
	}
	return vErr
}

// durationFor derives the span of a non-recurring event from its dates.
func (s *EventService) durationFor(input EventInput) int {
	if input.IsRecurring || input.EndDate == nil {
		if input.DurationDays < 1 {
			return 1
		}
		return input.DurationDays
	}
	return daysBetween(s.engine.StartOfDay(input.StartDate), s.engine.StartOfDay(*input.EndDate)) + 1
}

func (s *EventService) dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	day := s.engine.StartOfDay(*t)
	return &day
}

// daysBetween counts calendar days from a to b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func normalizeEventInput(input EventInput) EventInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Type = strings.TrimSpace(input.Type)
	input.Location.Name = strings.TrimSpace(input.Location.Name)
	input.Location.City = strings.TrimSpace(input.Location.City)
	input.Location.Country = strings.TrimSpace(input.Location.Country)
	input.StartTime = strings.TrimSpace(input.StartTime)
	input.EndTime = strings.TrimSpace(input.EndTime)
	if !input.IsRecurring && input.RecurrenceIntervalDays == 0 {
		input.RecurrenceIntervalDays = 1
	}
	return input
}

func applyPatch(existing persistence.Event, patch EventPatch) EventInput {
	input := EventInput{
		Title:                  existing.Title,
		Description:            existing.Description,
		Type:                   existing.Type,
		Location:               LocationInput(existing.Location),
		StartDate:              existing.StartDate,
		EndDate:                existing.EndDate,
		IsRecurring:            existing.IsRecurring,
		RecurrenceIntervalDays: existing.RecurrenceIntervalDays,
		DurationDays:           existing.DurationDays,
		StartTime:              existing.StartTime,
		EndTime:                existing.EndTime,
	}
	if patch.Title != nil {
		input.Title = *patch.Title
	}
	if patch.Description != nil {
		input.Description = *patch.Description
	}
	if patch.Type != nil {
		input.Type = *patch.Type
	}
	if patch.Location != nil {
		input.Location = *patch.Location
	}
	if patch.StartDate != nil {
		input.StartDate = *patch.StartDate
	}
	if patch.ClearEndDate {
		input.EndDate = nil
	}
	if patch.EndDate != nil {
		input.EndDate = patch.EndDate
	}
	if patch.IsRecurring != nil {
		input.IsRecurring = *patch.IsRecurring
	}
	if patch.RecurrenceIntervalDays != nil {
		input.RecurrenceIntervalDays = *patch.RecurrenceIntervalDays
	}
	if patch.DurationDays != nil {
		input.DurationDays = *patch.DurationDays
	}
	if patch.StartTime != nil {
		input.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		input.EndTime = *patch.EndTime
	}
	return input
}

func mapRepoError(err error, resource, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return &NotFoundError{Resource: resource, ID: id}
	case errors.Is(err, persistence.ErrDuplicate):
		vErr := &ValidationError{}
		vErr.add("id", fmt.Sprintf("%s already exists", resource))
		return vErr
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return err
}
