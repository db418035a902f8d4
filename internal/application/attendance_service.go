package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nuru484/BeThere-server/internal/geo"
	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/recurrence"
	"github.com/nuru484/BeThere-server/internal/scheduler"
)

const (
	// GeofenceRadiusMeters is how close to the event location a user must stand.
	GeofenceRadiusMeters = 50.0
	// PresentGracePeriod is how long after the daily start a check-in still counts as present.
	PresentGracePeriod = time.Hour
)

// AttendanceRepository captures the persistence interactions needed by the attendance service.
type AttendanceRepository interface {
	GetUser(ctx context.Context, id string) (persistence.User, error)
	GetEvent(ctx context.Context, id string) (persistence.Event, error)
	FindActiveSession(ctx context.Context, eventID string, day time.Time) (persistence.Session, error)
	FindAttendance(ctx context.Context, userID, sessionID string) (persistence.Attendance, error)
	CreateAttendance(ctx context.Context, record persistence.Attendance) error
	UpdateAttendanceCheckout(ctx context.Context, userID, sessionID string, at time.Time) error
	ListAttendanceByEvent(ctx context.Context, eventID string) ([]persistence.Attendance, error)
	ListAttendanceByUser(ctx context.Context, userID string) ([]persistence.Attendance, error)
}

// AttendanceService records check-ins and check-outs against the active
// session of an event.
type AttendanceService struct {
	store       AttendanceRepository
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAttendanceService wires dependencies for attendance operations.
func NewAttendanceService(store AttendanceRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithLogger(store, engine, idGenerator, now, nil)
}

// NewAttendanceServiceWithLogger wires dependencies with a specified logger.
func NewAttendanceServiceWithLogger(store AttendanceRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{
		store:       store,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// attendanceContext is what both check-in and check-out resolve before
// applying their own rules.
type attendanceContext struct {
	event   persistence.Event
	session persistence.Session
	opens   time.Time
	closes  time.Time
	now     time.Time
}

// CheckIn records the user's attendance for today's session.
func (s *AttendanceService) CheckIn(ctx context.Context, req CheckInRequest) (record persistence.Attendance, err error) {
	if s == nil || s.store == nil {
		return persistence.Attendance{}, fmt.Errorf("attendance repository not configured")
	}
	logger := s.loggerWith(ctx, "CheckIn", "event_id", req.EventID, "user_id", req.UserID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "check-in rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "checked in", "session_id", record.SessionID, "status", record.Status)
	}()

	ac, err := s.resolve(ctx, req.EventID, req.UserID, geo.Point{Latitude: req.Latitude, Longitude: req.Longitude})
	if err != nil {
		return persistence.Attendance{}, err
	}

	if ac.now.Before(ac.opens) {
		return persistence.Attendance{}, &WindowClosedError{Reason: WindowTooEarly, Opens: ac.opens, Closes: ac.closes}
	}
	if ac.now.After(ac.closes) {
		return persistence.Attendance{}, &WindowClosedError{Reason: WindowTooLate, Opens: ac.opens, Closes: ac.closes}
	}

	if _, err = s.store.FindAttendance(ctx, req.UserID, ac.session.ID); err == nil {
		return persistence.Attendance{}, ErrAlreadyCheckedIn
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.Attendance{}, err
	}

	record = persistence.Attendance{
		ID:          s.idGenerator(),
		UserID:      req.UserID,
		SessionID:   ac.session.ID,
		EventID:     ac.event.ID,
		Status:      statusAt(ac.now, ac.opens),
		CheckInTime: ac.now,
		CreatedAt:   ac.now,
	}
	if err = s.store.CreateAttendance(ctx, record); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return persistence.Attendance{}, ErrAlreadyCheckedIn
		}
		return persistence.Attendance{}, err
	}
	return record, nil
}

// CheckOut closes the user's attendance for today's session.
func (s *AttendanceService) CheckOut(ctx context.Context, req CheckOutRequest) (record persistence.Attendance, err error) {
	if s == nil || s.store == nil {
		return persistence.Attendance{}, fmt.Errorf("attendance repository not configured")
	}
	logger := s.loggerWith(ctx, "CheckOut", "event_id", req.EventID, "user_id", req.UserID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "check-out rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "checked out", "session_id", record.SessionID)
	}()

	ac, err := s.resolve(ctx, req.EventID, req.UserID, geo.Point{Latitude: req.Latitude, Longitude: req.Longitude})
	if err != nil {
		return persistence.Attendance{}, err
	}

	record, err = s.store.FindAttendance(ctx, req.UserID, ac.session.ID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.Attendance{}, ErrNotCheckedIn
		}
		return persistence.Attendance{}, err
	}
	if record.CheckOutTime != nil {
		return persistence.Attendance{}, ErrAlreadyCheckedOut
	}
	if ac.now.After(ac.closes) {
		return persistence.Attendance{}, &WindowClosedError{Reason: WindowTooLate, Opens: ac.opens, Closes: ac.closes}
	}
	if !ac.now.After(record.CheckInTime) {
		return persistence.Attendance{}, ErrInvalidOrdering
	}

	if err = s.store.UpdateAttendanceCheckout(ctx, req.UserID, ac.session.ID, ac.now); err != nil {
		switch {
		case errors.Is(err, persistence.ErrConflict):
			return persistence.Attendance{}, ErrAlreadyCheckedOut
		case errors.Is(err, persistence.ErrNotFound):
			return persistence.Attendance{}, ErrNotCheckedIn
		}
		return persistence.Attendance{}, err
	}
	checkout := ac.now
	record.CheckOutTime = &checkout
	return record, nil
}

// ListEventAttendance returns every record of an event. Administrators only.
func (s *AttendanceService) ListEventAttendance(ctx context.Context, principal Principal, eventID string) ([]persistence.Attendance, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("attendance repository not configured")
	}
	if !principal.IsAdmin {
		return nil, ErrForbidden
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, mapRepoError(err, "event", eventID)
	}
	return s.store.ListAttendanceByEvent(ctx, eventID)
}

// ListUserAttendance returns every record of a user. Users may only list their own.
func (s *AttendanceService) ListUserAttendance(ctx context.Context, principal Principal, userID string) ([]persistence.Attendance, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("attendance repository not configured")
	}
	if !principal.IsAdmin && principal.UserID != userID {
		return nil, ErrForbidden
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, mapRepoError(err, "user", userID)
	}
	return s.store.ListAttendanceByUser(ctx, userID)
}

// resolve validates the point, user and event, enforces the geofence and
// finds today's session and attendance window.
func (s *AttendanceService) resolve(ctx context.Context, eventID, userID string, point geo.Point) (attendanceContext, error) {
	if err := point.Validate(); err != nil {
		vErr := &ValidationError{}
		if (geo.Point{Latitude: point.Latitude}).Validate() != nil {
			vErr.add("latitude", "latitude must be between -90 and 90")
		}
		if (geo.Point{Longitude: point.Longitude}).Validate() != nil {
			vErr.add("longitude", "longitude must be between -180 and 180")
		}
		return attendanceContext{}, vErr
	}

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return attendanceContext{}, mapRepoError(err, "user", userID)
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return attendanceContext{}, mapRepoError(err, "event", eventID)
	}

	venue := geo.Point{Latitude: event.Location.Latitude, Longitude: event.Location.Longitude}
	inside, distance, err := geo.Within(venue, point, GeofenceRadiusMeters)
	if err != nil {
		return attendanceContext{}, fmt.Errorf("%w: event location: %v", ErrInvalidConfiguration, err)
	}
	if !inside {
		return attendanceContext{}, &OutOfRangeError{DistanceMeters: distance, RadiusMeters: GeofenceRadiusMeters}
	}

	now := s.now().In(s.engine.Location())
	today := s.engine.StartOfDay(now)
	session, err := s.store.FindActiveSession(ctx, event.ID, today)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return attendanceContext{}, ErrNoActiveSession
		}
		return attendanceContext{}, err
	}

	rule, err := scheduler.RuleFromEvent(event)
	if err != nil {
		return attendanceContext{}, err
	}
	opens, closes := s.engine.DailyWindow(rule, today)

	return attendanceContext{event: event, session: session, opens: opens, closes: closes, now: now}, nil
}

func statusAt(checkIn, opens time.Time) string {
	if checkIn.After(opens.Add(PresentGracePeriod)) {
		return persistence.StatusLate
	}
	return persistence.StatusPresent
}
