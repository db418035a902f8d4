package persistence

import (
	"context"
	"time"
)

// UserRepository looks up and seeds user accounts.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpsertUserByEmail(ctx context.Context, user User) (User, error)
}

// EventRepository exposes CRUD operations for events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
	// ListEventStates returns every event with its latest session start and session count.
	ListEventStates(ctx context.Context) ([]EventState, error)
}

// SessionRepository stores materialized sessions. CreateSession returns
// ErrDuplicate when a session already exists for the event and start date.
type SessionRepository interface {
	FindLatestSession(ctx context.Context, eventID string) (Session, error)
	FindSessionByEventAndDate(ctx context.Context, eventID string, startDate time.Time) (Session, error)
	CreateSession(ctx context.Context, session Session) error
	// FindActiveSession returns the latest starting session whose calendar span contains day.
	FindActiveSession(ctx context.Context, eventID string, day time.Time) (Session, error)
	CountSessions(ctx context.Context, eventID string) (int, error)
}

// AttendanceRepository stores attendance records. CreateAttendance returns
// ErrDuplicate when the user already has a record for the session, and
// UpdateAttendanceCheckout returns ErrConflict when the record is already checked out.
type AttendanceRepository interface {
	FindAttendance(ctx context.Context, userID, sessionID string) (Attendance, error)
	CreateAttendance(ctx context.Context, record Attendance) error
	UpdateAttendanceCheckout(ctx context.Context, userID, sessionID string, at time.Time) error
	ListAttendanceByEvent(ctx context.Context, eventID string) ([]Attendance, error)
	ListAttendanceByUser(ctx context.Context, userID string) ([]Attendance, error)
}

// JobRepository persists delayed jobs. EnqueueJob returns ErrDuplicate when a
// pending or running job already holds the dedupe key.
type JobRepository interface {
	EnqueueJob(ctx context.Context, job Job) error
	// ClaimDueJobs leases up to limit jobs whose run time has passed, marking them running.
	ClaimDueJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error)
	FinishJob(ctx context.Context, id string, status JobStatus, lastError string, at time.Time) error
	RescheduleJob(ctx context.Context, id string, runAt time.Time, lastError string, at time.Time) error
	GetJob(ctx context.Context, id string) (Job, error)
}

// Store bundles every repository behind one backend.
type Store interface {
	UserRepository
	EventRepository
	SessionRepository
	AttendanceRepository
	JobRepository
	Migrate(ctx context.Context) error
	Close() error
}
