package persistence

import "time"

// Roles stored on user records.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Attendance statuses stored on attendance records.
const (
	StatusPresent = "PRESENT"
	StatusLate    = "LATE"
	StatusAbsent  = "ABSENT"
)

// User represents an account that can attend events.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Location is the geolocation owned by an event.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
	City      string
	Country   string
}

// Event is an attendable event together with its recurrence configuration.
// StartTime and EndTime hold HH:MM wall-clock values.
type Event struct {
	ID                     string
	Title                  string
	Description            string
	Type                   string
	Location               Location
	StartDate              time.Time
	EndDate                *time.Time
	IsRecurring            bool
	RecurrenceIntervalDays int
	DurationDays           int
	StartTime              string
	EndTime                string
	CreatedBy              string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// EventState is an event with a summary of its materialized sessions.
type EventState struct {
	Event              Event
	LatestSessionStart *time.Time
	SessionCount       int
}

// Session is one materialized occurrence of an event.
type Session struct {
	ID        string
	EventID   string
	StartDate time.Time
	EndDate   time.Time
	StartTime time.Time
	EndTime   time.Time
	CreatedAt time.Time
}

// Attendance is a user's check-in record for a session.
type Attendance struct {
	ID           string
	UserID       string
	SessionID    string
	EventID      string
	Status       string
	CheckInTime  time.Time
	CheckOutTime *time.Time
	CreatedAt    time.Time
}

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
	JobDropped JobStatus = "dropped"
)

// Job is a delayed task persisted for the worker pool.
type Job struct {
	ID          string
	Task        string
	DedupeKey   string
	Payload     []byte
	RunAt       time.Time
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	LockedUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
