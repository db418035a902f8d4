package application

import (
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// LocationInput captures the geolocation of an event.
type LocationInput struct {
	Name      string
	Latitude  float64
	Longitude float64
	City      string
	Country   string
}

// EventInput captures caller provided event fields.
type EventInput struct {
	Title                  string
	Description            string
	Type                   string
	Location               LocationInput
	StartDate              time.Time
	EndDate                *time.Time
	IsRecurring            bool
	RecurrenceIntervalDays int
	DurationDays           int
	StartTime              string
	EndTime                string
}

// EventPatch lists the fields an update changes. Nil fields keep their value.
type EventPatch struct {
	Title                  *string
	Description            *string
	Type                   *string
	Location               *LocationInput
	StartDate              *time.Time
	EndDate                *time.Time
	ClearEndDate           bool
	IsRecurring            *bool
	RecurrenceIntervalDays *int
	DurationDays           *int
	StartTime              *string
	EndTime                *string
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Principal Principal
	Input     EventInput
}

// UpdateEventParams wraps the data required to update an existing event.
type UpdateEventParams struct {
	Principal Principal
	EventID   string
	Patch     EventPatch
}

// MaterializeParams identifies the session a materialize job should create.
// A nil TargetDate accepts whatever session is due next.
type MaterializeParams struct {
	EventID    string
	TargetDate *time.Time
}

// MaterializeOutcome is the result of one materialize run.
type MaterializeOutcome string

const (
	OutcomeCreated   MaterializeOutcome = "created"
	OutcomeSkipped   MaterializeOutcome = "skipped"
	OutcomeCompleted MaterializeOutcome = "completed"
	OutcomeDropped   MaterializeOutcome = "dropped"
)

// MaterializeResult reports what a materialize run did.
type MaterializeResult struct {
	Outcome MaterializeOutcome
	Reason  string
	Session *persistence.Session
}

// CheckInRequest is a user's request to check into the active session of an event.
type CheckInRequest struct {
	EventID   string
	UserID    string
	Latitude  float64
	Longitude float64
}

// CheckOutRequest is a user's request to check out of the active session of an event.
type CheckOutRequest struct {
	EventID   string
	UserID    string
	Latitude  float64
	Longitude float64
}

// SeedAdminParams describes the administrator account created at install time.
type SeedAdminParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}
