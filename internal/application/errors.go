package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/nuru484/BeThere-server/internal/recurrence"
)

var (
	// ErrUnauthorized is returned when the caller is not authenticated.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrForbidden is returned when the acting principal lacks permission for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidArgument is returned for malformed input that is not tied to a field.
	ErrInvalidArgument = errors.New("application: invalid argument")
	// ErrInvalidConfiguration marks an event whose recurrence cannot produce sessions.
	ErrInvalidConfiguration = recurrence.ErrInvalidConfiguration

	ErrOutOfRange        = errors.New("application: outside the event geofence")
	ErrNoActiveSession   = errors.New("application: no active session")
	ErrWindowClosed      = errors.New("application: attendance window closed")
	ErrAlreadyCheckedIn  = errors.New("application: already checked in")
	ErrAlreadyCheckedOut = errors.New("application: already checked out")
	ErrNotCheckedIn      = errors.New("application: not checked in")
	ErrInvalidOrdering   = errors.New("application: check-out must follow check-in")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// OutOfRangeError reports how far the caller stood from the event location.
type OutOfRangeError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("you are %.1f m from the event location; check-in is allowed within %.0f m", e.DistanceMeters, e.RadiusMeters)
}

// Is matches ErrOutOfRange.
func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// WindowReason tells which side of the attendance window the request fell on.
type WindowReason string

const (
	WindowTooEarly WindowReason = "too_early"
	WindowTooLate  WindowReason = "too_late"
)

// WindowClosedError reports a request outside today's attendance window.
type WindowClosedError struct {
	Reason WindowReason
	Opens  time.Time
	Closes time.Time
}

func (e *WindowClosedError) Error() string {
	if e.Reason == WindowTooEarly {
		return fmt.Sprintf("the session has not started yet; it opens at %s", e.Opens.Format("15:04"))
	}
	return fmt.Sprintf("the session for today ended at %s", e.Closes.Format("15:04"))
}

// Is matches ErrWindowClosed.
func (e *WindowClosedError) Is(target error) bool { return target == ErrWindowClosed }
