package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a write violates a check or foreign key constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrConflict is returned when a conditional update finds the row in an unexpected state.
	ErrConflict = errors.New("persistence: conflicting state")
)
