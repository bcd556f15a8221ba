package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a write collides with an existing record.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrInvalidTransition is returned when a status write targets an event
	// that already left the open state. Callers re-read and short-circuit.
	ErrInvalidTransition = errors.New("persistence: invalid status transition")
	// ErrConstraintViolation is returned when stored data would violate a
	// structural constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
