package store

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrUnavailable wraps connection and driver failures.
	ErrUnavailable = errors.New("datastore unavailable")
)
