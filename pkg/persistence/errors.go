package persistence

import "errors"

var (
	// ErrNotFound is returned for lookups of missing rows.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEnrollment is returned by CreateEnrollment when an
	// active enrollment already exists for the same automation/entity.
	ErrDuplicateEnrollment = errors.New("active enrollment already exists")

	// ErrTerminalEnrollment is returned when updating an enrollment whose
	// stored state is already completed or exited.
	ErrTerminalEnrollment = errors.New("enrollment is in a terminal state")
)
