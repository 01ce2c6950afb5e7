package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a transcript does not exist or belongs
	// to another tenant.
	ErrNotFound = errors.New("transcript not found")

	// ErrConflict is returned when a transcript with the given ID already exists.
	ErrConflict = errors.New("transcript already exists")
)
