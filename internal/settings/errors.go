package settings

import "errors"

// Domain-specific errors for settings operations.
var (
	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("settings: key cannot be empty")

	// ErrReadFailed is returned when a stored value cannot be read.
	ErrReadFailed = errors.New("settings: read failed")

	// ErrWriteFailed is returned when a value cannot be persisted.
	ErrWriteFailed = errors.New("settings: write failed")
)
