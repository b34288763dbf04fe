package doorbell

import "errors"

var (
	// ErrRestart is returned by Run when a staged update was applied and the
	// process must exit so the supervisor starts the new image.
	ErrRestart = errors.New("doorbell: restart requested")

	// ErrMissingDependency is returned by New when a required component is nil.
	ErrMissingDependency = errors.New("doorbell: missing dependency")
)
