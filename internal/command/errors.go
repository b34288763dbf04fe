package command

import "errors"

var (
	// ErrNoPlayer is returned by NewDispatcher when no player is supplied.
	ErrNoPlayer = errors.New("command: player is required")

	// ErrNoSettings is returned by NewDispatcher when no settings store is supplied.
	ErrNoSettings = errors.New("command: settings store is required")
)
