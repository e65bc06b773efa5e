package broker

import "errors"

// Domain errors for the broker package.
var (
	// ErrStopped is returned by commands submitted after Run has returned.
	ErrStopped = errors.New("broker: stopped")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("broker: already running")

	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("broker: invalid config")
)
