package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidCommand is returned for an unparseable command payload.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrInvalidTopic is returned for a command on an unexpected topic.
	ErrInvalidTopic = errors.New("bridge: invalid command topic")
)
