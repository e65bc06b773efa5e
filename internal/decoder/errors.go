package decoder

import "errors"

// Domain errors for the decoder package.
var (
	// ErrInvalidAddress is returned when an address string cannot be parsed.
	ErrInvalidAddress = errors.New("decoder: invalid address")

	// ErrUnknownKind is returned for a decoder kind with no constructor.
	ErrUnknownKind = errors.New("decoder: unknown kind")

	// ErrInvalidConfig is returned when a decoder configuration fails
	// validation.
	ErrInvalidConfig = errors.New("decoder: invalid config")

	// ErrInvalidState is returned when a state string cannot be parsed.
	ErrInvalidState = errors.New("decoder: invalid state")

	// ErrNotOutput is returned when a state change is requested on a decoder
	// that cannot be driven.
	ErrNotOutput = errors.New("decoder: not an output")
)
