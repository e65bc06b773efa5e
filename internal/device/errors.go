package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrAddressInUse) {
//	    // reject the configuration
//	}
var (
	// ErrDeviceNotFound is returned when no device has the given name.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose name is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when a device configuration fails
	// validation.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrAddressInUse is returned when a decoder address is already owned by
	// another decoder.
	ErrAddressInUse = errors.New("device: decoder address in use")

	// ErrDecoderNotFound is returned when no decoder has the given address or
	// name.
	ErrDecoderNotFound = errors.New("device: decoder not found")

	// ErrNotOnline is returned for operations that need an Online session.
	ErrNotOnline = errors.New("device: not online")

	// ErrTaskNotFound is returned when a task ID is not active on the device.
	ErrTaskNotFound = errors.New("device: task not found")

	// ErrStaleState is reported when an inbound STATE sequence is not newer
	// than the last accepted one.
	ErrStaleState = errors.New("device: stale state sequence")

	// ErrConfigToken is reported when a packet carries the wrong config token.
	ErrConfigToken = errors.New("device: config token mismatch")

	// ErrProtocol is reported for packets that do not fit the session state.
	ErrProtocol = errors.New("device: protocol violation")
)

// ErrUnknownSession is reported when a packet's session token matches no
// connected device.
var ErrUnknownSession = errors.New("device: unknown session")
