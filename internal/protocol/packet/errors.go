package packet

import "errors"

// Domain errors for the packet package.
var (
	// ErrInvalidPacket is returned when a field cannot be decoded because it
	// would cross the end of the received data, or the header is malformed.
	ErrInvalidPacket = errors.New("packet: invalid packet")

	// ErrBadMagic is returned when the packet does not start with Magic.
	ErrBadMagic = errors.New("packet: bad magic")

	// ErrUnknownType is returned for message types outside the protocol.
	ErrUnknownType = errors.New("packet: unknown message type")

	// ErrOverflow is recorded when a write would exceed MaxSize.
	ErrOverflow = errors.New("packet: write past capacity")
)
