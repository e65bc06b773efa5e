package network

import "errors"

// Domain errors for the network package.
var (
	// ErrListenFailed is returned when the UDP socket cannot be opened.
	ErrListenFailed = errors.New("network: listen failed")

	// ErrClosed is returned by SendTo after Close.
	ErrClosed = errors.New("network: dispatcher closed")

	// ErrSendFailed wraps a socket write error.
	ErrSendFailed = errors.New("network: send failed")
)
