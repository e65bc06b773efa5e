package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when telemetry export is off.
	ErrDisabled = errors.New("influxdb: telemetry export disabled")

	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: server unreachable")
)
