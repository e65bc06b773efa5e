package decoder

import (
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
)

// Decoder is the capability interface shared by every decoder kind.
type Decoder interface {
	Address() Address
	Name() string
	Location() string
	DeviceName() string
	Kind() Kind

	// IsOutput reports whether the broker drives this decoder.
	IsOutput() bool

	// IsInput reports whether the device reports this decoder's state.
	IsInput() bool

	// WriteConfig appends the kind byte and kind specific settings of a
	// CONFIG_DEV payload.
	WriteConfig(p *packet.Packet)

	// State returns the last state reported by the device.
	State() State

	// SyncRemoteState records a state reported by the device and reports
	// whether it changed.
	SyncRemoteState(s State) bool
}

// Output is implemented by decoders whose state the broker requests.
type Output interface {
	Decoder

	// RequestedState is the state the broker wants the device to apply.
	RequestedState() State

	// SetRequestedState reports whether the request changed.
	SetRequestedState(s State) bool

	// ToggleRequest flips the pending request.
	ToggleRequest()

	// IgnoreSavedState reports whether persisted state must not be restored
	// at startup.
	IgnoreSavedState() bool
}

type base struct {
	address  Address
	name     string
	location string
	device   string
	kind     Kind
	remote   State
}

func newBase(cfg Config, device string) base {
	return base{
		address:  cfg.Address,
		name:     cfg.Name,
		location: cfg.Location,
		device:   device,
		kind:     cfg.Kind,
	}
}

func (b *base) Address() Address   { return b.address }
func (b *base) Name() string       { return b.name }
func (b *base) Location() string   { return b.location }
func (b *base) DeviceName() string { return b.device }
func (b *base) Kind() Kind         { return b.kind }
func (b *base) State() State       { return b.remote }

func (b *base) SyncRemoteState(s State) bool {
	if b.remote == s {
		return false
	}
	b.remote = s
	return true
}

type outputBase struct {
	base
	requested   State
	ignoreSaved bool
}

func (o *outputBase) IsOutput() bool          { return true }
func (o *outputBase) IsInput() bool           { return false }
func (o *outputBase) RequestedState() State   { return o.requested }
func (o *outputBase) IgnoreSavedState() bool  { return o.ignoreSaved }
func (o *outputBase) ToggleRequest()          { o.requested = o.requested.Toggle() }

func (o *outputBase) SetRequestedState(s State) bool {
	if o.requested == s {
		return false
	}
	o.requested = s
	return true
}

// Output flag bits in CONFIG_DEV.
const (
	outputFlagInverted          = 0x01
	outputFlagIgnoreSavedState  = 0x02
	outputFlagActivateOnPowerUp = 0x04
)

// OutputDecoder drives a single digital pin.
type OutputDecoder struct {
	outputBase
	pin   uint8
	flags uint8
}

func newOutput(cfg Config, device string) (Decoder, error) {
	d := &OutputDecoder{
		outputBase: outputBase{base: newBase(cfg, device), ignoreSaved: cfg.IgnoreSavedState},
		pin:        pinOrNull(cfg.Pin),
	}
	if cfg.Inverted {
		d.flags |= outputFlagInverted
	}
	if cfg.IgnoreSavedState {
		d.flags |= outputFlagIgnoreSavedState
	}
	if cfg.ActivateOnPowerUp {
		d.flags |= outputFlagActivateOnPowerUp
		d.requested = StateActive
	}
	return d, nil
}

// WriteConfig writes kind, flags, pin.
func (d *OutputDecoder) WriteConfig(p *packet.Packet) {
	p.Write8(uint8(d.kind))
	p.Write8(d.flags)
	p.Write8(d.pin)
}

// Sensor flag bits in CONFIG_DEV.
const (
	sensorFlagPullUp   = 0x01
	sensorFlagInverted = 0x02
)

// SensorDecoder reports a digital input with optional debounce delays.
type SensorDecoder struct {
	base
	pin             uint8
	flags           uint8
	activateDelay   time.Duration
	deactivateDelay time.Duration
}

func newSensor(cfg Config, device string) (Decoder, error) {
	d := &SensorDecoder{
		base:            newBase(cfg, device),
		pin:             pinOrNull(cfg.Pin),
		activateDelay:   cfg.ActivateDelay,
		deactivateDelay: cfg.DeactivateDelay,
	}
	if cfg.PullUp {
		d.flags |= sensorFlagPullUp
	}
	if cfg.Inverted {
		d.flags |= sensorFlagInverted
	}
	return d, nil
}

func (d *SensorDecoder) IsOutput() bool { return false }
func (d *SensorDecoder) IsInput() bool  { return true }

// WriteConfig writes kind, flags, pin and the delays in milliseconds.
func (d *SensorDecoder) WriteConfig(p *packet.Packet) {
	p.Write8(uint8(d.kind))
	p.Write8(d.flags)
	p.Write8(d.pin)
	p.Write16(durationMillis(d.activateDelay))
	p.Write16(durationMillis(d.deactivateDelay))
}

// QuadInverter alternates polarity on four pins, typically to drive a
// reversing section.
type QuadInverter struct {
	outputBase
	pins         [4]uint8
	flags        uint8
	flipInterval time.Duration
}

func newQuadInverter(cfg Config, device string) (Decoder, error) {
	d := &QuadInverter{
		outputBase:   outputBase{base: newBase(cfg, device), ignoreSaved: cfg.IgnoreSavedState},
		flipInterval: cfg.FlipInterval,
	}
	copy(d.pins[:], cfg.Pins)
	if d.flipInterval == 0 {
		d.flipInterval = DefaultFlipInterval
	}
	if cfg.IgnoreSavedState {
		d.flags |= outputFlagIgnoreSavedState
	}
	if cfg.ActivateOnPowerUp {
		d.flags |= outputFlagActivateOnPowerUp
		d.requested = StateActive
	}
	return d, nil
}

// WriteConfig writes kind, flags, flip interval and the four pins.
func (d *QuadInverter) WriteConfig(p *packet.Packet) {
	p.Write8(uint8(d.kind))
	p.Write8(d.flags)
	p.Write16(durationMillis(d.flipInterval))
	for _, pin := range d.pins {
		p.Write8(pin)
	}
}

func durationMillis(d time.Duration) uint16 {
	ms := d.Milliseconds()
	if ms > 0xFFFF {
		return 0xFFFF
	}
	return uint16(ms)
}
