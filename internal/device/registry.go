package device

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// Registry owns every device and decoder and routes inbound packets to
// sessions.
//
// It keeps three indexes: devices by name, connected devices by session
// token, and decoders by address. Decoder addresses are unique across the
// registry. Creating a device is transactional: if any decoder fails to
// build or claims a taken address, every address claimed so far is released
// and nothing is registered.
//
// The Registry belongs to the domain goroutine and is not safe for
// concurrent use.
type Registry struct {
	env       Env
	devices   map[string]*Device
	sessions  map[uuid.UUID]*Device
	addresses map[decoder.Address]decoder.Decoder
}

// NewRegistry creates an empty registry. Nil collaborators in env are
// replaced by no-op implementations; Sender is required before any device
// connects.
func NewRegistry(env Env) *Registry {
	env.normalize()
	r := &Registry{
		env:       env,
		devices:   make(map[string]*Device),
		sessions:  make(map[uuid.UUID]*Device),
		addresses: make(map[decoder.Address]decoder.Decoder),
	}
	r.env.index = r
	return r
}

// SetLogger sets the logger for the registry and its sessions.
func (r *Registry) SetLogger(logger Logger) {
	r.env.Logger = logger
}

// SetObserver replaces the observer.
func (r *Registry) SetObserver(o Observer) {
	if o == nil {
		o = NoopObserver{}
	}
	r.env.Observer = o
}

// Timing returns the protocol timing in effect.
func (r *Registry) Timing() Timing {
	return r.env.Timing
}

// CreateDevice builds a device and its decoders and registers them.
//
// Parameters:
//   - cfg: Device configuration
//   - registered: false for temporary devices created from an unknown HELLO
//   - now: Event timestamp
//
// Returns:
//   - *Device: The new device, Offline
//   - error: ErrInvalidDevice, ErrDeviceExists, ErrAddressInUse or a decoder
//     configuration error
func (r *Registry) CreateDevice(cfg Config, registered bool, now time.Time) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, exists := r.devices[cfg.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, cfg.Name)
	}

	decoders := make([]decoder.Decoder, 0, len(cfg.Decoders))
	rollback := func() {
		for _, dec := range decoders {
			delete(r.addresses, dec.Address())
		}
	}
	for _, dc := range cfg.Decoders {
		dec, err := decoder.New(dc, cfg.Name)
		if err != nil {
			rollback()
			return nil, fmt.Errorf("device %s: %w", cfg.Name, err)
		}
		if owner, taken := r.addresses[dec.Address()]; taken {
			rollback()
			return nil, fmt.Errorf("%w: %s wanted by %s/%s, owned by %s/%s", ErrAddressInUse,
				dec.Address(), cfg.Name, dec.Name(), owner.DeviceName(), owner.Name())
		}
		r.addresses[dec.Address()] = dec
		decoders = append(decoders, dec)
	}

	d := newDevice(cfg, registered, decoders)
	r.restore(d)
	d.configToken = ConfigToken(d.decoders)
	r.devices[d.name] = d

	r.env.Logger.Info("device created", "device", d.name, "decoders", len(decoders), "registered", registered)
	r.env.Observer.OnDeviceEvent(d.event(EventCreated, now))
	for _, dec := range decoders {
		r.env.Observer.OnDecoderEvent(decoderEvent(EventCreated, dec, now))
	}
	return d, nil
}

// restore applies persisted output requests and servo calibrations.
func (r *Registry) restore(d *Device) {
	store := r.env.Store
	if store == nil || len(d.decoders) == 0 {
		return
	}

	states, err := store.LoadOutputStates(d.name)
	if err != nil {
		r.env.Logger.Warn("loading saved output states", "device", d.name, "error", err)
	}
	cals, err := store.LoadCalibrations(d.name)
	if err != nil {
		r.env.Logger.Warn("loading servo calibrations", "device", d.name, "error", err)
	}

	for _, dec := range d.decoders {
		if servo, ok := dec.(*decoder.ServoTurnout); ok {
			if cal, ok := cals[servo.Name()]; ok {
				servo.ApplyCalibration(cal)
			}
		}
		if out, ok := dec.(decoder.Output); ok && !out.IgnoreSavedState() {
			if st, ok := states[out.Name()]; ok {
				out.SetRequestedState(st)
			}
		}
	}
}

// DestroyDevice disconnects a device, releases its decoder addresses and
// removes it from every index.
func (r *Registry) DestroyDevice(name string, now time.Time) error {
	d, ok := r.devices[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}

	d.destroying = true
	d.disconnect(&r.env, now, "destroyed")

	for _, dec := range d.decoders {
		delete(r.addresses, dec.Address())
		r.env.Observer.OnDecoderEvent(decoderEvent(EventDestroyed, dec, now))
	}
	delete(r.devices, name)

	r.env.Logger.Info("device destroyed", "device", name)
	r.env.Observer.OnDeviceEvent(d.event(EventDestroyed, now))
	return nil
}

func (r *Registry) bindSession(d *Device) {
	r.sessions[d.sessionToken] = d
}

func (r *Registry) unbindSession(d *Device) {
	if d.sessionToken == uuid.Nil {
		return
	}
	if r.sessions[d.sessionToken] == d {
		delete(r.sessions, d.sessionToken)
	}
}

func (r *Registry) deviceOffline(d *Device, now time.Time) {
	if d.registered || d.destroying {
		return
	}
	if err := r.DestroyDevice(d.name, now); err != nil {
		r.env.Logger.Warn("removing temporary device", "device", d.name, "error", err)
	}
}

// HandlePacket routes a validated datagram. HELLO resolves the device by
// name, creating a temporary one for unknown names; every other message is
// routed by session token.
//
// Returns an error describing why the packet was dropped, or nil.
func (r *Registry) HandlePacket(addr netip.AddrPort, p *packet.Packet, now time.Time) error {
	hdr, err := packet.ParseHeader(p)
	if err != nil {
		return err
	}

	switch hdr.Type {
	case packet.MsgDiscovery:
		return nil
	case packet.MsgHello:
		name, err := p.ReadString()
		if err != nil {
			return err
		}
		version, err := p.Read16()
		if err != nil {
			return err
		}
		if version != packet.ProtocolVersion {
			return fmt.Errorf("%w: %s speaks protocol %d, want %d", ErrProtocol, name, version, packet.ProtocolVersion)
		}
		d, ok := r.devices[name]
		if !ok {
			if d, err = r.CreateDevice(Config{Name: name}, false, now); err != nil {
				return err
			}
		}
		d.handleHello(&r.env, addr, hdr, version, now)
		return nil
	}

	d, ok := r.sessions[hdr.SessionToken]
	if !ok || hdr.SessionToken == uuid.Nil {
		return fmt.Errorf("%w: %s %s from %s", ErrUnknownSession, hdr.Type, hdr.SessionToken, addr)
	}
	return d.handlePacket(&r.env, addr, hdr, p, now)
}

// Device returns the named device.
func (r *Registry) Device(name string) (*Device, bool) {
	d, ok := r.devices[name]
	return d, ok
}

// DeviceBySession returns the device owning a session token.
func (r *Registry) DeviceBySession(token uuid.UUID) (*Device, bool) {
	d, ok := r.sessions[token]
	return d, ok
}

// Decoder returns the decoder with the given address.
func (r *Registry) Decoder(addr decoder.Address) (decoder.Decoder, bool) {
	dec, ok := r.addresses[addr]
	return dec, ok
}

// DecoderByName returns the first decoder with the given name, searching
// devices in name order.
func (r *Registry) DecoderByName(name string) (decoder.Decoder, bool) {
	for _, d := range r.Devices() {
		for _, dec := range d.decoders {
			if dec.Name() == name {
				return dec, true
			}
		}
	}
	return nil, false
}

// Devices returns every device sorted by name.
func (r *Registry) Devices() []*Device {
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Device) int { return strings.Compare(a.name, b.name) })
	return out
}

// Snapshot returns plain-data copies of every device.
func (r *Registry) Snapshot() []Info {
	devices := r.Devices()
	out := make([]Info, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Info())
	}
	return out
}

// SetDecoderState requests a new state for an output decoder.
func (r *Registry) SetDecoderState(addr decoder.Address, st decoder.State, now time.Time) error {
	dec, ok := r.addresses[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDecoderNotFound, addr)
	}
	out, ok := dec.(decoder.Output)
	if !ok {
		return fmt.Errorf("%w: %s (%s)", decoder.ErrNotOutput, dec.Name(), dec.Kind())
	}
	d := r.devices[dec.DeviceName()]
	d.setRequest(&r.env, out, st, now)
	return nil
}

// StartTask starts a task on an Online device.
func (r *Registry) StartTask(name string, req TaskRequest, now time.Time) (task.Info, error) {
	d, ok := r.devices[name]
	if !ok {
		return task.Info{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	t, err := d.startTask(&r.env, req, now)
	if err != nil {
		return task.Info{}, err
	}
	return t.Info(), nil
}

// ServoCommand forwards an operator command to a servo programmer task.
func (r *Registry) ServoCommand(name string, id task.ID, cmd ServoCommand, now time.Time) (task.Info, error) {
	d, ok := r.devices[name]
	if !ok {
		return task.Info{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	return d.servoCommand(id, cmd, now)
}

// AbortTask aborts a running task.
func (r *Registry) AbortTask(name string, id task.ID) error {
	d, ok := r.devices[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	return d.abortTask(id)
}

// Disconnect sends DISCONNECT to a device and drops its session.
func (r *Registry) Disconnect(name string, now time.Time) error {
	d, ok := r.devices[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	d.disconnect(&r.env, now, "requested")
	return nil
}

// DisconnectAll drops every session, used at shutdown.
func (r *Registry) DisconnectAll(now time.Time) {
	for _, d := range r.Devices() {
		d.disconnect(&r.env, now, "shutdown")
	}
}
