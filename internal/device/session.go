package device

import (
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

// Device is one DCCLite node and its protocol session.
//
// The session moves Offline -> Configuring -> Syncing -> Online and drops
// back to Offline on timeout, disconnect or desync. Exactly one of the
// per-state structs is non-nil while connected; each owns the timers it
// armed and transitions cancel them before switching.
//
// A Device is owned by the broker's domain goroutine and is not safe for
// concurrent use. Every method that may send or schedule takes the Env
// explicitly.
type Device struct {
	name       string
	location   string
	registered bool
	destroying bool

	decoders    []decoder.Decoder
	configToken uuid.UUID

	status        Status
	sessionToken  uuid.UUID
	sessionConfig uuid.UUID
	remote        netip.AddrPort
	version       uint16
	lastSeen      time.Time
	watchdog      thinker.Handle

	configuring *configuringState
	syncing     *syncingState
	online      *onlineState

	tasks map[task.ID]task.Task
}

func newDevice(cfg Config, registered bool, decoders []decoder.Decoder) *Device {
	return &Device{
		name:       cfg.Name,
		location:   cfg.Location,
		registered: registered,
		decoders:   decoders,
		tasks:      make(map[task.ID]task.Task),
	}
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Location returns the configured location hint.
func (d *Device) Location() string { return d.location }

// Registered reports whether the device comes from static configuration.
// Devices created by a HELLO from an unknown name are temporary.
func (d *Device) Registered() bool { return d.registered }

// Status returns the session state.
func (d *Device) Status() Status { return d.status }

// SessionToken returns the current session token, or uuid.Nil when
// Offline.
func (d *Device) SessionToken() uuid.UUID { return d.sessionToken }

// ConfigToken returns the hash of the current decoder configuration.
func (d *Device) ConfigToken() uuid.UUID { return d.configToken }

// Remote returns the last known device address.
func (d *Device) Remote() netip.AddrPort { return d.remote }

// Decoders returns the decoders in wire index order.
func (d *Device) Decoders() []decoder.Decoder {
	return slices.Clone(d.decoders)
}

// DecoderIndex returns the wire index of the named decoder.
func (d *Device) DecoderIndex(name string) (int, bool) {
	for i, dec := range d.decoders {
		if dec.Name() == name {
			return i, true
		}
	}
	return 0, false
}

func (d *Device) newMessage(t packet.MsgType) *packet.Packet {
	return packet.NewMessage(t, d.sessionToken, d.sessionConfig)
}

func (d *Device) send(env *Env, p *packet.Packet) {
	if err := p.Err(); err != nil {
		env.Logger.Error("dropping oversized packet", "device", d.name, "error", err)
		return
	}
	if err := env.Sender.SendTo(d.remote, p); err != nil {
		env.Logger.Warn("send failed", "device", d.name, "remote", d.remote.String(), "error", err)
	}
}

func (d *Device) setStatus(env *Env, s Status, now time.Time) {
	if d.status == s {
		return
	}
	env.Logger.Debug("device status", "device", d.name, "from", d.status.String(), "to", s.String())
	d.status = s
	env.Observer.OnDeviceEvent(d.event(EventStatusChanged, now))
}

func (d *Device) event(t EventType, now time.Time) DeviceEvent {
	ev := DeviceEvent{
		Type:       t,
		Device:     d.name,
		Status:     d.status,
		Registered: d.registered,
		Time:       now,
	}
	if d.remote.IsValid() {
		ev.Remote = d.remote.String()
	}
	return ev
}

func decoderEvent(t EventType, dec decoder.Decoder, now time.Time) DecoderEvent {
	ev := DecoderEvent{
		Type:    t,
		Device:  dec.DeviceName(),
		Decoder: dec.Name(),
		Address: dec.Address(),
		Kind:    dec.Kind(),
		State:   dec.State(),
		Output:  dec.IsOutput(),
		Time:    now,
	}
	if out, ok := dec.(decoder.Output); ok {
		ev.Requested = out.RequestedState()
	}
	return ev
}

// handleHello starts a new session. Any session in progress is discarded
// first, which aborts its tasks.
func (d *Device) handleHello(env *Env, addr netip.AddrPort, hdr packet.Header, version uint16, now time.Time) {
	if d.status != StatusOffline {
		env.Logger.Info("device reconnecting", "device", d.name, "status", d.status.String())
		d.resetSession(env)
	}

	d.sessionToken = uuid.New()
	d.sessionConfig = d.configToken
	d.remote = addr
	d.version = version
	d.lastSeen = now
	env.index.bindSession(d)
	d.armWatchdog(env, now)

	env.Logger.Info("device connected", "device", d.name, "remote", addr.String(),
		"config_match", hdr.ConfigToken == d.configToken)

	if hdr.ConfigToken == d.configToken {
		d.send(env, d.newMessage(packet.MsgAccepted))
		d.enterSyncing(env, now)
		return
	}
	d.enterConfiguring(env, now)
}

// handlePacket processes a packet already routed by session token.
func (d *Device) handlePacket(env *Env, addr netip.AddrPort, hdr packet.Header, p *packet.Packet, now time.Time) error {
	if hdr.ConfigToken != d.sessionConfig {
		return fmt.Errorf("%w: %s from %s", ErrConfigToken, hdr.Type, d.name)
	}

	if addr != d.remote {
		env.Logger.Info("device address changed", "device", d.name, "from", d.remote.String(), "to", addr.String())
		d.remote = addr
	}
	d.lastSeen = now

	switch hdr.Type {
	case packet.MsgConfigAck:
		return d.onConfigAck(env, p, now)
	case packet.MsgConfigFinished:
		return d.onConfigFinished(env, now)
	case packet.MsgSync:
		return d.onSync(env, p, now)
	case packet.MsgState:
		return d.onState(env, p, now)
	case packet.MsgTaskData:
		return d.onTaskData(env, p, now)
	case packet.MsgPing:
		d.send(env, d.newMessage(packet.MsgPong))
	case packet.MsgPong:
	case packet.MsgDisconnect:
		d.goOffline(env, now, "remote disconnect")
	default:
		return fmt.Errorf("%w: unexpected %s from %s", ErrProtocol, hdr.Type, d.name)
	}
	return nil
}

// disconnect sends DISCONNECT best-effort and drops the session.
func (d *Device) disconnect(env *Env, now time.Time, reason string) {
	if d.status == StatusOffline {
		return
	}
	d.send(env, d.newMessage(packet.MsgDisconnect))
	d.goOffline(env, now, reason)
}

func (d *Device) goOffline(env *Env, now time.Time, reason string) {
	if d.status == StatusOffline {
		return
	}
	env.Logger.Info("device offline", "device", d.name, "reason", reason)
	d.resetSession(env)
	d.setStatus(env, StatusOffline, now)
	env.index.deviceOffline(d, now)
}

// resetSession cancels every timer, aborts tasks and releases the session
// token without changing the reported status.
func (d *Device) resetSession(env *Env) {
	if d.watchdog != 0 {
		env.Timers.Cancel(d.watchdog)
		d.watchdog = 0
	}
	if c := d.configuring; c != nil {
		env.Timers.Cancel(c.timer)
		d.configuring = nil
	}
	if s := d.syncing; s != nil {
		env.Timers.Cancel(s.timer)
		d.syncing = nil
	}
	if o := d.online; o != nil {
		env.Timers.Cancel(o.tick)
		env.Timers.Cancel(o.flush)
		d.online = nil
	}

	ids := make([]task.ID, 0, len(d.tasks))
	for id := range d.tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if t, ok := d.tasks[id]; ok {
			t.Abort()
		}
	}
	clear(d.tasks)

	env.index.unbindSession(d)
	d.sessionToken = uuid.Nil
	d.sessionConfig = uuid.Nil
}

func (d *Device) armWatchdog(env *Env, now time.Time) {
	if d.watchdog != 0 {
		env.Timers.Cancel(d.watchdog)
	}
	next := now.Add(env.Timing.PingInterval)
	if deadline := d.lastSeen.Add(env.Timing.Timeout); deadline.Before(next) {
		next = deadline
	}
	d.watchdog = env.Timers.Schedule(next, func(now time.Time) {
		d.watchdog = 0
		d.onWatchdog(env, now)
	})
}

func (d *Device) onWatchdog(env *Env, now time.Time) {
	idle := now.Sub(d.lastSeen)
	if idle >= env.Timing.Timeout {
		d.goOffline(env, now, "timeout")
		return
	}
	if idle >= env.Timing.PingInterval && d.status == StatusOnline {
		d.send(env, d.newMessage(packet.MsgPing))
	}
	d.armWatchdog(env, now)
}

// Info returns a snapshot of the device.
func (d *Device) Info() Info {
	info := Info{
		Name:            d.name,
		Location:        d.location,
		Registered:      d.registered,
		Status:          d.status,
		ConfigToken:     d.configToken.String(),
		ProtocolVersion: d.version,
		LastSeen:        d.lastSeen,
		Decoders:        make([]DecoderInfo, 0, len(d.decoders)),
	}
	if d.remote.IsValid() {
		info.Remote = d.remote.String()
	}
	if d.sessionToken != uuid.Nil {
		info.SessionToken = d.sessionToken.String()
	}
	for i, dec := range d.decoders {
		di := DecoderInfo{
			Index:    i,
			Name:     dec.Name(),
			Address:  dec.Address(),
			Kind:     dec.Kind(),
			Location: dec.Location(),
			Output:   dec.IsOutput(),
			State:    dec.State(),
		}
		if out, ok := dec.(decoder.Output); ok {
			req := out.RequestedState()
			di.Requested = &req
		}
		info.Decoders = append(info.Decoders, di)
	}
	ids := make([]task.ID, 0, len(d.tasks))
	for id := range d.tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		info.Tasks = append(info.Tasks, d.tasks[id].Info())
	}
	return info
}
