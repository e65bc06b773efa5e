package device

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

var (
	epoch      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	benchAddr  = netip.MustParseAddrPort("192.168.1.50:2181")
	otherAddr  = netip.MustParseAddrPort("192.168.1.51:2181")
	testTiming = DefaultTiming()
)

type sentPacket struct {
	to  netip.AddrPort
	hdr packet.Header
	p   *packet.Packet
}

// fakeSender decodes every outbound packet so tests can read payloads.
type fakeSender struct {
	sent []sentPacket
}

func (s *fakeSender) SendTo(addr netip.AddrPort, p *packet.Packet) error {
	in, _ := packet.FromBytes(p.Bytes())
	hdr, err := packet.ParseHeader(in)
	if err != nil {
		panic(err)
	}
	s.sent = append(s.sent, sentPacket{to: addr, hdr: hdr, p: in})
	return nil
}

func (s *fakeSender) count(t packet.MsgType) int {
	n := 0
	for _, sp := range s.sent {
		if sp.hdr.Type == t {
			n++
		}
	}
	return n
}

func (s *fakeSender) ofType(t packet.MsgType) []sentPacket {
	var out []sentPacket
	for _, sp := range s.sent {
		if sp.hdr.Type == t {
			out = append(out, sp)
		}
	}
	return out
}

func (s *fakeSender) reset() { s.sent = nil }

type recordingObserver struct {
	devices  []DeviceEvent
	decoders []DecoderEvent
	tasks    []task.Info
}

func (o *recordingObserver) OnDeviceEvent(ev DeviceEvent)   { o.devices = append(o.devices, ev) }
func (o *recordingObserver) OnDecoderEvent(ev DecoderEvent) { o.decoders = append(o.decoders, ev) }
func (o *recordingObserver) OnTaskChanged(info task.Info)   { o.tasks = append(o.tasks, info) }

func (o *recordingObserver) decoderEvents(t EventType) []DecoderEvent {
	var out []DecoderEvent
	for _, ev := range o.decoders {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// memStore is an in-memory Store.
type memStore struct {
	states map[string]map[string]decoder.State
	cals   map[string]map[string]decoder.Calibration
}

func newMemStore() *memStore {
	return &memStore{
		states: make(map[string]map[string]decoder.State),
		cals:   make(map[string]map[string]decoder.Calibration),
	}
}

func (m *memStore) LoadOutputStates(device string) (map[string]decoder.State, error) {
	return m.states[device], nil
}

func (m *memStore) SaveOutputState(device, name string, st decoder.State) {
	if m.states[device] == nil {
		m.states[device] = make(map[string]decoder.State)
	}
	m.states[device][name] = st
}

func (m *memStore) LoadCalibrations(device string) (map[string]decoder.Calibration, error) {
	return m.cals[device], nil
}

func (m *memStore) SaveCalibration(device, name string, cal decoder.Calibration) {
	if m.cals[device] == nil {
		m.cals[device] = make(map[string]decoder.Calibration)
	}
	m.cals[device][name] = cal
}

// harness drives a registry with a manual clock.
type harness struct {
	t      *testing.T
	reg    *Registry
	timers *thinker.Queue
	sender *fakeSender
	obs    *recordingObserver
	store  *memStore
	now    time.Time
}

func newHarness(t *testing.T, cfgs ...Config) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		timers: thinker.New(),
		sender: &fakeSender{},
		obs:    &recordingObserver{},
		store:  newMemStore(),
		now:    epoch,
	}
	h.reg = NewRegistry(Env{
		Timers:   h.timers,
		Sender:   h.sender,
		Observer: h.obs,
		Store:    h.store,
		Timing:   testTiming,
	})
	for _, cfg := range cfgs {
		if _, err := h.reg.CreateDevice(cfg, true, h.now); err != nil {
			t.Fatalf("CreateDevice(%s) error = %v", cfg.Name, err)
		}
	}
	return h
}

func (h *harness) device(name string) *Device {
	h.t.Helper()
	d, ok := h.reg.Device(name)
	if !ok {
		h.t.Fatalf("device %s not found", name)
	}
	return d
}

// deliver hands a device packet to the registry and runs timers due now,
// the way the broker loop does after each datagram.
func (h *harness) deliver(from netip.AddrPort, p *packet.Packet) error {
	in, _ := packet.FromBytes(p.Bytes())
	err := h.reg.HandlePacket(from, in, h.now)
	h.timers.Fire(h.now)
	return err
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
	h.timers.Fire(h.now)
}

func (h *harness) hello(name string, config uuid.UUID) error {
	return h.deliver(benchAddr, packet.NewHello(uuid.Nil, config, name, packet.ProtocolVersion))
}

// msg builds a packet the device would send inside its session.
func (h *harness) msg(d *Device, t packet.MsgType) *packet.Packet {
	return packet.NewMessage(t, d.SessionToken(), d.sessionConfig)
}

func (h *harness) configAck(d *Device, index uint8) error {
	p := h.msg(d, packet.MsgConfigAck)
	p.Write8(index)
	return h.deliver(benchAddr, p)
}

func (h *harness) syncReply(d *Device, changed, values packet.StateVector) error {
	p := h.msg(d, packet.MsgSync)
	p.WriteStates(changed)
	p.WriteStates(values)
	return h.deliver(benchAddr, p)
}

func (h *harness) state(d *Device, seq uint64, changed, values packet.StateVector) error {
	p := h.msg(d, packet.MsgState)
	p.Write64(seq)
	p.WriteStates(changed)
	p.WriteStates(values)
	return h.deliver(benchAddr, p)
}

// connect runs a full handshake with a device that has no configuration.
func (h *harness) connect(name string) *Device {
	h.t.Helper()
	if err := h.hello(name, uuid.Nil); err != nil {
		h.t.Fatalf("hello: %v", err)
	}
	d := h.device(name)
	for i := range d.decoders {
		if err := h.configAck(d, uint8(i)); err != nil {
			h.t.Fatalf("config ack %d: %v", i, err)
		}
	}
	if err := h.deliver(benchAddr, h.msg(d, packet.MsgConfigFinished)); err != nil {
		h.t.Fatalf("config finished: %v", err)
	}
	if err := h.syncReply(d, 0, 0); err != nil {
		h.t.Fatalf("sync: %v", err)
	}
	if d.Status() != StatusOnline {
		h.t.Fatalf("status = %s, want online", d.Status())
	}
	return d
}

func pin(p uint8) *uint8 { return &p }

func outputCfg(name string, addr decoder.Address, p uint8) decoder.Config {
	return decoder.Config{Name: name, Kind: decoder.KindOutput, Address: addr, Pin: pin(p)}
}

func sensorCfg(name string, addr decoder.Address, p uint8) decoder.Config {
	return decoder.Config{Name: name, Kind: decoder.KindSensor, Address: addr, Pin: pin(p)}
}

// benchConfig has an output at index 0, a sensor at 1 and an output at 2.
func benchConfig() Config {
	return Config{
		Name: "Bench",
		Decoders: []decoder.Config{
			outputCfg("led", 10, 13),
			sensorCfg("button", 11, 2),
			outputCfg("relay", 12, 4),
		},
	}
}

func bits(idx ...int) packet.StateVector {
	var v packet.StateVector
	for _, i := range idx {
		v.Set(i, true)
	}
	return v
}

func readState(t *testing.T, sp sentPacket) (seq uint64, changed, values packet.StateVector) {
	t.Helper()
	var err error
	if seq, err = sp.p.Read64(); err != nil {
		t.Fatalf("reading seq: %v", err)
	}
	if changed, err = sp.p.ReadStates(); err != nil {
		t.Fatalf("reading changed: %v", err)
	}
	if values, err = sp.p.ReadStates(); err != nil {
		t.Fatalf("reading values: %v", err)
	}
	return seq, changed, values
}
