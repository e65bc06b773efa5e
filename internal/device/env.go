package device

import (
	"net/netip"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

// Logger defines the logging interface used by the device package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sender transmits one packet as one datagram.
type Sender interface {
	SendTo(addr netip.AddrPort, p *packet.Packet) error
}

// EventType classifies observer events.
type EventType string

// Observer event types.
const (
	EventCreated        EventType = "created"
	EventDestroyed      EventType = "destroyed"
	EventStatusChanged  EventType = "status_changed"
	EventStateChanged   EventType = "state_changed"
	EventRequestChanged EventType = "request_changed"
)

// DeviceEvent reports a device lifecycle or status change.
type DeviceEvent struct {
	Type       EventType `json:"type"`
	Device     string    `json:"device"`
	Status     Status    `json:"status"`
	Remote     string    `json:"remote,omitempty"`
	Registered bool      `json:"registered"`
	Time       time.Time `json:"time"`
}

// DecoderEvent reports a decoder lifecycle or state change.
type DecoderEvent struct {
	Type      EventType       `json:"type"`
	Device    string          `json:"device"`
	Decoder   string          `json:"decoder"`
	Address   decoder.Address `json:"address"`
	Kind      decoder.Kind    `json:"kind"`
	State     decoder.State   `json:"state"`
	Requested decoder.State   `json:"requested"`
	Output    bool            `json:"output"`
	Time      time.Time       `json:"time"`
}

// Observer receives fire-and-forget notifications from the domain
// goroutine. Implementations must not block and must not call back into the
// registry.
type Observer interface {
	task.Observer
	OnDeviceEvent(ev DeviceEvent)
	OnDecoderEvent(ev DecoderEvent)
}

// NoopObserver ignores every notification.
type NoopObserver struct{}

func (NoopObserver) OnDeviceEvent(DeviceEvent)   {}
func (NoopObserver) OnDecoderEvent(DecoderEvent) {}
func (NoopObserver) OnTaskChanged(task.Info)     {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) OnDeviceEvent(ev DeviceEvent) {
	for _, obs := range o {
		obs.OnDeviceEvent(ev)
	}
}

func (o Observers) OnDecoderEvent(ev DecoderEvent) {
	for _, obs := range o {
		obs.OnDecoderEvent(ev)
	}
}

func (o Observers) OnTaskChanged(info task.Info) {
	for _, obs := range o {
		obs.OnTaskChanged(info)
	}
}

// Store persists output requests and servo calibrations across restarts.
// Loads run on the domain goroutine at device creation; saves must not
// block.
type Store interface {
	LoadOutputStates(device string) (map[string]decoder.State, error)
	SaveOutputState(device, decoderName string, state decoder.State)
	LoadCalibrations(device string) (map[string]decoder.Calibration, error)
	task.CalibrationSaver
}

// Env carries the collaborators every session call needs. The registry
// passes it explicitly to device methods; devices never hold a pointer back
// to their registry.
type Env struct {
	Timers   *thinker.Queue
	Sender   Sender
	Observer Observer
	Logger   Logger
	Store    Store
	Timing   Timing

	index sessionIndex
}

// sessionIndex is the registry side of session bookkeeping.
type sessionIndex interface {
	bindSession(d *Device)
	unbindSession(d *Device)
	deviceOffline(d *Device, now time.Time)
}

func (e *Env) normalize() {
	if e.Timers == nil {
		e.Timers = thinker.New()
	}
	if e.Observer == nil {
		e.Observer = NoopObserver{}
	}
	if e.Logger == nil {
		e.Logger = noopLogger{}
	}
	if e.Timing == (Timing{}) {
		e.Timing = DefaultTiming()
	}
}
