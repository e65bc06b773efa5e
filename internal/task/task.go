package task

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

// Retry policy shared by the request/acknowledge tasks.
const (
	RetryInterval = 100 * time.Millisecond
	MaxRetries    = 10
)

// Operation codes common to every kind.
const (
	// OpAck is sent by the device to acknowledge a request.
	OpAck uint8 = 0x00

	// OpFailure is sent by the device when it cannot complete a task.
	OpFailure uint8 = 0xFF
)

// Kind identifies a task type on the wire.
type Kind uint8

// Task kinds.
const (
	KindDownloadEEPROM Kind = iota
	KindServoProgrammer
	KindRename
	KindClearEEPROM
	KindNetworkTest
)

var kindNames = [...]string{
	KindDownloadEEPROM:  "download_eeprom",
	KindServoProgrammer: "servo_programmer",
	KindRename:          "rename",
	KindClearEEPROM:     "clear_eeprom",
	KindNetworkTest:     "network_test",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("task_kind(%d)", uint8(k))
}

// ParseKind parses a kind name such as "network_test".
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ID identifies a task process-wide.
type ID uint32

var lastID atomic.Uint32

// NextID allocates a task ID. IDs are unique for the life of the process
// until the counter wraps.
func NextID() ID {
	for {
		if id := ID(lastID.Add(1)); id != 0 {
			return id
		}
	}
}

// Status is the lifecycle position of a task.
type Status uint8

// Task statuses.
const (
	StatusRunning Status = iota
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	default:
		return "running"
	}
}

// Info is a plain-data snapshot of a task, safe to hand to other
// goroutines.
type Info struct {
	ID       ID      `json:"id"`
	Kind     string  `json:"kind"`
	Device   string  `json:"device"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
	Result   any     `json:"result,omitempty"`
}

// Link is the task's view of its device session.
type Link interface {
	// DeviceName names the owning device.
	DeviceName() string

	// NewRequest starts a TASK_REQUEST packet with the task kind and ID
	// already written.
	NewRequest(kind Kind, id ID) *packet.Packet

	// Send transmits a packet to the device.
	Send(p *packet.Packet)

	// Schedule and Cancel reach the shared timer queue.
	Schedule(at time.Time, fn thinker.Func) thinker.Handle
	Cancel(h thinker.Handle)

	// TaskDone tells the session to forget a task that reached a terminal
	// state.
	TaskDone(t Task)
}

// Observer receives task status changes. Implementations must not block.
type Observer interface {
	OnTaskChanged(info Info)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(info Info)

// OnTaskChanged calls f.
func (f ObserverFunc) OnTaskChanged(info Info) { f(info) }

type noopObserver struct{}

func (noopObserver) OnTaskChanged(Info) {}

// Task is a running conversation with a device.
type Task interface {
	ID() ID
	Kind() Kind

	// Start sends the first request and arms the retry timer.
	Start(now time.Time)

	// HandleData consumes a TASK_DATA packet whose read cursor sits after
	// the task ID.
	HandleData(p *packet.Packet, now time.Time) error

	// Abort cancels pending timers, marks the task failed with ErrAborted
	// and notifies the observer. Aborting a terminal task is a no-op.
	Abort()

	Finished() bool
	Failed() bool
	Err() error
	Info() Info
}

// core carries the bookkeeping shared by every kind. Concrete tasks embed it
// and set self so terminal transitions can report the outer value.
type core struct {
	id       ID
	kind     Kind
	link     Link
	observer Observer
	self     Task

	status Status
	err    error
	timer  thinker.Handle
}

func newCore(kind Kind, link Link, observer Observer) core {
	if observer == nil {
		observer = noopObserver{}
	}
	return core{id: NextID(), kind: kind, link: link, observer: observer}
}

func (c *core) ID() ID         { return c.id }
func (c *core) Kind() Kind     { return c.kind }
func (c *core) Finished() bool { return c.status == StatusFinished }
func (c *core) Failed() bool   { return c.status == StatusFailed }
func (c *core) Err() error     { return c.err }
func (c *core) done() bool     { return c.status != StatusRunning }

func (c *core) info(progress float64, result any) Info {
	i := Info{
		ID:       c.id,
		Kind:     c.kind.String(),
		Device:   c.link.DeviceName(),
		Status:   c.status.String(),
		Progress: progress,
		Result:   result,
	}
	if c.err != nil {
		i.Error = c.err.Error()
	}
	return i
}

func (c *core) request() *packet.Packet {
	return c.link.NewRequest(c.kind, c.id)
}

func (c *core) arm(at time.Time, fn thinker.Func) {
	c.disarm()
	c.timer = c.link.Schedule(at, fn)
}

func (c *core) disarm() {
	if c.timer != 0 {
		c.link.Cancel(c.timer)
		c.timer = 0
	}
}

func (c *core) notify() {
	c.observer.OnTaskChanged(c.self.Info())
}

func (c *core) finish() {
	if c.done() {
		return
	}
	c.disarm()
	c.status = StatusFinished
	c.notify()
	c.link.TaskDone(c.self)
}

func (c *core) fail(err error) {
	if c.done() {
		return
	}
	c.disarm()
	c.status = StatusFailed
	c.err = err
	c.notify()
	c.link.TaskDone(c.self)
}

// Abort implements Task.
func (c *core) Abort() {
	c.fail(ErrAborted)
}

func readFailure(p *packet.Packet) error {
	reason, err := p.Read8()
	if err != nil {
		return ErrDeviceFailure
	}
	return fmt.Errorf("%w: code %d", ErrDeviceFailure, reason)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
