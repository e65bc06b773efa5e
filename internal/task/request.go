package task

import (
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
)

// opRequest is the single operation of the request/acknowledge kinds.
const opRequest uint8 = 0x01

// RequestTask sends one request and waits for the device to acknowledge it,
// resending every RetryInterval until MaxRetries attempts went unanswered.
// It backs the rename and clear-EEPROM kinds.
type RequestTask struct {
	core
	payload func(p *packet.Packet)
	retries int
}

// NewRename creates a task that stores a new node name on the device.
func NewRename(link Link, observer Observer, name string) (*RequestTask, error) {
	if name == "" || len(name) > 31 {
		return nil, fmt.Errorf("%w: name must be 1-31 bytes", ErrInvalidData)
	}
	t := &RequestTask{
		core:    newCore(KindRename, link, observer),
		payload: func(p *packet.Packet) { p.WriteString(name) },
	}
	t.self = t
	return t, nil
}

// NewClearEEPROM creates a task that wipes the device's persistent storage.
func NewClearEEPROM(link Link, observer Observer) *RequestTask {
	t := &RequestTask{core: newCore(KindClearEEPROM, link, observer)}
	t.self = t
	return t
}

// Start implements Task.
func (t *RequestTask) Start(now time.Time) {
	t.send(now)
}

func (t *RequestTask) send(now time.Time) {
	p := t.request()
	p.Write8(opRequest)
	if t.payload != nil {
		t.payload(p)
	}
	t.link.Send(p)
	t.arm(now.Add(RetryInterval), t.onRetry)
}

func (t *RequestTask) onRetry(now time.Time) {
	t.timer = 0
	t.retries++
	if t.retries >= MaxRetries {
		t.fail(ErrTimeout)
		return
	}
	t.send(now)
}

// HandleData implements Task.
func (t *RequestTask) HandleData(p *packet.Packet, _ time.Time) error {
	if t.done() {
		return nil
	}
	op, err := p.Read8()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	switch op {
	case OpAck:
		t.finish()
	case OpFailure:
		t.fail(readFailure(p))
	default:
		return fmt.Errorf("%w: op %d", ErrInvalidData, op)
	}
	return nil
}

// Info implements Task.
func (t *RequestTask) Info() Info {
	progress := 0.0
	if t.Finished() {
		progress = 1
	}
	return t.info(progress, nil)
}
