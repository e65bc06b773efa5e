package task

import (
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
)

// Servo programmer operations, broker to device. The device acknowledges
// each with OpAck followed by the echoed operation.
const (
	servoOpStart  uint8 = 0x01
	servoOpMove   uint8 = 0x02
	servoOpDeploy uint8 = 0x03
	servoOpStop   uint8 = 0x04
)

// ServoState is the servo programmer's position in its conversation.
type ServoState uint8

// Servo programmer states.
const (
	ServoStarting ServoState = iota
	ServoRunning
	ServoDeploying
	ServoStopping
)

func (s ServoState) String() string {
	switch s {
	case ServoStarting:
		return "starting"
	case ServoRunning:
		return "running"
	case ServoDeploying:
		return "deploying"
	default:
		return "stopping"
	}
}

// CalibrationSaver persists a deployed servo calibration.
type CalibrationSaver interface {
	SaveCalibration(device, decoderName string, cal decoder.Calibration)
}

// ServoProgrammer lets an operator move a servo turnout live and then either
// deploy the calibrated travel or stop without changes.
//
// Every request is resent until acknowledged. A run of MaxRetries
// unanswered resends fails the task.
type ServoProgrammer struct {
	core

	servo *decoder.ServoTurnout
	index uint8
	saver CalibrationSaver

	state    ServoState
	pending  *packet.Packet
	awaiting uint8
	retries  int

	position uint8
	deploy   decoder.Calibration
}

// NewServoProgrammer creates a programmer for the servo at decoder index
// index on the link's device. saver may be nil.
func NewServoProgrammer(link Link, observer Observer, servo *decoder.ServoTurnout, index uint8, saver CalibrationSaver) *ServoProgrammer {
	t := &ServoProgrammer{
		core:     newCore(KindServoProgrammer, link, observer),
		servo:    servo,
		index:    index,
		saver:    saver,
		position: servo.Calibration().StartPos,
	}
	t.self = t
	return t
}

// State returns the programmer state.
func (t *ServoProgrammer) State() ServoState {
	return t.state
}

// Start implements Task.
func (t *ServoProgrammer) Start(now time.Time) {
	p := t.request()
	p.Write8(servoOpStart)
	p.Write8(t.index)
	t.transmit(servoOpStart, p, now)
}

func (t *ServoProgrammer) transmit(op uint8, p *packet.Packet, now time.Time) {
	t.pending = p
	t.awaiting = op
	t.retries = 0
	t.link.Send(p)
	t.arm(now.Add(RetryInterval), t.onRetry)
}

func (t *ServoProgrammer) onRetry(now time.Time) {
	t.timer = 0
	if t.pending == nil {
		return
	}
	t.retries++
	if t.retries >= MaxRetries {
		t.fail(ErrTimeout)
		return
	}
	t.link.Send(t.pending)
	t.arm(now.Add(RetryInterval), t.onRetry)
}

// Move asks the device to place the servo at position. Only valid while
// Running; a newer move replaces an unacknowledged one.
func (t *ServoProgrammer) Move(position uint8, now time.Time) error {
	if t.done() || t.state != ServoRunning {
		return fmt.Errorf("%w: move while %s", ErrInvalidState, t.state)
	}
	t.position = position
	p := t.request()
	p.Write8(servoOpMove)
	p.Write8(position)
	t.transmit(servoOpMove, p, now)
	return nil
}

// Deploy sends the final calibration. Once acknowledged it is applied to
// the decoder, persisted and the task finishes.
func (t *ServoProgrammer) Deploy(cal decoder.Calibration, now time.Time) error {
	if t.done() || t.state != ServoRunning {
		return fmt.Errorf("%w: deploy while %s", ErrInvalidState, t.state)
	}
	if cal.StartPos > cal.EndPos {
		return fmt.Errorf("%w: start position %d beyond end %d", ErrInvalidData, cal.StartPos, cal.EndPos)
	}
	t.deploy = cal
	t.state = ServoDeploying
	p := t.request()
	p.Write8(servoOpDeploy)
	p.Write8(cal.Flags)
	p.Write8(cal.StartPos)
	p.Write8(cal.EndPos)
	p.Write16(uint16(max(0, min(cal.OperationTime.Milliseconds(), 0xFFFF))))
	t.transmit(servoOpDeploy, p, now)
	t.notify()
	return nil
}

// Stop ends programming without changing the decoder.
func (t *ServoProgrammer) Stop(now time.Time) error {
	if t.done() || t.state == ServoStopping || t.state == ServoDeploying {
		return fmt.Errorf("%w: stop while %s", ErrInvalidState, t.state)
	}
	t.state = ServoStopping
	p := t.request()
	p.Write8(servoOpStop)
	t.transmit(servoOpStop, p, now)
	t.notify()
	return nil
}

// HandleData implements Task.
func (t *ServoProgrammer) HandleData(p *packet.Packet, _ time.Time) error {
	if t.done() {
		return nil
	}
	op, err := p.Read8()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if op == OpFailure {
		t.fail(readFailure(p))
		return nil
	}
	if op != OpAck {
		return fmt.Errorf("%w: op %d", ErrInvalidData, op)
	}

	acked, err := p.Read8()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if t.pending == nil || acked != t.awaiting {
		// Late ack for a request already superseded.
		return nil
	}
	t.pending = nil
	t.disarm()

	switch acked {
	case servoOpStart:
		t.state = ServoRunning
		t.notify()
	case servoOpDeploy:
		t.servo.ApplyCalibration(t.deploy)
		if t.saver != nil {
			t.saver.SaveCalibration(t.link.DeviceName(), t.servo.Name(), t.deploy)
		}
		t.finish()
	case servoOpStop:
		t.finish()
	}
	return nil
}

// Info implements Task.
func (t *ServoProgrammer) Info() Info {
	progress := 0.0
	if t.Finished() {
		progress = 1
	}
	return t.info(progress, map[string]any{
		"state":    t.state.String(),
		"decoder":  t.servo.Name(),
		"position": t.position,
	})
}
