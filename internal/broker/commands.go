package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

type opCode uint8

const (
	opSetState opCode = iota
	opSetStateByName
	opStartTask
	opServoCommand
	opAbortTask
	opDisconnect
	opSnapshot
	opDevice
)

var opNames = [...]string{
	opSetState:       "set_state",
	opSetStateByName: "set_state",
	opStartTask:      "start_task",
	opServoCommand:   "servo_command",
	opAbortTask:      "abort_task",
	opDisconnect:     "disconnect",
	opSnapshot:       "snapshot",
	opDevice:         "device",
}

func (o opCode) String() string { return opNames[o] }

// command is a request for the domain goroutine. It carries identifiers,
// never pointers into the registry.
type command struct {
	op      opCode
	device  string
	decoder string
	address decoder.Address
	state   decoder.State
	task    device.TaskRequest
	taskID  task.ID
	servo   device.ServoCommand
	reply   chan result
}

type result struct {
	task     task.Info
	devices  []device.Info
	snapshot device.Info
	err      error
}

// SetDecoderState requests a state for the output decoder at addr.
func (s *Service) SetDecoderState(ctx context.Context, addr decoder.Address, st decoder.State) error {
	res := s.submit(ctx, command{op: opSetState, address: addr, state: st})
	return res.err
}

// SetDecoderStateByName requests a state for the named output decoder of a
// device.
func (s *Service) SetDecoderStateByName(ctx context.Context, deviceName, decoderName string, st decoder.State) error {
	res := s.submit(ctx, command{op: opSetStateByName, device: deviceName, decoder: decoderName, state: st})
	return res.err
}

// StartTask starts a task on an Online device.
func (s *Service) StartTask(ctx context.Context, deviceName string, req device.TaskRequest) (task.Info, error) {
	res := s.submit(ctx, command{op: opStartTask, device: deviceName, task: req})
	return res.task, res.err
}

// ServoCommand forwards an operator command to a running servo programmer.
func (s *Service) ServoCommand(ctx context.Context, deviceName string, id task.ID, cmd device.ServoCommand) (task.Info, error) {
	res := s.submit(ctx, command{op: opServoCommand, device: deviceName, taskID: id, servo: cmd})
	return res.task, res.err
}

// AbortTask aborts a running task.
func (s *Service) AbortTask(ctx context.Context, deviceName string, id task.ID) error {
	res := s.submit(ctx, command{op: opAbortTask, device: deviceName, taskID: id})
	return res.err
}

// DisconnectDevice sends DISCONNECT and drops the device session.
func (s *Service) DisconnectDevice(ctx context.Context, deviceName string) error {
	res := s.submit(ctx, command{op: opDisconnect, device: deviceName})
	return res.err
}

// Snapshot returns plain-data copies of every device.
func (s *Service) Snapshot(ctx context.Context) ([]device.Info, error) {
	res := s.submit(ctx, command{op: opSnapshot})
	return res.devices, res.err
}

// Device returns a plain-data copy of one device.
func (s *Service) Device(ctx context.Context, name string) (device.Info, error) {
	res := s.submit(ctx, command{op: opDevice, device: name})
	return res.snapshot, res.err
}

// submit posts cmd and waits for its result.
func (s *Service) submit(ctx context.Context, cmd command) result {
	cmd.reply = make(chan result, 1)

	select {
	case s.commands <- cmd:
	case <-s.done:
		return result{err: ErrStopped}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}

	select {
	case res := <-cmd.reply:
		return res
	case <-s.done:
		// Run may have answered just before closing done.
		select {
		case res := <-cmd.reply:
			return res
		default:
			return result{err: ErrStopped}
		}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

// execute runs cmd on the domain goroutine and fires the timers it
// scheduled for now.
func (s *Service) execute(cmd command, now time.Time) {
	res := s.apply(cmd, now)
	s.metrics.CommandProcessed(cmd.op.String(), res.err)
	if res.err != nil {
		s.logger.Debug("command failed", "command", cmd.op.String(), "device", cmd.device, "error", res.err)
	}
	cmd.reply <- res
	s.timers.Fire(now)
}

func (s *Service) apply(cmd command, now time.Time) result {
	reg := s.registry

	switch cmd.op {
	case opSetState:
		return result{err: reg.SetDecoderState(cmd.address, cmd.state, now)}

	case opSetStateByName:
		d, ok := reg.Device(cmd.device)
		if !ok {
			return result{err: fmt.Errorf("%w: %s", device.ErrDeviceNotFound, cmd.device)}
		}
		i, ok := d.DecoderIndex(cmd.decoder)
		if !ok {
			return result{err: fmt.Errorf("%w: %s/%s", device.ErrDecoderNotFound, cmd.device, cmd.decoder)}
		}
		return result{err: reg.SetDecoderState(d.Decoders()[i].Address(), cmd.state, now)}

	case opStartTask:
		info, err := reg.StartTask(cmd.device, cmd.task, now)
		return result{task: info, err: err}

	case opServoCommand:
		info, err := reg.ServoCommand(cmd.device, cmd.taskID, cmd.servo, now)
		return result{task: info, err: err}

	case opAbortTask:
		return result{err: reg.AbortTask(cmd.device, cmd.taskID)}

	case opDisconnect:
		return result{err: reg.Disconnect(cmd.device, now)}

	case opSnapshot:
		return result{devices: reg.Snapshot()}

	case opDevice:
		d, ok := reg.Device(cmd.device)
		if !ok {
			return result{err: fmt.Errorf("%w: %s", device.ErrDeviceNotFound, cmd.device)}
		}
		return result{snapshot: d.Info()}
	}
	return result{err: fmt.Errorf("unknown command %d", cmd.op)}
}
