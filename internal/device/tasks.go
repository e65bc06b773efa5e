package device

import (
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

// taskLink binds a task to its device and the Env of the call that started
// it.
type taskLink struct {
	d   *Device
	env *Env
}

func (l taskLink) DeviceName() string { return l.d.name }

func (l taskLink) NewRequest(kind task.Kind, id task.ID) *packet.Packet {
	p := l.d.newMessage(packet.MsgTaskRequest)
	p.Write8(uint8(kind))
	p.Write32(uint32(id))
	return p
}

func (l taskLink) Send(p *packet.Packet) { l.d.send(l.env, p) }

func (l taskLink) Schedule(at time.Time, fn thinker.Func) thinker.Handle {
	return l.env.Timers.Schedule(at, fn)
}

func (l taskLink) Cancel(h thinker.Handle) { l.env.Timers.Cancel(h) }

func (l taskLink) TaskDone(t task.Task) { delete(l.d.tasks, t.ID()) }

// calibrationSaver refreshes the config token when a servo calibration is
// deployed so the next HELLO reconfigures the device, then persists it.
type calibrationSaver struct {
	d   *Device
	env *Env
}

func (s calibrationSaver) SaveCalibration(device, decoderName string, cal decoder.Calibration) {
	s.d.configToken = ConfigToken(s.d.decoders)
	if s.env.Store != nil {
		s.env.Store.SaveCalibration(device, decoderName, cal)
	}
}

func (d *Device) startTask(env *Env, req TaskRequest, now time.Time) (task.Task, error) {
	if d.status != StatusOnline {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotOnline, d.name, d.status)
	}

	link := taskLink{d: d, env: env}
	var t task.Task
	switch req.Kind {
	case task.KindDownloadEEPROM:
		t = task.NewDownloadEEPROM(link, env.Observer)
	case task.KindClearEEPROM:
		t = task.NewClearEEPROM(link, env.Observer)
	case task.KindRename:
		rt, err := task.NewRename(link, env.Observer, req.NewName)
		if err != nil {
			return nil, err
		}
		t = rt
	case task.KindNetworkTest:
		t = task.NewNetworkTest(link, env.Observer, req.Interval, req.Duration)
	case task.KindServoProgrammer:
		index, ok := d.DecoderIndex(req.Decoder)
		if !ok {
			return nil, fmt.Errorf("%w: %q on %s", ErrDecoderNotFound, req.Decoder, d.name)
		}
		servo, ok := d.decoders[index].(*decoder.ServoTurnout)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a servo turnout", task.ErrInvalidData, req.Decoder)
		}
		t = task.NewServoProgrammer(link, env.Observer, servo, uint8(index), calibrationSaver{d: d, env: env})
	default:
		return nil, fmt.Errorf("%w: %d", task.ErrUnknownKind, req.Kind)
	}

	d.tasks[t.ID()] = t
	env.Logger.Info("task started", "device", d.name, "task", t.ID(), "kind", t.Kind().String())
	t.Start(now)
	return t, nil
}

func (d *Device) onTaskData(env *Env, p *packet.Packet, now time.Time) error {
	kind, err := p.Read8()
	if err != nil {
		return err
	}
	id, err := p.Read32()
	if err != nil {
		return err
	}
	t, ok := d.tasks[task.ID(id)]
	if !ok {
		return fmt.Errorf("%w: %d on %s", ErrTaskNotFound, id, d.name)
	}
	if t.Kind() != task.Kind(kind) {
		return fmt.Errorf("%w: task %d is %s, data for %s", ErrProtocol, id, t.Kind(), task.Kind(kind))
	}
	return t.HandleData(p, now)
}

func (d *Device) servoCommand(id task.ID, cmd ServoCommand, now time.Time) (task.Info, error) {
	t, ok := d.tasks[id]
	if !ok {
		return task.Info{}, fmt.Errorf("%w: %d on %s", ErrTaskNotFound, id, d.name)
	}
	sp, ok := t.(*task.ServoProgrammer)
	if !ok {
		return task.Info{}, fmt.Errorf("%w: task %d is %s", task.ErrInvalidState, id, t.Kind())
	}

	var err error
	switch cmd.Op {
	case ServoMove:
		err = sp.Move(cmd.Position, now)
	case ServoDeploy:
		err = sp.Deploy(cmd.Calibration, now)
	case ServoStop:
		err = sp.Stop(now)
	default:
		err = fmt.Errorf("%w: servo op %q", task.ErrInvalidData, cmd.Op)
	}
	return sp.Info(), err
}

func (d *Device) abortTask(id task.ID) error {
	t, ok := d.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %d on %s", ErrTaskNotFound, id, d.name)
	}
	t.Abort()
	return nil
}
