package device

import (
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

// onlineState holds the steady-state sequencing and dedup bookkeeping.
type onlineState struct {
	outSeq    uint64
	lastInSeq uint64

	sent        bool
	lastChanged packet.StateVector
	lastValues  packet.StateVector
	lastSent    time.Time

	// refresh asks the next transmission to include every sensor bit.
	refresh bool

	tick       thinker.Handle
	flush      thinker.Handle
	flushForce bool
}

func (d *Device) enterOnline(env *Env, now time.Time) {
	d.setStatus(env, StatusOnline, now)
	o := &onlineState{}
	d.online = o
	d.scheduleTick(env, o, now)
}

func (d *Device) scheduleTick(env *Env, o *onlineState, at time.Time) {
	o.tick = env.Timers.Schedule(at, func(now time.Time) {
		o.tick = 0
		if d.online != o {
			return
		}
		d.flushState(env, now, false)
		d.scheduleTick(env, o, now.Add(env.Timing.StateTick))
	})
}

// scheduleFlush evaluates outbound state on the current domain tick instead
// of waiting for the next state tick. A forced flush bypasses dedup.
func (d *Device) scheduleFlush(env *Env, now time.Time, force bool) {
	o := d.online
	if o == nil {
		return
	}
	o.flushForce = o.flushForce || force
	if o.flush != 0 {
		return
	}
	o.flush = env.Timers.Schedule(now, func(now time.Time) {
		o.flush = 0
		if d.online != o {
			return
		}
		force := o.flushForce
		o.flushForce = false
		d.flushState(env, now, force)
	})
}

// outboundState collects outputs whose request differs from the reported
// state, plus every sensor when a refresh is pending.
func (d *Device) outboundState(refresh bool) (changed, values packet.StateVector) {
	for i, dec := range d.decoders {
		if out, ok := dec.(decoder.Output); ok {
			if req := out.RequestedState(); req != dec.State() {
				changed.Set(i, true)
				values.Set(i, req == decoder.StateActive)
			}
			continue
		}
		if refresh && dec.IsInput() {
			changed.Set(i, true)
			values.Set(i, dec.State() == decoder.StateActive)
		}
	}
	return changed, values
}

// flushState sends a STATE packet when there is something to say and it is
// either new or the minimum resend interval elapsed.
func (d *Device) flushState(env *Env, now time.Time, force bool) {
	o := d.online
	changed, values := d.outboundState(o.refresh)
	if !changed.Any() {
		o.refresh = false
		return
	}

	duplicate := o.sent && changed == o.lastChanged && values == o.lastValues
	if !force && duplicate && now.Sub(o.lastSent) < env.Timing.StateMinInterval {
		return
	}

	o.outSeq++
	p := d.newMessage(packet.MsgState)
	p.Write64(o.outSeq)
	p.WriteStates(changed)
	p.WriteStates(values)
	d.send(env, p)

	o.sent = true
	o.lastChanged = changed
	o.lastValues = values
	o.lastSent = now
	o.refresh = false
}

// onState applies a device STATE report. Reports not newer than the last
// accepted sequence are dropped. A changed sensor bit triggers an immediate
// refresh, which is how the device learns its report arrived.
func (d *Device) onState(env *Env, p *packet.Packet, now time.Time) error {
	o := d.online
	if o == nil {
		env.Logger.Debug("ignoring STATE outside online", "device", d.name, "status", d.status.String())
		return nil
	}

	seq, err := p.Read64()
	if err != nil {
		return err
	}
	changed, err := p.ReadStates()
	if err != nil {
		return err
	}
	values, err := p.ReadStates()
	if err != nil {
		return err
	}

	if seq <= o.lastInSeq {
		return fmt.Errorf("%w: %d <= %d from %s", ErrStaleState, seq, o.lastInSeq, d.name)
	}
	o.lastInSeq = seq

	sensorChanged := false
	for i, dec := range d.decoders {
		if !changed.Test(i) {
			continue
		}
		if dec.SyncRemoteState(decoder.FromBool(values.Test(i))) {
			env.Observer.OnDecoderEvent(decoderEvent(EventStateChanged, dec, now))
		}
		if dec.IsInput() {
			sensorChanged = true
		}
	}

	if sensorChanged {
		o.refresh = true
		d.scheduleFlush(env, now, true)
	}
	return nil
}

// setRequest records a new requested state for an output and schedules its
// transmission when Online.
func (d *Device) setRequest(env *Env, out decoder.Output, st decoder.State, now time.Time) {
	if !out.SetRequestedState(st) {
		return
	}
	d.requestChanged(env, out, now)
	d.scheduleFlush(env, now, false)
}

func (d *Device) requestChanged(env *Env, out decoder.Output, now time.Time) {
	env.Observer.OnDecoderEvent(decoderEvent(EventRequestChanged, out, now))
	if env.Store != nil {
		env.Store.SaveOutputState(d.name, out.Name(), out.RequestedState())
	}
}
