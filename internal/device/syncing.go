package device

import (
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

type syncingState struct {
	timer thinker.Handle
}

func (d *Device) enterSyncing(env *Env, now time.Time) {
	d.setStatus(env, StatusSyncing, now)
	d.syncing = &syncingState{}
	d.sendSync(env, now)
}

func (d *Device) sendSync(env *Env, now time.Time) {
	s := d.syncing
	d.send(env, d.newMessage(packet.MsgSync))
	s.timer = env.Timers.Schedule(now.Add(env.Timing.SyncRetry), func(now time.Time) {
		s.timer = 0
		if d.syncing == s {
			d.sendSync(env, now)
		}
	})
}

// onSync applies the device's full state report and goes Online. An output
// whose reported state differs from the pending request adopts the reported
// state as its request.
func (d *Device) onSync(env *Env, p *packet.Packet, now time.Time) error {
	s := d.syncing
	if s == nil {
		return fmt.Errorf("%w: SYNC while %s", ErrProtocol, d.status)
	}

	changed, err := p.ReadStates()
	if err != nil {
		return err
	}
	values, err := p.ReadStates()
	if err != nil {
		return err
	}

	for i, dec := range d.decoders {
		if !changed.Test(i) {
			continue
		}
		st := decoder.FromBool(values.Test(i))
		if dec.SyncRemoteState(st) {
			env.Observer.OnDecoderEvent(decoderEvent(EventStateChanged, dec, now))
		}
		if out, ok := dec.(decoder.Output); ok && out.RequestedState() != st {
			out.ToggleRequest()
			d.requestChanged(env, out, now)
		}
	}

	env.Timers.Cancel(s.timer)
	d.syncing = nil
	d.enterOnline(env, now)
	return nil
}
