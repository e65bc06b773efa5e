package device

import (
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

// configuringState tracks which CONFIG_DEV packets the device acknowledged.
type configuringState struct {
	acked     []bool
	missing   int
	finishing bool
	timer     thinker.Handle
}

func (d *Device) enterConfiguring(env *Env, now time.Time) {
	d.setStatus(env, StatusConfiguring, now)

	c := &configuringState{
		acked:   make([]bool, len(d.decoders)),
		missing: len(d.decoders),
	}
	d.configuring = c

	d.sendConfigStart(env)
	for i := range d.decoders {
		d.sendConfigDev(env, i)
	}
	if c.missing == 0 {
		c.finishing = true
		d.send(env, d.newMessage(packet.MsgConfigFinished))
	}
	d.armConfigRetry(env, now)
}

func (d *Device) armConfigRetry(env *Env, now time.Time) {
	c := d.configuring
	c.timer = env.Timers.Schedule(now.Add(env.Timing.ConfigRetry), func(now time.Time) {
		c.timer = 0
		d.onConfigRetry(env, now)
	})
}

// sendConfigStart carries the session and config tokens the device must
// echo from now on, plus the decoder count.
func (d *Device) sendConfigStart(env *Env) {
	p := d.newMessage(packet.MsgConfigStart)
	p.Write8(uint8(len(d.decoders)))
	d.send(env, p)
}

func (d *Device) sendConfigDev(env *Env, index int) {
	p := d.newMessage(packet.MsgConfigDev)
	p.Write8(uint8(index))
	d.decoders[index].WriteConfig(p)
	d.send(env, p)
}

// onConfigRetry resends CONFIG_START while index 0 is unacknowledged, at
// most MaxConfigResends missing CONFIG_DEV packets, and CONFIG_FINISHED
// once nothing is missing.
func (d *Device) onConfigRetry(env *Env, now time.Time) {
	c := d.configuring
	if c == nil {
		return
	}

	if len(c.acked) > 0 && !c.acked[0] {
		d.sendConfigStart(env)
	}

	resent := 0
	for i, ok := range c.acked {
		if resent == MaxConfigResends {
			break
		}
		if !ok {
			d.sendConfigDev(env, i)
			resent++
		}
	}

	if c.missing == 0 && c.finishing {
		d.send(env, d.newMessage(packet.MsgConfigFinished))
	}
	d.armConfigRetry(env, now)
}

func (d *Device) onConfigAck(env *Env, p *packet.Packet, now time.Time) error {
	c := d.configuring
	if c == nil {
		return fmt.Errorf("%w: CONFIG_ACK while %s", ErrProtocol, d.status)
	}

	index, err := p.Read8()
	if err != nil {
		return err
	}
	if int(index) >= len(c.acked) {
		d.goOffline(env, now, "config ack out of range")
		return fmt.Errorf("%w: CONFIG_ACK for decoder %d of %d", ErrProtocol, index, len(c.acked))
	}

	if !c.acked[index] {
		c.acked[index] = true
		c.missing--
	}
	if c.missing == 0 && !c.finishing {
		c.finishing = true
		d.send(env, d.newMessage(packet.MsgConfigFinished))
	}
	return nil
}

// onConfigFinished handles the device echoing CONFIG_FINISHED.
func (d *Device) onConfigFinished(env *Env, now time.Time) error {
	c := d.configuring
	if c == nil || !c.finishing {
		return fmt.Errorf("%w: CONFIG_FINISHED while %s", ErrProtocol, d.status)
	}
	env.Timers.Cancel(c.timer)
	d.configuring = nil
	d.enterSyncing(env, now)
	return nil
}
