package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeLink records sent requests and drives a real timer queue.
type fakeLink struct {
	queue *thinker.Queue
	sent  []*packet.Packet
	done  []Task
	now   time.Time
}

func newFakeLink() *fakeLink {
	return &fakeLink{queue: thinker.New(), now: epoch}
}

func (l *fakeLink) DeviceName() string { return "Bench" }

func (l *fakeLink) NewRequest(kind Kind, id ID) *packet.Packet {
	p := packet.NewMessage(packet.MsgTaskRequest, uuid.Nil, uuid.Nil)
	p.Write8(uint8(kind))
	p.Write32(uint32(id))
	return p
}

func (l *fakeLink) Send(p *packet.Packet) { l.sent = append(l.sent, p) }

func (l *fakeLink) Schedule(at time.Time, fn thinker.Func) thinker.Handle {
	return l.queue.Schedule(at, fn)
}

func (l *fakeLink) Cancel(h thinker.Handle) { l.queue.Cancel(h) }

func (l *fakeLink) TaskDone(t Task) { l.done = append(l.done, t) }

// advance moves the clock forward and fires due timers.
func (l *fakeLink) advance(d time.Duration) {
	l.now = l.now.Add(d)
	l.queue.Fire(l.now)
}

// sentOp decodes the operation byte and payload reader of sent request i.
func (l *fakeLink) sentOp(i int) (uint8, *packet.Packet) {
	p, _ := packet.FromBytes(l.sent[i].Bytes())
	if _, err := packet.ParseHeader(p); err != nil {
		panic(err)
	}
	_, _ = p.Read8()
	_, _ = p.Read32()
	op, _ := p.Read8()
	return op, p
}

// data builds a TASK_DATA payload positioned after the task ID.
func data(fields ...any) *packet.Packet {
	p := packet.New()
	for _, f := range fields {
		switch v := f.(type) {
		case uint8:
			p.Write8(v)
		case uint16:
			p.Write16(v)
		case uint32:
			p.Write32(v)
		case []byte:
			p.WriteBytes(v)
		default:
			panic("unsupported field")
		}
	}
	in, _ := packet.FromBytes(p.Bytes())
	return in
}

type recordingObserver struct {
	infos []Info
}

func (o *recordingObserver) OnTaskChanged(info Info) { o.infos = append(o.infos, info) }

func (o *recordingObserver) last() Info { return o.infos[len(o.infos)-1] }
