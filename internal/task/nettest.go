package task

import (
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
)

// Network test operations. The device echoes opPing as opPong with the same
// sequence number.
const (
	netOpPing uint8 = 0x01
	netOpPong uint8 = 0x02
)

// Network test defaults.
const (
	DefaultProbeInterval = 50 * time.Millisecond
	DefaultTestDuration  = 5 * time.Second

	// drainWindow is how long the test waits for late echoes after the last
	// probe before computing results.
	drainWindow = 500 * time.Millisecond
)

// NetworkResults summarises a network test.
type NetworkResults struct {
	Sent     int           `json:"sent"`
	Received int           `json:"received"`
	Lost     int           `json:"lost"`
	MinRTT   time.Duration `json:"min_rtt"`
	MaxRTT   time.Duration `json:"max_rtt"`
	AvgRTT   time.Duration `json:"avg_rtt"`
}

// LossRatio returns lost/sent.
func (r NetworkResults) LossRatio() float64 {
	if r.Sent == 0 {
		return 0
	}
	return float64(r.Lost) / float64(r.Sent)
}

// NetworkTest sends sequenced probes every interval for duration and
// measures the round trip of each echo. A test with no echo at all fails
// with ErrTimeout.
type NetworkTest struct {
	core

	interval time.Duration
	duration time.Duration

	started  time.Time
	nextSeq  uint32
	inFlight map[uint32]time.Time
	results  NetworkResults
	totalRTT time.Duration
}

// NewNetworkTest creates a network test. Zero interval or duration select
// the defaults.
func NewNetworkTest(link Link, observer Observer, interval, duration time.Duration) *NetworkTest {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if duration <= 0 {
		duration = DefaultTestDuration
	}
	t := &NetworkTest{
		core:     newCore(KindNetworkTest, link, observer),
		interval: interval,
		duration: duration,
		inFlight: make(map[uint32]time.Time),
	}
	t.self = t
	return t
}

// Start implements Task.
func (t *NetworkTest) Start(now time.Time) {
	t.started = now
	t.probe(now)
}

func (t *NetworkTest) probe(now time.Time) {
	t.timer = 0
	if now.Sub(t.started) >= t.duration {
		t.arm(now.Add(drainWindow), t.complete)
		return
	}

	t.nextSeq++
	p := t.request()
	p.Write8(netOpPing)
	p.Write32(t.nextSeq)
	t.inFlight[t.nextSeq] = now
	t.results.Sent++
	t.link.Send(p)

	t.arm(now.Add(t.interval), t.probe)
}

func (t *NetworkTest) complete(time.Time) {
	t.timer = 0
	t.results.Lost = t.results.Sent - t.results.Received
	if t.results.Received == 0 {
		t.fail(ErrTimeout)
		return
	}
	t.finish()
}

// HandleData implements Task.
func (t *NetworkTest) HandleData(p *packet.Packet, now time.Time) error {
	if t.done() {
		return nil
	}
	op, err := p.Read8()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	switch op {
	case OpFailure:
		t.fail(readFailure(p))
		return nil
	case netOpPong:
	default:
		return fmt.Errorf("%w: op %d", ErrInvalidData, op)
	}

	seq, err := p.Read32()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	sent, ok := t.inFlight[seq]
	if !ok {
		// duplicate or unknown echo
		return nil
	}
	delete(t.inFlight, seq)

	rtt := now.Sub(sent)
	r := &t.results
	if r.Received == 0 || rtt < r.MinRTT {
		r.MinRTT = rtt
	}
	if rtt > r.MaxRTT {
		r.MaxRTT = rtt
	}
	r.Received++
	t.totalRTT += rtt
	r.AvgRTT = t.totalRTT / time.Duration(r.Received)
	return nil
}

// Results returns the statistics gathered so far.
func (t *NetworkTest) Results() NetworkResults {
	r := t.results
	if !t.done() {
		r.Lost = len(t.inFlight)
	}
	return r
}

// Info implements Task.
func (t *NetworkTest) Info() Info {
	progress := 1.0
	if !t.done() && t.duration > 0 && t.results.Sent > 0 {
		expected := float64(t.duration / t.interval)
		progress = min(float64(t.results.Sent)/expected, 1)
	} else if !t.done() {
		progress = 0
	}
	return t.info(progress, t.Results())
}
