package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
)

const (
	// DefaultQueueSize is the Events channel capacity used when Config
	// leaves it zero.
	DefaultQueueSize = 256

	// readBufferSize is larger than packet.MaxSize so oversized datagrams
	// can be detected and truncated instead of silently cut by the kernel.
	readBufferSize = 1500
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Tracer records every datagram crossing the socket.
type Tracer interface {
	Trace(inbound bool, addr netip.AddrPort, data []byte, at time.Time)
}

// Config holds dispatcher settings.
type Config struct {
	// Address is the local UDP address, e.g. ":2181".
	Address string

	// QueueSize is the Events channel capacity.
	// Default: 256.
	QueueSize int

	Logger Logger
	Tracer Tracer
}

// Event is one validated inbound datagram.
type Event struct {
	Addr     netip.AddrPort
	Type     packet.MsgType
	Data     []byte
	Received time.Time
}

// Stats holds operational counters.
type Stats struct {
	PacketsRx        uint64
	PacketsTx        uint64
	PacketsDropped   uint64 // Events channel full
	PacketsInvalid   uint64 // bad magic, short or unknown type
	PacketsTruncated uint64
	DiscoveryReplies uint64
	ErrorsTotal      uint64
	LastActivity     time.Time
}

// Dispatcher reads datagrams from a UDP socket and hands them to the domain
// goroutine.
type Dispatcher struct {
	conn   *net.UDPConn
	events chan Event
	logger Logger
	tracer Tracer

	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	packetsRx        atomic.Uint64
	packetsTx        atomic.Uint64
	packetsDropped   atomic.Uint64
	packetsInvalid   atomic.Uint64
	packetsTruncated atomic.Uint64
	discoveryReplies atomic.Uint64
	errorsTotal      atomic.Uint64
	lastActivity     atomic.Int64 // Unix nanoseconds
}

// Listen opens the UDP socket and starts the read goroutine.
func Listen(ctx context.Context, cfg Config) (*Dispatcher, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListenFailed, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("%w: %T is not a UDP socket", ErrListenFailed, pc)
	}

	d := &Dispatcher{
		conn:   conn,
		events: make(chan Event, cfg.QueueSize),
		logger: cfg.Logger,
		tracer: cfg.Tracer,
	}

	d.wg.Add(1)
	go d.receiveLoop()

	d.logger.Info("listening", "address", conn.LocalAddr().String())
	return d, nil
}

// Events returns the channel of validated inbound datagrams. It is closed
// after Close once the read goroutine has exited.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// LocalAddr returns the bound socket address.
func (d *Dispatcher) LocalAddr() netip.AddrPort {
	if a, ok := d.conn.LocalAddr().(*net.UDPAddr); ok {
		return a.AddrPort()
	}
	return netip.AddrPort{}
}

func (d *Dispatcher) receiveLoop() {
	defer d.wg.Done()
	defer close(d.events)

	buf := make([]byte, readBufferSize)
	for {
		n, addr, err := d.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if d.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			d.errorsTotal.Add(1)
			d.logger.Warn("udp read failed", "error", err)
			continue
		}
		d.handleDatagram(addr, buf[:n], time.Now())
	}
}

func (d *Dispatcher) handleDatagram(addr netip.AddrPort, data []byte, now time.Time) {
	d.packetsRx.Add(1)
	d.lastActivity.Store(now.UnixNano())

	if len(data) > packet.MaxSize {
		d.packetsTruncated.Add(1)
		d.logger.Warn("oversized datagram truncated", "remote", addr.String(), "size", len(data), "max", packet.MaxSize)
		data = data[:packet.MaxSize]
	}

	if d.tracer != nil {
		d.tracer.Trace(true, addr, data, now)
	}

	t, err := packet.PeekType(data)
	if err != nil {
		d.packetsInvalid.Add(1)
		d.logger.Debug("dropping datagram", "remote", addr.String(), "error", err)
		return
	}

	if t == packet.MsgDiscovery {
		if err := d.SendTo(addr, packet.NewDiscoveryReply()); err != nil {
			d.logger.Warn("discovery reply failed", "remote", addr.String(), "error", err)
			return
		}
		d.discoveryReplies.Add(1)
		return
	}

	ev := Event{
		Addr:     addr,
		Type:     t,
		Data:     append([]byte(nil), data...),
		Received: now,
	}
	select {
	case d.events <- ev:
	default:
		d.packetsDropped.Add(1)
		d.logger.Warn("event queue full, dropping datagram", "remote", addr.String(), "type", t.String())
	}
}

// SendTo writes p to addr as a single datagram.
func (d *Dispatcher) SendTo(addr netip.AddrPort, p *packet.Packet) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := p.Err(); err != nil {
		return err
	}

	data := p.Bytes()
	if _, err := d.conn.WriteToUDPAddrPort(data, addr); err != nil {
		d.errorsTotal.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, addr, err)
	}
	d.packetsTx.Add(1)
	if d.tracer != nil {
		d.tracer.Trace(false, addr, data, time.Now())
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	var last time.Time
	if ns := d.lastActivity.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		PacketsRx:        d.packetsRx.Load(),
		PacketsTx:        d.packetsTx.Load(),
		PacketsDropped:   d.packetsDropped.Load(),
		PacketsInvalid:   d.packetsInvalid.Load(),
		PacketsTruncated: d.packetsTruncated.Load(),
		DiscoveryReplies: d.discoveryReplies.Load(),
		ErrorsTotal:      d.errorsTotal.Load(),
		LastActivity:     last,
	}
}

// Close stops the read goroutine and closes the socket. Safe to call more
// than once.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		err = d.conn.Close()
		d.wg.Wait()
		d.logger.Info("socket closed")
	})
	return err
}
