package broker

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/network"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/thinker"
)

// Defaults for zero Config fields.
const (
	DefaultTickInterval     = 5 * time.Millisecond
	DefaultCommandQueueSize = 64
)

// Logger defines the logging interface used by the broker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives domain loop measurements.
type Metrics interface {
	CommandProcessed(command string, err error)
	PacketRejected(reason string)
	ObserveTick(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) CommandProcessed(string, error) {}
func (noopMetrics) PacketRejected(string)          {}
func (noopMetrics) ObserveTick(time.Duration)      {}

// Config holds the service settings.
type Config struct {
	// TickInterval is how often Run fires expired timers.
	// Default: 5ms.
	TickInterval time.Duration

	// CommandQueueSize is the capacity of the command channel.
	// Default: 64.
	CommandQueueSize int

	// Timing is the session protocol timing. The zero value selects
	// device.DefaultTiming.
	Timing device.Timing
}

// Deps holds the service collaborators. Sender is required; the rest are
// optional.
type Deps struct {
	Sender   device.Sender
	Events   <-chan network.Event
	Store    device.Store
	Observer device.Observer
	Logger   Logger
	Metrics  Metrics

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time
}

// Service is the domain goroutine owner.
type Service struct {
	cfg      Config
	registry *device.Registry
	timers   *thinker.Queue
	events   <-chan network.Event
	commands chan command
	logger   Logger
	metrics  Metrics
	clock    func() time.Time

	running atomic.Bool
	done    chan struct{}
}

// New creates a service with an empty registry.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Sender == nil {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfig)
	}
	if cfg.TickInterval < 0 || cfg.CommandQueueSize < 0 {
		return nil, fmt.Errorf("%w: negative tick interval or queue size", ErrInvalidConfig)
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.CommandQueueSize == 0 {
		cfg.CommandQueueSize = DefaultCommandQueueSize
	}

	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	timers := thinker.New()
	s := &Service{
		cfg:      cfg,
		timers:   timers,
		events:   deps.Events,
		commands: make(chan command, cfg.CommandQueueSize),
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		done:     make(chan struct{}),
	}
	s.registry = device.NewRegistry(device.Env{
		Timers:   timers,
		Sender:   deps.Sender,
		Observer: deps.Observer,
		Logger:   deps.Logger,
		Store:    deps.Store,
		Timing:   cfg.Timing,
	})
	return s, nil
}

// LoadDevices registers the configured devices. It must be called before
// Run. The first failure aborts loading.
func (s *Service) LoadDevices(cfgs []device.Config) error {
	now := s.clock()
	for _, cfg := range cfgs {
		if _, err := s.registry.CreateDevice(cfg, true, now); err != nil {
			return fmt.Errorf("loading device %q: %w", cfg.Name, err)
		}
	}
	s.logger.Info("devices loaded", "count", len(cfgs))
	return nil
}

// Registry exposes the registry for tests and for setup before Run. It must
// not be used from other goroutines while Run is active.
func (s *Service) Registry() *device.Registry {
	return s.registry
}

// Run drives the domain loop until ctx is cancelled, then disconnects every
// device and fails queued commands with ErrStopped.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("domain loop started", "tick", s.cfg.TickInterval)

	events := s.events
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case ev, ok := <-events:
			if !ok {
				s.logger.Warn("network event channel closed")
				events = nil
				continue
			}
			s.HandlePacket(ev.Addr, ev.Data, s.clock())

		case cmd := <-s.commands:
			s.execute(cmd, s.clock())

		case <-ticker.C:
			s.Tick(s.clock())
		}
	}
}

// Done is closed when Run returns.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) shutdown() {
	now := s.clock()
	s.registry.DisconnectAll(now)
	s.timers.Fire(now)

	for {
		select {
		case cmd := <-s.commands:
			cmd.reply <- result{err: ErrStopped}
		default:
			s.logger.Info("domain loop stopped")
			return
		}
	}
}

// HandlePacket processes one datagram and then fires timers due at now, so
// replies scheduled by the packet leave in the same pass.
func (s *Service) HandlePacket(addr netip.AddrPort, data []byte, now time.Time) {
	p, truncated := packet.FromBytes(data)
	if truncated {
		s.logger.Warn("oversized packet truncated", "remote", addr.String(), "size", len(data))
	}

	if err := s.registry.HandlePacket(addr, p, now); err != nil {
		reason := rejectReason(err)
		s.metrics.PacketRejected(reason)
		if reason == "unknown_session" || reason == "stale_state" {
			s.logger.Debug("packet dropped", "remote", addr.String(), "reason", reason, "error", err)
		} else {
			s.logger.Warn("packet dropped", "remote", addr.String(), "reason", reason, "error", err)
		}
	}
	s.timers.Fire(now)
}

// Tick fires every timer due at now.
func (s *Service) Tick(now time.Time) {
	start := time.Now()
	s.timers.Fire(now)
	s.metrics.ObserveTick(time.Since(start))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, device.ErrUnknownSession):
		return "unknown_session"
	case errors.Is(err, device.ErrConfigToken):
		return "config_token"
	case errors.Is(err, device.ErrStaleState):
		return "stale_state"
	case errors.Is(err, device.ErrProtocol):
		return "protocol"
	case errors.Is(err, packet.ErrBadMagic), errors.Is(err, packet.ErrUnknownType), errors.Is(err, packet.ErrInvalidPacket):
		return "malformed"
	default:
		return "other"
	}
}
