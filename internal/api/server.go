package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/audit"
	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/config"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/logging"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests.
const gracefulShutdownTimeout = 10 * time.Second

// Broker is the subset of the broker service used by the API. Every call
// crosses into the domain goroutine. *broker.Service implements it.
type Broker interface {
	Snapshot(ctx context.Context) ([]device.Info, error)
	Device(ctx context.Context, name string) (device.Info, error)
	SetDecoderState(ctx context.Context, addr decoder.Address, st decoder.State) error
	StartTask(ctx context.Context, deviceName string, req device.TaskRequest) (task.Info, error)
	ServoCommand(ctx context.Context, deviceName string, id task.ID, cmd device.ServoCommand) (task.Info, error)
	AbortTask(ctx context.Context, deviceName string, id task.ID) error
	DisconnectDevice(ctx context.Context, deviceName string) error
}

// Deps wires the server. Logger and Broker are required.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Broker  Broker
	Hub     *Hub         // optional; created from Config.WS when nil
	Metrics http.Handler     // optional; serves GET /metrics
	Audit   audit.Repository // optional; records commands and serves GET /audit
	Version string
}

// Server is the HTTP API server of the broker.
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	broker      Broker
	metrics     http.Handler
	audit       audit.Repository
	version     string
	startedAt   time.Time
	hub         *Hub
	externalHub bool
	server      *http.Server
	listener    net.Listener
	cancel      context.CancelFunc
}

// New validates deps. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		broker:    deps.Broker,
		metrics:   deps.Metrics,
		audit:     deps.Audit,
		version:   deps.Version,
		startedAt: time.Now(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.Config.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the event stream hub. Register it as a registry observer to
// feed connected clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadDuration(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadDuration(),
		WriteTimeout:      s.cfg.Timeouts.WriteDuration(),
		IdleTimeout:       s.cfg.Timeouts.IdleDuration(),
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
