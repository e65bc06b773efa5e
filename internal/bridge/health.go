package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// defaultHealthInterval is used when HealthConfig leaves Interval zero.
const defaultHealthInterval = 30 * time.Second

// StatsFunc gathers the statistics of one health report.
type StatsFunc func(ctx context.Context) (Statistics, error)

// HealthConfig configures a HealthReporter.
type HealthConfig struct {
	Broker    string
	Version   string
	Topic     string
	QoS       byte
	Interval  time.Duration
	Publisher Publisher
	Stats     StatsFunc
	Logger    Logger
}

// HealthReporter publishes a retained health report periodically.
type HealthReporter struct {
	cfg       HealthConfig
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start publishes a report now and then every interval until ctx is
// cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" report. Safe to
// call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // best-effort during shutdown
		h.publish(HealthStopping, "", nil)
	})
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(ctx); err != nil {
		h.cfg.Logger.Warn("failed to publish initial health", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(ctx); err != nil {
				h.cfg.Logger.Warn("failed to publish health", "error", err)
			}
		}
	}
}

// PublishNow gathers statistics and publishes a report immediately.
func (h *HealthReporter) PublishNow(ctx context.Context) error {
	status, reason := HealthHealthy, ""
	var stats *Statistics
	if h.cfg.Stats != nil {
		statsCtx, cancel := context.WithTimeout(ctx, time.Second)
		s, err := h.cfg.Stats(statsCtx)
		cancel()
		if err != nil {
			status, reason = HealthDegraded, err.Error()
		} else {
			stats = &s
		}
	}
	return h.publish(status, reason, stats)
}

// Report builds a health message without publishing it.
func (h *HealthReporter) Report(status HealthStatus, reason string, stats *Statistics) HealthMessage {
	return HealthMessage{
		Broker:        h.cfg.Broker,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Reason:        reason,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Statistics:    stats,
	}
}

func (h *HealthReporter) publish(status HealthStatus, reason string, stats *Statistics) error {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(h.Report(status, reason, stats))
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, h.cfg.QoS, true)
}
