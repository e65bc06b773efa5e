// Package metrics exposes broker counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dcclite"

// PacketCounters is a snapshot of the UDP socket counters.
type PacketCounters struct {
	Rx        uint64
	Tx        uint64
	Dropped   uint64
	Invalid   uint64
	Truncated uint64
	Discovery uint64
	Errors    uint64
}

// Metrics holds the broker's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	devices        *prometheus.GaugeVec
	decoderChanges *prometheus.CounterVec
	tasks          *prometheus.CounterVec
	commands       *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	packetErrors   *prometheus.CounterVec

	mu           sync.Mutex
	deviceStatus map[string]string
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		devices: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Number of devices by session status.",
		}, []string{"status"}),
		decoderChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_state_changes_total",
			Help:      "Decoder state changes reported by devices.",
		}, []string{"kind"}),
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks that reached a terminal status.",
		}, []string{"kind", "status"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands submitted to the domain goroutine.",
		}, []string{"command", "result"}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent firing timers per domain tick.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~0.26s
		}),
		packetErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_errors_total",
			Help:      "Packets rejected by the session layer.",
		}, []string{"reason"}),
		deviceStatus: make(map[string]string),
	}
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterPacketSource exposes socket counters read from fn at scrape
// time.
func (m *Metrics) RegisterPacketSource(fn func() PacketCounters) {
	counter := func(name, help string, pick func(PacketCounters) uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "udp",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(fn())) })
	}
	m.registry.MustRegister(
		counter("packets_received_total", "Datagrams read from the socket.", func(c PacketCounters) uint64 { return c.Rx }),
		counter("packets_sent_total", "Datagrams written to the socket.", func(c PacketCounters) uint64 { return c.Tx }),
		counter("packets_dropped_total", "Datagrams dropped because the event queue was full.", func(c PacketCounters) uint64 { return c.Dropped }),
		counter("packets_invalid_total", "Datagrams with bad magic, short length or unknown type.", func(c PacketCounters) uint64 { return c.Invalid }),
		counter("packets_truncated_total", "Oversized datagrams truncated to the packet size.", func(c PacketCounters) uint64 { return c.Truncated }),
		counter("discovery_replies_total", "DISCOVERY requests answered.", func(c PacketCounters) uint64 { return c.Discovery }),
		counter("errors_total", "Socket read and write errors.", func(c PacketCounters) uint64 { return c.Errors }),
	)
}

// DeviceStatus records a device moving to status. An empty status removes
// the device.
func (m *Metrics) DeviceStatus(device, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.deviceStatus[device]; ok {
		m.devices.WithLabelValues(prev).Dec()
	}
	if status == "" {
		delete(m.deviceStatus, device)
		return
	}
	m.deviceStatus[device] = status
	m.devices.WithLabelValues(status).Inc()
}

// DecoderStateChanged counts a state change of a decoder of kind.
func (m *Metrics) DecoderStateChanged(kind string) {
	m.decoderChanges.WithLabelValues(kind).Inc()
}

// TaskFinished counts a task reaching a terminal status.
func (m *Metrics) TaskFinished(kind, status string) {
	m.tasks.WithLabelValues(kind, status).Inc()
}

// CommandProcessed counts a command and whether it succeeded.
func (m *Metrics) CommandProcessed(command string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(command, result).Inc()
}

// PacketRejected counts a packet the session layer refused.
func (m *Metrics) PacketRejected(reason string) {
	m.packetErrors.WithLabelValues(reason).Inc()
}

// ObserveTick records how long one domain tick took.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.tickDuration.Observe(d.Seconds())
}
