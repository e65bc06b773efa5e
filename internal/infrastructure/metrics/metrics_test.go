package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// value returns the value of the series of family name whose labels match.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !matches(metric, labels) {
				continue
			}
			switch {
			case metric.Gauge != nil:
				return metric.GetGauge().GetValue()
			case metric.Counter != nil:
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range metric.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}

func TestDeviceStatus_MovesBetweenGauges(t *testing.T) {
	m := New()

	m.DeviceStatus("Bench", "configuring")
	m.DeviceStatus("Yard", "online")
	m.DeviceStatus("Bench", "online")

	if got := value(t, m, "dcclite_devices", map[string]string{"status": "online"}); got != 2 {
		t.Errorf("online = %v, want 2", got)
	}
	if got := value(t, m, "dcclite_devices", map[string]string{"status": "configuring"}); got != 0 {
		t.Errorf("configuring = %v, want 0", got)
	}

	m.DeviceStatus("Yard", "")
	if got := value(t, m, "dcclite_devices", map[string]string{"status": "online"}); got != 1 {
		t.Errorf("online after removal = %v, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.DecoderStateChanged("sensor")
	m.DecoderStateChanged("sensor")
	m.TaskFinished("rename", "finished")
	m.CommandProcessed("set_state", nil)
	m.CommandProcessed("set_state", errors.New("no such decoder"))
	m.PacketRejected("unknown_session")
	m.ObserveTick(50 * time.Microsecond)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"dcclite_decoder_state_changes_total", map[string]string{"kind": "sensor"}, 2},
		{"dcclite_tasks_total", map[string]string{"kind": "rename", "status": "finished"}, 1},
		{"dcclite_commands_total", map[string]string{"command": "set_state", "result": "ok"}, 1},
		{"dcclite_commands_total", map[string]string{"command": "set_state", "result": "error"}, 1},
		{"dcclite_packet_errors_total", map[string]string{"reason": "unknown_session"}, 1},
	}
	for _, tt := range tests {
		if got := value(t, m, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestRegisterPacketSource(t *testing.T) {
	m := New()
	counters := PacketCounters{Rx: 10, Tx: 7, Dropped: 1}
	m.RegisterPacketSource(func() PacketCounters { return counters })

	if got := value(t, m, "dcclite_udp_packets_received_total", nil); got != 10 {
		t.Errorf("received = %v, want 10", got)
	}
	counters.Tx = 9
	if got := value(t, m, "dcclite_udp_packets_sent_total", nil); got != 9 {
		t.Errorf("sent = %v, want 9 (read at scrape time)", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.DecoderStateChanged("output")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `dcclite_decoder_state_changes_total{kind="output"} 1`) {
		t.Errorf("exposition missing counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing Go runtime collector")
	}
}
