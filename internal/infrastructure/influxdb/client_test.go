package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/config"
)

// fakeInflux answers /ping and collects line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	reject bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/ping"):
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(r.URL.Path, "/api/v2/write"):
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		if f.reject {
			f.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"bad line"}`))
			return
		}
		for _, l := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if l != "" {
				f.lines = append(f.lines, l)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "dcclite-dev-token",
		Org:           "dcclite",
		Bucket:        "layout",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connectFake(t *testing.T) (*Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, fake
}

func waitForLines(t *testing.T, fake *fakeInflux, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if lines := fake.snapshot(); len(lines) >= n {
			return lines
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines, got %v", n, fake.snapshot())
	return nil
}

func TestConnect(t *testing.T) {
	client, _ := connectFake(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Connect(context.Background(), testConfig(url))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose_StopsWrites(t *testing.T) {
	client, _ := connectFake(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}

	// Must not panic.
	client.WriteDeviceStatus("Bench", "online", time.Now())
}

func TestWrites_ReachServer(t *testing.T) {
	client, fake := connectFake(t)
	at := time.Unix(1700000000, 0)

	client.WriteDecoderState("Bench", "button", "11", "sensor", true, at)
	client.WriteDeviceStatus("Bench", "online", at)
	client.WriteNetworkTest("Bench", NetworkTestResult{Sent: 10, Received: 9, Lost: 1}, at)
	client.Flush()

	lines := waitForLines(t, fake, 3)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{
		MeasurementDecoderState + ",",
		MeasurementDeviceStatus + ",",
		MeasurementNetworkTest + ",",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("written lines missing %q:\n%s", want, joined)
		}
	}
}

func TestDecoderStatePoint(t *testing.T) {
	at := time.Unix(1700000000, 0)
	line := write.PointToLineProtocol(decoderStatePoint("Bench", "led", "10", "output", true, at), time.Second)

	for _, want := range []string{
		"decoder_state,",
		"address=10",
		"decoder=led",
		"device=Bench",
		"kind=output",
		"active=true",
		"value=1i",
		" 1700000000",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestDeviceStatusPoint(t *testing.T) {
	tests := []struct {
		status string
		online string
	}{
		{"online", "online=1i"},
		{"offline", "online=0i"},
		{"syncing", "online=0i"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			line := write.PointToLineProtocol(deviceStatusPoint("Bench", tt.status, time.Unix(1, 0)), time.Second)
			if !strings.Contains(line, tt.online) {
				t.Errorf("line %q missing %q", line, tt.online)
			}
		})
	}
}

func TestNetworkTestPoint(t *testing.T) {
	r := NetworkTestResult{
		Sent:     4,
		Received: 3,
		Lost:     1,
		MinRTT:   2 * time.Millisecond,
		AvgRTT:   3 * time.Millisecond,
		MaxRTT:   5 * time.Millisecond,
	}
	line := write.PointToLineProtocol(networkTestPoint("Bench", r, time.Unix(1, 0)), time.Second)

	for _, want := range []string{"loss_ratio=0.25", "sent=4i", "lost=1i", "max_rtt_ms=5"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}

	empty := write.PointToLineProtocol(networkTestPoint("Bench", NetworkTestResult{}, time.Unix(1, 0)), time.Second)
	if !strings.Contains(empty, "loss_ratio=0") {
		t.Errorf("zero-sent line %q should report zero loss", empty)
	}
}

func TestSetOnError(t *testing.T) {
	client, fake := connectFake(t)
	fake.mu.Lock()
	fake.reject = true
	fake.mu.Unlock()

	got := make(chan error, 4)
	client.SetOnError(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	client.WriteDeviceStatus("Bench", "online", time.Now())
	client.Flush()

	select {
	case err := <-got:
		if err == nil {
			t.Error("callback received nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error never reached the callback")
	}
}

func TestClose_Twice(t *testing.T) {
	client, _ := connectFake(t)
	if err := client.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
