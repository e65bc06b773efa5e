package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bcsanches/DCCLite-sub001/internal/broker"
	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/config"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/logging"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// mockBroker records calls and returns canned results.
type mockBroker struct {
	mu      sync.Mutex
	devices []device.Info
	err     error

	stateCalls []decoder.Address
	lastState  decoder.State
	lastTask   device.TaskRequest
	lastServo  device.ServoCommand
	aborted    []task.ID
	dropped    []string
}

func (m *mockBroker) Snapshot(context.Context) ([]device.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.devices, nil
}

func (m *mockBroker) Device(_ context.Context, name string) (device.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.Name == name {
			return d, nil
		}
	}
	return device.Info{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, name)
}

func (m *mockBroker) SetDecoderState(_ context.Context, addr decoder.Address, st decoder.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCalls = append(m.stateCalls, addr)
	m.lastState = st
	return m.err
}

func (m *mockBroker) StartTask(_ context.Context, name string, req device.TaskRequest) (task.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTask = req
	if m.err != nil {
		return task.Info{}, m.err
	}
	return task.Info{ID: 3, Kind: req.Kind.String(), Device: name, Status: "running"}, nil
}

func (m *mockBroker) ServoCommand(_ context.Context, name string, id task.ID, cmd device.ServoCommand) (task.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastServo = cmd
	if m.err != nil {
		return task.Info{}, m.err
	}
	return task.Info{ID: id, Kind: "servo_programmer", Device: name, Status: "running"}, nil
}

func (m *mockBroker) AbortTask(_ context.Context, _ string, id task.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = append(m.aborted, id)
	return m.err
}

func (m *mockBroker) DisconnectDevice(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, name)
	return m.err
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testServer(t *testing.T) (*Server, *mockBroker) {
	t.Helper()

	mb := &mockBroker{
		devices: []device.Info{
			{Name: "Bench", Registered: true, Status: device.StatusOnline, Remote: "192.168.1.20:2181"},
			{Name: "Yard", Registered: true, Status: device.StatusOffline},
		},
	}
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
			WS: config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 10},
		},
		Logger: testLogger(),
		Broker: mb,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintln(w, "dcclite_devices 2")
		}),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, mb
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Broker: &mockBroker{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without broker should fail")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["devices"] != float64(2) || resp["online"] != float64(1) {
		t.Errorf("devices/online = %v/%v, want 2/1", resp["devices"], resp["online"])
	}
}

func TestHealth_BrokerStopped(t *testing.T) {
	srv, mb := testServer(t)
	mb.err = broker.ErrStopped

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "dcclite_devices") {
		t.Errorf("/metrics = %d %q", w.Code, w.Body.String())
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS(t *testing.T) {
	srv, _ := testServer(t)
	srv.cfg.CORS.AllowedOrigins = []string{"http://layout.local"}
	router := srv.buildRouter()

	tests := []struct {
		origin string
		want   string
	}{
		{"http://layout.local", "http://layout.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: ACAO = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("decoder table corrupt")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Device Tests ──────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["count"]; got != float64(2) {
		t.Errorf("count = %v, want 2", got)
	}

	w = do(t, router, http.MethodGet, "/api/v1/devices?status=online", "")
	resp := decode(t, w)
	if resp["count"] != float64(1) {
		t.Fatalf("filtered count = %v, want 1", resp["count"])
	}
	first := resp["devices"].([]any)[0].(map[string]any)
	if first["name"] != "Bench" || first["status"] != "online" {
		t.Errorf("filtered device = %v", first)
	}
}

func TestGetDevice(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/devices/Bench", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["remote"]; got != "192.168.1.20:2181" {
		t.Errorf("remote = %v", got)
	}

	w = do(t, router, http.MethodGet, "/api/v1/devices/Nowhere", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if got := decode(t, w)["code"]; got != ErrCodeNotFound {
		t.Errorf("code = %v, want %s", got, ErrCodeNotFound)
	}
}

func TestDisconnect(t *testing.T) {
	srv, mb := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/devices/Bench/disconnect", "")

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if len(mb.dropped) != 1 || mb.dropped[0] != "Bench" {
		t.Errorf("disconnected = %v", mb.dropped)
	}
}

// ─── Decoder State Tests ───────────────────────────────────────────

func TestSetDecoderState(t *testing.T) {
	srv, mb := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodPut, "/api/v1/decoders/0x0C/state", `{"state":"thrown"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if len(mb.stateCalls) != 1 || mb.stateCalls[0] != 12 || mb.lastState != decoder.StateActive {
		t.Errorf("calls = %v state = %v", mb.stateCalls, mb.lastState)
	}
	resp := decode(t, w)
	if resp["address"] != "12" || resp["requested"] != "ACTIVE" {
		t.Errorf("response = %v", resp)
	}
}

func TestSetDecoderState_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		brokerEr error
		want     int
	}{
		{"bad address", "/api/v1/decoders/xyz/state", `{"state":"on"}`, nil, http.StatusBadRequest},
		{"bad json", "/api/v1/decoders/5/state", `{`, nil, http.StatusBadRequest},
		{"bad state", "/api/v1/decoders/5/state", `{"state":"sideways"}`, nil, http.StatusBadRequest},
		{"unknown decoder", "/api/v1/decoders/5/state", `{"state":"on"}`, device.ErrDecoderNotFound, http.StatusNotFound},
		{"not an output", "/api/v1/decoders/5/state", `{"state":"on"}`, decoder.ErrNotOutput, http.StatusBadRequest},
		{"broker slow", "/api/v1/decoders/5/state", `{"state":"on"}`, context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, mb := testServer(t)
			mb.err = tt.brokerEr
			w := do(t, srv.buildRouter(), http.MethodPut, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

// ─── Task Tests ────────────────────────────────────────────────────

func TestStartTask(t *testing.T) {
	srv, mb := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/devices/Bench/tasks",
		`{"kind":"network_test","interval_ms":50,"duration_ms":2000}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if mb.lastTask.Kind != task.KindNetworkTest {
		t.Errorf("kind = %v", mb.lastTask.Kind)
	}
	if mb.lastTask.Interval != 50*time.Millisecond || mb.lastTask.Duration != 2*time.Second {
		t.Errorf("interval/duration = %v/%v", mb.lastTask.Interval, mb.lastTask.Duration)
	}
	resp := decode(t, w)
	if resp["id"] != float64(3) || resp["device"] != "Bench" {
		t.Errorf("response = %v", resp)
	}
}

func TestStartTask_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		brokerEr error
		want     int
	}{
		{"unknown kind", `{"kind":"teleport"}`, nil, http.StatusBadRequest},
		{"negative duration", `{"kind":"network_test","duration_ms":-1}`, nil, http.StatusBadRequest},
		{"offline device", `{"kind":"rename","new_name":"Shed"}`, device.ErrNotOnline, http.StatusConflict},
		{"invalid data", `{"kind":"rename"}`, task.ErrInvalidData, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, mb := testServer(t)
			mb.err = tt.brokerEr
			w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/devices/Bench/tasks", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestServoCommand(t *testing.T) {
	srv, mb := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/devices/Bench/tasks/9/servo",
		`{"op":"deploy","flags":1,"start_pos":10,"end_pos":170,"operation_time_ms":800}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	want := device.ServoCommand{
		Op: device.ServoDeploy,
		Calibration: decoder.Calibration{
			Flags: 1, StartPos: 10, EndPos: 170, OperationTime: 800 * time.Millisecond,
		},
	}
	if mb.lastServo != want {
		t.Errorf("servo command = %+v, want %+v", mb.lastServo, want)
	}

	if w := do(t, router, http.MethodPost, "/api/v1/devices/Bench/tasks/9/servo", `{"op":"dance"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown op status = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/api/v1/devices/Bench/tasks/x/servo", `{"op":"stop"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}

	mb.err = task.ErrInvalidState
	if w := do(t, router, http.MethodPost, "/api/v1/devices/Bench/tasks/9/servo", `{"op":"move","position":90}`); w.Code != http.StatusConflict {
		t.Errorf("invalid state status = %d", w.Code)
	}
}

func TestAbortTask(t *testing.T) {
	srv, mb := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodDelete, "/api/v1/devices/Bench/tasks/4", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if len(mb.aborted) != 1 || mb.aborted[0] != 4 {
		t.Errorf("aborted = %v", mb.aborted)
	}

	mb.err = device.ErrTaskNotFound
	if w := do(t, router, http.MethodDelete, "/api/v1/devices/Bench/tasks/5", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing task status = %d", w.Code)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func newTestClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	return &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newTestClient(hub, ChannelDecoder)
	hub.Register(client)

	hub.OnDecoderEvent(device.DecoderEvent{
		Type:    device.EventStateChanged,
		Device:  "Bench",
		Decoder: "S1",
		Kind:    decoder.KindSensor,
		State:   decoder.StateActive,
	})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != "decoder.state_changed" {
			t.Errorf("event_type = %q, want decoder.state_changed", wsMsg.EventType)
		}
		payload := wsMsg.Payload.(map[string]any)
		if payload["decoder"] != "S1" || payload["state"] != "ACTIVE" {
			t.Errorf("payload = %v", payload)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newTestClient(hub, ChannelTask)
	hub.Register(client)

	hub.OnDeviceEvent(device.DeviceEvent{Type: device.EventCreated, Device: "Bench"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ClientCountAndClose(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	a := newTestClient(hub)
	b := newTestClient(hub)
	hub.Register(a)
	hub.Register(b)
	if hub.ClientCount() != 2 {
		t.Fatalf("client count = %d, want 2", hub.ClientCount())
	}

	hub.Unregister(a)
	hub.Unregister(a)
	if hub.ClientCount() != 1 {
		t.Errorf("after unregister count = %d, want 1", hub.ClientCount())
	}

	cancel()
	<-done
	if hub.ClientCount() != 0 {
		t.Errorf("after Run exits count = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-b.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestEventStream(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events?channels=device"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	resp.Body.Close()

	deadline := time.Now().Add(time.Second)
	for srv.Hub().ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.Hub().OnDeviceEvent(device.DeviceEvent{
		Type:   device.EventStatusChanged,
		Device: "Bench",
		Status: device.StatusOnline,
	})

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != "device.status_changed" {
		t.Errorf("message = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{ChannelTask}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Errorf("subscribe response = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != WSTypePong || msg.ID != "2" {
		t.Errorf("ping response = %+v", msg)
	}
}

func TestServer_StartClose(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
