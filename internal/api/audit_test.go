package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/bcsanches/DCCLite-sub001/internal/audit"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
)

// memAudit keeps entries in memory.
type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	filter  audit.Filter
	err     error
}

func (m *memAudit) Create(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAudit) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = f
	if m.err != nil {
		return nil, m.err
	}
	return &audit.ListResult{Entries: m.entries, Total: len(m.entries), Limit: f.Limit, Offset: f.Offset}, nil
}

func auditedServer(t *testing.T) (*Server, *mockBroker, *memAudit) {
	t.Helper()
	srv, mb := testServer(t)
	repo := &memAudit{}
	srv.audit = repo
	return srv, mb, repo
}

func TestAudit_RecordsCommands(t *testing.T) {
	srv, _, repo := auditedServer(t)
	h := srv.buildRouter()

	do(t, h, http.MethodPost, "/api/v1/devices/Bench/disconnect", "")
	do(t, h, http.MethodPut, "/api/v1/decoders/12/state", `{"state":"on"}`)
	do(t, h, http.MethodPost, "/api/v1/devices/Bench/tasks", `{"kind":"rename","new_name":"Bench2"}`)
	do(t, h, http.MethodDelete, "/api/v1/devices/Bench/tasks/3", "")

	if len(repo.entries) != 4 {
		t.Fatalf("recorded %d entries, want 4", len(repo.entries))
	}
	disc := repo.entries[0]
	if disc.Action != audit.ActionDisconnect || disc.Device != "Bench" || disc.Source != audit.SourceAPI || disc.Result != audit.ResultOK {
		t.Errorf("disconnect entry = %+v", disc)
	}
	if disc.Details["request_id"] == nil {
		t.Error("request ID not recorded")
	}
	set := repo.entries[1]
	if set.Action != audit.ActionSetState || set.Target != "12" || set.Details["state"] != "ACTIVE" {
		t.Errorf("set_state entry = %+v", set)
	}
	start := repo.entries[2]
	if start.Action != audit.ActionStartTask || start.Target != "rename" || start.Details["new_name"] != "Bench2" {
		t.Errorf("start_task entry = %+v", start)
	}
	if repo.entries[3].Action != audit.ActionAbortTask || repo.entries[3].Target != "3" {
		t.Errorf("abort entry = %+v", repo.entries[3])
	}
}

func TestAudit_RecordsFailure(t *testing.T) {
	srv, mb, repo := auditedServer(t)
	mb.err = device.ErrNotOnline

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/devices/Yard/disconnect", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	if len(repo.entries) != 1 || repo.entries[0].Result != device.ErrNotOnline.Error() {
		t.Errorf("entries = %+v", repo.entries)
	}
}

func TestAudit_WriteFailureDoesNotFailCommand(t *testing.T) {
	srv, _, repo := auditedServer(t)
	repo.err = errors.New("disk full")

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/devices/Bench/disconnect", "")
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestAudit_List(t *testing.T) {
	srv, _, repo := auditedServer(t)
	h := srv.buildRouter()
	do(t, h, http.MethodPost, "/api/v1/devices/Bench/disconnect", "")

	w := do(t, h, http.MethodGet, "/api/v1/audit?device=Bench&action=disconnect&source=api&limit=10&offset=0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	want := audit.Filter{Action: "disconnect", Device: "Bench", Source: "api", Limit: 10}
	if repo.filter != want {
		t.Errorf("filter = %+v, want %+v", repo.filter, want)
	}
	resp := decode(t, w)
	if resp["total"] != float64(1) {
		t.Errorf("total = %v", resp["total"])
	}

	if w := do(t, h, http.MethodGet, "/api/v1/audit?limit=ten", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}

	repo.err = errors.New("locked")
	if w := do(t, h, http.MethodGet, "/api/v1/audit", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("list failure status = %d", w.Code)
	}
}

func TestAudit_RouteAbsentWithoutRepository(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/audit", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
