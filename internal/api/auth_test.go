package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/audit"
	"github.com/bcsanches/DCCLite-sub001/internal/auth"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/config"
)

const testAPISecret = "api-test-secret-0123456789abcdefghij"

func securedServer(t *testing.T) (*Server, *mockBroker) {
	t.Helper()
	srv, mb := testServer(t)
	srv.cfg.Auth = config.APIAuthConfig{Enabled: true, Secret: testAPISecret, TokenTTL: 1}
	return srv, mb
}

func tokenFor(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	tok, err := auth.IssueToken(subject, role, testAPISecret, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}
	return tok
}

func doAuth(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuth_OpenRoutes(t *testing.T) {
	srv, _ := securedServer(t)
	h := srv.buildRouter()

	if w := do(t, h, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", w.Code)
	}
}

func TestAuth_MissingAndInvalidToken(t *testing.T) {
	srv, _ := securedServer(t)
	h := srv.buildRouter()

	w := do(t, h, http.MethodGet, "/api/v1/devices", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}

	w = doAuth(t, h, http.MethodGet, "/api/v1/devices", "", "garbage")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("invalid token status = %d, want 401", w.Code)
	}

	other, err := auth.IssueToken("mallory", auth.RoleMaintainer, strings.Repeat("x", 40), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	w = doAuth(t, h, http.MethodGet, "/api/v1/devices", "", other)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("foreign token status = %d, want 401", w.Code)
	}
}

func TestAuth_RolePermissions(t *testing.T) {
	tests := []struct {
		name   string
		role   auth.Role
		method string
		path   string
		body   string
		want   int
	}{
		{"viewer reads", auth.RoleViewer, http.MethodGet, "/api/v1/devices", "", http.StatusOK},
		{"viewer cannot operate", auth.RoleViewer, http.MethodPut, "/api/v1/decoders/12/state", `{"state":"on"}`, http.StatusForbidden},
		{"operator operates", auth.RoleOperator, http.MethodPut, "/api/v1/decoders/12/state", `{"state":"on"}`, http.StatusAccepted},
		{"operator cannot run tasks", auth.RoleOperator, http.MethodPost, "/api/v1/devices/Bench/tasks", `{"kind":"network_test"}`, http.StatusForbidden},
		{"operator cannot disconnect", auth.RoleOperator, http.MethodPost, "/api/v1/devices/Bench/disconnect", "", http.StatusForbidden},
		{"maintainer runs tasks", auth.RoleMaintainer, http.MethodPost, "/api/v1/devices/Bench/tasks", `{"kind":"network_test"}`, http.StatusCreated},
		{"maintainer aborts", auth.RoleMaintainer, http.MethodDelete, "/api/v1/devices/Bench/tasks/3", "", http.StatusNoContent},
		{"maintainer disconnects", auth.RoleMaintainer, http.MethodPost, "/api/v1/devices/Bench/disconnect", "", http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := securedServer(t)
			w := doAuth(t, srv.buildRouter(), tt.method, tt.path, tt.body, tokenFor(t, "alice", tt.role))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuth_QueryToken(t *testing.T) {
	srv, _ := securedServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/devices?token="+tokenFor(t, "alice", auth.RoleViewer), "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuth_OperatorRecordedInAudit(t *testing.T) {
	srv, _ := securedServer(t)
	repo := &memAudit{}
	srv.audit = repo

	w := doAuth(t, srv.buildRouter(), http.MethodPut, "/api/v1/decoders/12/state", `{"state":"off"}`, tokenFor(t, "alice", auth.RoleOperator))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.Action != audit.ActionSetState || e.Details["operator"] != "alice" {
		t.Errorf("entry = %+v", e)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header, query, want string
	}{
		{"Bearer abc", "", "abc"},
		{"bearer  abc ", "", "abc"},
		{"Basic abc", "", ""},
		{"", "xyz", "xyz"},
		{"Bearer abc", "xyz", "abc"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/devices?token="+tt.query, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q, %q) = %q, want %q", tt.header, tt.query, got, tt.want)
		}
	}
}
