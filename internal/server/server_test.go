package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"airtable-mcp-go/internal/airtable"
	"airtable-mcp-go/internal/mcp"
	"airtable-mcp-go/internal/session"
	"airtable-mcp-go/internal/telemetry"
	"airtable-mcp-go/internal/tools"
)

type echoCaller struct{}

func (echoCaller) Dispatch(_ context.Context, name string, _ tools.Params) airtable.Result {
	return airtable.Success(json.RawMessage(`{"tool":"` + name + `"}`))
}

func (echoCaller) Definitions() []tools.Definition {
	return []tools.Definition{{Name: "airtable_list_bases", InputSchema: map[string]any{"type": "object"}}}
}

func newTestHandler(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	store := session.NewMemoryStore(zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	manager := telemetry.NewSessionManagerWrapper(
		session.NewDefaultManager(store, session.ManagerConfig{}, zerolog.Nop()), metrics)

	handler, err := New(cfg, Deps{
		MCP: mcp.NewServer(mcp.Config{
			Caller:   telemetry.NewInstrumentedCaller(echoCaller{}, metrics),
			Sessions: manager,
			Logger:   zerolog.Nop(),
		}),
		Metrics:  metrics,
		Gatherer: reg,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return handler
}

func TestHealth(t *testing.T) {
	handler := newTestHandler(t, Config{RequireSession: true, Version: "1.2.3"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Health response is not JSON: %v", err)
	}
	if body.Status != "ok" || body.Tools != 1 || body.Version != "1.2.3" {
		t.Errorf("Unexpected health response: %+v", body)
	}
	if body.Sessions == nil || *body.Sessions != 0 {
		t.Errorf("Expected zero sessions, got %v", body.Sessions)
	}
}

func TestMCPRoundTripAndMetrics(t *testing.T) {
	handler := newTestHandler(t, Config{RequireSession: true, Version: "1.2.3"})

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("initialize failed: %d %s", rec.Code, rec.Body.String())
	}
	sessionID := rec.Header().Get(session.HeaderName)
	if sessionID == "" {
		t.Fatal("Expected a session ID header")
	}

	req = httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"airtable_list_bases"}}`))
	req.Header.Set(session.HeaderName, sessionID)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `"successful":true`) {
		t.Errorf("Expected a successful envelope, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	metrics := rec.Body.String()
	for _, want := range []string{
		`airtable_mcp_tool_executions_total{status="success",tool_name="airtable_list_bases"} 1`,
		`airtable_mcp_sessions_total{action="created"} 1`,
		`airtable_mcp_http_requests_total{endpoint="/mcp",method="POST",status_code="200"} 2`,
	} {
		if !strings.Contains(metrics, want) {
			t.Errorf("Expected metrics to contain %q", want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestHandler(t, Config{RequireSession: true, Version: "1.2.3"})

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Mcp-Session-Id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
}

func TestNewRequiresMCP(t *testing.T) {
	if _, err := New(Config{}, Deps{Logger: zerolog.Nop()}); err == nil {
		t.Error("Expected an error without an MCP server")
	}
}

func TestCORSAllowedOrigins(t *testing.T) {
	handler := newTestHandler(t, Config{AllowedOrigins: []string{"https://app.example.com"}})

	preflight := func(origin string) string {
		req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Header().Get("Access-Control-Allow-Origin")
	}

	if got := preflight("https://app.example.com"); got != "https://app.example.com" {
		t.Errorf("Expected the configured origin to be allowed, got %q", got)
	}
	if got := preflight("https://evil.example.com"); got != "" {
		t.Errorf("Expected other origins to be refused, got %q", got)
	}
}

func TestRequireSession(t *testing.T) {
	list := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`

	tests := []struct {
		name           string
		requireSession bool
		wantStatus     int
	}{
		{name: "required", requireSession: true, wantStatus: http.StatusBadRequest},
		{name: "optional", requireSession: false, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(t, Config{RequireSession: tt.requireSession})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(list)))

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}
