package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airtable-mcp-go/internal/airtable"
	"airtable-mcp-go/internal/session"
	"airtable-mcp-go/internal/tools"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

type fixedCaller struct {
	result airtable.Result
}

func (c fixedCaller) Dispatch(context.Context, string, tools.Params) airtable.Result {
	return c.result
}

func (c fixedCaller) Definitions() []tools.Definition { return nil }

func TestInstrumentedCaller(t *testing.T) {
	metrics := newTestMetrics(t)
	ctx := context.Background()

	ok := NewInstrumentedCaller(fixedCaller{result: airtable.Success(json.RawMessage(`{}`))}, metrics)
	ok.Dispatch(ctx, "airtable_get_record", nil)
	ok.Dispatch(ctx, "airtable_get_record", nil)

	failed := NewInstrumentedCaller(fixedCaller{result: airtable.Failed(
		airtable.NewBatchTooLargeFailure("records", 11, 10))}, metrics)
	failed.Dispatch(ctx, "airtable_create_multiple_records", nil)

	unknown := NewInstrumentedCaller(fixedCaller{result: airtable.Failed(
		airtable.NewUnknownToolFailure("made_up"))}, metrics)
	unknown.Dispatch(ctx, "made_up", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MCPToolExecutions.WithLabelValues("airtable_get_record", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MCPToolExecutions.WithLabelValues("airtable_create_multiple_records", "BatchTooLarge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MCPToolExecutions.WithLabelValues("unknown", "UnknownTool")))
}

func TestMetricsObserver(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.ObserveAttempt("GET", 200, 10*time.Millisecond)
	metrics.ObserveAttempt("GET", 0, time.Millisecond)
	metrics.ObserveRetry(airtable.KindRateLimitExhausted, time.Second)
	metrics.ObserveThrottle("appXYZ", 200*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UpstreamAttempts.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UpstreamAttempts.WithLabelValues("GET", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UpstreamRetries.WithLabelValues("RateLimitExhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GovernorWaits.WithLabelValues("appXYZ")))
}

func TestSessionManagerWrapper(t *testing.T) {
	metrics := newTestMetrics(t)
	store := session.NewMemoryStore(zerolog.Nop())
	defer store.Close()
	manager := NewSessionManagerWrapper(
		session.NewDefaultManager(store, session.ManagerConfig{}, zerolog.Nop()), metrics)

	ctx := context.Background()
	first, err := manager.Create(ctx, "", session.ClientInfo{Transport: "http"})
	require.NoError(t, err)
	_, err = manager.Create(ctx, "", session.ClientInfo{Transport: "http"})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MCPSessionsTotal.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MCPSessionsActive))

	require.NoError(t, manager.Delete(ctx, first.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MCPSessionsTotal.WithLabelValues("deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MCPSessionsActive))
}

func TestSystemMetricsCollector(t *testing.T) {
	metrics := newTestMetrics(t)
	governor := airtable.NewGovernor(airtable.GovernorConfig{})
	governor.Acquire("appA")
	governor.Acquire("appA")

	store := session.NewMemoryStore(zerolog.Nop())
	defer store.Close()
	manager := session.NewDefaultManager(store, session.ManagerConfig{}, zerolog.Nop())
	_, _ = manager.Create(context.Background(), "", session.ClientInfo{Transport: "stdio"})

	collector := NewSystemMetricsCollector(metrics, governor, manager, zerolog.Nop(), time.Hour)
	collector.Collect(context.Background())

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.GovernorWindowUsed.WithLabelValues("appA")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MCPSessionsActive))
	assert.Greater(t, testutil.ToFloat64(metrics.GoRoutines), 0.0)

	collector.Start(context.Background())
	collector.Start(context.Background())
	collector.Stop()
	collector.Stop()
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware(metrics))
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	for _, path := range []string{"/items/1", "/items/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HTTPRequestsInFlight))
}
