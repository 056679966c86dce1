package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"airtable-mcp-go/internal/airtable"
)

const namespace = "airtable_mcp"

// Metrics holds all the Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPRequestSize      *prometheus.HistogramVec
	HTTPResponseSize     *prometheus.HistogramVec

	// MCP-specific metrics
	MCPSessionsActive  prometheus.Gauge
	MCPSessionsTotal   *prometheus.CounterVec
	MCPSessionDuration *prometheus.HistogramVec
	MCPToolExecutions  *prometheus.CounterVec
	MCPToolDuration    *prometheus.HistogramVec

	// Remote API metrics
	UpstreamAttempts   *prometheus.CounterVec
	UpstreamDuration   *prometheus.HistogramVec
	UpstreamRetries    *prometheus.CounterVec
	GovernorWaits      *prometheus.CounterVec
	GovernorWaitTime   *prometheus.HistogramVec
	GovernorWindowUsed *prometheus.GaugeVec

	// System metrics
	GoRoutines  prometheus.Gauge
	MemoryUsage prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "Size of HTTP requests in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "endpoint"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "endpoint"},
		),

		// MCP-specific metrics
		MCPSessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of active MCP sessions",
			},
		),
		MCPSessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of MCP session lifecycle events",
			},
			[]string{"action"}, // created, deleted, expired
		),
		MCPSessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Duration of MCP sessions in seconds",
				Buckets:   []float64{60, 300, 600, 1800, 3600, 7200},
			},
			[]string{"reason"}, // deleted
		),
		MCPToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_executions_total",
				Help:      "Total number of tool calls by outcome",
			},
			[]string{"tool_name", "status"}, // success or a failure kind
		),
		MCPToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_execution_duration_seconds",
				Help:      "Duration of tool calls in seconds, including waits and retries",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		// Remote API metrics
		UpstreamAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_attempts_total",
				Help:      "Requests sent to the Airtable API by method and status code",
			},
			[]string{"method", "status_code"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_attempt_duration_seconds",
				Help:      "Duration of single Airtable API attempts in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		UpstreamRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_retries_total",
				Help:      "Retries scheduled after a retryable failure, by failure kind",
			},
			[]string{"kind"},
		),
		GovernorWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "governor_waits_total",
				Help:      "Times a request had to wait for the per-base rate window",
			},
			[]string{"resource"},
		),
		GovernorWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "governor_wait_seconds",
				Help:      "Time spent waiting for the per-base rate window",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"resource"},
		),
		GovernorWindowUsed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "governor_window_used",
				Help:      "Requests granted inside the current rate window per resource",
			},
			[]string{"resource"},
		),

		// System metrics
		GoRoutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_current",
				Help:      "Number of goroutines that currently exist",
			},
		),
		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),
	}
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordSessionCreated records a new session creation
func (m *Metrics) RecordSessionCreated() {
	m.MCPSessionsTotal.WithLabelValues("created").Inc()
}

// RecordSessionDeleted records a session terminated by its client.
func (m *Metrics) RecordSessionDeleted(duration time.Duration) {
	m.MCPSessionsTotal.WithLabelValues("deleted").Inc()
	m.MCPSessionDuration.WithLabelValues("deleted").Observe(duration.Seconds())
}

// RecordSessionsExpired records sessions removed by the cleanup sweep.
func (m *Metrics) RecordSessionsExpired(count int) {
	m.MCPSessionsTotal.WithLabelValues("expired").Add(float64(count))
}

// RecordToolExecution records a tool execution
func (m *Metrics) RecordToolExecution(toolName, status string, duration time.Duration) {
	m.MCPToolExecutions.WithLabelValues(toolName, status).Inc()
	m.MCPToolDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// ObserveAttempt records one remote attempt. Status 0 means no response arrived.
func (m *Metrics) ObserveAttempt(method string, statusCode int, duration time.Duration) {
	status := "none"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.UpstreamAttempts.WithLabelValues(method, status).Inc()
	m.UpstreamDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRetry records a scheduled retry.
func (m *Metrics) ObserveRetry(kind airtable.Kind, _ time.Duration) {
	m.UpstreamRetries.WithLabelValues(string(kind)).Inc()
}

// ObserveThrottle records a wait imposed by the rate governor.
func (m *Metrics) ObserveThrottle(resourceKey string, wait time.Duration) {
	m.GovernorWaits.WithLabelValues(resourceKey).Inc()
	m.GovernorWaitTime.WithLabelValues(resourceKey).Observe(wait.Seconds())
}

// UpdateSystemMetrics updates system-level metrics
func (m *Metrics) UpdateSystemMetrics(goroutines int, memoryBytes uint64) {
	m.GoRoutines.Set(float64(goroutines))
	m.MemoryUsage.Set(float64(memoryBytes))
}

var _ airtable.Observer = (*Metrics)(nil)
