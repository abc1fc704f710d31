// Package metrics exposes Prometheus instrumentation for tool calls and
// upstream traffic. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "productboard_mcp"

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolExecutionDuration *prometheus.HistogramVec
	ToolExecutionCount    *prometheus.CounterVec
	ToolErrors            *prometheus.CounterVec

	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamRetries  *prometheus.CounterVec
	RateLimited      *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
	PagesFetched     prometheus.Counter
	PartialResults   prometheus.Counter

	// Session metrics
	ActiveSessions prometheus.Gauge
}

// New creates a Metrics instance on its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_execution_duration_seconds",
				Help:      "Duration of tool executions in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		ToolExecutionCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_execution_total",
				Help:      "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_errors_total",
				Help:      "Tool failures by sanitized error code",
			},
			[]string{"tool_name", "code"},
		),
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Productboard API requests by method and status",
			},
			[]string{"method", "status"},
		),
		UpstreamRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "retries_total",
				Help:      "Retried Productboard API calls",
			},
			[]string{"instance"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "rate_limited_total",
				Help:      "Calls delayed by the local rate limiter",
			},
			[]string{"instance"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"instance"},
		),
		PagesFetched: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pagination",
				Name:      "pages_fetched_total",
				Help:      "Collection pages fetched",
			},
		),
		PartialResults: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pagination",
				Name:      "partial_results_total",
				Help:      "Aggregations that stopped on a failed page",
			},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of sessions",
			},
		),
	}
}

// TrackToolExecution times fn and records its outcome. code labels failures.
func (m *Metrics) TrackToolExecution(toolName string, fn func() (code string, err error)) error {
	start := time.Now()
	code, err := fn()
	if m == nil {
		return err
	}

	status := "success"
	if err != nil {
		status = "error"
		m.ToolErrors.WithLabelValues(toolName, code).Inc()
	}
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(time.Since(start).Seconds())
	m.ToolExecutionCount.WithLabelValues(toolName, status).Inc()
	return err
}

// ObserveUpstream counts one upstream response; status 0 means no response
func (m *Metrics) ObserveUpstream(method string, status int) {
	if m == nil {
		return
	}
	label := "network_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamRequests.WithLabelValues(method, label).Inc()
}

// ObserveRetry counts one retry for instance
func (m *Metrics) ObserveRetry(instance string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(instance).Inc()
}

// ObserveRateLimited counts one locally throttled call for instance
func (m *Metrics) ObserveRateLimited(instance string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(instance).Inc()
}

// SetBreakerState records the breaker state for instance
func (m *Metrics) SetBreakerState(instance string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(instance).Set(float64(state))
}

// ObservePages counts fetched pages and whether the run was partial
func (m *Metrics) ObservePages(pages int, partial bool) {
	if m == nil {
		return
	}
	m.PagesFetched.Add(float64(pages))
	if partial {
		m.PartialResults.Inc()
	}
}

// SetActiveSessions records the session count
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Registry returns the registry metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
