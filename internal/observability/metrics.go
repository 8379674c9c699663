package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the Prometheus metrics for the webhook dispatch pipeline.
//
// Tracked concerns:
//   - Webhook event flow by event type
//   - Tool execution counts and latency
//   - Backend API request counts and latency
//   - Context store health and session counts
type Metrics struct {
	// WebhookEvents counts inbound webhook events by type.
	// Labels: type (call-started|function-call|call-ended|hang|other)
	WebhookEvents *prometheus.CounterVec

	// ToolExecutions counts dispatched function calls.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures dispatch latency end to end in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// BackendRequests counts upstream API requests.
	// Labels: operation, status (success|error)
	BackendRequests *prometheus.CounterVec

	// BackendRequestDuration measures upstream API latency in seconds.
	// Labels: operation
	BackendRequestDuration *prometheus.HistogramVec

	// ContextFills counts parameters filled from session context.
	// Labels: tool, key
	ContextFills *prometheus.CounterVec

	// ContextStoreErrors counts degraded context store operations.
	// Labels: op (get|merge|end|reap)
	ContextStoreErrors *prometheus.CounterVec

	// ActiveCallSessions tracks the number of live call sessions.
	ActiveCallSessions prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// prometheus.NewRegistry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_webhook_events_total",
				Help: "Total number of inbound webhook events by type",
			},
			[]string{"type"},
		),
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_tool_executions_total",
				Help: "Total number of function-call dispatches by tool and status",
			},
			[]string{"tool", "status"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicegate_tool_execution_duration_seconds",
				Help:    "Duration of function-call dispatches in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"tool"},
		),
		BackendRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_backend_requests_total",
				Help: "Total number of customer-data API requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		BackendRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicegate_backend_request_duration_seconds",
				Help:    "Duration of customer-data API requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		ContextFills: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_context_fills_total",
				Help: "Total number of parameters resolved from call session context",
			},
			[]string{"tool", "key"},
		),
		ContextStoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_context_store_errors_total",
				Help: "Total number of degraded context store operations",
			},
			[]string{"op"},
		),
		ActiveCallSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicegate_active_call_sessions",
				Help: "Number of live call sessions",
			},
		),
	}
}

// NewTestMetrics creates metrics backed by a throwaway registry, for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
