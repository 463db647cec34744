package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the router, the engine,
// and the tool framework.
type Metrics struct {
	registry *prometheus.Registry

	RoutingDecisions  *prometheus.CounterVec
	Fallbacks         prometheus.Counter
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ToolExecutions    *prometheus.CounterVec
	ToolDuration      *prometheus.HistogramVec
	RateLimitDenials  *prometheus.CounterVec
	ClassifyDuration  prometheus.Histogram
	ApprovalOutcomes  *prometheus.CounterVec
}

// NewMetrics registers the relay collector set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RoutingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_routing_decisions_total",
			Help: "Routing decisions by strategy and message complexity.",
		}, []string{"strategy", "complexity"}),

		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_fallbacks_total",
			Help: "Executions that retried on a fallback model.",
		}),

		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_executions_total",
			Help: "Model executions by model id and outcome.",
		}, []string{"model", "status"}),

		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_execution_duration_seconds",
			Help:    "Wall-clock model execution time, fallback attempts included.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"model"}),

		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_tool_executions_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "status"}),

		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_tool_duration_seconds",
			Help:    "Tool body execution time.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.25, 1, 5, 15},
		}, []string{"tool"}),

		RateLimitDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rate_limit_denials_total",
			Help: "Requests rejected by the per-principal rate limiter.",
		}, []string{"principal"}),

		ClassifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_classify_duration_seconds",
			Help:    "Message classification time.",
			Buckets: prometheus.DefBuckets,
		}),

		ApprovalOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_tool_approvals_total",
			Help: "Confirmation gate outcomes for tools that require approval.",
		}, []string{"tool", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordExecution tallies one model execution.
func (m *Metrics) RecordExecution(model string, success bool, seconds float64) {
	status := "ok"
	if !success {
		status = "error"
	}
	m.Executions.WithLabelValues(model, status).Inc()
	m.ExecutionDuration.WithLabelValues(model).Observe(seconds)
}

// RecordTool tallies one tool invocation.
func (m *Metrics) RecordTool(tool string, success bool, seconds float64) {
	status := "ok"
	if !success {
		status = "error"
	}
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(seconds)
}
