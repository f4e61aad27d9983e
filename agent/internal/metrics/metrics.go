// Package metrics holds the agent's own Prometheus telemetry, served on
// /metrics next to the status API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal counts completed checks per backend and result
	// (ok, recovered, failed, timeout, panic, busy).
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendmon_checks_total",
			Help: "Total number of backend health checks",
		},
		[]string{"backend", "result"},
	)

	// ProbeLatency tracks how long probes take, including failed ones.
	ProbeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backendmon_probe_latency_seconds",
			Help:    "Probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "kind"},
	)

	// BackendHealth is 1 healthy, 0.5 degraded, 0 failing, -1 unknown.
	BackendHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backendmon_backend_health",
			Help: "Current health of the backend (1 healthy, 0.5 degraded, 0 failing, -1 unknown)",
		},
		[]string{"backend"},
	)

	// BackendScore is the composite score of network-quality backends.
	BackendScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backendmon_backend_score",
			Help: "Composite 0-100 health score of the backend",
		},
		[]string{"backend"},
	)

	// RemediationAttempts counts remediation attempts per backend and result
	// (recovered, failed).
	RemediationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendmon_remediation_attempts_total",
			Help: "Total number of remediation attempts",
		},
		[]string{"backend", "result"},
	)

	// BackendsRegistered tracks the registry size.
	BackendsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backendmon_backends_registered",
			Help: "Number of registered backends",
		},
	)

	// AlertTransitions counts alerts fired and resolved per rule.
	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendmon_alert_transitions_total",
			Help: "Total number of alert state transitions",
		},
		[]string{"rule", "state"},
	)

	// StreamClients is the number of connected WebSocket clients.
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backendmon_stream_clients",
			Help: "Number of connected WebSocket stream clients",
		},
	)

	// SinkErrors counts failed history mirror writes.
	SinkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backendmon_sink_errors_total",
			Help: "Total number of failed history sink writes",
		},
	)
)

// Forget drops every per-backend series for backend.
func Forget(backend string) {
	labels := prometheus.Labels{"backend": backend}
	ChecksTotal.DeletePartialMatch(labels)
	ProbeLatency.DeletePartialMatch(labels)
	BackendHealth.DeletePartialMatch(labels)
	BackendScore.DeletePartialMatch(labels)
	RemediationAttempts.DeletePartialMatch(labels)
}
