package api

import (
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/history"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/orchestrator"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	OverallScore  float64 `json:"overall_score"`
	State         string  `json:"state"`
	BackendCount  int     `json:"backend_count"`
	HealthyCount  int     `json:"healthy_count"`
	DegradedCount int     `json:"degraded_count"`
	FailingCount  int     `json:"failing_count"`
	UnknownCount  int     `json:"unknown_count"`
}

// BackendResponse is one backend in GET /api/v1/backends or
// GET /api/v1/backends/{name}.
type BackendResponse struct {
	orchestrator.BackendState
	UptimePct   float64          `json:"uptime_pct"`
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// HistoryResponse is the payload for GET /api/v1/backends/{name}/history.
type HistoryResponse struct {
	Backend string           `json:"backend"`
	Samples []history.Sample `json:"samples"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Backends    []BackendResponse `json:"backends"`
	GeneratedAt string            `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
