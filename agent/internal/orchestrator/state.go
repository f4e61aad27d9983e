package orchestrator

import (
	"maps"
	"slices"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/remediation"
	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

// MaxErrors is the number of error entries kept per backend.
const MaxErrors = 20

// Identity describes a registered backend. It does not change between
// checks; re-registration replaces it.
type Identity struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Endpoint     string   `json:"endpoint,omitempty"`
	Port         int      `json:"port,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ErrorEntry is one recorded failure.
type ErrorEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// RemediationStatus is the remediation view embedded in a BackendState.
type RemediationStatus struct {
	Enabled             bool              `json:"enabled"`
	Phase               remediation.Phase `json:"phase"`
	LastAttempt         *time.Time        `json:"last_attempt,omitempty"`
	AttemptID           string            `json:"attempt_id,omitempty"`
	Attempts            int               `json:"attempts"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastError           string            `json:"last_error,omitempty"`
	CooldownSeconds     float64           `json:"cooldown_seconds"`
	CooldownRemaining   float64           `json:"restart_cooldown_remaining"`
}

// BackendState is the published state of one backend. Values are never
// modified after they are published; every check builds a new one.
type BackendState struct {
	Identity    Identity           `json:"identity"`
	Status      types.Status       `json:"status"`
	Health      types.Health       `json:"health"`
	Score       *float64           `json:"score,omitempty"`
	LastCheck   *time.Time         `json:"last_check,omitempty"`
	LatencyMS   float64            `json:"latency_ms"`
	Checks      int                `json:"checks"`
	LastError   string             `json:"last_error,omitempty"`
	LastErrorAt *time.Time         `json:"last_error_at,omitempty"`
	Errors      []ErrorEntry       `json:"errors,omitempty"`
	Info        map[string]any     `json:"info,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Remediation RemediationStatus  `json:"remediation"`
}

// initialState is published at registration, before the first probe.
func initialState(id Identity) *BackendState {
	return &BackendState{
		Identity: id,
		Status:   types.StatusUnknown,
		Health:   types.HealthUnknown,
		Remediation: RemediationStatus{
			Phase: remediation.PhaseOK,
		},
	}
}

// next returns a copy of s that the caller may modify before publishing.
func (s *BackendState) next() BackendState {
	n := *s
	n.Errors = slices.Clone(s.Errors)
	n.Info = maps.Clone(s.Info)
	n.Metrics = maps.Clone(s.Metrics)
	return n
}

// recordError sets the last error and appends it to the capped list.
func (s *BackendState) recordError(at time.Time, err error) {
	t := at
	s.LastError = err.Error()
	s.LastErrorAt = &t
	s.Errors = append(s.Errors, ErrorEntry{Time: at, Message: err.Error()})
	if len(s.Errors) > MaxErrors {
		s.Errors = slices.Clone(s.Errors[len(s.Errors)-MaxErrors:])
	}
}

// remediationStatus converts a controller record for publication.
func remediationStatus(enabled bool, rec remediation.Record, remaining time.Duration) RemediationStatus {
	rs := RemediationStatus{
		Enabled:             enabled,
		Phase:               rec.Phase,
		AttemptID:           rec.AttemptID,
		Attempts:            rec.Attempts,
		ConsecutiveFailures: rec.ConsecutiveFailures,
		LastError:           rec.LastError,
		CooldownSeconds:     rec.Cooldown.Seconds(),
		CooldownRemaining:   remaining.Seconds(),
	}
	if !rec.LastAttempt.IsZero() {
		t := rec.LastAttempt
		rs.LastAttempt = &t
	}
	return rs
}
