package api

import (
	"fmt"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/orchestrator"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/remediation"
	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

// DiagnosticHint is one human-readable insight about a backend's health.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label (five words or fewer).
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional number associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from a backend state. Hints are ordered
// most severe first.
func computeDiagnostics(st orchestrator.BackendState, uptime float64) []DiagnosticHint {
	var hints []DiagnosticHint

	if st.Health == types.HealthUnknown {
		return append(hints, DiagnosticHint{
			Key:    "warming_up",
			Level:  "info",
			Title:  "Not checked yet",
			Detail: "The backend is registered but has not completed a check. It will show up after the next check cycle.",
		})
	}

	switch st.Health {
	case types.HealthStopped:
		hints = append(hints, DiagnosticHint{
			Key:   "stopped",
			Level: "critical",
			Title: "Not running",
			Detail: "The backend is installed but no running instance was found. " +
				"If remediation is enabled it will be started again once its cooldown allows.",
		})
	case types.HealthUnhealthy, types.HealthError:
		detail := "The last check failed."
		if st.LastError != "" {
			detail = fmt.Sprintf("The last check failed with: %q. Check that the service is running and reachable, and that its credentials are valid.", st.LastError)
		}
		hints = append(hints, DiagnosticHint{
			Key:    "check_failed",
			Level:  "critical",
			Title:  "Check failing",
			Detail: detail,
		})
	}

	if st.Score != nil && *st.Score < 85 {
		v := *st.Score
		level := "warning"
		if v < 70 {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "low_score",
			Level: level,
			Title: fmt.Sprintf("Score %.0f/100", v),
			Detail: "The network score is below the healthy threshold of 85. " +
				"Look at peer counts, connectivity and advertised content in the backend info.",
			Value: &v,
		})
	}

	rs := st.Remediation
	if rs.Enabled && rs.CooldownRemaining > 0 && rs.Phase != remediation.PhaseOK {
		v := rs.CooldownRemaining
		hints = append(hints, DiagnosticHint{
			Key:   "remediation_cooldown",
			Level: "warning",
			Title: "Restart cooling down",
			Detail: fmt.Sprintf("A remediation attempt was made %d time(s). The next attempt is allowed in %.0fs.",
				rs.Attempts, rs.CooldownRemaining),
			Value: &v,
		})
	}
	if !rs.Enabled && st.Health.Failing() {
		hints = append(hints, DiagnosticHint{
			Key:    "no_remediation",
			Level:  "info",
			Title:  "No remediation configured",
			Detail: "This backend has no restart command or reconnect endpoint, so it will stay failing until fixed by hand.",
		})
	}

	if days, ok := st.Metrics["cert_days_left"]; ok && days <= 30 {
		v := days
		level := "warning"
		if days <= 0 {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:    "cert_expiry",
			Level:  level,
			Title:  fmt.Sprintf("Cert %.0f days left", days),
			Detail: "The TLS certificate presented by this backend is expired or expires within 30 days.",
			Value:  &v,
		})
	}

	if uptime < 100 {
		v := uptime
		level := "info"
		switch {
		case uptime < 70:
			level = "critical"
		case uptime < 90:
			level = "warning"
		}
		hints = append(hints, DiagnosticHint{
			Key:    "uptime",
			Level:  level,
			Title:  fmt.Sprintf("%.0f%% uptime", uptime),
			Detail: fmt.Sprintf("The backend was up for %.0f%% of its last %d checks.", uptime, UptimeWindow),
			Value:  &v,
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "healthy",
			Level:  "ok",
			Title:  "All clear",
			Detail: "The backend answered its last checks and needs no action.",
		})
	}
	return hints
}
