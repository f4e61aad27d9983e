package types

// Health is the classification assigned to a backend after a probe.
type Health string

// The complete set of health values. No other value is ever stored.
const (
	HealthUnknown   Health = "unknown"
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
	HealthStopped   Health = "stopped"
	HealthError     Health = "error"
)

// Valid reports whether h is one of the defined health values.
func (h Health) Valid() bool {
	switch h {
	case HealthUnknown, HealthHealthy, HealthDegraded, HealthUnhealthy, HealthStopped, HealthError:
		return true
	}
	return false
}

// Failing reports whether h should be treated as a remediation candidate.
func (h Health) Failing() bool {
	return h == HealthUnhealthy || h == HealthStopped || h == HealthError
}

// Gauge maps h onto a number for dashboards: 1 healthy, 0.5 degraded,
// 0 for every failing value and -1 when nothing is known yet.
func (h Health) Gauge() float64 {
	switch h {
	case HealthHealthy:
		return 1
	case HealthDegraded:
		return 0.5
	case HealthUnknown:
		return -1
	default:
		return 0
	}
}

// Status describes the process-level state of a backend.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)
