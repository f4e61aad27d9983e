package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is wrapped by ConfigurationError for unknown backends.
var ErrNotConfigured = errors.New("backend not configured")

// errProbeInFlight is reported when an abandoned probe for the same backend
// has not returned yet.
var errProbeInFlight = errors.New("previous probe still in flight")

// ConfigurationError is returned for operations on an unregistered backend.
type ConfigurationError struct {
	Name string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("orchestrator: %q: %v", e.Name, ErrNotConfigured)
}

func (e *ConfigurationError) Unwrap() error { return ErrNotConfigured }

// ProbeTimeoutError records a probe that did not answer within its timeout.
type ProbeTimeoutError struct {
	Backend string
	Timeout time.Duration
}

func (e *ProbeTimeoutError) Error() string {
	return fmt.Sprintf("probe %s timed out after %s", e.Backend, e.Timeout)
}

func (e *ProbeTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ProbeExecutionError records a probe that failed or panicked.
type ProbeExecutionError struct {
	Backend string
	Err     error
}

func (e *ProbeExecutionError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Backend, e.Err)
}

func (e *ProbeExecutionError) Unwrap() error { return e.Err }

// RemediationError records a failed remediation attempt.
type RemediationError struct {
	Backend   string
	AttemptID string
	Err       error
}

func (e *RemediationError) Error() string {
	return fmt.Sprintf("remediation %s (attempt %s): %v", e.Backend, e.AttemptID, e.Err)
}

func (e *RemediationError) Unwrap() error { return e.Err }
