package probe

import (
	"context"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/compute"
	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

// Result is the normalized output of one probe against a single backend.
// It is consumed immediately by the orchestrator and never persisted.
type Result struct {
	Backend string

	// Reachable is true when the backend answered within the timeout and
	// the answer was acceptable for its kind.
	Reachable bool

	Latency time.Duration

	// Payload is the backend's own answer (identity document, RPC result,
	// version string). It is opaque to the orchestrator and forwarded
	// verbatim into the backend's detailed info.
	Payload map[string]any

	// Metrics holds numeric observations, e.g. "latency_ms", "cert_days_left".
	Metrics map[string]float64

	// Signals is set by probes of network-quality backends. The orchestrator
	// scores it and classifies the backend by the score thresholds.
	Signals *compute.Input

	// Hint, when set, overrides the default classification. Probes use it
	// to report a backend that is installed but not running (stopped) or
	// answering with a known impairment (degraded).
	Hint types.Health

	// Err is non-nil if the probe failed (connectivity, status, parse).
	Err error
}

// Probe is the capability every backend kind implements.
//
// Implementations must honour ctx and must not panic: every failure is
// reported as a Result with Reachable false and Err set.
type Probe interface {
	Probe(ctx context.Context) Result
}

// Restarter is implemented by probes that also know how to bring their
// backend back, e.g. by relaunching a process.
type Restarter interface {
	Restart(ctx context.Context) error
}

// newResult initialises an empty Result with all maps allocated.
func newResult(backend string) Result {
	return Result{
		Backend: backend,
		Payload: make(map[string]any),
		Metrics: make(map[string]float64),
	}
}

// Failed builds a failed Result for backend carrying err.
func Failed(backend string, err error) Result {
	res := newResult(backend)
	res.Err = err
	return res
}

// observeLatency records the elapsed time since start on res.
func observeLatency(res *Result, start time.Time) {
	res.Latency = time.Since(start)
	res.Metrics["latency_ms"] = float64(res.Latency.Microseconds()) / 1000
}
