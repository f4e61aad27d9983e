package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/compute"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/history"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/metrics"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/probe"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/remediation"
	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

// SampleSink mirrors history samples to durable storage.
type SampleSink interface {
	Write(ctx context.Context, s history.Sample) error
}

// Orchestrator owns the backend registry and runs checks against it.
type Orchestrator struct {
	reg            *Registry
	hist           *history.Store
	ctrl           *remediation.Controller
	sink           SampleSink
	now            func() time.Time
	maxConcurrency int
	onCycle        func(map[string]BackendState)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistory sets the history store. Default: history.New(history.DefaultCapacity).
func WithHistory(h *history.Store) Option {
	return func(o *Orchestrator) { o.hist = h }
}

// WithController sets the remediation controller. Default: remediation.New(0).
func WithController(c *remediation.Controller) Option {
	return func(o *Orchestrator) { o.ctrl = c }
}

// WithSink mirrors every sample to s.
func WithSink(s SampleSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMaxConcurrency caps how many probes CheckAll runs at once.
// Zero or less means one per backend.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) { o.maxConcurrency = n }
}

// WithCycleHook calls fn with the states of every completed Run cycle.
func WithCycleHook(fn func(map[string]BackendState)) Option {
	return func(o *Orchestrator) { o.onCycle = fn }
}

// New returns an Orchestrator with an empty registry.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg: NewRegistry(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.hist == nil {
		o.hist = history.New(history.DefaultCapacity)
	}
	if o.ctrl == nil {
		o.ctrl = remediation.New(0)
	}
	return o
}

// Registry returns the backend registry.
func (o *Orchestrator) Registry() *Registry { return o.reg }

// Register adds a backend or replaces the probe, identity and action of an
// existing one. State and history of an existing backend are kept.
func (o *Orchestrator) Register(id Identity, p probe.Probe, opts ...RegisterOption) error {
	if id.Name == "" {
		return errors.New("orchestrator: register: name is required")
	}
	if p == nil {
		return fmt.Errorf("orchestrator: register %q: probe is nil", id.Name)
	}
	b := &binding{identity: id, probe: p, timeout: DefaultProbeTimeout}
	for _, opt := range opts {
		opt(b)
	}
	o.ctrl.Configure(id.Name, b.cooldown)

	e, added := o.reg.register(b)
	rec, remaining := o.ctrl.Record(id.Name)
	e.update(func(st *BackendState) {
		st.Identity = id
		st.Remediation = remediationStatus(b.action != nil, rec, remaining)
	})
	if added {
		slog.Info("backend registered", "backend", id.Name, "kind", id.Kind)
	} else {
		slog.Info("backend re-registered", "backend", id.Name, "kind", id.Kind)
	}
	metrics.BackendsRegistered.Set(float64(o.reg.Len()))
	return nil
}

// Unregister removes a backend together with its history and remediation
// bookkeeping.
func (o *Orchestrator) Unregister(name string) error {
	if !o.reg.unregister(name) {
		return &ConfigurationError{Name: name}
	}
	o.hist.Remove(name)
	o.ctrl.Remove(name)
	metrics.Forget(name)
	metrics.BackendsRegistered.Set(float64(o.reg.Len()))
	slog.Info("backend unregistered", "backend", name)
	return nil
}

// Close tears down the registry.
func (o *Orchestrator) Close() error {
	return o.reg.Close()
}

// State returns the last published state of name.
func (o *Orchestrator) State(name string) (BackendState, bool) {
	e, ok := o.reg.get(name)
	if !ok {
		return BackendState{}, false
	}
	return *e.state.Load(), true
}

// States returns the last published state of every backend.
func (o *Orchestrator) States() map[string]BackendState {
	entries := o.reg.snapshot()
	out := make(map[string]BackendState, len(entries))
	for _, e := range entries {
		out[e.name] = *e.state.Load()
	}
	return out
}

// History returns up to limit samples for name, newest first. It is empty
// for unknown and never-probed backends.
func (o *Orchestrator) History(name string, limit int) []history.Sample {
	return o.hist.Recent(name, limit)
}

// Uptime returns the healthy-or-degraded percentage over the last window
// samples of name.
func (o *Orchestrator) Uptime(name string, window int) float64 {
	return o.hist.UptimePct(name, window)
}

// Events returns up to limit remediation events, newest first.
func (o *Orchestrator) Events(limit int) []remediation.Event {
	return o.ctrl.Events(limit)
}

// CheckBackend checks one backend. It fails only for unknown names; probe
// and remediation failures are recorded in the returned state.
func (o *Orchestrator) CheckBackend(ctx context.Context, name string) (BackendState, error) {
	e, ok := o.reg.get(name)
	if !ok {
		return BackendState{}, &ConfigurationError{Name: name}
	}
	st, _ := o.check(ctx, e)
	return st, nil
}

// CheckOne checks one backend and returns its state. An unknown name yields
// a state with unknown health.
func (o *Orchestrator) CheckOne(ctx context.Context, name string) BackendState {
	st, err := o.CheckBackend(ctx, name)
	if err != nil {
		return BackendState{
			Identity: Identity{Name: name},
			Status:   types.StatusUnknown,
			Health:   types.HealthUnknown,
		}
	}
	return st
}

// CheckAll checks every registered backend concurrently and returns exactly
// one state per backend. If ctx ends first, backends whose check has not
// completed are reported with their last published state.
func (o *Orchestrator) CheckAll(ctx context.Context) map[string]BackendState {
	entries := o.reg.snapshot()

	var mu sync.Mutex
	fresh := make(map[string]BackendState, len(entries))

	var g errgroup.Group
	if o.maxConcurrency > 0 {
		g.SetLimit(o.maxConcurrency)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, e := range entries {
			if ctx.Err() != nil {
				break
			}
			e := e
			g.Go(func() error {
				st, published := o.check(ctx, e)
				if published {
					mu.Lock()
					fresh[e.name] = st
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("check cycle interrupted", "err", ctx.Err())
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]BackendState, len(entries))
	for _, e := range entries {
		if st, ok := fresh[e.name]; ok {
			out[e.name] = st
		} else {
			out[e.name] = *e.state.Load()
		}
	}
	return out
}

// Run checks every backend immediately and then every interval until ctx
// ends.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runCycle(ctx)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	states := o.CheckAll(ctx)
	failing := 0
	for _, st := range states {
		if st.Health.Failing() {
			failing++
		}
	}
	slog.Debug("check cycle complete", "backends", len(states), "failing", failing)
	if o.onCycle != nil {
		o.onCycle(states)
	}
}

// check runs one serialized check of e. published is false when the caller
// gave up before a new state was written, in which case the last published
// state is returned, or when e was unregistered while the check ran.
func (o *Orchestrator) check(ctx context.Context, e *entry) (BackendState, bool) {
	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return *e.state.Load(), false
	}
	defer func() { <-e.slot }()

	b := e.bind.Load()
	res, result := o.runProbe(ctx, e, b)
	if ctx.Err() != nil {
		return *e.state.Load(), false
	}

	health, status, score := classify(res)

	var reprobe *probe.Result
	verify := func(vctx context.Context) bool {
		r, _ := o.runProbe(vctx, e, b)
		reprobe = &r
		h, _, _ := classify(r)
		return !h.Failing()
	}
	out := o.ctrl.MaybeRemediate(ctx, e.name, !health.Failing(), b.action, verify)
	if out.Recovered && reprobe != nil {
		res = *reprobe
		health, status, score = classify(res)
		result = "recovered"
	}

	now := o.now()
	next := e.state.Load().next()
	next.Identity = b.identity
	next.Health = health
	next.Status = status
	next.Score = score
	next.LastCheck = &now
	next.LatencyMS = float64(res.Latency.Microseconds()) / 1000
	next.Checks++
	next.Info = res.Payload
	next.Metrics = res.Metrics
	if res.Err != nil {
		next.recordError(now, res.Err)
		slog.Warn("backend check failed", "backend", e.name, "err", res.Err)
	}
	switch {
	case errors.Is(out.Err, remediation.ErrNoAction):
		slog.Debug("no remediation action bound", "backend", e.name, "attempt_id", out.AttemptID)
	case out.Err != nil:
		rerr := &RemediationError{Backend: e.name, AttemptID: out.AttemptID, Err: out.Err}
		next.recordError(now, rerr)
		slog.Error("remediation failed", "backend", e.name, "err", rerr)
	}
	rec, remaining := o.ctrl.Record(e.name)
	next.Remediation = remediationStatus(b.action != nil, rec, remaining)

	// Unregistered while the check ran: publishing would bring back the
	// history and series Unregister just dropped.
	if cur, ok := o.reg.get(e.name); !ok || cur != e {
		if !ok {
			o.ctrl.Remove(e.name)
		}
		return next, false
	}

	published := next
	e.state.Store(&published)

	o.observe(ctx, b, next, result, res, out)
	return next, true
}

// runProbe invokes b.probe under the backend timeout. A probe that outlives
// its timeout is abandoned and stays in flight until it returns. A later
// probe waits for it within its own timeout and fails without starting a
// second one if it is still running.
func (o *Orchestrator) runProbe(ctx context.Context, e *entry, b *binding) (probe.Result, string) {
	name := e.name
	pctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	release, ok := e.acquire(pctx)
	if !ok {
		res := probe.Failed(name, &ProbeExecutionError{Backend: name, Err: errProbeInFlight})
		res.Latency = b.timeout
		return res, "busy"
	}

	done := make(chan probe.Result, 1)
	go func() {
		res := safeProbe(pctx, name, b.probe)
		release()
		done <- res
	}()

	select {
	case res := <-done:
		if res.Err == nil {
			return res, "ok"
		}
		if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.Err = &ProbeTimeoutError{Backend: name, Timeout: b.timeout}
			return res, "timeout"
		}
		var pe *ProbeExecutionError
		if !errors.As(res.Err, &pe) {
			res.Err = &ProbeExecutionError{Backend: name, Err: res.Err}
			return res, "failed"
		}
		return res, "panic"
	case <-pctx.Done():
		res := probe.Failed(name, &ProbeTimeoutError{Backend: name, Timeout: b.timeout})
		res.Latency = b.timeout
		return res, "timeout"
	}
}

// safeProbe calls p.Probe and converts a panic into a failed Result.
func safeProbe(ctx context.Context, name string, p probe.Probe) (res probe.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = probe.Failed(name, &ProbeExecutionError{Backend: name, Err: fmt.Errorf("panic: %v", r)})
		}
	}()
	res = p.Probe(ctx)
	if res.Backend == "" {
		res.Backend = name
	}
	return res
}

// classify maps a probe result onto health and status. Signals are scored
// against the health thresholds; a hint from the probe overrides the
// default classification; probe errors always classify as unhealthy.
func classify(res probe.Result) (types.Health, types.Status, *float64) {
	if res.Err != nil {
		return types.HealthUnhealthy, types.StatusError, nil
	}

	health, status := types.HealthUnhealthy, types.StatusError
	var score *float64
	switch {
	case res.Signals != nil:
		out := compute.Score(*res.Signals)
		score = &out.Score
		health, status = out.Health, types.StatusRunning
	case res.Reachable:
		health, status = types.HealthHealthy, types.StatusRunning
	}

	switch res.Hint {
	case types.HealthStopped:
		health, status = types.HealthStopped, types.StatusStopped
	case types.HealthDegraded:
		health, status = types.HealthDegraded, types.StatusRunning
	}
	return health, status, score
}

// observe updates telemetry and mirrors the sample for a completed check.
func (o *Orchestrator) observe(ctx context.Context, b *binding, st BackendState, result string, res probe.Result, out remediation.Outcome) {
	name := b.identity.Name
	metrics.ChecksTotal.WithLabelValues(name, result).Inc()
	metrics.ProbeLatency.WithLabelValues(name, b.identity.Kind).Observe(res.Latency.Seconds())
	metrics.BackendHealth.WithLabelValues(name).Set(st.Health.Gauge())
	if st.Score != nil {
		metrics.BackendScore.WithLabelValues(name).Set(*st.Score)
	}
	if out.Attempted {
		outcome := "failed"
		if out.Recovered {
			outcome = "recovered"
		}
		metrics.RemediationAttempts.WithLabelValues(name, outcome).Inc()
	}

	sample := history.Sample{
		Backend:   name,
		Timestamp: *st.LastCheck,
		Status:    st.Status,
		Health:    st.Health,
		Score:     st.Score,
		Metrics:   st.Metrics,
	}
	o.hist.Append(sample)

	if o.sink != nil {
		if err := o.sink.Write(ctx, sample); err != nil {
			metrics.SinkErrors.Inc()
			slog.Warn("history sink write failed", "backend", name, "err", err)
		}
	}
}
