package alerts

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/metrics"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/orchestrator"
	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour

	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert is one firing or resolved rule for one backend.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Backend    string     `json:"backend"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// UptimeFunc returns the uptime percentage of a backend.
type UptimeFunc func(name string) float64

type rule struct {
	config.AlertRule
	cond     condition
	backends map[string]bool
}

func (r rule) applies(backend string) bool {
	return len(r.backends) == 0 || r.backends[backend]
}

// Engine evaluates alert rules against backend states and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	client   *retryablehttp.Client
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alert    // key: "rule:backend"
	lastFire map[string]time.Time // for cooldown
	history  []*Alert             // recently resolved
	inflight sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine from the alert configuration. It fails if a rule
// condition cannot be parsed. An Engine without rules is valid; Evaluate is
// then a no-op.
func New(cfg config.AlertsConfig, opts ...Option) (*Engine, error) {
	e := &Engine{
		webhooks: cfg.Webhooks,
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		if r.Severity == "" {
			r.Severity = "warning"
		}
		if r.Cooldown <= 0 {
			r.Cooldown = defaultCooldown
		}
		nr := rule{AlertRule: r, cond: c}
		if len(r.Backends) > 0 {
			nr.backends = make(map[string]bool, len(r.Backends))
			for _, b := range r.Backends {
				nr.backends[b] = true
			}
		}
		e.rules = append(e.rules, nr)
	}

	e.client = retryablehttp.NewClient()
	e.client.RetryMax = 2
	e.client.RetryWaitMin = 200 * time.Millisecond
	e.client.RetryWaitMax = 2 * time.Second
	e.client.HTTPClient.Timeout = 10 * time.Second
	e.client.Logger = nil

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate tests every rule against every state. Newly firing and newly
// resolved alerts are delivered to the webhooks asynchronously.
func (e *Engine) Evaluate(states map[string]orchestrator.BackendState, uptime UptimeFunc) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for name, st := range states {
		if st.Health == types.HealthUnknown {
			continue
		}
		up := 100.0
		if uptime != nil {
			up = uptime(name)
		}
		for _, r := range e.rules {
			if !r.applies(name) {
				continue
			}
			fires, value := r.cond.eval(st, up)
			if a := e.transition(r, name, fires, value, now); a != nil {
				e.inflight.Add(1)
				go func() {
					defer e.inflight.Done()
					e.deliver(a)
				}()
			}
		}
	}
}

// transition updates the alert for (r, backend) and returns a copy of it
// when it fired or resolved.
func (e *Engine) transition(r rule, backend string, fires bool, value float64, now time.Time) *Alert {
	key := r.Name + ":" + backend

	e.mu.Lock()
	defer e.mu.Unlock()

	a, firing := e.active[key]
	switch {
	case fires && !firing:
		if last, ok := e.lastFire[key]; ok && now.Sub(last) < r.Cooldown {
			return nil
		}
		a = &Alert{
			ID:       uuid.NewString(),
			RuleName: r.Name,
			Backend:  backend,
			Severity: r.Severity,
			Value:    value,
			Message:  fmt.Sprintf("%s fired on %s: %s (value %.2f)", r.Name, backend, r.Condition, value),
			FiredAt:  now,
			State:    StateFiring,
		}
		e.active[key] = a
		e.lastFire[key] = now
		slog.Warn("alert fired", "rule", r.Name, "backend", backend, "severity", r.Severity, "value", value)
		metrics.AlertTransitions.WithLabelValues(r.Name, StateFiring).Inc()
		cp := *a
		return &cp

	case !fires && firing:
		resolved := now
		a.State = StateResolved
		a.ResolvedAt = &resolved
		delete(e.active, key)
		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		slog.Info("alert resolved", "rule", r.Name, "backend", backend)
		metrics.AlertTransitions.WithLabelValues(r.Name, StateResolved).Inc()
		cp := *a
		return &cp
	}
	return nil
}

// Forget drops firing alerts of a backend that is no longer monitored.
func (e *Engine) Forget(backend string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, a := range e.active {
		if a.Backend == backend {
			delete(e.active, key)
		}
	}
}

// Active returns copies of all firing alerts plus those resolved within the
// past hour, newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Wait blocks until all pending webhook deliveries have finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}
