package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/probe"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/remediation"
)

// DefaultProbeTimeout is used when a backend is registered without one.
const DefaultProbeTimeout = 10 * time.Second

// binding is what a registration supplies. It is replaced whole on
// re-registration.
type binding struct {
	identity Identity
	probe    probe.Probe
	action   remediation.Action
	timeout  time.Duration
	cooldown time.Duration
}

// entry is the registry slot of one backend.
type entry struct {
	name  string
	slot  chan struct{}
	bind  atomic.Pointer[binding]
	state atomic.Pointer[BackendState]

	mu sync.Mutex
	// inflight is closed when the running probe returns; nil when idle.
	inflight chan struct{}
}

// acquire marks e as probing and returns the func that clears the mark.
// While an earlier probe is still running it waits for that probe until ctx
// ends, and reports false if it never returned.
func (e *entry) acquire(ctx context.Context) (func(), bool) {
	for {
		e.mu.Lock()
		if e.inflight == nil {
			ch := make(chan struct{})
			e.inflight = ch
			e.mu.Unlock()
			return func() {
				e.mu.Lock()
				e.inflight = nil
				e.mu.Unlock()
				close(ch)
			}, true
		}
		prev := e.inflight
		e.mu.Unlock()

		select {
		case <-prev:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// update publishes a modified copy of the current state. It retries when a
// check publishes concurrently.
func (e *entry) update(fn func(*BackendState)) {
	for {
		cur := e.state.Load()
		next := cur.next()
		fn(&next)
		if e.state.CompareAndSwap(cur, &next) {
			return
		}
	}
}

func newEntry(b *binding) *entry {
	e := &entry{name: b.identity.Name, slot: make(chan struct{}, 1)}
	e.bind.Store(b)
	e.state.Store(initialState(b.identity))
	return e
}

// RegisterOption configures a registration.
type RegisterOption func(*binding)

// WithAction sets the remediation action. Without one, attempts are still
// recorded and cooled down but fail with remediation.ErrNoAction.
func WithAction(a remediation.Action) RegisterOption {
	return func(b *binding) { b.action = a }
}

// WithCooldown overrides the controller's default cooldown.
func WithCooldown(d time.Duration) RegisterOption {
	return func(b *binding) { b.cooldown = d }
}

// WithTimeout sets the probe timeout, clamped to the allowed range.
func WithTimeout(d time.Duration) RegisterOption {
	return func(b *binding) { b.timeout = config.ClampTimeout(d) }
}

// Registry is the set of monitored backends keyed by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// register adds or replaces a backend. Re-registering a name keeps its
// published state and history; the previous probe is closed if it holds
// resources.
func (r *Registry) register(b *binding) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[b.identity.Name]; ok {
		old := e.bind.Swap(b)
		if !sameProbe(old.probe, b.probe) {
			closeProbe(old.probe)
		}
		return e, false
	}
	e := newEntry(b)
	r.entries[b.identity.Name] = e
	return e, true
}

// unregister removes name and closes its probe.
func (r *Registry) unregister(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if ok {
		closeProbe(e.bind.Load().probe)
	}
	return ok
}

func (r *Registry) get(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// snapshot returns the current entries sorted by name.
func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	entries := r.snapshot()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close closes every probe that holds resources and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	var errs []error
	for name, e := range entries {
		if c, ok := e.bind.Load().probe.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// sameProbe reports whether a and b are the same probe value. Probes of an
// uncomparable type are never the same.
func sameProbe(a, b probe.Probe) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func closeProbe(p probe.Probe) {
	if c, ok := p.(io.Closer); ok {
		_ = c.Close()
	}
}
