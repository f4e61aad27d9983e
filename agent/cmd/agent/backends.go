package main

import (
	"log/slog"
	"reflect"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/orchestrator"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/probe"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/remediation"
)

// backendSet keeps the orchestrator registry in line with the configured
// backends. It is not safe for concurrent use; the agent applies the initial
// config and every reload from one goroutine at a time.
type backendSet struct {
	o     *orchestrator.Orchestrator
	known map[string]config.Backend

	// onRemove is called after a backend is unregistered.
	onRemove func(name string)
}

func newBackendSet(o *orchestrator.Orchestrator) *backendSet {
	return &backendSet{o: o, known: make(map[string]config.Backend)}
}

// apply registers new and changed backends and unregisters removed ones.
// Unchanged backends keep their probe. A backend whose probe cannot be built
// is skipped and the others still apply.
func (s *backendSet) apply(backends []config.Backend) {
	want := make(map[string]bool, len(backends))
	for _, b := range backends {
		want[b.Name] = true
		if prev, ok := s.known[b.Name]; ok && reflect.DeepEqual(prev, b) {
			continue
		}
		if err := s.register(b); err != nil {
			slog.Error("skipping backend", "backend", b.Name, "kind", b.Kind, "err", err)
			continue
		}
		s.known[b.Name] = b
	}

	for name := range s.known {
		if want[name] {
			continue
		}
		if err := s.o.Unregister(name); err != nil {
			slog.Warn("unregister backend", "backend", name, "err", err)
		}
		delete(s.known, name)
		if s.onRemove != nil {
			s.onRemove(name)
		}
	}
}

func (s *backendSet) register(b config.Backend) error {
	p, err := probe.New(b)
	if err != nil {
		return err
	}
	id := orchestrator.Identity{
		Name:         b.Name,
		Kind:         b.Kind,
		Endpoint:     b.URL(),
		Port:         b.Port,
		Capabilities: b.Capabilities,
	}
	opts := []orchestrator.RegisterOption{
		orchestrator.WithTimeout(b.EffectiveTimeout()),
		orchestrator.WithCooldown(b.Remediation.Cooldown),
	}
	if a := remediation.FromConfig(b, p); a != nil {
		opts = append(opts, orchestrator.WithAction(a))
	}
	return s.o.Register(id, p, opts...)
}

// names returns the configured backend names.
func names(backends []config.Backend) []string {
	out := make([]string, 0, len(backends))
	for _, b := range backends {
		out = append(out, b.Name)
	}
	return out
}
