package history

import (
	"maps"
	"sync"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

// DefaultCapacity is the number of samples kept per backend when the caller
// does not choose one.
const DefaultCapacity = 100

// Sample is one point in a backend's history.
type Sample struct {
	Backend   string             `json:"backend"`
	Timestamp time.Time          `json:"timestamp"`
	Status    types.Status       `json:"status"`
	Health    types.Health       `json:"health"`
	Score     *float64           `json:"score,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// clone returns a deep copy of s so callers cannot alias stored data.
func (s Sample) clone() Sample {
	s.Metrics = maps.Clone(s.Metrics)
	if s.Score != nil {
		v := *s.Score
		s.Score = &v
	}
	return s
}

// ring is a fixed-capacity circular buffer. next is the slot the next
// sample is written to; size counts occupied slots.
type ring struct {
	buf  []Sample
	next int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Sample, capacity)}
}

func (r *ring) push(s Sample) {
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// newest returns up to limit samples, most recent first.
func (r *ring) newest(limit int) []Sample {
	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx].clone())
	}
	return out
}

// Store is a thread-safe collection of per-backend rings.
type Store struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*ring
}

// New creates a Store that keeps at most capacity samples per backend.
// A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Capacity returns the per-backend sample limit.
func (s *Store) Capacity() int { return s.capacity }

// Append records sample for sample.Backend, evicting the oldest sample when
// the ring is full.
func (s *Store) Append(sample Sample) {
	sample = sample.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rings[sample.Backend]
	if !ok {
		r = newRing(s.capacity)
		s.rings[sample.Backend] = r
	}
	r.push(sample)
}

// Recent returns up to limit samples for backend, most recent first. A
// non-positive limit returns every stored sample. Unknown or never-probed
// backends yield an empty, non-nil slice.
func (s *Store) Recent(backend string, limit int) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[backend]
	if !ok {
		return []Sample{}
	}
	return r.newest(limit)
}

// Len returns the number of samples stored for backend.
func (s *Store) Len(backend string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rings[backend]; ok {
		return r.size
	}
	return 0
}

// UptimePct returns the percentage of the last window samples whose health
// was healthy or degraded. It returns 100 when no samples exist, assuming a
// backend is up before its first observation.
func (s *Store) UptimePct(backend string, window int) float64 {
	samples := s.Recent(backend, window)
	if len(samples) == 0 {
		return 100
	}
	var up int
	for _, smp := range samples {
		if smp.Health == types.HealthHealthy || smp.Health == types.HealthDegraded {
			up++
		}
	}
	return float64(up) / float64(len(samples)) * 100
}

// Remove drops all samples for backend.
func (s *Store) Remove(backend string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, backend)
}
