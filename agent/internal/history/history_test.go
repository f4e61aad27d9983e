package history

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

func sample(backend string, i int, h types.Health) Sample {
	return Sample{
		Backend:   backend,
		Timestamp: time.Unix(int64(i), 0),
		Status:    types.StatusRunning,
		Health:    h,
		Metrics:   map[string]float64{"seq": float64(i)},
	}
}

func seqs(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Metrics["seq"]
	}
	return out
}

func TestRecent_NewestFirst(t *testing.T) {
	st := New(10)
	for i := 1; i <= 3; i++ {
		st.Append(sample("ipfs", i, types.HealthHealthy))
	}

	got := seqs(st.Recent("ipfs", 0))
	want := []float64{3, 2, 1}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Recent: got seq %v, want %v", got, want)
	}
}

func TestRecent_Limit(t *testing.T) {
	st := New(10)
	for i := 1; i <= 5; i++ {
		st.Append(sample("ipfs", i, types.HealthHealthy))
	}

	got := seqs(st.Recent("ipfs", 2))
	if fmt.Sprint(got) != fmt.Sprint([]float64{5, 4}) {
		t.Errorf("Recent(2): got seq %v, want [5 4]", got)
	}
	if n := len(st.Recent("ipfs", 50)); n != 5 {
		t.Errorf("Recent(50): got %d samples, want 5 (limit above size returns everything)", n)
	}
}

func TestRecent_Unknown(t *testing.T) {
	st := New(10)
	got := st.Recent("nobody", 5)
	if got == nil || len(got) != 0 {
		t.Errorf("Recent(unknown): got %#v, want empty non-nil slice", got)
	}
}

func TestAppend_EvictsOldestFirst(t *testing.T) {
	const capacity = 5
	st := New(capacity)
	for i := 1; i <= 12; i++ {
		st.Append(sample("lotus", i, types.HealthHealthy))
		if n := st.Len("lotus"); n > capacity {
			t.Fatalf("after %d appends Len = %d, want <= %d", i, n, capacity)
		}
	}

	// Oldest surviving sample is #8; #1..#7 were evicted in order.
	got := seqs(st.Recent("lotus", 0))
	if fmt.Sprint(got) != fmt.Sprint([]float64{12, 11, 10, 9, 8}) {
		t.Errorf("Recent: got seq %v, want [12 11 10 9 8]", got)
	}
}

func TestNew_DefaultCapacity(t *testing.T) {
	for _, n := range []int{0, -3} {
		if got := New(n).Capacity(); got != DefaultCapacity {
			t.Errorf("New(%d).Capacity() = %d, want %d", n, got, DefaultCapacity)
		}
	}
}

func TestAppend_CopiesInput(t *testing.T) {
	st := New(3)
	score := 91.0
	s := sample("peers", 1, types.HealthHealthy)
	s.Score = &score
	st.Append(s)

	s.Metrics["seq"] = 999
	score = 1

	got := st.Recent("peers", 1)[0]
	if got.Metrics["seq"] != 1 {
		t.Errorf("metrics leaked from caller: seq = %v, want 1", got.Metrics["seq"])
	}
	if got.Score == nil || *got.Score != 91 {
		t.Errorf("score leaked from caller: got %v, want 91", got.Score)
	}

	// Mutating a returned sample must not leak back into the store either.
	got.Metrics["seq"] = 42
	if v := st.Recent("peers", 1)[0].Metrics["seq"]; v != 1 {
		t.Errorf("metrics leaked from reader: seq = %v, want 1", v)
	}
}

func TestUptimePct(t *testing.T) {
	st := New(10)
	if got := st.UptimePct("none", 10); got != 100 {
		t.Errorf("UptimePct(no samples) = %v, want 100", got)
	}

	st.Append(sample("s3", 1, types.HealthUnhealthy))
	st.Append(sample("s3", 2, types.HealthDegraded))
	st.Append(sample("s3", 3, types.HealthHealthy))
	st.Append(sample("s3", 4, types.HealthError))

	tests := []struct {
		window int
		want   float64
	}{
		{0, 50},
		// Window of 2 covers samples #4 (error) and #3 (healthy).
		{2, 50},
		{1, 0},
	}
	for _, tt := range tests {
		if got := st.UptimePct("s3", tt.window); math.Abs(got-tt.want) > 0.001 {
			t.Errorf("UptimePct(window=%d) = %v, want %v", tt.window, got, tt.want)
		}
	}
}

func TestRemove(t *testing.T) {
	st := New(3)
	st.Append(sample("gone", 1, types.HealthHealthy))
	st.Remove("gone")
	if n := st.Len("gone"); n != 0 {
		t.Errorf("Len after Remove = %d, want 0", n)
	}
	if n := len(st.Recent("gone", 0)); n != 0 {
		t.Errorf("Recent after Remove: got %d samples, want 0", n)
	}
}

func TestConcurrentAppendAndRead(t *testing.T) {
	st := New(20)
	var wg sync.WaitGroup
	for b := 0; b < 5; b++ {
		name := fmt.Sprintf("backend-%d", b)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				st.Append(sample(name, i, types.HealthHealthy))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = st.Recent(name, 5)
			}
		}()
	}
	wg.Wait()

	for b := 0; b < 5; b++ {
		name := fmt.Sprintf("backend-%d", b)
		if n := st.Len(name); n != 20 {
			t.Errorf("%s: Len = %d, want 20", name, n)
		}
	}
}
