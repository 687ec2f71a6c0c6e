package health

import (
	"testing"
	"time"
)

func TestLatencyWindowQuantiles(t *testing.T) {
	w := newLatencyWindow(100)
	for i := 1; i <= 100; i++ {
		w.observe(time.Duration(i) * time.Millisecond)
	}

	p50, p95, p99, n := w.quantiles()
	if n != 100 {
		t.Fatalf("samples = %d, want 100", n)
	}
	if p50 != 50*time.Millisecond {
		t.Errorf("p50 = %v, want 50ms", p50)
	}
	if p95 != 95*time.Millisecond {
		t.Errorf("p95 = %v, want 95ms", p95)
	}
	if p99 != 99*time.Millisecond {
		t.Errorf("p99 = %v, want 99ms", p99)
	}
}

func TestLatencyWindowEmpty(t *testing.T) {
	w := newLatencyWindow(10)
	p50, p95, p99, n := w.quantiles()
	if n != 0 || p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("empty window = (%v, %v, %v, %d), want zeros", p50, p95, p99, n)
	}
}

func TestLatencyWindowSingleSample(t *testing.T) {
	w := newLatencyWindow(10)
	w.observe(7 * time.Millisecond)
	p50, p95, p99, n := w.quantiles()
	if n != 1 {
		t.Fatalf("samples = %d, want 1", n)
	}
	if p50 != 7*time.Millisecond || p95 != 7*time.Millisecond || p99 != 7*time.Millisecond {
		t.Errorf("quantiles = (%v, %v, %v), want the lone sample", p50, p95, p99)
	}
}

func TestLatencyWindowEvictsOldest(t *testing.T) {
	w := newLatencyWindow(4)
	// Slow early samples get pushed out once the ring wraps.
	for _, d := range []time.Duration{900, 900, 900, 900, 1, 2, 3, 4} {
		w.observe(d * time.Millisecond)
	}

	p50, _, p99, n := w.quantiles()
	if n != 4 {
		t.Fatalf("samples = %d, want the ring size 4", n)
	}
	if p50 != 2*time.Millisecond {
		t.Errorf("p50 = %v, want 2ms after eviction", p50)
	}
	if p99 != 4*time.Millisecond {
		t.Errorf("p99 = %v, want 4ms after eviction", p99)
	}
}

func TestQuantileNearestRank(t *testing.T) {
	sorted := []time.Duration{10, 20, 30, 40, 50}
	tests := []struct {
		q    float64
		want time.Duration
	}{
		{0.50, 30},
		{0.95, 50},
		{0.99, 50},
		{0.01, 10},
	}
	for _, tt := range tests {
		if got := quantile(sorted, tt.q); got != tt.want {
			t.Errorf("quantile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
}
