package health

import (
	"sort"
	"sync"
	"time"
)

// latencyWindow keeps the most recent query durations in a fixed ring so
// quantiles can be answered synchronously without unbounded memory.
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  bool
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 512
	}
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) observe(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

// quantiles returns P50, P95 and P99 over the window, plus the sample count.
func (w *latencyWindow) quantiles() (p50, p95, p99 time.Duration, n int) {
	w.mu.Lock()
	count := w.next
	if w.filled {
		count = len(w.samples)
	}
	snapshot := make([]time.Duration, count)
	copy(snapshot, w.samples[:count])
	w.mu.Unlock()

	if count == 0 {
		return 0, 0, 0, 0
	}

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i] < snapshot[j] })
	return quantile(snapshot, 0.50), quantile(snapshot, 0.95), quantile(snapshot, 0.99), count
}

// quantile uses nearest-rank on a sorted slice.
func quantile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
