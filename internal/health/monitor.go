// Package health reports on index freshness and retrieval quality. All
// snapshots are computed synchronously from local state; there is no
// background collector to fall behind.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Chunkys0up7/atomindex/internal/embedding"
	"github.com/Chunkys0up7/atomindex/internal/store"
)

// Report is a point-in-time health snapshot.
type Report struct {
	IndexedAtoms int   `json:"indexed_atoms"`
	Records      int   `json:"records"`
	Embeddings   int   `json:"embeddings"`
	Edges        int   `json:"edges"`
	SizeBytes    int64 `json:"size_bytes"`

	OldestIndexedAt time.Time `json:"oldest_indexed_at,omitempty"`
	StaleAtoms      int       `json:"stale_atoms"`
	Stale           bool      `json:"stale"`

	LatencyP50 time.Duration `json:"latency_p50"`
	LatencyP95 time.Duration `json:"latency_p95"`
	LatencyP99 time.Duration `json:"latency_p99"`
	Samples    int           `json:"latency_samples"`

	// DuplicateCandidateRate is the share of retrieval candidates that
	// arrived through more than one source since startup.
	DuplicateCandidateRate float64 `json:"duplicate_candidate_rate"`
	CandidatesSampled      int     `json:"candidates_sampled"`
	// NearDuplicateRate is the share of atoms whose embedding sits within
	// the near-duplicate threshold of another atom's.
	NearDuplicateRate float64 `json:"near_duplicate_rate"`

	Backends []BackendStatus `json:"backends,omitempty"`
	// Degraded is set when any backend probe failed.
	Degraded bool `json:"degraded"`
}

// BackendStatus reports one backend's connectivity.
type BackendStatus struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// BackendProbe is a cheap connectivity check for one backend.
type BackendProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Monitor computes health reports over the index stores.
type Monitor struct {
	db         *store.DB
	state      *store.StateStore
	records    *store.RecordStore
	vectors    *store.VectorStore
	staleAfter time.Duration
	latencies  *latencyWindow
	logger     *zap.Logger
	now        func() time.Time

	mu              sync.Mutex
	candidatesSeen  int
	candidatesMulti int
}

// New creates a monitor. staleAfter is the age past which an index entry
// counts as stale; windowSize bounds latency samples.
func New(db *store.DB, staleAfter time.Duration, windowSize int, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &Monitor{
		db:         db,
		state:      store.NewStateStore(db),
		records:    store.NewRecordStore(db),
		vectors:    store.NewVectorStore(db),
		staleAfter: staleAfter,
		latencies:  newLatencyWindow(windowSize),
		logger:     logger.With(zap.String("component", "health")),
		now:        time.Now,
	}
}

// ObserveQuery records one query duration for the latency quantiles.
func (m *Monitor) ObserveQuery(d time.Duration) {
	m.latencies.observe(d)
}

// ObserveCandidates records how many of a query's candidates arrived
// through more than one retrieval source.
func (m *Monitor) ObserveCandidates(total, multiSource int) {
	if total <= 0 {
		return
	}
	m.mu.Lock()
	m.candidatesSeen += total
	m.candidatesMulti += multiSource
	m.mu.Unlock()
}

// CheckBackends runs every probe and reports per-backend connectivity.
// The second return is true when any backend is down.
func (m *Monitor) CheckBackends(ctx context.Context, probes []BackendProbe) ([]BackendStatus, bool) {
	statuses := make([]BackendStatus, 0, len(probes))
	degraded := false
	for _, p := range probes {
		st := BackendStatus{Name: p.Name, OK: true}
		if err := p.Check(ctx); err != nil {
			st.OK = false
			st.Detail = err.Error()
			degraded = true
			m.logger.Warn("backend probe failed",
				zap.String("backend", p.Name), zap.Error(err))
		}
		statuses = append(statuses, st)
	}
	return statuses, degraded
}

// Snapshot assembles a full health report.
func (m *Monitor) Snapshot() (*Report, error) {
	report := &Report{}

	stats, err := m.db.Stats()
	if err != nil {
		return nil, err
	}
	report.Records = int(stats.AtomCount + stats.ChunkCount)
	report.Embeddings = int(stats.EmbeddingCount)
	report.Edges = int(stats.EdgeCount)
	report.SizeBytes = stats.SizeBytes

	states, err := m.state.ListAll()
	if err != nil {
		return nil, err
	}
	report.IndexedAtoms = len(states)

	cutoff := m.now().Add(-m.staleAfter)
	for _, st := range states {
		if report.OldestIndexedAt.IsZero() || st.IndexedAt.Before(report.OldestIndexedAt) {
			report.OldestIndexedAt = st.IndexedAt
		}
		if st.IndexedAt.Before(cutoff) {
			report.StaleAtoms++
		}
	}
	report.Stale = report.StaleAtoms > 0

	report.LatencyP50, report.LatencyP95, report.LatencyP99, report.Samples = m.latencies.quantiles()

	m.mu.Lock()
	report.CandidatesSampled = m.candidatesSeen
	if m.candidatesSeen > 0 {
		report.DuplicateCandidateRate = float64(m.candidatesMulti) / float64(m.candidatesSeen)
	}
	m.mu.Unlock()

	report.NearDuplicateRate, err = m.NearDuplicateRate(nearDuplicateThreshold)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// nearDuplicateThreshold is the embedding similarity above which two atoms
// count as near-duplicate content.
const nearDuplicateThreshold = 0.98

// NearDuplicateRate reports the share of indexed atoms whose embedding is
// within threshold similarity of another atom. Chunked atoms take part
// through their record-level aggregate vector; the scan is pairwise over
// whole-atom vectors.
func (m *Monitor) NearDuplicateRate(threshold float32) (float64, error) {
	ids, err := m.records.ListParentIDs()
	if err != nil {
		return 0, err
	}
	if len(ids) < 2 {
		return 0, nil
	}

	vectors := make(map[string][]float32, len(ids))
	for _, id := range ids {
		vec, err := m.vectors.Get(id)
		if err != nil {
			// A record caught mid-index may not have its vector yet.
			continue
		}
		vectors[id] = vec
	}

	withVec := make([]string, 0, len(vectors))
	for _, id := range ids {
		if _, ok := vectors[id]; ok {
			withVec = append(withVec, id)
		}
	}
	if len(withVec) < 2 {
		return 0, nil
	}

	dup := make(map[string]bool)
	for i := 0; i < len(withVec); i++ {
		for j := i + 1; j < len(withVec); j++ {
			a, b := withVec[i], withVec[j]
			if len(vectors[a]) != len(vectors[b]) {
				continue
			}
			if embedding.Similarity(vectors[a], vectors[b]) >= threshold {
				dup[a] = true
				dup[b] = true
			}
		}
	}

	return float64(len(dup)) / float64(len(withVec)), nil
}

// Probe is one known-answer query for retrieval quality checks.
type Probe struct {
	Query    string `yaml:"query" json:"query"`
	Expected string `yaml:"expected" json:"expected"` // atom ID that should rank first
}

// Searcher runs a query and returns ranked atom IDs, best first.
type Searcher func(ctx context.Context, query string) ([]string, error)

// MRR computes mean reciprocal rank of the expected atom over the probe
// set. Probes whose search fails score zero rather than failing the sweep.
func (m *Monitor) MRR(ctx context.Context, probes []Probe, search Searcher) (float64, error) {
	if len(probes) == 0 {
		return 0, nil
	}

	var sum float64
	for _, probe := range probes {
		ids, err := search(ctx, probe.Query)
		if err != nil {
			m.logger.Warn("probe query failed", zap.String("query", probe.Query), zap.Error(err))
			continue
		}
		for rank, id := range ids {
			if id == probe.Expected {
				sum += 1.0 / float64(rank+1)
				break
			}
		}
	}
	return sum / float64(len(probes)), nil
}

// LoadProbesFile loads a known-answer probe set from a YAML file. A
// missing file is not an error; it means no probes are configured.
func LoadProbesFile(path string) ([]Probe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read probes file: %w", err)
	}
	var f struct {
		Probes []Probe `yaml:"probes"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse probes file: %w", err)
	}
	return f.Probes, nil
}
