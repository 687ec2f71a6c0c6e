package retrieval

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Chunkys0up7/atomindex/internal/atom"
	"github.com/Chunkys0up7/atomindex/internal/store"
)

// Weights blend the three ranking signals. They must sum to 1.
type Weights struct {
	Vector   float64
	Graph    float64
	Metadata float64
}

// DefaultWeights returns the standard blend.
func DefaultWeights() Weights {
	return Weights{Vector: 0.6, Graph: 0.3, Metadata: 0.1}
}

// Within metadata, how criticality and recency trade off.
const (
	criticalityShare = 0.7
	recencyShare     = 0.3
	maxCriticality   = 5
)

// RecordLoader resolves record IDs surfaced by the indexes.
type RecordLoader interface {
	GetByID(id string) (*store.Record, error)
}

// Reranker merges candidates from both indexes into one deterministically
// ordered result list.
type Reranker struct {
	records RecordLoader
	weights Weights
	// recencyHalfLife is the age at which the recency signal halves.
	recencyHalfLife time.Duration
	now             func() time.Time
}

// NewReranker creates a reranker. Zero weights fall back to the default
// blend; a zero half-life falls back to 30 days.
func NewReranker(records RecordLoader, weights Weights, recencyHalfLife time.Duration) *Reranker {
	if weights.Vector == 0 && weights.Graph == 0 && weights.Metadata == 0 {
		weights = DefaultWeights()
	}
	if recencyHalfLife <= 0 {
		recencyHalfLife = 30 * 24 * time.Hour
	}
	return &Reranker{
		records:         records,
		weights:         weights,
		recencyHalfLife: recencyHalfLife,
		now:             time.Now,
	}
}

// Rank scores every candidate, collapses chunk hits onto their parent atom
// (keeping the best-scoring one), and returns the top K results. A non-empty
// types list drops candidates whose atom type is not in the list; vector
// candidates arrive pre-filtered, but graph and keyword candidates do not.
// Ordering is total: descending score, then ascending record ID, so equal
// inputs always produce equal output.
func (r *Reranker) Rank(candidates []*Candidate, topK int, types []string) ([]RankedResult, error) {
	if topK <= 0 {
		topK = 10
	}

	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}

	// Best result per parent atom; chunk and whole-atom hits for the same
	// atom compete rather than duplicate.
	best := make(map[string]RankedResult)

	for _, c := range candidates {
		rec, err := r.records.GetByID(c.RecordID)
		if errors.Is(err, store.ErrNotFound) {
			// A candidate the record store no longer knows is a torn state
			// from a concurrent sweep; drop it rather than fail the query.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve candidate %s: %w", c.RecordID, err)
		}
		if len(allowed) > 0 && !allowed[rec.Type] {
			continue
		}

		res := r.score(c, rec)
		parent := rec.ParentID
		if parent == "" {
			parent = atom.ParentOfChunk(rec.ID)
		}

		prev, ok := best[parent]
		if !ok || less(prev, res) {
			best[parent] = res
		}
	}

	results := make([]RankedResult, 0, len(best))
	for _, res := range best {
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool { return less(results[j], results[i]) })

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// less orders a below b: lower score first, ties broken by ID descending so
// that the inverse sort yields ascending IDs among equals.
func less(a, b RankedResult) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Record.ID > b.Record.ID
}

func (r *Reranker) score(c *Candidate, rec *store.Record) RankedResult {
	var vectorScore float64
	if c.HasSource(SourceVector) {
		vectorScore = 1 - clip01(float64(c.Distance))
	} else if c.HasSource(SourceKeyword) {
		// Degraded path: the bleve score stands in for the missing vector
		// signal, squashed into the unit range.
		vectorScore = c.KeywordScore / (1 + c.KeywordScore)
	}

	var graphScore float64
	if c.HasSource(SourceGraph) {
		graphScore = 1 / (1 + float64(c.Hop))
	}

	metadataScore := r.metadataScore(rec)

	score := r.weights.Vector*vectorScore +
		r.weights.Graph*graphScore +
		r.weights.Metadata*metadataScore

	return RankedResult{
		Record:        rec,
		Score:         score,
		VectorScore:   vectorScore,
		GraphScore:    graphScore,
		MetadataScore: metadataScore,
		Sources:       append([]string(nil), c.Sources...),
		Hop:           c.Hop,
		Via:           c.Via,
	}
}

// metadataScore blends criticality with exponential recency decay.
func (r *Reranker) metadataScore(rec *store.Record) float64 {
	crit := clip01(float64(rec.Criticality) / maxCriticality)

	var recency float64
	if !rec.UpdatedAt.IsZero() {
		age := r.now().Sub(rec.UpdatedAt)
		if age < 0 {
			age = 0
		}
		recency = math.Exp2(-age.Hours() / r.recencyHalfLife.Hours())
	}

	return criticalityShare*crit + recencyShare*recency
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// String implements fmt.Stringer for diagnostics.
func (w Weights) String() string {
	return fmt.Sprintf("vector=%.2f graph=%.2f metadata=%.2f", w.Vector, w.Graph, w.Metadata)
}
