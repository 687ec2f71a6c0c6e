package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Chunkys0up7/atomindex/internal/atom"
	"github.com/Chunkys0up7/atomindex/internal/embedding"
	"github.com/Chunkys0up7/atomindex/internal/store"
	"github.com/Chunkys0up7/atomindex/internal/textindex"
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the vector index read side.
type VectorSearcher interface {
	Search(queryVector []float32, topK int, types []string) ([]store.ScoredResult, error)
}

// GraphTraverser is the graph index read side.
type GraphTraverser interface {
	Traverse(seeds []string, opts store.TraversalOptions) ([]store.TraversedNode, error)
}

// KeywordSearcher is the degraded-path fallback index.
type KeywordSearcher interface {
	Search(query string, topK int) ([]textindex.Hit, error)
}

// Options bound candidate generation per mode.
type Options struct {
	// EntityCandidates is the vector candidate pool for entity lookups.
	EntityCandidates int
	// PathSeeds is how many top vector hits seed the path expansion.
	PathSeeds int
	// PathMaxHops bounds the path expansion around each seed.
	PathMaxHops int
	// PathMaxNodes caps the total nodes a path expansion may add.
	PathMaxNodes int
	// ImpactMaxHops bounds the downstream impact traversal.
	ImpactMaxHops int
}

// DefaultOptions returns the standard candidate bounds.
func DefaultOptions() Options {
	return Options{
		EntityCandidates: 30,
		PathSeeds:        5,
		PathMaxHops:      2,
		PathMaxNodes:     50,
		ImpactMaxHops:    3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.EntityCandidates <= 0 {
		o.EntityCandidates = def.EntityCandidates
	}
	if o.PathSeeds <= 0 {
		o.PathSeeds = def.PathSeeds
	}
	if o.PathMaxHops <= 0 {
		o.PathMaxHops = def.PathMaxHops
	}
	if o.PathMaxNodes <= 0 {
		o.PathMaxNodes = def.PathMaxNodes
	}
	if o.ImpactMaxHops <= 0 {
		o.ImpactMaxHops = def.ImpactMaxHops
	}
	return o
}

// Request is one retrieval call.
type Request struct {
	Query string
	Mode  Mode
	// Seed pins the impact traversal to a known atom. When empty, the top
	// vector hit resolves the seed.
	Seed string
	// MaxHops overrides the mode's traversal bound when positive. It is
	// clamped to the store's hard depth cap.
	MaxHops int
	// Types restricts vector candidates to the given atom types. Graph and
	// keyword candidates are filtered at re-rank time against the same list.
	Types []string
}

// Result is the candidate set a retrieval produced, before re-ranking.
type Result struct {
	Candidates []*Candidate
	// Degraded is set when an index outage forced a fallback strategy.
	Degraded bool
	// Notes explain any degradation in operator terms.
	Notes []string
	// Seed is the atom an impact traversal expanded from, when applicable.
	Seed string
}

// Router dispatches a query to the retrieval strategy its mode calls for,
// and falls back to weaker strategies when an index is unavailable.
type Router struct {
	embedder Embedder
	vectors  VectorSearcher
	graph    GraphTraverser
	keyword  KeywordSearcher
	aliases  *AliasExpander
	opts     Options
	logger   *zap.Logger
}

// NewRouter creates a router. aliases may be nil.
func NewRouter(embedder Embedder, vectors VectorSearcher, graph GraphTraverser, keyword KeywordSearcher, aliases *AliasExpander, opts Options, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		embedder: embedder,
		vectors:  vectors,
		graph:    graph,
		keyword:  keyword,
		aliases:  aliases,
		opts:     opts.withDefaults(),
		logger:   logger.With(zap.String("component", "retrieval")),
	}
}

// Retrieve produces candidates for a request. The mode must already be
// validated via ParseMode.
func (r *Router) Retrieve(ctx context.Context, req Request) (*Result, error) {
	query, matches := r.aliases.Expand(req.Query)
	if len(matches) > 0 {
		r.logger.Debug("query expanded",
			zap.String("mode", string(req.Mode)),
			zap.Int("alias_groups", len(matches)),
		)
	}

	switch req.Mode {
	case ModeEntity:
		return r.retrieveEntity(ctx, query, req.Types)
	case ModePath:
		return r.retrievePath(ctx, query, req.MaxHops, req.Types)
	case ModeImpact:
		return r.retrieveImpact(ctx, query, req.Seed, req.MaxHops, req.Types)
	default:
		return nil, fmt.Errorf("unknown query mode %q", req.Mode)
	}
}

// errVectorIndex marks a vector index read failure. Like an embedding
// outage it degrades to the keyword path; a malformed request does not.
var errVectorIndex = errors.New("vector index failed")

// retrieveEntity is vector search alone, with keyword fallback when the
// embedding backend or the vector index is down.
func (r *Router) retrieveEntity(ctx context.Context, query string, types []string) (*Result, error) {
	set := newCandidateSet()
	res := &Result{}

	if err := r.vectorCandidates(ctx, query, types, set); err != nil {
		if !embedding.IsUnavailable(err) && !errors.Is(err, errVectorIndex) {
			return nil, err
		}
		r.logger.Warn("vector index unavailable, falling back to keyword search", zap.Error(err))
		if kerr := r.keywordCandidates(query, set); kerr != nil {
			return nil, fmt.Errorf("vector search unavailable and keyword fallback failed: %w", kerr)
		}
		res.Degraded = true
		res.Notes = append(res.Notes, "vector index unavailable; results from keyword search")
	}

	res.Candidates = set.all()
	return res, nil
}

// retrievePath expands the top vector hits through the graph in both
// directions. A graph outage degrades to the plain vector result.
func (r *Router) retrievePath(ctx context.Context, query string, maxHops int, types []string) (*Result, error) {
	res, err := r.retrieveEntity(ctx, query, types)
	if err != nil {
		return nil, err
	}
	if res.Degraded {
		// No vector seeds worth expanding; the keyword fallback result
		// stands on its own.
		return res, nil
	}

	seeds := topParents(res.Candidates, r.opts.PathSeeds)
	if len(seeds) == 0 {
		return res, nil
	}

	if maxHops <= 0 {
		maxHops = r.opts.PathMaxHops
	}
	nodes, err := r.graph.Traverse(seeds, store.TraversalOptions{
		MaxHops:   maxHops,
		Direction: store.DirectionBoth,
		MaxNodes:  r.opts.PathMaxNodes,
	})
	if err != nil {
		r.logger.Warn("graph traversal failed, returning vector-only results", zap.Error(err))
		res.Degraded = true
		res.Notes = append(res.Notes, "graph index unavailable; relationship expansion skipped")
		return res, nil
	}

	set := newCandidateSet()
	for _, c := range res.Candidates {
		set.addVector(c.RecordID, c.Distance)
	}
	for _, node := range nodes {
		set.addGraph(node.ID, node.Hop, node.Via)
	}
	res.Candidates = set.all()
	return res, nil
}

// retrieveImpact resolves a seed atom and walks its downstream dependents.
// The seed itself is excluded from the result.
func (r *Router) retrieveImpact(ctx context.Context, query, seed string, maxHops int, types []string) (*Result, error) {
	res := &Result{}

	if seed == "" {
		entity, err := r.retrieveEntity(ctx, query, types)
		if err != nil {
			return nil, err
		}
		if entity.Degraded {
			// Without the vector index there is no reliable seed; surface
			// the keyword hits rather than guessing a traversal root.
			entity.Notes = append(entity.Notes, "impact traversal skipped: no seed resolvable")
			return entity, nil
		}
		parents := topParents(entity.Candidates, 1)
		if len(parents) == 0 {
			return res, nil
		}
		seed = parents[0]
	}
	res.Seed = seed

	if maxHops <= 0 {
		maxHops = r.opts.ImpactMaxHops
	}
	nodes, err := r.graph.Traverse([]string{seed}, store.TraversalOptions{
		MaxHops:   maxHops,
		Direction: store.DirectionDownstream,
	})
	if err != nil {
		return nil, fmt.Errorf("impact traversal from %s failed: %w", seed, err)
	}

	set := newCandidateSet()
	for _, node := range nodes {
		if node.ID == seed {
			continue
		}
		set.addGraph(node.ID, node.Hop, node.Via)
	}
	res.Candidates = set.all()
	return res, nil
}

func (r *Router) vectorCandidates(ctx context.Context, query string, types []string, set *candidateSet) error {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.vectors.Search(vec, r.opts.EntityCandidates, types)
	if err != nil {
		return fmt.Errorf("%w: %v", errVectorIndex, err)
	}
	for _, hit := range hits {
		set.addVector(hit.RecordID, hit.Distance)
	}
	return nil
}

func (r *Router) keywordCandidates(query string, set *candidateSet) error {
	hits, err := r.keyword.Search(query, r.opts.EntityCandidates)
	if err != nil {
		return fmt.Errorf("keyword search failed: %w", err)
	}
	for _, hit := range hits {
		set.addKeyword(hit.RecordID, hit.Score)
	}
	return nil
}

// topParents returns the parent atom IDs of the best vector candidates, in
// candidate order, deduplicated.
func topParents(candidates []*Candidate, n int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		if !c.HasSource(SourceVector) {
			continue
		}
		parent := atom.ParentOfChunk(c.RecordID)
		if seen[parent] {
			continue
		}
		seen[parent] = true
		out = append(out, parent)
		if len(out) >= n {
			break
		}
	}
	return out
}
