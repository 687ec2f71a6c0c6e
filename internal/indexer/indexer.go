// Package indexer keeps the vector, graph and keyword indexes in step with
// the atom catalog. Runs are incremental: an atom is re-embedded only when
// its content hash changed, and its hash is advanced only after every index
// write for it succeeded.
package indexer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Chunkys0up7/atomindex/internal/atom"
	"github.com/Chunkys0up7/atomindex/internal/chunker"
	"github.com/Chunkys0up7/atomindex/internal/store"
	"github.com/Chunkys0up7/atomindex/internal/textindex"
)

// Embedder generates embeddings for record texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Options control an index run.
type Options struct {
	MaxWorkers             int
	ChunkThreshold         int
	ChunkSize              int
	ChunkSimilarity        float32
	MaxConsecutiveFailures int
	Model                  string
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 4
	}
	if o.ChunkThreshold <= 0 {
		o.ChunkThreshold = 4000
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1500
	}
	if o.ChunkSimilarity <= 0 || o.ChunkSimilarity > 1 {
		o.ChunkSimilarity = 0.8
	}
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = 5
	}
	return o
}

// Report summarizes an index run.
type Report struct {
	Added    int
	Updated  int
	Removed  int
	Skipped  int
	Failed   int
	Elapsed  time.Duration
	Warnings []error
}

// Indexer synchronizes the indexes with a catalog. All mutation goes through
// Run, which holds an internal lock: there is exactly one writer at a time.
type Indexer struct {
	catalog  atom.Catalog
	embedder Embedder
	records  *store.RecordStore
	vectors  *store.VectorStore
	graph    *store.GraphStore
	state    *store.StateStore
	text     *textindex.Index
	opts     Options
	logger   *zap.Logger

	mu sync.Mutex
}

// New creates an indexer over the given stores.
func New(catalog atom.Catalog, embedder Embedder, db *store.DB, text *textindex.Index, opts Options, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		catalog:  catalog,
		embedder: embedder,
		records:  store.NewRecordStore(db),
		vectors:  store.NewVectorStore(db),
		graph:    store.NewGraphStore(db),
		state:    store.NewStateStore(db),
		text:     text,
		opts:     opts.withDefaults(),
		logger:   logger.With(zap.String("component", "indexer")),
	}
}

// plan holds the work for one changed atom.
type plan struct {
	atom    *atom.Atom
	hash    string
	isNew   bool
	chunks  []atom.Chunk
	texts   []string
	vectors [][]float32
	err     error
}

// Run performs one incremental pass: changed atoms are re-embedded and
// rewritten, unchanged atoms are skipped, and atoms that left the catalog
// are swept from every index. progress may be nil.
func (ix *Indexer) Run(ctx context.Context, progress ProgressReporter) (*Report, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()
	report := &Report{}
	warnings := &warningCollector{}

	atoms, err := ix.catalog.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}

	// Validate first so a malformed record costs one report entry, not the
	// whole run.
	valid := make([]*atom.Atom, 0, len(atoms))
	present := make(map[string]bool, len(atoms))
	for _, a := range atoms {
		if err := a.Validate(); err != nil {
			verr := &ValidationError{AtomID: a.ID, Err: err}
			warnings.add(verr)
			report.Failed++
			ix.logger.Warn("skipping invalid atom", zap.String("atom", a.ID), zap.Error(err))
			continue
		}
		valid = append(valid, a)
		present[a.ID] = true
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].ID < valid[j].ID })

	// Change detection against the committed hash ledger.
	var plans []*plan
	for _, a := range valid {
		hash := a.ContentHash()
		prev, err := ix.state.GetHash(a.ID)
		if err != nil {
			return nil, err
		}
		if prev == hash {
			report.Skipped++
			continue
		}
		plans = append(plans, &plan{atom: a, hash: hash, isNew: prev == ""})
	}

	// Atoms that left the catalog since the last run.
	var removals []string
	states, err := ix.state.ListAll()
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		if !present[st.AtomID] {
			removals = append(removals, st.AtomID)
		}
	}

	if progress != nil {
		progress.Start(len(plans) + len(removals))
		defer progress.Finish()
	}

	ix.logger.Info("index run planned",
		zap.Int("catalog", len(atoms)),
		zap.Int("changed", len(plans)),
		zap.Int("unchanged", report.Skipped),
		zap.Int("removals", len(removals)),
	)

	// Embedding is the slow phase; fan out with a bounded worker pool.
	// Failures are recorded per plan so one bad atom cannot sink the run.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.MaxWorkers)
	for _, p := range plans {
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				p.err = err
				return nil
			}
			ix.embedPlan(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	// Writes are sequential in atom order so runs are deterministic and the
	// consecutive-failure breaker sees a stable sequence.
	consecutive := 0
	for _, p := range plans {
		stage := "embed"
		err := p.err
		if err == nil {
			stage, err = ix.writePlan(p)
		}
		if progress != nil {
			progress.Increment()
		}
		if err != nil {
			cerr := &ConsistencyError{AtomID: p.atom.ID, Stage: stage, Err: err}
			warnings.add(cerr)
			report.Failed++
			consecutive++
			ix.logger.Warn("atom left for retry", zap.String("atom", p.atom.ID), zap.String("stage", stage), zap.Error(err))
			if consecutive >= ix.opts.MaxConsecutiveFailures {
				report.Warnings = warnings.all()
				report.Elapsed = time.Since(start)
				return report, fmt.Errorf("aborting after %d consecutive failures, last: %w", consecutive, err)
			}
			continue
		}
		consecutive = 0
		if p.isNew {
			report.Added++
		} else {
			report.Updated++
		}
	}

	for _, id := range removals {
		if err := ix.removeAtom(id); err != nil {
			warnings.add(&ConsistencyError{AtomID: id, Stage: "remove", Err: err})
			report.Failed++
		} else {
			report.Removed++
		}
		if progress != nil {
			progress.Increment()
		}
	}

	report.Warnings = warnings.all()
	report.Elapsed = time.Since(start)

	ix.logger.Info("index run finished",
		zap.Int("added", report.Added),
		zap.Int("updated", report.Updated),
		zap.Int("removed", report.Removed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)

	return report, nil
}

// embedPlan chunks the atom body and generates embeddings. Results land on
// the plan; failures land on plan.err. Chunk boundaries come from adjacent-
// unit similarity; an embedder outage during boundary scoring degrades to
// structural splitting and only the final embedding pass can fail the atom.
func (ix *Indexer) embedPlan(ctx context.Context, p *plan) {
	p.chunks = chunker.SplitSemantic(ctx, p.atom, chunker.Options{
		Threshold:           ix.opts.ChunkThreshold,
		ChunkSize:           ix.opts.ChunkSize,
		SimilarityThreshold: ix.opts.ChunkSimilarity,
	}, ix.embedder)

	if len(p.chunks) == 0 {
		p.texts = []string{embeddingText(p.atom.Title, p.atom.Body)}
	} else {
		p.texts = make([]string, len(p.chunks))
		for i, c := range p.chunks {
			title := p.atom.Title
			if c.Title != "" {
				title = title + " / " + c.Title
			}
			p.texts[i] = embeddingText(title, c.Text)
		}
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, p.texts)
	if err != nil {
		p.err = err
		return
	}
	if len(vectors) != len(p.texts) {
		p.err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(p.texts))
		return
	}
	p.vectors = vectors
}

// writePlan pushes one atom into every index. The content hash is committed
// last; any earlier failure leaves the old hash so the next run retries.
func (ix *Indexer) writePlan(p *plan) (string, error) {
	a := p.atom

	records := buildRecords(a, p.chunks)

	if err := ix.clearAtom(a.ID); err != nil {
		return "records", err
	}
	if err := ix.records.UpsertBatch(records); err != nil {
		return "records", err
	}

	// Chunked atoms get one vector per chunk plus a record-level aggregate
	// on the parent row, so whole-atom lookups see every atom.
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	vecs := p.vectors
	if len(p.chunks) > 0 {
		vecs = make([][]float32, 0, len(p.vectors)+1)
		vecs = append(vecs, aggregateVector(p.vectors))
		vecs = append(vecs, p.vectors...)
	}
	if err := ix.vectors.InsertBatch(ids, vecs, ix.opts.Model); err != nil {
		return "vectors", err
	}

	if err := ix.graph.ReplaceForAtom(a.ID, buildEdges(a)); err != nil {
		return "graph", err
	}

	// The text index carries the chunk docs for chunked atoms; the parent
	// body would only duplicate them.
	textRecords := records
	if len(p.chunks) > 0 {
		textRecords = records[1:]
	}
	for _, rec := range textRecords {
		if err := ix.text.IndexRecord(rec); err != nil {
			return "text", err
		}
	}

	if err := ix.state.Commit(a.ID, p.hash, len(p.chunks)); err != nil {
		return "state", err
	}
	return "", nil
}

func (ix *Indexer) clearAtom(atomID string) error {
	if err := ix.vectors.DeleteByParent(atomID); err != nil {
		return err
	}
	if err := ix.text.DeleteByParent(atomID); err != nil {
		return err
	}
	return ix.records.DeleteByParent(atomID)
}

// removeAtom sweeps an atom out of every index after it left the catalog.
func (ix *Indexer) removeAtom(atomID string) error {
	if err := ix.clearAtom(atomID); err != nil {
		return err
	}
	if err := ix.graph.DeleteByAtom(atomID); err != nil {
		return err
	}
	ix.logger.Info("removed atom", zap.String("atom", atomID))
	return ix.state.Delete(atomID)
}

// buildRecords produces the parent row plus one row per chunk. Chunk rows
// inherit the parent's metadata so re-ranking can score them directly.
// aggregateVector is the element-wise mean of the chunk vectors, standing
// in as the parent record's whole-atom embedding.
func aggregateVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float32, len(vectors[0]))
	n := 0
	for _, v := range vectors {
		if len(v) != len(out) {
			continue
		}
		for i, x := range v {
			out[i] += x
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range out {
		out[i] /= float32(n)
	}
	return out
}

func buildRecords(a *atom.Atom, chunks []atom.Chunk) []*store.Record {
	parent := &store.Record{
		ID:          a.ID,
		ParentID:    a.ID,
		Type:        a.Type,
		Title:       a.Title,
		Body:        a.Body,
		Owner:       a.Metadata.Owner,
		Criticality: a.Metadata.Criticality,
		Domain:      a.Metadata.Domain,
		Tags:        a.Metadata.Tags,
		UpdatedAt:   a.Metadata.UpdatedAt,
	}

	records := make([]*store.Record, 0, len(chunks)+1)
	records = append(records, parent)
	for _, c := range chunks {
		title := a.Title
		if c.Title != "" {
			title = title + " / " + c.Title
		}
		records = append(records, &store.Record{
			ID:          c.ChunkID,
			ParentID:    a.ID,
			Type:        a.Type,
			Title:       title,
			Body:        c.Text,
			Owner:       a.Metadata.Owner,
			Criticality: a.Metadata.Criticality,
			Domain:      a.Metadata.Domain,
			Tags:        a.Metadata.Tags,
			UpdatedAt:   a.Metadata.UpdatedAt,
		})
	}
	return records
}

// buildEdges normalizes relations into directed edges. A relation declared
// with direction "in" becomes an edge pointing at this atom.
func buildEdges(a *atom.Atom) []*store.Edge {
	edges := make([]*store.Edge, 0, len(a.Relations))
	for _, rel := range a.Relations {
		from, to := a.ID, rel.TargetID
		if rel.Direction == atom.DirectionIn {
			from, to = to, from
		}
		edges = append(edges, &store.Edge{FromID: from, ToID: to, EdgeType: rel.Type})
	}
	return edges
}

func embeddingText(title, body string) string {
	if title == "" {
		return body
	}
	return title + "\n\n" + body
}
