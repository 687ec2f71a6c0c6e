package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Chunkys0up7/atomindex/internal/atom"
	"github.com/Chunkys0up7/atomindex/internal/store"
	"github.com/Chunkys0up7/atomindex/internal/textindex"
)

// fakeEmbedder returns deterministic vectors and counts calls per text.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls map[string]int
	// failFor makes calls embedding any of these substrings fail.
	failFor []string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{calls: make(map[string]int)}
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		f.calls[text]++
		for _, bad := range f.failFor {
			if strings.Contains(text, bad) {
				return nil, fmt.Errorf("embedding backend rejected text")
			}
		}
		// A crude but stable projection of the text onto 4 dimensions.
		var vec [4]float32
		for j, r := range text {
			vec[j%4] += float32(r%13) / 13
		}
		out[i] = vec[:]
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 4 }

func (f *fakeEmbedder) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func testIndexer(t *testing.T, catalog atom.Catalog, embedder Embedder) (*Indexer, *store.DB, *textindex.Index) {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	text, err := textindex.OpenInMemory()
	if err != nil {
		t.Fatalf("textindex.OpenInMemory: %v", err)
	}
	t.Cleanup(func() { text.Close() })

	ix := New(catalog, embedder, db, text, Options{MaxWorkers: 2, Model: "test"}, nil)
	return ix, db, text
}

func sampleAtoms() []*atom.Atom {
	return []*atom.Atom{
		{
			ID: "proc-onboarding", Type: atom.TypeProcess,
			Title: "Customer Onboarding", Body: "Steps to onboard a customer.",
			Metadata: atom.Metadata{Owner: "ops", Criticality: 3},
			Relations: []atom.Relation{
				{TargetID: "sys-crm", Type: atom.RelationDependsOn},
			},
		},
		{
			ID: "sys-crm", Type: atom.TypeSystem,
			Title: "CRM", Body: "The CRM system.",
			Metadata: atom.Metadata{Owner: "it", Criticality: 4},
		},
		{
			ID: "policy-kyc", Type: atom.TypePolicy,
			Title: "KYC Policy", Body: "Know your customer requirements.",
			Relations: []atom.Relation{
				{TargetID: "proc-onboarding", Type: atom.RelationGoverns},
			},
		},
	}
}

func TestRunIndexesCatalog(t *testing.T) {
	catalog := atom.NewMemoryCatalog(sampleAtoms()...)
	embedder := newFakeEmbedder()
	ix, db, text := testIndexer(t, catalog, embedder)

	report, err := ix.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Added != 3 || report.Updated != 0 || report.Skipped != 0 || report.Failed != 0 {
		t.Errorf("report = %+v, want 3 added", report)
	}

	records := store.NewRecordStore(db)
	count, _ := records.Count()
	if count != 3 {
		t.Errorf("record count = %d, want 3", count)
	}
	vectors := store.NewVectorStore(db)
	vcount, _ := vectors.Count()
	if vcount != 3 {
		t.Errorf("vector count = %d, want 3", vcount)
	}
	graph := store.NewGraphStore(db)
	ecount, _ := graph.Count()
	if ecount != 2 {
		t.Errorf("edge count = %d, want 2", ecount)
	}
	tcount, _ := text.Count()
	if tcount != 3 {
		t.Errorf("text doc count = %d, want 3", tcount)
	}
}

func TestRunIsIncremental(t *testing.T) {
	catalog := atom.NewMemoryCatalog(sampleAtoms()...)
	embedder := newFakeEmbedder()
	ix, _, _ := testIndexer(t, catalog, embedder)

	if _, err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	callsAfterFirst := embedder.totalCalls()

	// Second run with nothing changed: everything skipped, nothing embedded.
	report, err := ix.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Added != 0 || report.Updated != 0 || report.Skipped != 3 {
		t.Errorf("second run report = %+v, want 3 skipped", report)
	}
	if embedder.totalCalls() != callsAfterFirst {
		t.Errorf("unchanged atoms were re-embedded: %d calls after first, %d after second",
			callsAfterFirst, embedder.totalCalls())
	}

	// Touch one atom's body: exactly one update.
	changed, _ := catalog.Get("sys-crm")
	changed.Body = "The CRM system, now with a sales module."
	catalog.Put(changed)

	report, err = ix.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if report.Updated != 1 || report.Skipped != 2 {
		t.Errorf("third run report = %+v, want 1 updated 2 skipped", report)
	}
}

func TestRunMetadataChangeTriggersReindex(t *testing.T) {
	catalog := atom.NewMemoryCatalog(sampleAtoms()...)
	ix, db, _ := testIndexer(t, catalog, newFakeEmbedder())

	if _, err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	changed, _ := catalog.Get("proc-onboarding")
	changed.Metadata.Criticality = 5
	catalog.Put(changed)

	report, err := ix.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Updated != 1 {
		t.Fatalf("report = %+v, want criticality change to reindex", report)
	}

	rec, err := store.NewRecordStore(db).GetByID("proc-onboarding")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Criticality != 5 {
		t.Errorf("stored criticality = %d, want 5", rec.Criticality)
	}
}

func TestRunSweepsRemovedAtoms(t *testing.T) {
	catalog := atom.NewMemoryCatalog(sampleAtoms()...)
	ix, db, text := testIndexer(t, catalog, newFakeEmbedder())

	if _, err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	catalog.Remove("policy-kyc")
	report, err := ix.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Removed != 1 || report.Skipped != 2 {
		t.Errorf("report = %+v, want 1 removed 2 skipped", report)
	}

	records := store.NewRecordStore(db)
	if _, err := records.GetByID("policy-kyc"); err == nil {
		t.Error("record for removed atom still present")
	}
	if has, _ := store.NewVectorStore(db).HasVector("policy-kyc"); has {
		t.Error("vector for removed atom still present")
	}
	// Its declared edge is gone too.
	if in, _ := store.NewGraphStore(db).GetIncoming("proc-onboarding", ""); len(in) != 0 {
		t.Errorf("edges of removed atom survived: %+v", in)
	}
	if hash, _ := store.NewStateStore(db).GetHash("policy-kyc"); hash != "" {
		t.Error("index state for removed atom survived")
	}
	if count, _ := text.Count(); count != 2 {
		t.Errorf("text doc count = %d, want 2", count)
	}
}

func TestRunSkipsInvalidAtoms(t *testing.T) {
	atoms := sampleAtoms()
	atoms = append(atoms, &atom.Atom{ID: "", Title: "orphan"})
	catalog := atom.NewMemoryCatalog(atoms...)
	ix, _, _ := testIndexer(t, catalog, newFakeEmbedder())

	report, err := ix.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Added != 3 || report.Failed != 1 {
		t.Errorf("report = %+v, want 3 added 1 failed", report)
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("warnings = %v, want 1 validation warning", report.Warnings)
	}
	var verr *ValidationError
	if !errors.As(report.Warnings[0], &verr) {
		t.Errorf("warning %T, want *ValidationError", report.Warnings[0])
	}
}

func TestRunFailedAtomRetriesNextRun(t *testing.T) {
	catalog := atom.NewMemoryCatalog(sampleAtoms()...)
	embedder := newFakeEmbedder()
	embedder.failFor = []string{"KYC"}
	ix, db, _ := testIndexer(t, catalog, embedder)

	report, err := ix.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Added != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want 2 added 1 failed", report)
	}

	// The failed atom's hash must not have been committed.
	if hash, _ := store.NewStateStore(db).GetHash("policy-kyc"); hash != "" {
		t.Fatal("hash advanced for an atom that failed to index")
	}

	// Backend recovers: the failed atom is retried and lands as Added.
	embedder.failFor = nil
	report, err = ix.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Added != 1 || report.Skipped != 2 {
		t.Errorf("second run report = %+v, want 1 added 2 skipped", report)
	}
}

func TestRunAbortsAfterConsecutiveFailures(t *testing.T) {
	var atoms []*atom.Atom
	for i := 0; i < 6; i++ {
		atoms = append(atoms, &atom.Atom{
			ID:    fmt.Sprintf("poison-%d", i),
			Type:  atom.TypeGlossary,
			Title: "poison term",
			Body:  "poison body",
		})
	}
	catalog := atom.NewMemoryCatalog(atoms...)
	embedder := newFakeEmbedder()
	embedder.failFor = []string{"poison"}

	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer db.Close()
	text, err := textindex.OpenInMemory()
	if err != nil {
		t.Fatalf("textindex.OpenInMemory: %v", err)
	}
	defer text.Close()

	ix := New(catalog, embedder, db, text, Options{MaxConsecutiveFailures: 3, Model: "test"}, nil)
	report, err := ix.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("Run did not abort on consecutive failures")
	}
	if report.Failed != 3 {
		t.Errorf("report.Failed = %d, want abort after 3", report.Failed)
	}
}

func TestBuildEdgesDirection(t *testing.T) {
	a := &atom.Atom{
		ID: "proc-onboarding",
		Relations: []atom.Relation{
			{TargetID: "sys-crm", Type: atom.RelationDependsOn},
			{TargetID: "policy-kyc", Type: atom.RelationGoverns, Direction: atom.DirectionIn},
		},
	}
	edges := buildEdges(a)
	if len(edges) != 2 {
		t.Fatalf("got %d edges, want 2", len(edges))
	}
	if edges[0].FromID != "proc-onboarding" || edges[0].ToID != "sys-crm" {
		t.Errorf("out edge = %s -> %s", edges[0].FromID, edges[0].ToID)
	}
	// An "in" relation points at the declaring atom.
	if edges[1].FromID != "policy-kyc" || edges[1].ToID != "proc-onboarding" {
		t.Errorf("in edge = %s -> %s", edges[1].FromID, edges[1].ToID)
	}
}

func TestRunChunksLongBodies(t *testing.T) {
	long := strings.Repeat("A paragraph about the retention policy.\n\n", 60)
	catalog := atom.NewMemoryCatalog(&atom.Atom{
		ID: "policy-retention", Type: atom.TypePolicy,
		Title: "Retention Policy", Body: long,
	})

	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer db.Close()
	text, err := textindex.OpenInMemory()
	if err != nil {
		t.Fatalf("textindex.OpenInMemory: %v", err)
	}
	defer text.Close()

	ix := New(catalog, newFakeEmbedder(), db, text, Options{
		ChunkThreshold: 400,
		ChunkSize:      300,
		Model:          "test",
	}, nil)
	if _, err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	records := store.NewRecordStore(db)
	family, err := records.GetByParent("policy-retention")
	if err != nil {
		t.Fatalf("GetByParent: %v", err)
	}
	if len(family) < 3 {
		t.Fatalf("got %d records, want parent plus several chunks", len(family))
	}

	vectors := store.NewVectorStore(db)
	// The parent row carries the record-level aggregate vector.
	if has, _ := vectors.HasVector("policy-retention"); !has {
		t.Error("chunked parent has no aggregate vector")
	}
	chunkVec := 0
	var chunkSum []float32
	for _, rec := range family {
		if !rec.IsChunk() {
			continue
		}
		if rec.ParentID != "policy-retention" {
			t.Errorf("chunk %s parent = %s", rec.ID, rec.ParentID)
		}
		if has, _ := vectors.HasVector(rec.ID); has {
			chunkVec++
		}
		vec, err := vectors.Get(rec.ID)
		if err != nil {
			t.Fatalf("Get(%s): %v", rec.ID, err)
		}
		if chunkSum == nil {
			chunkSum = make([]float32, len(vec))
		}
		for i, x := range vec {
			chunkSum[i] += x
		}
	}
	if chunkVec != len(family)-1 {
		t.Errorf("%d chunk vectors for %d chunks", chunkVec, len(family)-1)
	}

	parentVec, err := vectors.Get("policy-retention")
	if err != nil {
		t.Fatalf("Get(policy-retention): %v", err)
	}
	for i, x := range parentVec {
		want := chunkSum[i] / float32(chunkVec)
		if diff := x - want; diff > 1e-5 || diff < -1e-5 {
			t.Fatalf("aggregate[%d] = %v, want mean of chunk vectors %v", i, x, want)
		}
	}
}
