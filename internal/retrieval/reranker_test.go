package retrieval

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/Chunkys0up7/atomindex/internal/store"
)

// fakeRecords is a RecordLoader over a fixed map.
type fakeRecords map[string]*store.Record

func (f fakeRecords) GetByID(id string) (*store.Record, error) {
	rec, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return rec, nil
}

// failingRecords fails every lookup with a non-not-found error.
type failingRecords struct{}

func (failingRecords) GetByID(id string) (*store.Record, error) {
	return nil, fmt.Errorf("database is locked")
}

func testReranker(records fakeRecords) *Reranker {
	r := NewReranker(records, DefaultWeights(), 30*24*time.Hour)
	// Pin the clock so recency scores are reproducible.
	r.now = func() time.Time { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) }
	return r
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	records := fakeRecords{
		"near": {ID: "near", ParentID: "near"},
		"far":  {ID: "far", ParentID: "far"},
	}
	r := testReranker(records)

	results, err := r.Rank([]*Candidate{
		{RecordID: "far", Sources: []string{SourceVector}, Distance: 0.9},
		{RecordID: "near", Sources: []string{SourceVector}, Distance: 0.1},
	}, 10, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Record.ID != "near" || results[1].Record.ID != "far" {
		t.Errorf("order = [%s %s], want [near far]", results[0].Record.ID, results[1].Record.ID)
	}
}

func TestRankTiesBreakByAscendingID(t *testing.T) {
	records := fakeRecords{
		"b": {ID: "b", ParentID: "b"},
		"a": {ID: "a", ParentID: "a"},
		"c": {ID: "c", ParentID: "c"},
	}
	r := testReranker(records)

	candidates := []*Candidate{
		{RecordID: "c", Sources: []string{SourceVector}, Distance: 0.5},
		{RecordID: "a", Sources: []string{SourceVector}, Distance: 0.5},
		{RecordID: "b", Sources: []string{SourceVector}, Distance: 0.5},
	}
	results, err := r.Rank(candidates, 10, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	got := []string{results[0].Record.ID, results[1].Record.ID, results[2].Record.ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie order = %v, want %v", got, want)
		}
	}
}

func TestRankCollapsesChunksOntoParent(t *testing.T) {
	records := fakeRecords{
		"doc#0": {ID: "doc#0", ParentID: "doc"},
		"doc#3": {ID: "doc#3", ParentID: "doc"},
		"other": {ID: "other", ParentID: "other"},
	}
	r := testReranker(records)

	results, err := r.Rank([]*Candidate{
		{RecordID: "doc#0", Sources: []string{SourceVector}, Distance: 0.4},
		{RecordID: "doc#3", Sources: []string{SourceVector}, Distance: 0.1},
		{RecordID: "other", Sources: []string{SourceVector}, Distance: 0.2},
	}, 10, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want chunk hits collapsed to 2", len(results))
	}
	// The best chunk of doc beats other.
	if results[0].Record.ID != "doc#3" {
		t.Errorf("top result = %s, want doc#3", results[0].Record.ID)
	}
}

func TestRankTypeFilter(t *testing.T) {
	records := fakeRecords{
		"proc": {ID: "proc", ParentID: "proc", Type: "process"},
		"sys":  {ID: "sys", ParentID: "sys", Type: "system"},
	}
	r := testReranker(records)

	// Graph candidates are not pre-filtered by the vector index, so the
	// filter must hold here too.
	results, err := r.Rank([]*Candidate{
		{RecordID: "proc", Sources: []string{SourceVector}, Distance: 0.1},
		{RecordID: "sys", Sources: []string{SourceGraph}, Hop: 1},
	}, 10, []string{"process"})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != "proc" {
		t.Errorf("results = %+v, want only proc", results)
	}
}

func TestRankScoreBlend(t *testing.T) {
	updated := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) // zero age at the pinned clock
	records := fakeRecords{
		"x": {ID: "x", ParentID: "x", Criticality: 5, UpdatedAt: updated},
	}
	r := testReranker(records)

	results, err := r.Rank([]*Candidate{
		{RecordID: "x", Sources: []string{SourceVector, SourceGraph}, Distance: 0.2, Hop: 1},
	}, 10, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	res := results[0]

	if got, want := res.VectorScore, 0.8; math.Abs(got-want) > 1e-9 {
		t.Errorf("VectorScore = %v, want %v", got, want)
	}
	if got, want := res.GraphScore, 0.5; math.Abs(got-want) > 1e-9 {
		t.Errorf("GraphScore = %v, want %v", got, want)
	}
	// Full criticality and zero age: 0.7*1 + 0.3*1.
	if got, want := res.MetadataScore, 1.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("MetadataScore = %v, want %v", got, want)
	}
	want := 0.6*0.8 + 0.3*0.5 + 0.1*1.0
	if math.Abs(res.Score-want) > 1e-9 {
		t.Errorf("Score = %v, want %v", res.Score, want)
	}
}

func TestRankKeywordFallbackScore(t *testing.T) {
	records := fakeRecords{
		"k": {ID: "k", ParentID: "k"},
	}
	r := testReranker(records)

	results, err := r.Rank([]*Candidate{
		{RecordID: "k", Sources: []string{SourceKeyword}, KeywordScore: 3},
	}, 10, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	// The bleve score squashed into the unit range: 3/(1+3).
	if got, want := results[0].VectorScore, 0.75; math.Abs(got-want) > 1e-9 {
		t.Errorf("VectorScore = %v, want %v", got, want)
	}
}

func TestRankRecencyDecay(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	records := fakeRecords{
		"fresh": {ID: "fresh", ParentID: "fresh", UpdatedAt: now},
		"stale": {ID: "stale", ParentID: "stale", UpdatedAt: now.Add(-30 * 24 * time.Hour)},
		"never": {ID: "never", ParentID: "never"},
	}
	r := testReranker(records)

	score := func(id string) float64 {
		results, err := r.Rank([]*Candidate{
			{RecordID: id, Sources: []string{SourceVector}, Distance: 0},
		}, 1, nil)
		if err != nil {
			t.Fatalf("Rank(%s): %v", id, err)
		}
		return results[0].MetadataScore
	}

	if got, want := score("fresh"), 0.3; math.Abs(got-want) > 1e-9 {
		t.Errorf("fresh metadata = %v, want %v", got, want)
	}
	// One half-life old: recency halves.
	if got, want := score("stale"), 0.15; math.Abs(got-want) > 1e-9 {
		t.Errorf("stale metadata = %v, want %v", got, want)
	}
	if got := score("never"); got != 0 {
		t.Errorf("zero-time metadata = %v, want 0", got)
	}
}

func TestRankTopKTruncates(t *testing.T) {
	records := fakeRecords{}
	var candidates []*Candidate
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("rec-%02d", i)
		records[id] = &store.Record{ID: id, ParentID: id}
		candidates = append(candidates, &Candidate{
			RecordID: id, Sources: []string{SourceVector}, Distance: float32(i) / 20,
		})
	}
	r := testReranker(records)

	results, err := r.Rank(candidates, 5, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("got %d results, want 5", len(results))
	}
	if results[0].Record.ID != "rec-00" {
		t.Errorf("top result = %s, want rec-00", results[0].Record.ID)
	}
}

func TestRankDropsUnresolvableCandidates(t *testing.T) {
	records := fakeRecords{
		"live": {ID: "live", ParentID: "live"},
	}
	r := testReranker(records)

	results, err := r.Rank([]*Candidate{
		{RecordID: "gone", Sources: []string{SourceVector}, Distance: 0},
		{RecordID: "live", Sources: []string{SourceVector}, Distance: 0.5},
	}, 10, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != "live" {
		t.Errorf("results = %+v, want the swept candidate dropped", results)
	}
}

func TestRankPropagatesStoreFailure(t *testing.T) {
	r := testReranker(nil)
	r.records = failingRecords{}

	_, err := r.Rank([]*Candidate{
		{RecordID: "a", Sources: []string{SourceVector}, Distance: 0},
	}, 10, nil)
	if err == nil {
		t.Fatal("Rank swallowed a store failure")
	}
}
