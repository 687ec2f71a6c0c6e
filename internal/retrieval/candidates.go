package retrieval

import "github.com/Chunkys0up7/atomindex/internal/store"

// Candidate source tags. A candidate found by more than one index carries
// all of its tags.
const (
	SourceVector  = "vector"
	SourceGraph   = "graph"
	SourceKeyword = "keyword"
)

// Candidate is one record surfaced by an index before re-ranking.
type Candidate struct {
	RecordID string
	Sources  []string

	// Vector signal: cosine distance in [0, 1]. Meaningful only when the
	// vector source tag is present.
	Distance float32

	// Graph signal: minimal hop count from the seed set, and how the node
	// was first reached. Meaningful only with the graph source tag.
	Hop int
	Via string

	// Keyword signal: bleve score, used only on the degraded path.
	KeywordScore float64
}

// HasSource reports whether the candidate carries the given source tag.
func (c *Candidate) HasSource(source string) bool {
	for _, s := range c.Sources {
		if s == source {
			return true
		}
	}
	return false
}

func (c *Candidate) addSource(source string) {
	if !c.HasSource(source) {
		c.Sources = append(c.Sources, source)
	}
}

// RankedResult is a candidate after re-ranking, resolved to its record.
type RankedResult struct {
	Record *store.Record

	Score         float64
	VectorScore   float64
	GraphScore    float64
	MetadataScore float64

	Sources []string
	Hop     int
	Via     string
}

// candidateSet merges candidates for the same record across indexes.
type candidateSet struct {
	byID  map[string]*Candidate
	order []string
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byID: make(map[string]*Candidate)}
}

func (s *candidateSet) addVector(recordID string, distance float32) {
	c := s.get(recordID)
	c.addSource(SourceVector)
	c.Distance = distance
}

func (s *candidateSet) addGraph(recordID string, hop int, via string) {
	c := s.get(recordID)
	if c.HasSource(SourceGraph) && c.Hop <= hop {
		return
	}
	c.addSource(SourceGraph)
	c.Hop = hop
	c.Via = via
}

func (s *candidateSet) addKeyword(recordID string, score float64) {
	c := s.get(recordID)
	c.addSource(SourceKeyword)
	if score > c.KeywordScore {
		c.KeywordScore = score
	}
}

func (s *candidateSet) get(recordID string) *Candidate {
	if c, ok := s.byID[recordID]; ok {
		return c
	}
	c := &Candidate{RecordID: recordID}
	s.byID[recordID] = c
	s.order = append(s.order, recordID)
	return c
}

func (s *candidateSet) all() []*Candidate {
	out := make([]*Candidate, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *candidateSet) len() int {
	return len(s.order)
}
