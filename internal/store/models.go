package store

import "time"

// Record represents one indexed row: a whole atom or a chunk of one.
// For whole atoms ID equals ParentID.
type Record struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Owner       string    `json:"owner,omitempty"`
	Criticality int       `json:"criticality"`
	Domain      string    `json:"domain,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// IsChunk reports whether the record is a body chunk rather than a whole atom.
func (r *Record) IsChunk() bool {
	return r.ID != r.ParentID
}

// Edge represents a typed directed relation between two atoms.
type Edge struct {
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	EdgeType  string    `json:"edge_type"`
	CreatedAt time.Time `json:"created_at"`
}

// TraversedNode is a node reached by graph traversal, annotated with the
// minimal hop count from the seed set.
type TraversedNode struct {
	ID   string `json:"id"`
	Hop  int    `json:"hop"`
	Via  string `json:"via,omitempty"`  // edge type that first reached this node
	From string `json:"from,omitempty"` // predecessor on the shortest path
}

// IndexState records the last fully indexed content hash for an atom.
type IndexState struct {
	AtomID      string    `json:"atom_id"`
	ContentHash string    `json:"content_hash"`
	ChunkCount  int       `json:"chunk_count"`
	IndexedAt   time.Time `json:"indexed_at"`
}
