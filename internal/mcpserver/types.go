package mcpserver

// SearchInput defines inputs for the atom_search MCP tool.
type SearchInput struct {
	Query   string `json:"query" jsonschema:"search query (natural language or keywords)"`
	Mode    string `json:"mode,omitempty" jsonschema:"query mode: entity, path or impact (default entity)"`
	Seed    string `json:"seed,omitempty" jsonschema:"atom ID to expand an impact traversal from"`
	MaxHops int    `json:"max_hops,omitempty" jsonschema:"traversal depth override for path/impact modes"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"number of results to return"`

	Types []string `json:"types,omitempty" jsonschema:"atom types to restrict results to"`
}

// ResultScores includes per-signal scores for a result.
type ResultScores struct {
	Vector   float64 `json:"vector"`
	Graph    float64 `json:"graph"`
	Metadata float64 `json:"metadata"`
	Combined float64 `json:"combined"`
}

// ResultItem is a compact representation of a ranked result.
type ResultItem struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Title       string       `json:"title"`
	Owner       string       `json:"owner,omitempty"`
	Domain      string       `json:"domain,omitempty"`
	Criticality int          `json:"criticality"`
	Snippet     string       `json:"snippet,omitempty"`
	Scores      ResultScores `json:"scores"`
	Sources     []string     `json:"sources"`
	Hop         int          `json:"hop,omitempty"`
	Via         string       `json:"via,omitempty"`
}

// SearchOutput is the output for atom_search.
type SearchOutput struct {
	Query    string       `json:"query"`
	Mode     string       `json:"mode"`
	Count    int          `json:"count"`
	Results  []ResultItem `json:"results"`
	Degraded bool         `json:"degraded"`
	Notes    []string     `json:"notes,omitempty"`
	Seed     string       `json:"seed,omitempty"`
}

// AskInput defines inputs for the atom_ask MCP tool.
type AskInput struct {
	Query   string `json:"query" jsonschema:"question to answer from the catalog"`
	Mode    string `json:"mode,omitempty" jsonschema:"query mode: entity, path or impact (default entity)"`
	Seed    string `json:"seed,omitempty" jsonschema:"atom ID to expand an impact traversal from"`
	MaxHops int    `json:"max_hops,omitempty" jsonschema:"traversal depth override for path/impact modes"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"number of results to ground the answer on"`

	Types []string `json:"types,omitempty" jsonschema:"atom types to restrict grounding to"`
}

// AskCitation ties a passage of the answer to a catalog atom.
type AskCitation struct {
	Ref      int     `json:"ref"`
	RecordID string  `json:"record_id"`
	Title    string  `json:"title"`
	Score    float64 `json:"score"`
	Mode     string  `json:"mode,omitempty"`
}

// AskOutput is the output for atom_ask.
type AskOutput struct {
	Query     string        `json:"query"`
	Answer    string        `json:"answer"`
	Citations []AskCitation `json:"citations"`
	Results   []ResultItem  `json:"results"`
	Degraded  bool          `json:"degraded"`
	Notes     []string      `json:"notes,omitempty"`
	Model     string        `json:"model,omitempty"`
}

// StatusInput defines inputs for the atom_status MCP tool.
type StatusInput struct{}

// IndexStats summarizes the indexed corpus.
type IndexStats struct {
	Atoms      int            `json:"atoms"`
	Records    int            `json:"records"`
	Embeddings int            `json:"embeddings"`
	Edges      int            `json:"edges"`
	ByType     map[string]int `json:"by_type,omitempty"`
}

// StatusOutput is the output for atom_status.
type StatusOutput struct {
	Indexed         bool        `json:"indexed"`
	Stats           *IndexStats `json:"stats,omitempty"`
	OldestIndexedAt string      `json:"oldest_indexed_at,omitempty"`
	StaleAtoms      int         `json:"stale_atoms"`
	IsStale         bool        `json:"is_stale"`
	StaleReason     string      `json:"stale_reason,omitempty"`
	DatabaseSize    string      `json:"database_size,omitempty"`
	LatencyP95Ms    int64       `json:"latency_p95_ms,omitempty"`
}

// ReindexInput defines inputs for the atom_reindex MCP tool.
type ReindexInput struct{}

// ReindexOutput is the output for atom_reindex.
type ReindexOutput struct {
	Added    int      `json:"added"`
	Updated  int      `json:"updated"`
	Removed  int      `json:"removed"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Elapsed  string   `json:"elapsed"`
	Warnings []string `json:"warnings,omitempty"`
}
