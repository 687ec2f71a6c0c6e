// Package mcpserver exposes the retrieval engine over MCP stdio so agent
// clients can search the catalog and ask cited questions.
package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Chunkys0up7/atomindex/internal/engine"
	"github.com/Chunkys0up7/atomindex/internal/retrieval"
)

const snippetLimit = 280

// Server exposes atomindex search and answers via MCP stdio.
type Server struct {
	engine  *engine.Engine
	version string
}

// New creates a new MCP server wrapper around an assembled engine.
func New(eng *engine.Engine, version string) *Server {
	return &Server{
		engine:  eng,
		version: version,
	}
}

// Run starts the MCP stdio server.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "atomindex",
		Title:   "AtomIndex",
		Version: s.version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "atom_search",
		Description: `Search the documentation catalog (processes, policies, controls, datasets, systems, glossary terms).

Query modes:
- "entity": Find the atoms most similar to the query (default)
- "path": Find atoms plus their graph neighborhood (dependencies, feeds, governance)
- "impact": Find everything downstream of an atom; pass "seed" to pin the starting atom

Results carry per-signal scores (vector, graph, metadata). A "degraded" flag
with notes means an index was unavailable and a weaker strategy served the query.`,
	}, s.searchTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "atom_ask",
		Description: `Answer a question from the documentation catalog with citations.

Retrieves per the chosen mode (entity, path, impact), re-ranks, and generates
a cited answer over the top results. Every citation refers to a real catalog
atom; when the answer model is unavailable the response degrades to an
extractive summary rather than failing.`,
	}, s.askTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "atom_status",
		Description: `Check the health of the atom index.

Returns:
- Whether anything is indexed
- Index statistics (atoms, records, embeddings, edges, counts by type)
- Staleness indicator with the oldest index time
- Query latency P95 over the current process

Use this to verify index freshness before relying on search results.`,
	}, s.statusTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "atom_reindex",
		Description: `Run one incremental index pass over the catalog.

Only atoms whose content changed are re-embedded; unchanged atoms are skipped
and atoms deleted from the catalog are swept from the index. Safe to call
repeatedly.`,
	}, s.reindexTool)

	return server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) searchTool(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, fmt.Errorf("query is required")
	}

	res, err := s.engine.Query(ctx, engine.QueryRequest{
		Query:   input.Query,
		Mode:    input.Mode,
		Seed:    input.Seed,
		MaxHops: input.MaxHops,
		TopK:    input.TopK,
		Types:   input.Types,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Query:    input.Query,
		Mode:     string(res.Mode),
		Count:    len(res.Results),
		Results:  mapResults(res.Results),
		Degraded: res.Degraded,
		Notes:    res.Notes,
		Seed:     res.Seed,
	}
	return nil, output, nil
}

func (s *Server) askTool(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if input.Query == "" {
		return nil, AskOutput{}, fmt.Errorf("query is required")
	}

	res, err := s.engine.Query(ctx, engine.QueryRequest{
		Query:   input.Query,
		Mode:    input.Mode,
		Seed:    input.Seed,
		MaxHops: input.MaxHops,
		TopK:    input.TopK,
		Types:   input.Types,
		Answer:  true,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Query:    input.Query,
		Results:  mapResults(res.Results),
		Degraded: res.Degraded,
		Notes:    res.Notes,
	}
	if res.Answer != nil {
		output.Answer = res.Answer.Text
		output.Model = res.Answer.Model
		output.Citations = make([]AskCitation, 0, len(res.Answer.Citations))
		for _, c := range res.Answer.Citations {
			output.Citations = append(output.Citations, AskCitation{
				Ref:      c.Ref,
				RecordID: c.RecordID,
				Title:    c.Title,
				Score:    c.Score,
				Mode:     c.Mode,
			})
		}
	}
	return nil, output, nil
}

func (s *Server) statusTool(ctx context.Context, _ *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	report, err := s.engine.Health(ctx)
	if err != nil {
		return nil, StatusOutput{
			Indexed:     false,
			IsStale:     true,
			StaleReason: fmt.Sprintf("Failed to read index state: %v", err),
		}, nil
	}

	output := StatusOutput{
		Indexed:      report.IndexedAtoms > 0,
		StaleAtoms:   report.StaleAtoms,
		IsStale:      report.Stale,
		DatabaseSize: formatBytes(report.SizeBytes),
		LatencyP95Ms: report.LatencyP95.Milliseconds(),
	}

	if !output.Indexed {
		output.IsStale = true
		output.StaleReason = "Catalog not indexed. Run 'atomindex index' to index it."
		return nil, output, nil
	}

	stats, err := s.engine.Stats()
	if err == nil {
		output.Stats = &IndexStats{
			Atoms:      int(stats.DB.AtomCount),
			Records:    int(stats.DB.AtomCount + stats.DB.ChunkCount),
			Embeddings: int(stats.DB.EmbeddingCount),
			Edges:      int(stats.DB.EdgeCount),
			ByType:     stats.ByType,
		}
	}

	if !report.OldestIndexedAt.IsZero() {
		output.OldestIndexedAt = report.OldestIndexedAt.UTC().Format(time.RFC3339)
		age := time.Since(report.OldestIndexedAt)
		if report.Stale {
			output.StaleReason = fmt.Sprintf("Oldest index entry is %s old. Run 'atomindex index' to refresh.", formatDuration(age))
		}
	}
	return nil, output, nil
}

func (s *Server) reindexTool(ctx context.Context, _ *mcp.CallToolRequest, input ReindexInput) (*mcp.CallToolResult, ReindexOutput, error) {
	report, err := s.engine.Reindex(ctx, nil)
	if err != nil {
		return nil, ReindexOutput{}, err
	}

	output := ReindexOutput{
		Added:   report.Added,
		Updated: report.Updated,
		Removed: report.Removed,
		Skipped: report.Skipped,
		Failed:  report.Failed,
		Elapsed: report.Elapsed.Round(time.Millisecond).String(),
	}
	for _, w := range report.Warnings {
		output.Warnings = append(output.Warnings, w.Error())
	}
	return nil, output, nil
}

func mapResults(results []retrieval.RankedResult) []ResultItem {
	items := make([]ResultItem, 0, len(results))
	for _, result := range results {
		if result.Record == nil {
			continue
		}
		rec := result.Record
		items = append(items, ResultItem{
			ID:          rec.ID,
			Type:        rec.Type,
			Title:       rec.Title,
			Owner:       rec.Owner,
			Domain:      rec.Domain,
			Criticality: rec.Criticality,
			Snippet:     snippet(rec.Body),
			Scores: ResultScores{
				Vector:   result.VectorScore,
				Graph:    result.GraphScore,
				Metadata: result.MetadataScore,
				Combined: result.Score,
			},
			Sources: result.Sources,
			Hop:     result.Hop,
			Via:     result.Via,
		})
	}
	return items
}

// snippet trims a record body to the first paragraph, bounded in runes.
func snippet(body string) string {
	body = strings.TrimSpace(body)
	if idx := strings.Index(body, "\n\n"); idx > 0 {
		body = body[:idx]
	}
	if utf8.RuneCountInString(body) <= snippetLimit {
		return body
	}
	runes := []rune(body)
	return string(runes[:snippetLimit]) + "..."
}

// formatBytes formats bytes to human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats duration to human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}
