package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// MaxTraversalDepth is the hard cap on traversal depth. Requests asking for
// more hops are clamped, never rejected.
const MaxTraversalDepth = 5

// TraversalDirection selects which edges a traversal follows.
type TraversalDirection int

const (
	// DirectionBoth follows edges regardless of orientation
	DirectionBoth TraversalDirection = iota
	// DirectionDownstream follows outgoing edges only
	DirectionDownstream
	// DirectionUpstream follows incoming edges only
	DirectionUpstream
)

// GraphStore provides edge storage and bounded traversal
type GraphStore struct {
	db *DB
}

// NewGraphStore creates a new graph store
func NewGraphStore(db *DB) *GraphStore {
	return &GraphStore{db: db}
}

// ReplaceForAtom replaces the edges declared by an atom with the given set,
// in a single transaction. Edges declared by other atoms are untouched even
// when they reference this one.
func (g *GraphStore) ReplaceForAtom(atomID string, edges []*Edge) error {
	tx, err := g.db.BeginTx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM edges WHERE owner_id = ?", atomID); err != nil {
		return fmt.Errorf("failed to clear edges for %s: %w", atomID, err)
	}

	query := `
		INSERT INTO edges (owner_id, from_id, to_id, edge_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, from_id, to_id, edge_type) DO NOTHING
	`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, edge := range edges {
		edge.CreatedAt = now
		if _, err := stmt.Exec(atomID, edge.FromID, edge.ToID, edge.EdgeType, now.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to insert edge (%s -> %s): %w", edge.FromID, edge.ToID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// GetOutgoing returns all edges from an atom, optionally filtered by type
func (g *GraphStore) GetOutgoing(fromID string, edgeType string) ([]*Edge, error) {
	query := `
		SELECT from_id, to_id, edge_type, created_at
		FROM edges WHERE from_id = ?
	`

	args := []any{fromID}
	if edgeType != "" {
		query += " AND edge_type = ?"
		args = append(args, edgeType)
	}
	query += " ORDER BY to_id, edge_type"

	return g.queryEdges(query, args...)
}

// GetIncoming returns all edges to an atom, optionally filtered by type
func (g *GraphStore) GetIncoming(toID string, edgeType string) ([]*Edge, error) {
	query := `
		SELECT from_id, to_id, edge_type, created_at
		FROM edges WHERE to_id = ?
	`

	args := []any{toID}
	if edgeType != "" {
		query += " AND edge_type = ?"
		args = append(args, edgeType)
	}
	query += " ORDER BY from_id, edge_type"

	return g.queryEdges(query, args...)
}

// DeleteByAtom removes all edges declared by or touching an atom
func (g *GraphStore) DeleteByAtom(atomID string) error {
	_, err := g.db.sqlDB.Exec("DELETE FROM edges WHERE owner_id = ? OR from_id = ? OR to_id = ?", atomID, atomID, atomID)
	if err != nil {
		return fmt.Errorf("failed to delete edges: %w", err)
	}
	return nil
}

// Count returns the number of edges
func (g *GraphStore) Count() (int, error) {
	var count int
	err := g.db.sqlDB.QueryRow("SELECT COUNT(*) FROM edges").Scan(&count)
	return count, err
}

// CountByType returns the number of edges of a specific type
func (g *GraphStore) CountByType(edgeType string) (int, error) {
	var count int
	err := g.db.sqlDB.QueryRow("SELECT COUNT(*) FROM edges WHERE edge_type = ?", edgeType).Scan(&count)
	return count, err
}

// TraversalOptions bound a graph traversal.
type TraversalOptions struct {
	// MaxHops is clamped to MaxTraversalDepth; zero means MaxTraversalDepth.
	MaxHops   int
	Direction TraversalDirection
	// MaxNodes caps the number of returned nodes (0 = unlimited). Nodes are
	// admitted in BFS order, so closer nodes always win under the cap.
	MaxNodes int
	// IncludeSeeds controls whether the seed nodes appear in the result
	// (at hop 0).
	IncludeSeeds bool
}

// Traverse performs a breadth-first traversal from the seed atoms and
// returns every reached node annotated with its minimal hop count. Results
// are ordered by hop, then by ID, so output is deterministic for a given
// graph state.
func (g *GraphStore) Traverse(seeds []string, opts TraversalOptions) ([]TraversedNode, error) {
	maxHops := opts.MaxHops
	if maxHops <= 0 || maxHops > MaxTraversalDepth {
		maxHops = MaxTraversalDepth
	}

	visited := make(map[string]bool, len(seeds))
	var result []TraversedNode
	var frontier []TraversedNode

	sorted := append([]string(nil), seeds...)
	sort.Strings(sorted)
	for _, seed := range sorted {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		node := TraversedNode{ID: seed, Hop: 0}
		frontier = append(frontier, node)
		if opts.IncludeSeeds {
			result = append(result, node)
		}
	}

	capped := func() bool {
		return opts.MaxNodes > 0 && len(result) >= opts.MaxNodes
	}

	for hop := 1; hop <= maxHops && len(frontier) > 0 && !capped(); hop++ {
		var next []TraversedNode

		for _, current := range frontier {
			neighbors, err := g.neighbors(current.ID, opts.Direction)
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				if visited[nb.id] {
					continue
				}
				visited[nb.id] = true
				next = append(next, TraversedNode{
					ID:   nb.id,
					Hop:  hop,
					Via:  nb.edgeType,
					From: current.ID,
				})
			}
		}

		// Stable order within the hop before applying the node cap
		sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })

		for _, node := range next {
			if capped() {
				break
			}
			result = append(result, node)
		}
		frontier = next
	}

	return result, nil
}

type neighbor struct {
	id       string
	edgeType string
}

func (g *GraphStore) neighbors(id string, dir TraversalDirection) ([]neighbor, error) {
	var out []neighbor

	if dir == DirectionBoth || dir == DirectionDownstream {
		edges, err := g.GetOutgoing(id, "")
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			out = append(out, neighbor{id: e.ToID, edgeType: e.EdgeType})
		}
	}

	if dir == DirectionBoth || dir == DirectionUpstream {
		edges, err := g.GetIncoming(id, "")
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			out = append(out, neighbor{id: e.FromID, edgeType: e.EdgeType})
		}
	}

	return out, nil
}

func (g *GraphStore) queryEdges(query string, args ...any) ([]*Edge, error) {
	rows, err := g.db.sqlDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func scanEdge(rows *sql.Rows) (*Edge, error) {
	edge := &Edge{}
	var createdAt any

	if err := rows.Scan(&edge.FromID, &edge.ToID, &edge.EdgeType, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan edge: %w", err)
	}

	ts, err := parseTimeValue(createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at on edge %s -> %s: %w", edge.FromID, edge.ToID, err)
	}
	edge.CreatedAt = ts

	return edge, nil
}
