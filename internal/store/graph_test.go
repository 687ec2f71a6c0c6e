package store

import (
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedGraph(t *testing.T, g *GraphStore) {
	t.Helper()
	// a -> b -> c -> d, plus b -> e and x -> a (upstream of a).
	edges := map[string][]*Edge{
		"a": {{FromID: "a", ToID: "b", EdgeType: "depends_on"}},
		"b": {
			{FromID: "b", ToID: "c", EdgeType: "feeds"},
			{FromID: "b", ToID: "e", EdgeType: "references"},
		},
		"c": {{FromID: "c", ToID: "d", EdgeType: "feeds"}},
		"x": {{FromID: "x", ToID: "a", EdgeType: "governs"}},
	}
	for owner, set := range edges {
		if err := g.ReplaceForAtom(owner, set); err != nil {
			t.Fatalf("ReplaceForAtom(%s): %v", owner, err)
		}
	}
}

func TestReplaceForAtomOwnership(t *testing.T) {
	db := openTestDB(t)
	g := NewGraphStore(db)

	// Two atoms declare edges touching the same node.
	if err := g.ReplaceForAtom("a", []*Edge{{FromID: "a", ToID: "b", EdgeType: "depends_on"}}); err != nil {
		t.Fatalf("ReplaceForAtom(a): %v", err)
	}
	if err := g.ReplaceForAtom("c", []*Edge{{FromID: "c", ToID: "b", EdgeType: "feeds"}}); err != nil {
		t.Fatalf("ReplaceForAtom(c): %v", err)
	}

	// Replacing a's edges must not touch c's.
	if err := g.ReplaceForAtom("a", []*Edge{{FromID: "a", ToID: "d", EdgeType: "depends_on"}}); err != nil {
		t.Fatalf("ReplaceForAtom(a) again: %v", err)
	}

	incoming, err := g.GetIncoming("b", "")
	if err != nil {
		t.Fatalf("GetIncoming(b): %v", err)
	}
	if len(incoming) != 1 || incoming[0].FromID != "c" {
		t.Errorf("GetIncoming(b) = %+v, want only c's edge", incoming)
	}

	outgoing, err := g.GetOutgoing("a", "")
	if err != nil {
		t.Fatalf("GetOutgoing(a): %v", err)
	}
	if len(outgoing) != 1 || outgoing[0].ToID != "d" {
		t.Errorf("GetOutgoing(a) = %+v, want a->d", outgoing)
	}
}

func TestTraverseDownstream(t *testing.T) {
	db := openTestDB(t)
	g := NewGraphStore(db)
	seedGraph(t, g)

	nodes, err := g.Traverse([]string{"a"}, TraversalOptions{
		MaxHops:   3,
		Direction: DirectionDownstream,
	})
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}

	want := []struct {
		id  string
		hop int
	}{
		{"b", 1},
		{"c", 2},
		{"e", 2},
		{"d", 3},
	}
	if len(nodes) != len(want) {
		t.Fatalf("Traverse returned %d nodes, want %d: %+v", len(nodes), len(want), nodes)
	}
	for i, w := range want {
		if nodes[i].ID != w.id || nodes[i].Hop != w.hop {
			t.Errorf("node %d = {%s hop %d}, want {%s hop %d}", i, nodes[i].ID, nodes[i].Hop, w.id, w.hop)
		}
	}
}

func TestTraverseHopClamp(t *testing.T) {
	db := openTestDB(t)
	g := NewGraphStore(db)

	// Chain longer than the depth cap: n0 -> n1 -> ... -> n7.
	ids := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7"}
	for i := 0; i < len(ids)-1; i++ {
		if err := g.ReplaceForAtom(ids[i], []*Edge{{FromID: ids[i], ToID: ids[i+1], EdgeType: "feeds"}}); err != nil {
			t.Fatalf("ReplaceForAtom: %v", err)
		}
	}

	tests := []struct {
		name    string
		maxHops int
		want    int
	}{
		{"zero means depth cap", 0, MaxTraversalDepth},
		{"within cap", 2, 2},
		{"over cap clamps", 99, MaxTraversalDepth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := g.Traverse([]string{"n0"}, TraversalOptions{
				MaxHops:   tt.maxHops,
				Direction: DirectionDownstream,
			})
			if err != nil {
				t.Fatalf("Traverse: %v", err)
			}
			if len(nodes) != tt.want {
				t.Errorf("reached %d nodes, want %d", len(nodes), tt.want)
			}
			for _, n := range nodes {
				if n.Hop > MaxTraversalDepth {
					t.Errorf("node %s at hop %d exceeds the depth cap", n.ID, n.Hop)
				}
			}
		})
	}
}

func TestTraverseNodeCapPrefersCloserNodes(t *testing.T) {
	db := openTestDB(t)
	g := NewGraphStore(db)
	seedGraph(t, g)

	nodes, err := g.Traverse([]string{"a"}, TraversalOptions{
		MaxHops:   3,
		Direction: DirectionDownstream,
		MaxNodes:  2,
	})
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("Traverse returned %d nodes, want 2", len(nodes))
	}
	// BFS order with ID tie-break inside a hop: b (hop 1), then c (hop 2).
	if nodes[0].ID != "b" || nodes[1].ID != "c" {
		t.Errorf("capped traversal = [%s %s], want [b c]", nodes[0].ID, nodes[1].ID)
	}
}

func TestTraverseMultiSeedMinimalHop(t *testing.T) {
	db := openTestDB(t)
	g := NewGraphStore(db)
	seedGraph(t, g)

	// c is 2 hops from a but 1 hop from b; the b seed must win.
	nodes, err := g.Traverse([]string{"b", "a"}, TraversalOptions{
		MaxHops:      3,
		Direction:    DirectionDownstream,
		IncludeSeeds: true,
	})
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}

	hops := make(map[string]int)
	for _, n := range nodes {
		hops[n.ID] = n.Hop
	}
	if hops["a"] != 0 || hops["b"] != 0 {
		t.Errorf("seeds not at hop 0: %v", hops)
	}
	if hops["c"] != 1 {
		t.Errorf("hop for c = %d, want 1 (minimal over seeds)", hops["c"])
	}

	// Same query twice gives the same order.
	again, err := g.Traverse([]string{"a", "b"}, TraversalOptions{
		MaxHops:      3,
		Direction:    DirectionDownstream,
		IncludeSeeds: true,
	})
	if err != nil {
		t.Fatalf("Traverse again: %v", err)
	}
	if len(again) != len(nodes) {
		t.Fatalf("second traversal returned %d nodes, want %d", len(again), len(nodes))
	}
	for i := range nodes {
		if nodes[i].ID != again[i].ID || nodes[i].Hop != again[i].Hop {
			t.Errorf("node %d differs between runs: %+v vs %+v", i, nodes[i], again[i])
		}
	}
}

func TestTraverseUpstream(t *testing.T) {
	db := openTestDB(t)
	g := NewGraphStore(db)
	seedGraph(t, g)

	nodes, err := g.Traverse([]string{"a"}, TraversalOptions{
		MaxHops:   2,
		Direction: DirectionUpstream,
	})
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "x" || nodes[0].Via != "governs" {
		t.Errorf("upstream of a = %+v, want x via governs", nodes)
	}
}

func TestDeleteByAtom(t *testing.T) {
	db := openTestDB(t)
	g := NewGraphStore(db)
	seedGraph(t, g)

	if err := g.DeleteByAtom("b"); err != nil {
		t.Fatalf("DeleteByAtom: %v", err)
	}

	// Edges declared by b and edges touching b are gone.
	if out, _ := g.GetOutgoing("b", ""); len(out) != 0 {
		t.Errorf("b still has outgoing edges: %+v", out)
	}
	if out, _ := g.GetOutgoing("a", ""); len(out) != 0 {
		t.Errorf("a -> b survived: %+v", out)
	}
	// Unrelated edges survive.
	if out, _ := g.GetOutgoing("c", ""); len(out) != 1 {
		t.Errorf("c -> d did not survive: %+v", out)
	}
}
