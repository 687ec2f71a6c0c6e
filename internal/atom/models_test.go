package atom

import (
	"testing"
	"time"
)

func TestContentHashStable(t *testing.T) {
	base := func() *Atom {
		return &Atom{
			ID:    "proc-onboarding",
			Type:  TypeProcess,
			Title: "Customer Onboarding",
			Body:  "Steps to onboard a new customer.",
			Metadata: Metadata{
				Owner:       "ops",
				Criticality: 3,
				Domain:      "customer",
				Tags:        []string{"kyc", "onboarding"},
				UpdatedAt:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
			},
			Relations: []Relation{
				{TargetID: "sys-crm", Type: RelationDependsOn},
				{TargetID: "policy-kyc", Type: RelationGoverns, Direction: DirectionIn},
			},
		}
	}

	a := base()
	if a.ContentHash() != base().ContentHash() {
		t.Fatal("hash differs between identical atoms")
	}

	// Tag order must not matter.
	b := base()
	b.Metadata.Tags = []string{"onboarding", "kyc"}
	if a.ContentHash() != b.ContentHash() {
		t.Error("hash changed with tag order")
	}

	// Relation order must not matter.
	c := base()
	c.Relations[0], c.Relations[1] = c.Relations[1], c.Relations[0]
	if a.ContentHash() != c.ContentHash() {
		t.Error("hash changed with relation order")
	}

	// An explicit "out" direction equals the default.
	d := base()
	d.Relations[0].Direction = DirectionOut
	if a.ContentHash() != d.ContentHash() {
		t.Error("hash changed with explicit out direction")
	}

	// The same instant in a different zone must hash the same.
	e := base()
	e.Metadata.UpdatedAt = a.Metadata.UpdatedAt.In(time.FixedZone("CST", 8*3600))
	if a.ContentHash() != e.ContentHash() {
		t.Error("hash changed with timestamp zone")
	}
}

func TestContentHashChanges(t *testing.T) {
	base := Atom{
		ID:    "a",
		Type:  TypeDataset,
		Title: "Churn model features",
		Body:  "Feature definitions.",
		Metadata: Metadata{
			Owner:       "data",
			Criticality: 2,
		},
	}

	tests := []struct {
		name   string
		mutate func(a *Atom)
	}{
		{"body", func(a *Atom) { a.Body = "Feature definitions, v2." }},
		{"title", func(a *Atom) { a.Title = "Churn features" }},
		{"type", func(a *Atom) { a.Type = TypeSystem }},
		{"owner", func(a *Atom) { a.Metadata.Owner = "ml" }},
		{"criticality", func(a *Atom) { a.Metadata.Criticality = 5 }},
		{"tags", func(a *Atom) { a.Metadata.Tags = []string{"pii"} }},
		{"relation added", func(a *Atom) {
			a.Relations = append(a.Relations, Relation{TargetID: "sys-dw", Type: RelationFeeds})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := base
			mutated.Relations = append([]Relation(nil), base.Relations...)
			tt.mutate(&mutated)
			if mutated.ContentHash() == base.ContentHash() {
				t.Errorf("hash did not change after mutating %s", tt.name)
			}
		})
	}
}

func TestChunkIDRoundTrip(t *testing.T) {
	tests := []struct {
		id     string
		parent string
	}{
		{"proc-onboarding", "proc-onboarding"},
		{ChunkID("proc-onboarding", 0), "proc-onboarding"},
		{ChunkID("proc-onboarding", 12), "proc-onboarding"},
		{"sys-crm#3", "sys-crm"},
	}

	for _, tt := range tests {
		if got := ParentOfChunk(tt.id); got != tt.parent {
			t.Errorf("ParentOfChunk(%q) = %q, want %q", tt.id, got, tt.parent)
		}
	}

	if got := ChunkID("a", 7); got != "a#7" {
		t.Errorf("ChunkID() = %q, want %q", got, "a#7")
	}
}

func TestAtomValidate(t *testing.T) {
	tests := []struct {
		name    string
		atom    Atom
		wantErr bool
	}{
		{
			name: "valid",
			atom: Atom{ID: "a", Type: TypeProcess, Title: "A"},
		},
		{
			name:    "missing id",
			atom:    Atom{Title: "A"},
			wantErr: true,
		},
		{
			name:    "no content",
			atom:    Atom{ID: "a", Type: TypeProcess},
			wantErr: true,
		},
		{
			name: "body without title is enough",
			atom: Atom{ID: "a", Type: TypeGlossary, Body: "definition"},
		},
		{
			name: "relation without target",
			atom: Atom{
				ID: "a", Title: "A",
				Relations: []Relation{{Type: RelationDependsOn}},
			},
			wantErr: true,
		},
		{
			name: "relation with invalid direction",
			atom: Atom{
				ID: "a", Title: "A",
				Relations: []Relation{{TargetID: "b", Type: RelationFeeds, Direction: "sideways"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.atom.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
