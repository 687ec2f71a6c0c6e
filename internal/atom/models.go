package atom

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Atom represents a typed documentation record
// Corresponds to: process, policy, control, dataset, system, glossary entry
type Atom struct {
	// Primary key
	ID string `json:"id" yaml:"id"`

	// Atom classification
	Type string `json:"type" yaml:"type"` // process | policy | control | dataset | system | glossary

	// Content
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`

	// Descriptive metadata (participates in change detection)
	Metadata Metadata `json:"metadata" yaml:"metadata"`

	// Typed relationships to other atoms
	Relations []Relation `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// Metadata holds descriptive attributes of an atom.
type Metadata struct {
	Owner       string    `json:"owner,omitempty" yaml:"owner,omitempty"`
	Criticality int       `json:"criticality,omitempty" yaml:"criticality,omitempty"` // 0 (informational) .. 5 (critical)
	Domain      string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Relation represents a typed, directed relationship between two atoms.
type Relation struct {
	TargetID string `json:"target_id" yaml:"target_id"`
	Type     string `json:"type" yaml:"type"` // depends_on | feeds | governs | references | part_of
	// Direction is "out" when this atom points at the target,
	// "in" when the target points at this atom. Defaults to "out".
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// Chunk is a coherent sub-unit of an atom body produced by the chunker.
// Chunks reference their parent only; there are no back-pointers.
type Chunk struct {
	ParentID      string  `json:"parent_id"`
	ChunkID       string  `json:"chunk_id"`
	Title         string  `json:"title,omitempty"` // heading path that opened this chunk, if any
	Text          string  `json:"text"`
	SequenceIndex int     `json:"sequence_index"`
	// BoundaryScore is the adjacent-unit similarity at the split that opened
	// this chunk. Structure-opened chunks carry 1; structural-only splitting
	// leaves it 0.
	BoundaryScore float32 `json:"boundary_score,omitempty"`
}

// ChunkID builds the canonical chunk identifier for a parent atom and
// sequence index.
func ChunkID(parentID string, seq int) string {
	return fmt.Sprintf("%s#%d", parentID, seq)
}

// ParentOfChunk returns the parent atom ID for a record-or-chunk ID.
// Plain atom IDs are returned unchanged.
func ParentOfChunk(id string) string {
	if i := strings.IndexByte(id, '#'); i >= 0 {
		return id[:i]
	}
	return id
}

// Atom type constants
const (
	TypeProcess  = "process"
	TypePolicy   = "policy"
	TypeControl  = "control"
	TypeDataset  = "dataset"
	TypeSystem   = "system"
	TypeGlossary = "glossary"
)

// Relation type constants
const (
	RelationDependsOn  = "depends_on"
	RelationFeeds      = "feeds"
	RelationGoverns    = "governs"
	RelationReferences = "references"
	RelationPartOf     = "part_of"
)

// Relation direction constants
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// ContentHash computes the change-detection hash over body plus metadata.
// The metadata portion is canonicalized (sorted tags, RFC3339 timestamp) so
// the hash is stable for semantically identical records.
func (a *Atom) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(a.Body))
	h.Write([]byte{0})
	h.Write([]byte(a.Title))
	h.Write([]byte{0})
	h.Write([]byte(a.Type))
	h.Write([]byte{0})
	h.Write([]byte(canonicalMetadata(a.Metadata)))
	h.Write([]byte{0})
	h.Write([]byte(canonicalRelations(a.Relations)))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalMetadata(m Metadata) string {
	tags := append([]string(nil), m.Tags...)
	sort.Strings(tags)

	var b strings.Builder
	b.WriteString("owner=")
	b.WriteString(m.Owner)
	b.WriteString(";criticality=")
	fmt.Fprintf(&b, "%d", m.Criticality)
	b.WriteString(";domain=")
	b.WriteString(m.Domain)
	b.WriteString(";tags=")
	b.WriteString(strings.Join(tags, ","))
	if !m.UpdatedAt.IsZero() {
		b.WriteString(";updated_at=")
		b.WriteString(m.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func canonicalRelations(rels []Relation) string {
	if len(rels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(rels))
	for _, rel := range rels {
		dir := rel.Direction
		if dir == "" {
			dir = DirectionOut
		}
		parts = append(parts, rel.Type+":"+dir+":"+rel.TargetID)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// Validate checks the minimal structural requirements for an atom record.
func (a *Atom) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("atom is missing an id")
	}
	if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.Body) == "" {
		return fmt.Errorf("atom %s has neither title nor body", a.ID)
	}
	for _, rel := range a.Relations {
		if rel.TargetID == "" {
			return fmt.Errorf("atom %s has a relation with an empty target", a.ID)
		}
		if rel.Direction != "" && rel.Direction != DirectionOut && rel.Direction != DirectionIn {
			return fmt.Errorf("atom %s relation to %s has invalid direction %q", a.ID, rel.TargetID, rel.Direction)
		}
	}
	return nil
}
