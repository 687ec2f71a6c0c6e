package retrieval

import (
	"fmt"
	"strings"
)

// Mode selects the retrieval strategy for a query. The set is closed;
// anything else is rejected before touching the indexes.
type Mode string

const (
	// ModeEntity answers "what is X" lookups with vector search alone.
	ModeEntity Mode = "entity"
	// ModePath answers "how does X relate to Y" by expanding the top
	// vector hits through the graph.
	ModePath Mode = "path"
	// ModeImpact answers "what breaks if X changes" with a downstream
	// traversal from a resolved seed.
	ModeImpact Mode = "impact"
)

// ParseMode validates a mode string. The empty string maps to ModeEntity.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeEntity:
		return ModeEntity, nil
	case ModePath:
		return ModePath, nil
	case ModeImpact:
		return ModeImpact, nil
	default:
		return "", fmt.Errorf("unknown query mode %q (expected entity, path or impact)", s)
	}
}
