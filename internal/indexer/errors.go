package indexer

import (
	"fmt"
	"strings"
	"sync"
)

// ValidationError marks an atom that failed structural validation. The atom
// is skipped; the rest of the run continues.
type ValidationError struct {
	AtomID string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for atom %s: %v", e.AtomID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConsistencyError marks an atom whose index writes partially failed. Its
// content hash was not advanced, so the next run retries it.
type ConsistencyError struct {
	AtomID string
	Stage  string // "embed" | "records" | "vectors" | "graph" | "text"
	Err    error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("index write failed for atom %s at stage %s: %v", e.AtomID, e.Stage, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// warningCollector accumulates per-atom failures across a run without
// aborting it.
type warningCollector struct {
	mu       sync.Mutex
	warnings []error
}

func (c *warningCollector) add(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, err)
}

func (c *warningCollector) all() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.warnings...)
}

// Summary renders a multi-error digest for reports and logs.
func Summary(errs []error) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}
