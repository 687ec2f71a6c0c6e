package atom

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Catalog is the read side of an atom source. The indexer enumerates records
// through it and never mutates the source.
type Catalog interface {
	// ListAll returns every atom in the catalog. Order is not guaranteed.
	ListAll() ([]*Atom, error)
	// Get returns a single atom by ID, or an error if it does not exist.
	Get(id string) (*Atom, error)
}

// FileCatalog reads atoms from YAML files under a root directory.
// Files may hold a single atom document or a list of atoms. Exclude
// patterns use doublestar glob syntax and match against paths relative
// to the root.
type FileCatalog struct {
	root     string
	patterns []string
	excludes []string
}

// NewFileCatalog creates a catalog over root. patterns selects the files to
// read (defaults to **/*.yaml and **/*.yml when empty).
func NewFileCatalog(root string, patterns, excludes []string) (*FileCatalog, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("catalog root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog root %s is not a directory", root)
	}
	if len(patterns) == 0 {
		patterns = []string{"**/*.yaml", "**/*.yml"}
	}
	return &FileCatalog{root: root, patterns: patterns, excludes: excludes}, nil
}

func (c *FileCatalog) ListAll() ([]*Atom, error) {
	var files []string
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(c.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if !c.matches(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning catalog %s: %w", c.root, err)
	}
	sort.Strings(files)

	var atoms []*Atom
	seen := make(map[string]string) // atom ID -> file that declared it
	for _, path := range files {
		loaded, err := loadAtomFile(path)
		if err != nil {
			return nil, err
		}
		for _, a := range loaded {
			if a.ID != "" {
				if prev, dup := seen[a.ID]; dup {
					return nil, fmt.Errorf("atom %s declared in both %s and %s", a.ID, prev, path)
				}
				seen[a.ID] = path
			}
			atoms = append(atoms, a)
		}
	}
	return atoms, nil
}

func (c *FileCatalog) Get(id string) (*Atom, error) {
	atoms, err := c.ListAll()
	if err != nil {
		return nil, err
	}
	for _, a := range atoms {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("atom %s not found in catalog", id)
}

func (c *FileCatalog) matches(relPath string) bool {
	included := false
	for _, pattern := range c.patterns {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range c.excludes {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return false
		}
		if ok, _ := doublestar.Match(pattern, filepath.Base(relPath)); ok {
			return false
		}
	}
	return true
}

func loadAtomFile(path string) ([]*Atom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	// A file is either a single atom document or a list of atoms.
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	// Structural validation is left to the consumer so a single malformed
	// atom can be skipped and reported without failing the whole load.
	var list []*Atom
	if err := yaml.Unmarshal(data, &list); err != nil {
		var single Atom
		if err2 := yaml.Unmarshal(data, &single); err2 != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err2)
		}
		list = []*Atom{&single}
	}
	return list, nil
}

// MemoryCatalog is an in-memory Catalog, used by tests and by callers that
// assemble atoms programmatically.
type MemoryCatalog struct {
	atoms map[string]*Atom
	order []string
}

func NewMemoryCatalog(atoms ...*Atom) *MemoryCatalog {
	c := &MemoryCatalog{atoms: make(map[string]*Atom)}
	for _, a := range atoms {
		c.Put(a)
	}
	return c
}

func (c *MemoryCatalog) Put(a *Atom) {
	if _, ok := c.atoms[a.ID]; !ok {
		c.order = append(c.order, a.ID)
	}
	c.atoms[a.ID] = a
}

func (c *MemoryCatalog) Remove(id string) {
	if _, ok := c.atoms[id]; !ok {
		return
	}
	delete(c.atoms, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *MemoryCatalog) ListAll() ([]*Atom, error) {
	out := make([]*Atom, 0, len(c.atoms))
	for _, id := range c.order {
		out = append(out, c.atoms[id])
	}
	return out, nil
}

func (c *MemoryCatalog) Get(id string) (*Atom, error) {
	a, ok := c.atoms[id]
	if !ok {
		return nil, fmt.Errorf("atom %s not found in catalog", id)
	}
	return a, nil
}
