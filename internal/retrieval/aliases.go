package retrieval

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type aliasFile struct {
	Version int                 `yaml:"version"`
	Aliases map[string][]string `yaml:"aliases"`
}

// AliasExpander widens query text with domain shorthand before embedding
// and keyword search, so "KYC" also finds atoms that only say "know your
// customer".
type AliasExpander struct {
	groups []aliasGroup
}

type aliasGroup struct {
	canonical string
	terms     []string
	normTerms []string
}

// AliasMatch records one alias group a query touched.
type AliasMatch struct {
	Canonical string
	Terms     []string
}

// LoadAliasesForCatalog resolves the alias file relative to the catalog root.
func LoadAliasesForCatalog(catalogRoot string, aliasesFile string) (*AliasExpander, error) {
	if strings.TrimSpace(aliasesFile) == "" {
		return nil, nil
	}
	path := aliasesFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(catalogRoot, path)
	}
	return LoadAliasesFile(path)
}

// LoadAliasesFile loads an alias file if it exists.
func LoadAliasesFile(path string) (*AliasExpander, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read aliases file: %w", err)
	}

	var file aliasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse aliases file: %w", err)
	}

	return NewAliasExpander(file.Aliases), nil
}

// NewAliasExpander builds an expander from a map of canonical term to
// aliases. Returns nil when there is nothing to expand.
func NewAliasExpander(aliases map[string][]string) *AliasExpander {
	if len(aliases) == 0 {
		return nil
	}

	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]aliasGroup, 0, len(keys))
	for _, canonical := range keys {
		terms, normTerms := buildTerms(canonical, aliases[canonical])
		if len(terms) == 0 {
			continue
		}
		groups = append(groups, aliasGroup{
			canonical: canonical,
			terms:     terms,
			normTerms: normTerms,
		})
	}

	if len(groups) == 0 {
		return nil
	}
	return &AliasExpander{groups: groups}
}

// Expand returns the query widened with every matched alias group. A nil
// expander passes the query through unchanged.
func (e *AliasExpander) Expand(query string) (string, []AliasMatch) {
	if e == nil {
		return query, nil
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return query, nil
	}

	normQuery := normalizeTerm(trimmed)
	if normQuery == "" {
		return query, nil
	}

	var matches []AliasMatch
	for _, g := range e.groups {
		if matchesGroup(normQuery, g.normTerms) {
			matches = append(matches, AliasMatch{
				Canonical: g.canonical,
				Terms:     g.terms,
			})
		}
	}

	if len(matches) == 0 {
		return query, nil
	}

	expanded := strings.TrimSpace(trimmed + " " + strings.Join(uniqueTerms(matches), " "))
	return expanded, matches
}

func matchesGroup(normQuery string, normTerms []string) bool {
	for _, term := range normTerms {
		if term == "" {
			continue
		}
		if strings.Contains(normQuery, term) {
			return true
		}
	}
	return false
}

func buildTerms(canonical string, aliases []string) ([]string, []string) {
	terms := make([]string, 0, 1+len(aliases))
	normTerms := make([]string, 0, 1+len(aliases))
	seen := make(map[string]bool)

	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" {
			return
		}
		norm := normalizeTerm(term)
		if norm == "" || seen[norm] {
			return
		}
		terms = append(terms, term)
		normTerms = append(normTerms, norm)
		seen[norm] = true
	}

	add(canonical)
	for _, alias := range aliases {
		add(alias)
	}

	return terms, normTerms
}

func uniqueTerms(matches []AliasMatch) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, match := range matches {
		for _, term := range match.Terms {
			norm := normalizeTerm(term)
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true
			out = append(out, term)
		}
	}
	return out
}

func normalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return ""
	}
	term = strings.ReplaceAll(term, "_", " ")
	term = strings.ReplaceAll(term, "-", " ")
	term = strings.Join(strings.Fields(term), " ")
	return term
}
