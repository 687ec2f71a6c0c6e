// Package textindex maintains the keyword index used as a fallback when the
// embedding backend is unreachable. It is written on the same cadence as the
// vector and graph indexes so a degraded query still sees fresh content.
package textindex

import (
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Chunkys0up7/atomindex/internal/store"
)

// Doc is the document shape stored in the keyword index.
type Doc struct {
	ParentID string `json:"parent_id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Domain   string `json:"domain"`
	Tags     string `json:"tags"`
	Owner    string `json:"owner"`
}

// Hit is a keyword search result.
type Hit struct {
	RecordID string
	Score    float64
}

// Index wraps a bleve index over atom records.
type Index struct {
	idx bleve.Index
}

// Open opens the keyword index at dir, creating it when absent.
func Open(dir string) (*Index, error) {
	idx, err := bleve.Open(dir)
	if err == bleve.ErrorIndexPathDoesNotExist {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create text index dir: %w", mkErr)
		}
		idx, err = bleve.New(dir, buildIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// OpenInMemory creates an in-memory keyword index, used by tests.
func OpenInMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create in-memory bleve index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// IndexRecord adds or replaces a record in the keyword index.
func (i *Index) IndexRecord(rec *store.Record) error {
	doc := Doc{
		ParentID: rec.ParentID,
		Type:     rec.Type,
		Title:    rec.Title,
		Body:     rec.Body,
		Domain:   rec.Domain,
		Tags:     strings.Join(rec.Tags, " "),
		Owner:    rec.Owner,
	}
	if err := i.idx.Index(rec.ID, doc); err != nil {
		return fmt.Errorf("failed to index record %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes a single record from the keyword index.
func (i *Index) Delete(recordID string) error {
	if err := i.idx.Delete(recordID); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", recordID, err)
	}
	return nil
}

// DeleteByParent removes an atom and all of its chunks.
func (i *Index) DeleteByParent(parentID string) error {
	q := bleve.NewTermQuery(parentID)
	q.SetField("parent_id")
	req := bleve.NewSearchRequestOptions(q, 1000, 0, false)

	res, err := i.idx.Search(req)
	if err != nil {
		return fmt.Errorf("failed to find records for %s: %w", parentID, err)
	}
	for _, hit := range res.Hits {
		if err := i.idx.Delete(hit.ID); err != nil {
			return fmt.Errorf("failed to delete record %s: %w", hit.ID, err)
		}
	}
	return nil
}

// Search runs a keyword query over titles, bodies and tags. Title matches
// are boosted above body matches.
func (i *Index) Search(query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}

	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2.0)

	bodyQuery := bleve.NewMatchQuery(query)
	bodyQuery.SetField("body")
	bodyQuery.SetBoost(1.0)

	tagsQuery := bleve.NewMatchQuery(query)
	tagsQuery.SetField("tags")
	tagsQuery.SetBoost(1.5)

	disjunction := bleve.NewDisjunctionQuery(titleQuery, bodyQuery, tagsQuery)

	req := bleve.NewSearchRequestOptions(disjunction, topK, 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, Hit{RecordID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Count returns the number of documents in the keyword index.
func (i *Index) Count() (uint64, error) {
	return i.idx.DocCount()
}

// Close closes the underlying bleve index.
func (i *Index) Close() error {
	return i.idx.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.DefaultField = "body"

	docMapping := bleve.NewDocumentMapping()

	bodyField := bleve.NewTextFieldMapping()
	bodyField.Store = false
	bodyField.Index = true
	docMapping.AddFieldMappingsAt("body", bodyField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Store = true
	titleField.Index = true
	docMapping.AddFieldMappingsAt("title", titleField)

	tagsField := bleve.NewTextFieldMapping()
	tagsField.Store = true
	tagsField.Index = true
	docMapping.AddFieldMappingsAt("tags", tagsField)

	parentField := bleve.NewTextFieldMapping()
	parentField.Store = true
	parentField.Index = true
	parentField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("parent_id", parentField)

	typeField := bleve.NewTextFieldMapping()
	typeField.Store = true
	typeField.Index = true
	typeField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("type", typeField)

	domainField := bleve.NewTextFieldMapping()
	domainField.Store = true
	domainField.Index = true
	domainField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("domain", domainField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
