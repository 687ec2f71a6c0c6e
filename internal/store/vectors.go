package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Chunkys0up7/atomindex/internal/embedding"
)

// VectorStore provides vector storage and similarity search operations
type VectorStore struct {
	db *DB
}

// NewVectorStore creates a new vector store
func NewVectorStore(db *DB) *VectorStore {
	return &VectorStore{db: db}
}

// ScoredResult represents a search result with similarity score
type ScoredResult struct {
	RecordID string
	Score    float32 // cosine similarity
	Distance float32 // cosine distance, 1 - similarity
}

// Insert inserts or updates a vector for a record
func (v *VectorStore) Insert(recordID string, vector []float32, model string) error {
	if len(vector) == 0 {
		return fmt.Errorf("cannot insert empty vector")
	}

	blob := vectorToBlob(vector)

	query := `
		INSERT OR REPLACE INTO embeddings (record_id, vector, dimension, model, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := v.db.sqlDB.Exec(query, recordID, blob, len(vector), model, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert vector: %w", err)
	}

	return nil
}

// InsertBatch inserts multiple vectors in a transaction
func (v *VectorStore) InsertBatch(recordIDs []string, vectors [][]float32, model string) error {
	if len(recordIDs) != len(vectors) {
		return fmt.Errorf("recordIDs and vectors length mismatch")
	}

	if len(recordIDs) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO embeddings (record_id, vector, dimension, model, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)

	for i, vector := range vectors {
		if len(vector) == 0 {
			continue
		}

		if _, err := stmt.Exec(recordIDs[i], vectorToBlob(vector), len(vector), model, now); err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// Get retrieves a vector for a record
func (v *VectorStore) Get(recordID string) ([]float32, error) {
	var blob []byte
	var dimension int

	query := "SELECT vector, dimension FROM embeddings WHERE record_id = ?"
	err := v.db.sqlDB.QueryRow(query, recordID).Scan(&blob, &dimension)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("vector not found for record: %s", recordID)
		}
		return nil, fmt.Errorf("failed to get vector: %w", err)
	}

	vector, err := blobToVector(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to convert blob to vector: %w", err)
	}

	if len(vector) != dimension {
		return nil, fmt.Errorf("vector dimension mismatch: expected %d, got %d", dimension, len(vector))
	}

	return vector, nil
}

// Search performs cosine-similarity search over all stored vectors and
// returns the topK closest records, ordered by ascending distance with ties
// broken by record ID. A non-empty types list restricts the scan to records
// of those atom types.
func (v *VectorStore) Search(queryVector []float32, topK int, types []string) ([]ScoredResult, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}

	// Full scan over stored vectors. Catalogs are small; an ANN index would
	// only pay for itself past a few hundred thousand records.
	query := "SELECT record_id, vector, dimension FROM embeddings"
	var args []any
	if len(types) > 0 {
		query = `
			SELECT e.record_id, e.vector, e.dimension FROM embeddings e
			JOIN atoms a ON a.id = e.record_id
			WHERE a.type IN (` + placeholders(len(types)) + `)`
		for _, t := range types {
			args = append(args, t)
		}
	}
	rows, err := v.db.sqlDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	results := make([]ScoredResult, 0, topK)

	for rows.Next() {
		var recordID string
		var blob []byte
		var dimension int

		if err := rows.Scan(&recordID, &blob, &dimension); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		vector, err := blobToVector(blob)
		if err != nil {
			continue // Skip malformed vectors
		}

		// Skip dimension mismatch
		if len(vector) != len(queryVector) {
			continue
		}

		score := embedding.Similarity(queryVector, vector)
		results = append(results, ScoredResult{
			RecordID: recordID,
			Score:    score,
			Distance: 1 - score,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].RecordID < results[j].RecordID
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Delete removes a vector
func (v *VectorStore) Delete(recordID string) error {
	query := "DELETE FROM embeddings WHERE record_id = ?"
	_, err := v.db.sqlDB.Exec(query, recordID)
	if err != nil {
		return fmt.Errorf("failed to delete vector: %w", err)
	}
	return nil
}

// DeleteByParent removes the vectors for an atom and all of its chunks
func (v *VectorStore) DeleteByParent(parentID string) error {
	query := "DELETE FROM embeddings WHERE record_id = ? OR record_id LIKE ?"
	_, err := v.db.sqlDB.Exec(query, parentID, parentID+"#%")
	if err != nil {
		return fmt.Errorf("failed to delete vectors for %s: %w", parentID, err)
	}
	return nil
}

// Count returns the number of vectors stored
func (v *VectorStore) Count() (int, error) {
	var count int
	err := v.db.sqlDB.QueryRow("SELECT COUNT(*) FROM embeddings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return count, nil
}

// HasVector checks if a record has a vector
func (v *VectorStore) HasVector(recordID string) (bool, error) {
	var count int
	err := v.db.sqlDB.QueryRow("SELECT COUNT(*) FROM embeddings WHERE record_id = ?", recordID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check vector: %w", err)
	}
	return count > 0, nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

// Helper functions for vector serialization

// vectorToBlob converts a float32 slice to a binary blob
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		bits := math.Float32bits(v)
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], bits)
	}
	return blob
}

// blobToVector converts a binary blob to a float32 slice
func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}

	vector := make([]float32, len(blob)/4)
	for i := 0; i < len(vector); i++ {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vector[i] = math.Float32frombits(bits)
	}

	return vector, nil
}
