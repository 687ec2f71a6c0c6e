package store

import (
	"database/sql"
	"fmt"
	"time"
)

// StateStore tracks the last fully indexed content hash per atom. The hash
// for an atom is advanced only after every index write for it succeeded, so
// a crash mid-update leaves the old hash in place and the next run retries.
type StateStore struct {
	db *DB
}

// NewStateStore creates a new state store
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// GetHash returns the recorded content hash for an atom, or "" if the atom
// has never been fully indexed.
func (s *StateStore) GetHash(atomID string) (string, error) {
	var hash string
	err := s.db.sqlDB.QueryRow("SELECT content_hash FROM index_state WHERE atom_id = ?", atomID).Scan(&hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get index state for %s: %w", atomID, err)
	}
	return hash, nil
}

// Commit records the content hash for an atom after a successful index pass
func (s *StateStore) Commit(atomID, contentHash string, chunkCount int) error {
	query := `
		INSERT OR REPLACE INTO index_state (atom_id, content_hash, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.sqlDB.Exec(query, atomID, contentHash, chunkCount, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to commit index state for %s: %w", atomID, err)
	}
	return nil
}

// Delete removes the index state for an atom
func (s *StateStore) Delete(atomID string) error {
	_, err := s.db.sqlDB.Exec("DELETE FROM index_state WHERE atom_id = ?", atomID)
	if err != nil {
		return fmt.Errorf("failed to delete index state for %s: %w", atomID, err)
	}
	return nil
}

// ListAll returns the index state for every tracked atom, ordered by ID
func (s *StateStore) ListAll() ([]*IndexState, error) {
	rows, err := s.db.sqlDB.Query("SELECT atom_id, content_hash, chunk_count, indexed_at FROM index_state ORDER BY atom_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list index state: %w", err)
	}
	defer rows.Close()

	var states []*IndexState
	for rows.Next() {
		st := &IndexState{}
		var indexedAt any
		if err := rows.Scan(&st.AtomID, &st.ContentHash, &st.ChunkCount, &indexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan index state: %w", err)
		}
		if st.IndexedAt, err = parseTimeValue(indexedAt); err != nil {
			return nil, fmt.Errorf("invalid indexed_at for %s: %w", st.AtomID, err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// OldestIndexedAt returns the oldest indexed_at across all tracked atoms.
// The zero time is returned when nothing has been indexed yet.
func (s *StateStore) OldestIndexedAt() (time.Time, error) {
	var raw any
	err := s.db.sqlDB.QueryRow("SELECT MIN(indexed_at) FROM index_state").Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get oldest index time: %w", err)
	}
	return parseTimeValue(raw)
}

// Count returns the number of tracked atoms
func (s *StateStore) Count() (int, error) {
	var count int
	err := s.db.sqlDB.QueryRow("SELECT COUNT(*) FROM index_state").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count index state: %w", err)
	}
	return count, nil
}
