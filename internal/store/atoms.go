package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound marks a lookup for a record that is not in the index. Callers
// use it to tell a missing row from a failing store.
var ErrNotFound = errors.New("record not found")

// RecordStore provides CRUD operations for indexed atom records
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new record store
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// Upsert inserts or replaces a record
func (s *RecordStore) Upsert(rec *Record) error {
	rec.IndexedAt = time.Now().UTC()

	query := `
		INSERT OR REPLACE INTO atoms
			(id, parent_id, type, title, body, owner, criticality, domain, tags, updated_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.sqlDB.Exec(query,
		rec.ID, rec.ParentID, rec.Type, rec.Title, rec.Body,
		rec.Owner, rec.Criticality, rec.Domain, strings.Join(rec.Tags, ","),
		timeOrNull(rec.UpdatedAt), rec.IndexedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	return nil
}

// UpsertBatch inserts or replaces multiple records in a transaction
func (s *RecordStore) UpsertBatch(recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO atoms
			(id, parent_id, type, title, body, owner, criticality, domain, tags, updated_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range recs {
		rec.IndexedAt = now
		if _, err := stmt.Exec(
			rec.ID, rec.ParentID, rec.Type, rec.Title, rec.Body,
			rec.Owner, rec.Criticality, rec.Domain, strings.Join(rec.Tags, ","),
			timeOrNull(rec.UpdatedAt), now.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// GetByID retrieves a record by its ID
func (s *RecordStore) GetByID(id string) (*Record, error) {
	query := recordColumns + " WHERE id = ?"
	row := s.db.sqlDB.QueryRow(query, id)

	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

// GetByParent retrieves all records belonging to an atom (the atom row plus
// its chunks), ordered by ID.
func (s *RecordStore) GetByParent(parentID string) ([]*Record, error) {
	query := recordColumns + " WHERE parent_id = ? ORDER BY id"
	rows, err := s.db.sqlDB.Query(query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for %s: %w", parentID, err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListParentIDs returns the IDs of all indexed atoms (excluding chunks)
func (s *RecordStore) ListParentIDs() ([]string, error) {
	rows, err := s.db.sqlDB.Query("SELECT id FROM atoms WHERE id = parent_id ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list atoms: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan atom id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByParent removes an atom row and all of its chunks
func (s *RecordStore) DeleteByParent(parentID string) error {
	_, err := s.db.sqlDB.Exec("DELETE FROM atoms WHERE parent_id = ?", parentID)
	if err != nil {
		return fmt.Errorf("failed to delete records for %s: %w", parentID, err)
	}
	return nil
}

// Count returns the number of records (atoms plus chunks)
func (s *RecordStore) Count() (int, error) {
	var count int
	err := s.db.sqlDB.QueryRow("SELECT COUNT(*) FROM atoms").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// CountByType returns record counts grouped by atom type
func (s *RecordStore) CountByType() (map[string]int, error) {
	rows, err := s.db.sqlDB.Query("SELECT type, COUNT(*) FROM atoms WHERE id = parent_id GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("failed to count by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

const recordColumns = `
	SELECT id, parent_id, type, title, body, owner, criticality, domain, tags, updated_at, indexed_at
	FROM atoms
`

func scanRecord(scanner rowScanner) (*Record, error) {
	rec := &Record{}
	var owner, domain, tags sql.NullString
	var updatedAt, indexedAt any

	err := scanner.Scan(
		&rec.ID, &rec.ParentID, &rec.Type, &rec.Title, &rec.Body,
		&owner, &rec.Criticality, &domain, &tags, &updatedAt, &indexedAt,
	)
	if err != nil {
		return nil, err
	}

	if owner.Valid {
		rec.Owner = owner.String
	}
	if domain.Valid {
		rec.Domain = domain.String
	}
	if tags.Valid && tags.String != "" {
		rec.Tags = strings.Split(tags.String, ",")
	}

	if rec.UpdatedAt, err = parseTimeValue(updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at for %s: %w", rec.ID, err)
	}
	if rec.IndexedAt, err = parseTimeValue(indexedAt); err != nil {
		return nil, fmt.Errorf("invalid indexed_at for %s: %w", rec.ID, err)
	}

	return rec, nil
}

func timeOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
