package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSync inserts a sync after checking that both connection references
// resolve and are eligible for their side.
func (s *Store) CreateSync(sy *Sync) error {
	src, err := s.ConnectionByID(sy.SourceConnectionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("source connection %d not found", sy.SourceConnectionID)
		}
		return err
	}
	if !src.IsSource {
		return fmt.Errorf("connection %q is not enabled as a source", src.Name)
	}

	dest, err := s.ConnectionByID(sy.DestConnectionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("destination connection %d not found", sy.DestConnectionID)
		}
		return err
	}
	if !dest.IsDestination {
		return fmt.Errorf("connection %q is not enabled as a destination", dest.Name)
	}

	if sy.WriteMode == "" {
		sy.WriteMode = TruncateInsert
	}
	if sy.WriteMode != TruncateInsert {
		return fmt.Errorf("unsupported write mode: %q", sy.WriteMode)
	}

	now := time.Now()
	res, err := s.db.Exec(`
		INSERT INTO syncs
			(name, description, source_connection_id, source_table,
			 dest_connection_id, dest_schema, dest_table, write_mode,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sy.Name, sy.Description, sy.SourceConnectionID, sy.SourceTable,
		sy.DestConnectionID, sy.DestSchema, sy.DestTable, string(sy.WriteMode),
		formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sync %q already exists", sy.Name)
		}
		return err
	}
	sy.ID, err = res.LastInsertId()
	sy.CreatedAt = now
	sy.UpdatedAt = now
	return err
}

const syncCols = `id, name, COALESCE(description, ''), source_connection_id, source_table,
	dest_connection_id, COALESCE(dest_schema, ''), dest_table, write_mode,
	created_at, updated_at`

func scanSync(row interface{ Scan(...any) error }) (*Sync, error) {
	var sy Sync
	var mode, createdAt, updatedAt string
	err := row.Scan(&sy.ID, &sy.Name, &sy.Description, &sy.SourceConnectionID,
		&sy.SourceTable, &sy.DestConnectionID, &sy.DestSchema, &sy.DestTable,
		&mode, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sy.WriteMode = WriteMode(mode)
	sy.CreatedAt = parseTime(createdAt)
	sy.UpdatedAt = parseTime(updatedAt)
	return &sy, nil
}

// SyncByID fetches a sync by ID.
func (s *Store) SyncByID(id int64) (*Sync, error) {
	sy, err := scanSync(s.db.QueryRow(`SELECT `+syncCols+` FROM syncs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync %d: %w", id, ErrNotFound)
	}
	return sy, err
}

// SyncByName fetches a sync by its unique name.
func (s *Store) SyncByName(name string) (*Sync, error) {
	sy, err := scanSync(s.db.QueryRow(`SELECT `+syncCols+` FROM syncs WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync %q: %w", name, ErrNotFound)
	}
	return sy, err
}

// ListSyncs returns all syncs ordered by name.
func (s *Store) ListSyncs() ([]*Sync, error) {
	rows, err := s.db.Query(`SELECT ` + syncCols + ` FROM syncs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var syncs []*Sync
	for rows.Next() {
		sy, err := scanSync(rows)
		if err != nil {
			return nil, err
		}
		syncs = append(syncs, sy)
	}
	return syncs, rows.Err()
}

// DeleteSync removes a sync and, by cascade, its runs.
func (s *Store) DeleteSync(id int64) error {
	res, err := s.db.Exec(`DELETE FROM syncs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sync %d: %w", id, ErrNotFound)
	}
	return nil
}
