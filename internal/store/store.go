// Package store persists pipecraft metadata (connections, syncs, runs) in a
// local SQLite database under the data directory.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store manages pipecraft metadata in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the metadata database in dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "pipecraft.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS connections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		dialect TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		database TEXT NOT NULL,
		username TEXT NOT NULL,
		password TEXT NOT NULL,
		is_source INTEGER NOT NULL DEFAULT 1,
		is_destination INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS syncs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		source_connection_id INTEGER NOT NULL REFERENCES connections(id) ON DELETE RESTRICT,
		source_table TEXT NOT NULL,
		dest_connection_id INTEGER NOT NULL REFERENCES connections(id) ON DELETE RESTRICT,
		dest_schema TEXT,
		dest_table TEXT NOT NULL,
		write_mode TEXT NOT NULL DEFAULT 'truncate_insert',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sync_id INTEGER NOT NULL REFERENCES syncs(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'pending',
		started_at TEXT NOT NULL,
		ended_at TEXT,
		row_count INTEGER,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_sync ON sync_runs(sync_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isFKViolation reports whether err is a SQLite foreign key constraint failure.
func isFKViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
