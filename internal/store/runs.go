package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateRun records a new run for a sync, already in the running state with
// started_at set. Returns the persisted run.
func (s *Store) CreateRun(syncID int64) (*Run, error) {
	now := time.Now()
	res, err := s.db.Exec(`
		INSERT INTO sync_runs (sync_id, status, started_at)
		VALUES (?, ?, ?)
	`, syncID, string(RunRunning), formatTime(now))
	if err != nil {
		if isFKViolation(err) {
			return nil, fmt.Errorf("sync %d: %w", syncID, ErrNotFound)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Run{ID: id, SyncID: syncID, Status: RunRunning, StartedAt: now}, nil
}

// UpdateRun applies upd to the run. Runs in a terminal state are immutable;
// attempting to update one is an error.
func (s *Store) UpdateRun(run *Run, upd RunUpdate) error {
	current, err := s.RunByID(run.ID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return fmt.Errorf("run %d is %s and cannot be updated", run.ID, current.Status)
	}

	var endedAt, errorMessage any
	if upd.EndedAt != nil {
		endedAt = formatTime(*upd.EndedAt)
	}
	if upd.ErrorMessage != nil {
		errorMessage = *upd.ErrorMessage
	}
	var rowCount any
	if upd.RowCount != nil {
		rowCount = *upd.RowCount
	}

	_, err = s.db.Exec(`
		UPDATE sync_runs
		SET status = ?, ended_at = ?, row_count = ?, error_message = ?
		WHERE id = ?
	`, string(upd.Status), endedAt, rowCount, errorMessage, run.ID)
	if err != nil {
		return err
	}

	run.Status = upd.Status
	run.EndedAt = upd.EndedAt
	run.RowCount = upd.RowCount
	if upd.ErrorMessage != nil {
		run.ErrorMessage = *upd.ErrorMessage
	} else {
		run.ErrorMessage = ""
	}
	return nil
}

const runCols = `id, sync_id, status, started_at, ended_at, row_count, COALESCE(error_message, '')`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var status, startedAt string
	var endedAt sql.NullString
	var rowCount sql.NullInt64
	err := row.Scan(&r.ID, &r.SyncID, &status, &startedAt, &endedAt, &rowCount, &r.ErrorMessage)
	if err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.StartedAt = parseTime(startedAt)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		r.EndedAt = &t
	}
	if rowCount.Valid {
		n := rowCount.Int64
		r.RowCount = &n
	}
	return &r, nil
}

// RunByID fetches a run by ID.
func (s *Store) RunByID(id int64) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runCols+` FROM sync_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return r, err
}

// ListRuns returns runs newest first. A syncID of 0 lists runs for all syncs.
func (s *Store) ListRuns(syncID int64, limit int) ([]*Run, error) {
	query := `SELECT ` + runCols + ` FROM sync_runs`
	var args []any
	if syncID != 0 {
		query += ` WHERE sync_id = ?`
		args = append(args, syncID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
