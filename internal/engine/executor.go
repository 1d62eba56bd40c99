package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kanataki-zwei/pipecraft/internal/dialect"
	"github.com/kanataki-zwei/pipecraft/internal/logging"
	"github.com/kanataki-zwei/pipecraft/internal/store"
)

// ConnectionStore resolves stored connection descriptors.
type ConnectionStore interface {
	ConnectionByID(id int64) (*store.Connection, error)
}

// SyncStore resolves stored sync definitions.
type SyncStore interface {
	SyncByID(id int64) (*store.Sync, error)
}

// RunLedger persists run records. The engine only creates and updates.
type RunLedger interface {
	CreateRun(syncID int64) (*store.Run, error)
	UpdateRun(run *store.Run, upd store.RunUpdate) error
}

// ProgressFunc receives reload progress: rows written so far and the total.
type ProgressFunc func(done, total int64)

// Executor orchestrates one sync run: acquires both connections, resolves
// identifiers, reads all source rows, provisions the destination table if
// absent, truncates and reloads it, and records the outcome in the ledger.
type Executor struct {
	syncs       SyncStore
	connections ConnectionStore
	runs        RunLedger
	opener      HandleOpener
	progress    ProgressFunc

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates an executor.
func New(syncs SyncStore, connections ConnectionStore, runs RunLedger, opener HandleOpener) *Executor {
	return &Executor{
		syncs:       syncs,
		connections: connections,
		runs:        runs,
		opener:      opener,
		locks:       make(map[int64]*sync.Mutex),
	}
}

// SetProgress installs a progress callback for the reload phase.
func (e *Executor) SetProgress(fn ProgressFunc) {
	e.progress = fn
}

// lockFor returns the mutex guarding a sync. Overlapping runs of the same
// sync would interleave truncate and insert against one destination table,
// so they are serialized here.
func (e *Executor) lockFor(syncID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[syncID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[syncID] = l
	}
	return l
}

// ExecuteSyncID resolves a sync by ID and executes it.
func (e *Executor) ExecuteSyncID(ctx context.Context, syncID int64) (*store.Run, error) {
	sy, err := e.syncs.SyncByID(syncID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ConfigError{Err: err}
		}
		return nil, err
	}
	return e.Execute(ctx, sy)
}

// Execute runs one sync to a terminal state. Missing connection references
// are rejected before any run record exists. Once a run is created, every
// failure path resolves it to failed; the call does not return until the
// run is terminal. The returned run reflects the outcome; the error carries
// the failure, if any, for the caller.
func (e *Executor) Execute(ctx context.Context, sy *store.Sync) (*store.Run, error) {
	srcConn, err := e.connections.ConnectionByID(sy.SourceConnectionID)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("sync %q: source %w", sy.Name, err)}
	}
	destConn, err := e.connections.ConnectionByID(sy.DestConnectionID)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("sync %q: destination %w", sy.Name, err)}
	}

	srcDialect, err := dialect.Get(srcConn.Dialect)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("connection %q: %w", srcConn.Name, err)}
	}
	destDialect, err := dialect.Get(destConn.Dialect)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("connection %q: %w", destConn.Name, err)}
	}

	lock := e.lockFor(sy.ID)
	lock.Lock()
	defer lock.Unlock()

	run, err := e.runs.CreateRun(sy.ID)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	execID := uuid.New().String()[:8]
	logging.Info("[%s] Starting sync %q: %s -> %s", execID, sy.Name, sy.SourceTable, sy.DestTable)

	rowCount, copyErr := e.copy(ctx, execID, sy, srcConn, destConn, srcDialect, destDialect)
	now := time.Now()

	if copyErr != nil {
		msg := copyErr.Error()
		if err := e.runs.UpdateRun(run, store.RunUpdate{
			Status:       store.RunFailed,
			ErrorMessage: &msg,
			EndedAt:      &now,
		}); err != nil {
			logging.Error("[%s] Failed to record run outcome: %v", execID, err)
		}
		logging.Error("[%s] Sync %q failed: %v", execID, sy.Name, copyErr)
		return run, copyErr
	}

	if err := e.runs.UpdateRun(run, store.RunUpdate{
		Status:   store.RunSuccess,
		RowCount: &rowCount,
		EndedAt:  &now,
	}); err != nil {
		logging.Error("[%s] Failed to record run outcome: %v", execID, err)
	}
	logging.Info("[%s] Sync %q succeeded: %d rows in %s",
		execID, sy.Name, rowCount, now.Sub(run.StartedAt).Round(time.Millisecond))
	return run, nil
}

// copy performs steps 3-7 of a run: identifier resolution, the full source
// read, destination provisioning, and the transactional truncate-and-reload.
func (e *Executor) copy(ctx context.Context, execID string, sy *store.Sync,
	srcConn, destConn *store.Connection, srcDialect, destDialect dialect.Dialect) (int64, error) {

	srcDB, err := e.opener.Open(ctx, srcConn)
	if err != nil {
		return 0, err
	}
	defer srcDB.Close()

	destDB, err := e.opener.Open(ctx, destConn)
	if err != nil {
		return 0, err
	}
	defer destDB.Close()

	srcSchema, srcTable := srcDialect.SplitTable(srcConn.Database, sy.SourceTable)
	srcQualified := srcDialect.Qualify(srcConn.Database, srcSchema, srcTable)

	destSchema := sy.DestSchema
	if destSchema == "" && destConn.Dialect == dialect.Postgres {
		destSchema = "public"
	}
	destQualified := destDialect.Qualify(destConn.Database, destSchema, sy.DestTable)

	// Full unfiltered read. The transferred column set is exactly the
	// result-set columns of this query.
	cols, rows, err := e.readAll(ctx, srcDB, srcQualified)
	if err != nil {
		return 0, err
	}
	logging.Debug("[%s] Read %d rows from %s", execID, len(rows), srcQualified)

	exists, err := destDialect.TableExists(ctx, destDB, destConn.Database, destSchema, sy.DestTable)
	if err != nil {
		return 0, &ExecutionError{Err: err}
	}
	if !exists {
		if err := e.provision(ctx, execID, srcDB, destDB, srcConn, destConn,
			srcDialect, destDialect, srcSchema, srcTable, destSchema, sy.DestTable); err != nil {
			return 0, err
		}
	}

	if err := e.reload(ctx, destDB, destDialect, destQualified, cols, rows); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// readAll reads the entire source table into memory in result-set order.
func (e *Executor) readAll(ctx context.Context, db *sql.DB, qualified string) ([]string, [][]any, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+qualified)
	if err != nil {
		return nil, nil, &ExecutionError{Err: fmt.Errorf("reading %s: %w", qualified, err)}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, &ExecutionError{Err: fmt.Errorf("reading %s: %w", qualified, err)}
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, &ExecutionError{Err: fmt.Errorf("scanning row from %s: %w", qualified, err)}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, &ExecutionError{Err: fmt.Errorf("reading %s: %w", qualified, err)}
	}
	return cols, data, nil
}

// provision creates the missing destination table with one generic text
// column per source column, in source declaration order. For Postgres the
// destination schema is created first if missing.
func (e *Executor) provision(ctx context.Context, execID string, srcDB, destDB *sql.DB,
	srcConn, destConn *store.Connection, srcDialect, destDialect dialect.Dialect,
	srcSchema, srcTable, destSchema, destTable string) error {

	srcCols, err := srcDialect.Columns(ctx, srcDB, srcConn.Database, srcSchema, srcTable)
	if err != nil {
		return &ExecutionError{Err: err}
	}
	if len(srcCols) == 0 {
		return &ExecutionError{Err: fmt.Errorf("source table %s.%s has no columns", srcSchema, srcTable)}
	}

	if destConn.Dialect == dialect.Postgres && destSchema != "" {
		if err := destDialect.EnsureSchema(ctx, destDB, destSchema); err != nil {
			return &ExecutionError{Err: err}
		}
	}

	ddl := destDialect.CreateTableDDL(destConn.Database, destSchema, destTable, srcCols)
	if _, err := destDB.ExecContext(ctx, ddl); err != nil {
		return &ExecutionError{Err: fmt.Errorf("creating destination table: %w", err)}
	}
	logging.Info("[%s] Created destination table %s with %d text columns",
		execID, destTable, len(srcCols))
	return nil
}

// reload truncates the destination and inserts every row inside one
// transaction. With zero rows the truncate still runs and no insert is
// issued.
func (e *Executor) reload(ctx context.Context, destDB *sql.DB, destDialect dialect.Dialect,
	qualified string, cols []string, data [][]any) (err error) {

	tx, err := destDB.BeginTx(ctx, nil)
	if err != nil {
		return &ExecutionError{Err: fmt.Errorf("beginning destination transaction: %w", err)}
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, destDialect.TruncateSQL(qualified)); err != nil {
		return &ExecutionError{Err: fmt.Errorf("truncating %s: %w", qualified, err)}
	}

	if len(data) > 0 {
		stmt, prepErr := tx.PrepareContext(ctx, destDialect.InsertSQL(qualified, cols))
		if prepErr != nil {
			err = &ExecutionError{Err: fmt.Errorf("preparing insert into %s: %w", qualified, prepErr)}
			return err
		}
		defer stmt.Close()

		total := int64(len(data))
		for i, row := range data {
			if _, execErr := stmt.ExecContext(ctx, row...); execErr != nil {
				err = &ExecutionError{Err: fmt.Errorf("inserting row %d into %s: %w", i+1, qualified, execErr)}
				return err
			}
			if e.progress != nil {
				e.progress(int64(i+1), total)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		err = &ExecutionError{Err: fmt.Errorf("committing destination transaction: %w", err)}
		return err
	}
	return nil
}
