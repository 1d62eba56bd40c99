package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kanataki-zwei/pipecraft/internal/dialect"
	"github.com/kanataki-zwei/pipecraft/internal/logging"
	"github.com/kanataki-zwei/pipecraft/internal/store"
)

// HandleOpener acquires a database handle for a stored connection. Handles
// are scoped to one operation and closed by the caller when it ends.
type HandleOpener interface {
	Open(ctx context.Context, conn *store.Connection) (*sql.DB, error)
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	OK      bool
	Message string
}

// Resolver builds dialect-specific handles from stored connection
// descriptors and verifies reachability.
type Resolver struct {
	connectTimeout time.Duration
}

// NewResolver creates a resolver. A zero timeout disables the bound.
func NewResolver(connectTimeout time.Duration) *Resolver {
	return &Resolver{connectTimeout: connectTimeout}
}

// Open builds a handle for the connection and verifies it is reachable.
// An unrecognized dialect is a ConfigError; a failed ping is a
// ConnectivityError.
func (r *Resolver) Open(ctx context.Context, conn *store.Connection) (*sql.DB, error) {
	d, err := dialect.Get(conn.Dialect)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("connection %q: %w", conn.Name, err)}
	}

	dsn := d.DSN(conn.Host, conn.Port, conn.Database, conn.Username, conn.Password)
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("connection %q: %w", conn.Name, err)}
	}

	pingCtx := ctx
	if r.connectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, r.connectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &ConnectivityError{Err: fmt.Errorf("connection %q (%s:%d/%s): %w",
			conn.Name, conn.Host, conn.Port, conn.Database, err)}
	}

	logging.Debug("Connected to %s %s:%d/%s", conn.Dialect, conn.Host, conn.Port, conn.Database)
	return db, nil
}

// Test executes a trivial round-trip query against the connection. It never
// returns an error: every failure becomes {OK: false, Message}. The message
// never re-embeds the credentials used to build the handle.
func (r *Resolver) Test(ctx context.Context, conn *store.Connection) TestResult {
	db, err := r.Open(ctx, conn)
	if err != nil {
		return TestResult{OK: false, Message: err.Error()}
	}
	defer db.Close()

	queryCtx := ctx
	if r.connectTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, r.connectTimeout)
		defer cancel()
	}

	var one int
	if err := db.QueryRowContext(queryCtx, "SELECT 1").Scan(&one); err != nil {
		return TestResult{OK: false, Message: fmt.Sprintf("round-trip query failed: %v", err)}
	}
	return TestResult{OK: true, Message: "connection ok"}
}
