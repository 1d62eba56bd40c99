package engine

import (
	"context"
	"fmt"

	"github.com/kanataki-zwei/pipecraft/internal/dialect"
	"github.com/kanataki-zwei/pipecraft/internal/store"
)

// Introspector lists schemas, tables, and columns visible through a
// connection. Handles are acquired per call and released before returning.
// Failures never yield a partial listing.
type Introspector struct {
	opener HandleOpener
}

// NewIntrospector creates an introspector over the given opener.
func NewIntrospector(opener HandleOpener) *Introspector {
	return &Introspector{opener: opener}
}

// ListSchemas returns the schema names visible through the connection,
// ordered. Postgres system namespaces are excluded; MySQL reports exactly
// the connection's database.
func (in *Introspector) ListSchemas(ctx context.Context, conn *store.Connection) ([]string, error) {
	d, err := dialect.Get(conn.Dialect)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	db, err := in.opener.Open(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	schemas, err := d.ListSchemas(ctx, db, conn.Database)
	if err != nil {
		return nil, &IntrospectionError{Err: fmt.Errorf("listing schemas on %q: %w", conn.Name, err)}
	}
	return schemas, nil
}

// ListTables returns the base tables in the given schema. MySQL ignores the
// requested schema and reports the connection's database instead.
func (in *Introspector) ListTables(ctx context.Context, conn *store.Connection, schema string) ([]dialect.TableRef, error) {
	d, err := dialect.Get(conn.Dialect)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	db, err := in.opener.Open(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tables, err := d.ListTables(ctx, db, conn.Database, schema)
	if err != nil {
		return nil, &IntrospectionError{Err: fmt.Errorf("listing tables on %q: %w", conn.Name, err)}
	}
	return tables, nil
}

// Columns returns the columns of a table in declaration order.
func (in *Introspector) Columns(ctx context.Context, conn *store.Connection, schema, table string) ([]dialect.Column, error) {
	d, err := dialect.Get(conn.Dialect)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	db, err := in.opener.Open(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cols, err := d.Columns(ctx, db, conn.Database, schema, table)
	if err != nil {
		return nil, &IntrospectionError{Err: fmt.Errorf("listing columns of %s on %q: %w", table, conn.Name, err)}
	}
	return cols, nil
}
