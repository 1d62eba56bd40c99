// Package dialect provides database-specific SQL generation and introspection
// for the two engines pipecraft speaks: PostgreSQL and MySQL.
//
// The dialect set is closed. Every operation the engine performs against an
// external database (DSN building, identifier handling, schema listing,
// existence checks, DDL, truncate, insert) goes through one Dialect strategy,
// so engine code never branches on the database type.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Type identifies a supported database engine.
type Type string

const (
	Postgres Type = "postgres"
	MySQL    Type = "mysql"
)

// ParseType validates a raw dialect string.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(s)) {
	case Postgres:
		return Postgres, nil
	case MySQL:
		return MySQL, nil
	default:
		return "", fmt.Errorf("unknown dialect: %q (valid: postgres, mysql)", s)
	}
}

// TableRef names a table within a schema.
type TableRef struct {
	Schema string
	Table  string
}

// Column describes one column of a table, in declaration order.
type Column struct {
	Name       string
	SourceType string
}

// Dialect abstracts engine-specific SQL syntax and introspection behavior.
type Dialect interface {
	// Type returns the dialect type.
	Type() Type

	// DriverName returns the database/sql driver name to open handles with.
	DriverName() string

	// DefaultPort returns the engine's conventional port.
	DefaultPort() int

	// DSN builds a connection string from the connection descriptor fields.
	DSN(host string, port int, database, user, password string) string

	// QuoteIdentifier quotes a single identifier.
	// PostgreSQL: "name"  MySQL: `name`
	QuoteIdentifier(name string) string

	// SplitTable resolves a raw table identifier into (schema, table).
	// PostgreSQL splits on a single embedded dot and defaults the schema to
	// "public". MySQL always uses the connection's database as the schema and
	// keeps the raw identifier verbatim, dots included.
	SplitTable(database, raw string) (schema, table string)

	// Qualify renders a qualified, quoted table reference. MySQL omits the
	// schema unless one distinct from the connection's database was given.
	Qualify(database, schema, table string) string

	// Placeholder returns the bind parameter for 1-based index n.
	Placeholder(n int) string

	// ListSchemas enumerates schema names visible through db, ordered.
	ListSchemas(ctx context.Context, db *sql.DB, database string) ([]string, error)

	// ListTables enumerates base tables in the given schema, ordered by name.
	ListTables(ctx context.Context, db *sql.DB, database, schema string) ([]TableRef, error)

	// Columns lists the columns of a table in declaration order.
	Columns(ctx context.Context, db *sql.DB, database, schema, table string) ([]Column, error)

	// TableExists reports whether the table is present.
	TableExists(ctx context.Context, db *sql.DB, database, schema, table string) (bool, error)

	// EnsureSchema creates the schema if the engine supports schemas and it
	// is missing. MySQL is a no-op: the schema is the database itself.
	EnsureSchema(ctx context.Context, db *sql.DB, schema string) error

	// CreateTableDDL builds a CREATE TABLE IF NOT EXISTS statement with one
	// generic text column per source column, in source order.
	CreateTableDDL(database, schema, table string, cols []Column) string

	// TruncateSQL builds a TRUNCATE statement for a qualified table.
	TruncateSQL(qualified string) string

	// InsertSQL builds a single-row parameterized INSERT for a qualified table.
	InsertSQL(qualified string, cols []string) string
}

var dialects = map[Type]Dialect{
	Postgres: &postgresDialect{},
	MySQL:    &mysqlDialect{},
}

// Get returns the Dialect for a type. Unknown types are a configuration
// error surfaced to the caller, never a panic.
func Get(t Type) (Dialect, error) {
	d, ok := dialects[t]
	if !ok {
		return nil, fmt.Errorf("unknown dialect: %q (valid: postgres, mysql)", t)
	}
	return d, nil
}
