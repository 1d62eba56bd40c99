package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/lib/pq"
)

// postgresDialect implements Dialect for PostgreSQL over pgx.
type postgresDialect struct{}

func (d *postgresDialect) Type() Type         { return Postgres }
func (d *postgresDialect) DriverName() string { return "pgx" }
func (d *postgresDialect) DefaultPort() int   { return 5432 }

func (d *postgresDialect) DSN(host string, port int, database, user, password string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=prefer",
		url.QueryEscape(user),
		url.QueryEscape(password),
		host, port,
		url.QueryEscape(database))
}

func (d *postgresDialect) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (d *postgresDialect) SplitTable(_, raw string) (string, string) {
	// Only a single embedded dot separates schema from table; anything else
	// is taken as a bare table name in public.
	if strings.Count(raw, ".") == 1 {
		idx := strings.Index(raw, ".")
		return raw[:idx], raw[idx+1:]
	}
	return "public", raw
}

func (d *postgresDialect) Qualify(_, schema, table string) string {
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

func (d *postgresDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (d *postgresDialect) ListSchemas(ctx context.Context, db *sql.DB, _ string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT schema_name
		FROM information_schema.schemata
		ORDER BY schema_name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning schema: %w", err)
		}
		// System namespaces are never sync targets.
		if strings.HasPrefix(name, "pg_") || name == "information_schema" {
			continue
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

func (d *postgresDialect) ListTables(ctx context.Context, db *sql.DB, _, schema string) ([]TableRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE' AND table_schema = $1
		ORDER BY table_name
	`, schema)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}
	defer rows.Close()

	var tables []TableRef
	for rows.Next() {
		var t TableRef
		if err := rows.Scan(&t.Schema, &t.Table); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (d *postgresDialect) Columns(ctx context.Context, db *sql.DB, _, schema, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, udt_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.SourceType); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (d *postgresDialect) TableExists(ctx context.Context, db *sql.DB, _, schema, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`, schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s.%s: %w", schema, table, err)
	}
	return exists, nil
}

func (d *postgresDialect) EnsureSchema(ctx context.Context, db *sql.DB, schema string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.QuoteIdentifier(schema)))
	if err != nil {
		return fmt.Errorf("creating schema %s: %w", schema, err)
	}
	return nil
}

func (d *postgresDialect) CreateTableDDL(database, schema, table string, cols []Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf("%s TEXT", d.QuoteIdentifier(c.Name))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		d.Qualify(database, schema, table), strings.Join(defs, ", "))
}

func (d *postgresDialect) TruncateSQL(qualified string) string {
	return "TRUNCATE TABLE " + qualified
}

func (d *postgresDialect) InsertSQL(qualified string, cols []string) string {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
		placeholders[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualified, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}
