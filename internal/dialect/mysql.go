package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// mysqlDialect implements Dialect for MySQL.
//
// MySQL has no schema level below the database, so the connection's database
// plays the schema role everywhere: ListSchemas returns exactly one name,
// ListTables ignores the requested schema, and SplitTable never splits on
// dots. This asymmetry with PostgreSQL is deliberate.
type mysqlDialect struct{}

func (d *mysqlDialect) Type() Type         { return MySQL }
func (d *mysqlDialect) DriverName() string { return "mysql" }
func (d *mysqlDialect) DefaultPort() int   { return 3306 }

func (d *mysqlDialect) DSN(host string, port int, database, user, password string) string {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func (d *mysqlDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *mysqlDialect) SplitTable(database, raw string) (string, string) {
	return database, raw
}

func (d *mysqlDialect) Qualify(database, schema, table string) string {
	if schema != "" && schema != database {
		return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(table)
}

func (d *mysqlDialect) Placeholder(_ int) string {
	return "?"
}

func (d *mysqlDialect) ListSchemas(_ context.Context, _ *sql.DB, database string) ([]string, error) {
	return []string{database}, nil
}

func (d *mysqlDialect) ListTables(ctx context.Context, db *sql.DB, database, _ string) ([]TableRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, database)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}
	defer rows.Close()

	var tables []TableRef
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		tables = append(tables, TableRef{Schema: database, Table: name})
	}
	return tables, rows.Err()
}

func (d *mysqlDialect) Columns(ctx context.Context, db *sql.DB, database, _, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, column_type
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`, database, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns for %s: %w", table, err)
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

func (d *mysqlDialect) TableExists(ctx context.Context, db *sql.DB, database, _, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?
	`, database, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return count > 0, nil
}

func (d *mysqlDialect) EnsureSchema(_ context.Context, _ *sql.DB, _ string) error {
	// The database is the schema; it already exists or the connection
	// would not have opened.
	return nil
}

func (d *mysqlDialect) CreateTableDDL(database, schema, table string, cols []Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf("%s TEXT", d.QuoteIdentifier(c.Name))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		d.Qualify(database, schema, table), strings.Join(defs, ", "))
}

func (d *mysqlDialect) TruncateSQL(qualified string) string {
	// TRUNCATE TABLE issues an implicit commit on MySQL, which would leave
	// the table empty if the reload then fails. DELETE keeps the wipe inside
	// the destination transaction.
	return "DELETE FROM " + qualified
}

func (d *mysqlDialect) InsertSQL(qualified string, cols []string) string {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualified, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}
