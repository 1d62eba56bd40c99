package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kanataki-zwei/pipecraft/internal/dialect"
	"github.com/kanataki-zwei/pipecraft/internal/store"
)

// stubOpener hands out pre-built handles keyed by connection ID.
type stubOpener struct {
	dbs map[int64]*sql.DB
	err error
}

func (o *stubOpener) Open(_ context.Context, conn *store.Connection) (*sql.DB, error) {
	if o.err != nil {
		return nil, o.err
	}
	db, ok := o.dbs[conn.ID]
	if !ok {
		return nil, &ConnectivityError{Err: fmt.Errorf("no handle for connection %d", conn.ID)}
	}
	return db, nil
}

func pgConn(id int64) *store.Connection {
	return &store.Connection{ID: id, Name: "pg", Dialect: dialect.Postgres, Database: "appdb"}
}

func mysqlConn(id int64) *store.Connection {
	return &store.Connection{ID: id, Name: "my", Dialect: dialect.MySQL, Database: "appdb"}
}

func TestListSchemasPostgresFiltersSystem(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery(`SELECT schema_name FROM information_schema\.schemata`).
		WillReturnRows(sqlmock.NewRows([]string{"schema_name"}).
			AddRow("analytics").
			AddRow("information_schema").
			AddRow("pg_catalog").
			AddRow("pg_toast").
			AddRow("public"))

	in := NewIntrospector(&stubOpener{dbs: map[int64]*sql.DB{1: db}})
	schemas, err := in.ListSchemas(context.Background(), pgConn(1))
	if err != nil {
		t.Fatalf("listing schemas: %v", err)
	}
	want := []string{"analytics", "public"}
	if !reflect.DeepEqual(schemas, want) {
		t.Errorf("schemas = %v, want %v", schemas, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListSchemasMySQLIsDatabase(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	in := NewIntrospector(&stubOpener{dbs: map[int64]*sql.DB{1: db}})
	schemas, err := in.ListSchemas(context.Background(), mysqlConn(1))
	if err != nil {
		t.Fatalf("listing schemas: %v", err)
	}
	if !reflect.DeepEqual(schemas, []string{"appdb"}) {
		t.Errorf("schemas = %v, want [appdb]", schemas)
	}
}

func TestListTablesPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery(`FROM information_schema\.tables`).
		WithArgs("reporting").
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name"}).
			AddRow("reporting", "invoices").
			AddRow("reporting", "orders"))

	in := NewIntrospector(&stubOpener{dbs: map[int64]*sql.DB{1: db}})
	tables, err := in.ListTables(context.Background(), pgConn(1), "reporting")
	if err != nil {
		t.Fatalf("listing tables: %v", err)
	}
	want := []dialect.TableRef{
		{Schema: "reporting", Table: "invoices"},
		{Schema: "reporting", Table: "orders"},
	}
	if !reflect.DeepEqual(tables, want) {
		t.Errorf("tables = %v, want %v", tables, want)
	}
}

func TestListTablesMySQLReportsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	// The requested schema is ignored; the connection's database is queried.
	mock.ExpectQuery(`FROM information_schema\.tables`).
		WithArgs("appdb").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders"))

	in := NewIntrospector(&stubOpener{dbs: map[int64]*sql.DB{1: db}})
	tables, err := in.ListTables(context.Background(), mysqlConn(1), "whatever")
	if err != nil {
		t.Fatalf("listing tables: %v", err)
	}
	want := []dialect.TableRef{{Schema: "appdb", Table: "orders"}}
	if !reflect.DeepEqual(tables, want) {
		t.Errorf("tables = %v, want %v", tables, want)
	}
}

func TestColumnsOrdered(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery(`FROM information_schema\.columns`).
		WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "udt_name"}).
			AddRow("id", "int8").
			AddRow("customer", "varchar").
			AddRow("total", "numeric"))

	in := NewIntrospector(&stubOpener{dbs: map[int64]*sql.DB{1: db}})
	cols, err := in.Columns(context.Background(), pgConn(1), "public", "orders")
	if err != nil {
		t.Fatalf("listing columns: %v", err)
	}
	want := []dialect.Column{
		{Name: "id", SourceType: "int8"},
		{Name: "customer", SourceType: "varchar"},
		{Name: "total", SourceType: "numeric"},
	}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("columns = %v, want %v", cols, want)
	}
}

func TestIntrospectQueryFailureTyped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery(`FROM information_schema\.tables`).
		WillReturnError(errors.New("permission denied"))

	in := NewIntrospector(&stubOpener{dbs: map[int64]*sql.DB{1: db}})
	_, err = in.ListTables(context.Background(), pgConn(1), "public")
	if err == nil {
		t.Fatal("expected query failure")
	}
	var ie *IntrospectionError
	if !errors.As(err, &ie) {
		t.Errorf("expected IntrospectionError, got %T", err)
	}
}

func TestIntrospectOpenFailurePassedThrough(t *testing.T) {
	opener := &stubOpener{err: &ConnectivityError{Err: errors.New("connection refused")}}
	in := NewIntrospector(opener)

	_, err := in.ListSchemas(context.Background(), pgConn(1))
	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Errorf("expected ConnectivityError, got %T: %v", err, err)
	}
}
