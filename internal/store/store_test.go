package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kanataki-zwei/pipecraft/internal/dialect"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConnection(name string) *Connection {
	return &Connection{
		Name:          name,
		Dialect:       dialect.Postgres,
		Host:          "localhost",
		Port:          5432,
		Database:      "appdb",
		Username:      "alice",
		Password:      "secret",
		IsSource:      true,
		IsDestination: true,
	}
}

func TestConnectionCRUD(t *testing.T) {
	s := openTestStore(t)

	conn := testConnection("prod-pg")
	if err := s.CreateConnection(conn); err != nil {
		t.Fatalf("creating connection: %v", err)
	}
	if conn.ID == 0 {
		t.Fatal("expected ID to be set")
	}

	got, err := s.ConnectionByID(conn.ID)
	if err != nil {
		t.Fatalf("fetching by ID: %v", err)
	}
	if got.Name != "prod-pg" || got.Dialect != dialect.Postgres || got.Port != 5432 {
		t.Errorf("unexpected connection: %+v", got)
	}

	got, err = s.ConnectionByName("prod-pg")
	if err != nil {
		t.Fatalf("fetching by name: %v", err)
	}
	if got.ID != conn.ID {
		t.Errorf("ByName ID = %d, want %d", got.ID, conn.ID)
	}

	if _, err := s.ConnectionByName("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got.Host = "db.internal"
	if err := s.UpdateConnection(got); err != nil {
		t.Fatalf("updating connection: %v", err)
	}
	updated, _ := s.ConnectionByID(conn.ID)
	if updated.Host != "db.internal" {
		t.Errorf("update not persisted: %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) && !updated.UpdatedAt.Equal(updated.CreatedAt) {
		t.Errorf("updated_at not maintained")
	}
}

func TestConnectionNameUnique(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateConnection(testConnection("dup")); err != nil {
		t.Fatalf("creating first: %v", err)
	}
	err := s.CreateConnection(testConnection("dup"))
	if err == nil {
		t.Fatal("expected duplicate name to fail")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("unexpected error: %v", err)
	}
}

func createTestSync(t *testing.T, s *Store, name string) *Sync {
	t.Helper()
	src := testConnection(name + "-src")
	dest := testConnection(name + "-dest")
	if err := s.CreateConnection(src); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateConnection(dest); err != nil {
		t.Fatal(err)
	}

	sy := &Sync{
		Name:               name,
		SourceConnectionID: src.ID,
		SourceTable:        "public.orders",
		DestConnectionID:   dest.ID,
		DestTable:          "orders",
	}
	if err := s.CreateSync(sy); err != nil {
		t.Fatalf("creating sync: %v", err)
	}
	return sy
}

func TestSyncCreateValidatesRefs(t *testing.T) {
	s := openTestStore(t)

	sy := &Sync{
		Name:               "orphan",
		SourceConnectionID: 99,
		SourceTable:        "t",
		DestConnectionID:   100,
		DestTable:          "t",
	}
	if err := s.CreateSync(sy); err == nil {
		t.Fatal("expected missing connection refs to fail")
	}
}

func TestSyncCreateChecksEligibility(t *testing.T) {
	s := openTestStore(t)

	src := testConnection("read-only")
	src.IsSource = false
	dest := testConnection("dest")
	if err := s.CreateConnection(src); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateConnection(dest); err != nil {
		t.Fatal(err)
	}

	sy := &Sync{
		Name:               "bad",
		SourceConnectionID: src.ID,
		SourceTable:        "t",
		DestConnectionID:   dest.ID,
		DestTable:          "t",
	}
	err := s.CreateSync(sy)
	if err == nil || !strings.Contains(err.Error(), "not enabled as a source") {
		t.Fatalf("expected source eligibility error, got %v", err)
	}
}

func TestSyncDefaultWriteMode(t *testing.T) {
	s := openTestStore(t)
	sy := createTestSync(t, s, "defaults")
	if sy.WriteMode != TruncateInsert {
		t.Errorf("write mode = %q, want %q", sy.WriteMode, TruncateInsert)
	}
}

func TestConnectionDeleteRestrict(t *testing.T) {
	s := openTestStore(t)
	sy := createTestSync(t, s, "guarded")

	err := s.DeleteConnection(sy.SourceConnectionID)
	if err == nil {
		t.Fatal("expected delete of referenced connection to fail")
	}
	if !strings.Contains(err.Error(), "referenced by a sync") {
		t.Errorf("unexpected error: %v", err)
	}

	// After the sync is gone the connection is deletable.
	if err := s.DeleteSync(sy.ID); err != nil {
		t.Fatalf("deleting sync: %v", err)
	}
	if err := s.DeleteConnection(sy.SourceConnectionID); err != nil {
		t.Fatalf("deleting connection after sync removal: %v", err)
	}
}

func TestSyncDeleteCascadesRuns(t *testing.T) {
	s := openTestStore(t)
	sy := createTestSync(t, s, "cascade")

	run, err := s.CreateRun(sy.ID)
	if err != nil {
		t.Fatalf("creating run: %v", err)
	}

	if err := s.DeleteSync(sy.ID); err != nil {
		t.Fatalf("deleting sync: %v", err)
	}
	if _, err := s.RunByID(run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected cascaded run to be gone, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	sy := createTestSync(t, s, "lifecycle")

	run, err := s.CreateRun(sy.ID)
	if err != nil {
		t.Fatalf("creating run: %v", err)
	}
	if run.Status != RunRunning {
		t.Errorf("new run status = %q, want running", run.Status)
	}
	if run.StartedAt.IsZero() {
		t.Error("started_at not set")
	}

	rows := int64(42)
	now := time.Now()
	if err := s.UpdateRun(run, RunUpdate{Status: RunSuccess, RowCount: &rows, EndedAt: &now}); err != nil {
		t.Fatalf("updating run: %v", err)
	}

	got, err := s.RunByID(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != RunSuccess {
		t.Errorf("status = %q, want success", got.Status)
	}
	if got.RowCount == nil || *got.RowCount != 42 {
		t.Errorf("row_count = %v, want 42", got.RowCount)
	}
	if got.EndedAt == nil {
		t.Error("ended_at not set")
	}
	if got.ErrorMessage != "" {
		t.Errorf("error_message = %q, want empty", got.ErrorMessage)
	}
}

func TestRunTerminalImmutable(t *testing.T) {
	s := openTestStore(t)
	sy := createTestSync(t, s, "terminal")

	run, err := s.CreateRun(sy.ID)
	if err != nil {
		t.Fatal(err)
	}

	msg := "connection reset"
	now := time.Now()
	if err := s.UpdateRun(run, RunUpdate{Status: RunFailed, ErrorMessage: &msg, EndedAt: &now}); err != nil {
		t.Fatalf("failing run: %v", err)
	}

	err = s.UpdateRun(run, RunUpdate{Status: RunSuccess})
	if err == nil {
		t.Fatal("expected terminal run to be immutable")
	}
	if !strings.Contains(err.Error(), "cannot be updated") {
		t.Errorf("unexpected error: %v", err)
	}

	got, _ := s.RunByID(run.ID)
	if got.Status != RunFailed || got.ErrorMessage != "connection reset" {
		t.Errorf("terminal run mutated: %+v", got)
	}
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)
	sy1 := createTestSync(t, s, "list-a")
	sy2 := createTestSync(t, s, "list-b")

	for i := 0; i < 3; i++ {
		if _, err := s.CreateRun(sy1.ID); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.CreateRun(sy2.ID); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListRuns(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("all runs = %d, want 4", len(all))
	}
	// Newest first
	if len(all) > 1 && all[0].ID < all[1].ID {
		t.Error("runs not ordered newest first")
	}

	only1, err := s.ListRuns(sy1.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(only1) != 3 {
		t.Errorf("sync runs = %d, want 3", len(only1))
	}

	limited, err := s.ListRuns(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limited runs = %d, want 2", len(limited))
	}
}
