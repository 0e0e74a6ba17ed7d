package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/stockledger/internal/ledger"
	"github.com/roach88/stockledger/internal/watch"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"sites", "ledger_entries", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}

	version, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	site, err := s1.RegisterSite(ctx, "Central Warehouse")
	if err != nil {
		t.Fatalf("RegisterSite() failed: %v", err)
	}
	if _, err := s1.Append(ctx, createTestEntry(site.ID, ledger.Bought, 10)); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	entries, err := s2.ListSiteEntries(ctx, site.ID)
	if err != nil {
		t.Fatalf("ListSiteEntries() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries after reopen, want 1", len(entries))
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	path := "/nonexistent/dir/test.db"

	_, err := Open(path)
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, want := range checks {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	if _, err := s.RegisterSite(context.Background(), "Depot"); err != nil {
		t.Fatalf("RegisterSite() on in-memory store failed: %v", err)
	}
}

func TestClose_ClosesOwnedHub(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	sub := s.Hub().Subscribe(nil)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, ok := <-sub.C(); ok {
		t.Error("subscription still open after Close()")
	}
}

func TestOpen_WithHubUsesSharedHub(t *testing.T) {
	hub := watch.NewHub()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithHub(hub))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if s.Hub() != hub {
		t.Fatal("Hub() is not the hub passed to WithHub")
	}
	sub := hub.Subscribe(nil)
	defer sub.Close()

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if hub.Len() != 1 {
		t.Errorf("shared hub has %d subscriptions after Close(), want 1", hub.Len())
	}
	select {
	case _, ok := <-sub.C():
		if !ok {
			t.Error("Close() closed a hub it does not own")
		}
	default:
	}
}
