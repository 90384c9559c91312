package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestCreate_NewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Create(path)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer s.Close()

	// Verify pragmas applied
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Errorf("pragma check: %v", err)
	}
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Errorf("pragma check: %v", err)
	}

	// Verify tables exist
	for _, table := range []string{"info", "campaign", "donors"} {
		var name string
		err := s.db.QueryRow(`
			SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?
		`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}
}

func TestCreate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Create(path)
	if err != nil {
		t.Fatalf("first Create() failed: %v", err)
	}
	s1.Close()

	s2, err := Create(path)
	if err != nil {
		t.Fatalf("second Create() failed: %v", err)
	}
	s2.Close()
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.db")
	_, err := Open(path)
	if err == nil {
		t.Fatal("Open() on missing file succeeded, want error")
	}
}

func TestOpen_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Create(path)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()
}

func TestMigration_LegacyGeneratorSchema(t *testing.T) {
	// Simulate a database created by the legacy generator: donors table
	// without the UNIQUE constraint on donation_id, user_version 0.
	path := filepath.Join(t.TempDir(), "legacy.db")
	s, err := Create(path)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version query failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}

	// The unique index must reject duplicate donation ids even on databases
	// whose table definition predates the constraint.
	var indexName string
	err = s.db.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'index' AND name = 'idx_donors_donation_unique'
	`).Scan(&indexName)
	if err != nil {
		t.Errorf("migration index missing: %v", err)
	}
}
