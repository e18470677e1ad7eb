package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMigrate_CreatesAllTables(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	tables := []string{
		"schema_version",
		"signals",
		"user_stats",
	}

	for _, table := range tables {
		row := database.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table)
		var count int
		if err := row.Scan(&count); err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	// Run twice; should not error.
	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}
}

func TestMigrate_ResolvedAtPairsWithTerminalOutcome(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	_, err = database.Exec(`
		INSERT INTO signals (id, event_id, author_address, timestamp, outcome)
		VALUES ('s1', 'mkt-1', '0xabc', 1700000000, 'PENDING')`)
	if err != nil {
		t.Fatal(err)
	}

	// Terminal outcome without resolved_at violates the check constraint.
	_, err = database.Exec(`UPDATE signals SET outcome = 'CORRECT' WHERE id = 's1'`)
	if err == nil {
		t.Error("expected terminal outcome without resolved_at to be rejected")
	}

	_, err = database.Exec(`UPDATE signals SET outcome = 'CORRECT', resolved_at = 1700000100 WHERE id = 's1'`)
	if err != nil {
		t.Fatalf("expected paired update to succeed: %v", err)
	}
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "nested", "skysignal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	ctx := context.Background()
	// Holding the connections open forces the pool to hand out distinct ones.
	for i := 0; i < 3; i++ {
		conn, err := database.Conn(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		var timeout, foreignKeys int
		var journal string
		if err := conn.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout); err != nil {
			t.Fatal(err)
		}
		if err := conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&foreignKeys); err != nil {
			t.Fatal(err)
		}
		if err := conn.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&journal); err != nil {
			t.Fatal(err)
		}
		if timeout != 5000 {
			t.Errorf("conn %d: busy_timeout = %d, want 5000", i, timeout)
		}
		if foreignKeys != 1 {
			t.Errorf("conn %d: foreign_keys = %d, want 1", i, foreignKeys)
		}
		if journal != "wal" {
			t.Errorf("conn %d: journal_mode = %q, want wal", i, journal)
		}
	}
}
