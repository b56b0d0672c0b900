package db

import (
	"testing"
)

func TestOpen_AppliesMigrations(t *testing.T) {
	d, err := Open("file:dbtest_open?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	var version int
	if err := d.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != 1 {
		t.Fatalf("schema version = %d, want 1", version)
	}
	insert := `INSERT INTO users(name, email, email_key, role, created_at, updated_at) VALUES(?, ?, ?, ?, 1, 1)`
	if _, err := d.Exec(insert, "A", "a@x.com", "a@x.com", "user"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := d.Exec(insert, "B", "A@X.COM", "a@x.com", "user"); err == nil {
		t.Fatalf("expected unique violation on email_key")
	}
	if _, err := d.Exec(insert, "C", "c@x.com", "c@x.com", "root"); err == nil {
		t.Fatalf("expected check violation for unknown role")
	}
}

func TestOpen_IsIdempotent(t *testing.T) {
	const dsn = "file:dbtest_reopen?mode=memory&cache=shared"
	first, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer first.Close()

	// The shared-cache database survives while first is open, so a second
	// Open must find every migration already applied.
	second, err := Open(dsn)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer second.Close()

	var n int
	if err := second.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Fatalf("schema_migrations rows = %d, want 1", n)
	}
}

func TestOpen_RefusesFileDatabase(t *testing.T) {
	if _, err := Open(t.TempDir() + "/users.db"); err == nil {
		t.Fatalf("expected file-backed DSN to be refused")
	}
}

func TestFold_IsUnicodeAware(t *testing.T) {
	d, err := Open("file:dbtest_fold?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	var folded, lowered string
	if err := d.QueryRow(`SELECT fold('ÉLISE'), lower('ÉLISE')`).Scan(&folded, &lowered); err != nil {
		t.Fatalf("query: %v", err)
	}
	if folded != "élise" {
		t.Fatalf("fold = %q, want %q", folded, "élise")
	}
	if lowered == folded {
		t.Fatalf("built-in lower() unexpectedly folded non-ASCII: %q", lowered)
	}
}

func TestIsInMemory(t *testing.T) {
	for dsn, want := range map[string]bool{
		":memory:":                            true,
		"file:users?mode=memory&cache=shared": true,
		"users.db":                            false,
		"file:users.db?cache=shared":          false,
	} {
		if got := IsInMemory(dsn); got != want {
			t.Errorf("IsInMemory(%q) = %v, want %v", dsn, got, want)
		}
	}
}
