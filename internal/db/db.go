// Package db opens the in-memory SQLite database behind the sqlite store
// backend and brings its schema up to date.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	stdfs "io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the sqlite3 driver with the fold() SQL function installed.
const DriverName = "sqlite3_userservice"

// DefaultDSN is a named, shared-cache in-memory database.
const DefaultDSN = "file:users?mode=memory&cache=shared"

//go:embed migrations/*.sql
var migrationsFS embed.FS

var migFileRe = regexp.MustCompile(`^([0-9]{4})_(.+)\.up\.sql$`)

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// SQLite's lower() and NOCASE fold ASCII only; fold() matches
			// the Unicode lowercasing used by the memory store.
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

type migration struct {
	version int
	name    string
	file    string
}

// Open opens an in-memory SQLite database and applies the embedded schema
// migrations (migrations/NNNN_name.up.sql) that have not run yet.
// File-backed DSNs are refused: records must not outlive the process.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	if !IsInMemory(dsn) {
		return nil, fmt.Errorf("dsn %q is not an in-memory database", dsn)
	}
	d, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}
	// A shared-cache memory database lives as long as one connection does,
	// and table locks are per connection. One connection avoids both issues.
	d.SetMaxOpenConns(1)
	d.SetConnMaxLifetime(0)
	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, err
	}
	if err := migrate(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// IsInMemory reports whether dsn names a memory-resident SQLite database.
func IsInMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func loadMigrations() ([]migration, error) {
	entries, err := stdfs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, de := range entries {
		m := migFileRe.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", de.Name(), err)
		}
		out = append(out, migration{version: v, name: m[2], file: "migrations/" + de.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// migrate runs each pending migration and its bookkeeping row in one transaction.
func migrate(d *sql.DB) error {
	if _, err := d.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
        version INTEGER PRIMARY KEY,
        applied_at TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
    )`); err != nil {
		return err
	}
	var current int
	if err := d.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	migs, err := loadMigrations()
	if err != nil {
		return err
	}
	for _, m := range migs {
		if m.version <= current {
			continue
		}
		script, err := migrationsFS.ReadFile(m.file)
		if err != nil {
			return err
		}
		if err := applyMigration(d, m.version, string(script)); err != nil {
			return fmt.Errorf("migration %04d (%s) failed: %w", m.version, m.name, err)
		}
	}
	return nil
}

func applyMigration(d *sql.DB, version int, script string) error {
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(script); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, version); err != nil {
		return err
	}
	return tx.Commit()
}
