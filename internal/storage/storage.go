// Package storage provides the SQLite persistence layer: sessions,
// lessons, and the completion outcome ledger, all in one database file.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle shared by the concrete stores.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. An empty path opens an in-memory database.
func Open(path string) (*DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent access.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	objective     TEXT NOT NULL,
	project_type  TEXT NOT NULL DEFAULT '',
	current_phase TEXT NOT NULL,
	autonomy_mode TEXT NOT NULL,
	payload       TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lessons (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	normalized_title TEXT NOT NULL,
	category         TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	recommendation   TEXT NOT NULL DEFAULT '',
	context          TEXT NOT NULL DEFAULT '',
	confidence       REAL NOT NULL,
	frequency        INTEGER NOT NULL DEFAULT 1,
	upvotes          INTEGER NOT NULL DEFAULT 0,
	downvotes        INTEGER NOT NULL DEFAULT 0,
	project_types    TEXT NOT NULL DEFAULT '[]',
	tech_stacks      TEXT NOT NULL DEFAULT '[]',
	tags             TEXT NOT NULL DEFAULT '[]',
	source_projects  TEXT NOT NULL DEFAULT '[]',
	version          INTEGER NOT NULL DEFAULT 1,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lessons_category ON lessons(category);
CREATE INDEX IF NOT EXISTS idx_lessons_normalized_title ON lessons(normalized_title, category);

CREATE TABLE IF NOT EXISTS outcomes (
	project_id   TEXT PRIMARY KEY,
	payload      TEXT NOT NULL,
	extracted_at TEXT NOT NULL
);
`
	_, err := db.Exec(schema)
	return err
}
