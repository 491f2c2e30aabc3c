// Package store is the SQLite persistence collaborator of the engine, with
// optional FTS5 search over annotation content.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS highlights (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	page_number INTEGER NOT NULL CHECK (page_number >= 1),
	rects       TEXT NOT NULL DEFAULT '[]',
	color       TEXT NOT NULL DEFAULT '',
	intent      TEXT NOT NULL DEFAULT 'note',
	text        TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_highlights_document ON highlights(document_id, page_number);

CREATE TABLE IF NOT EXISTS annotations (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	page_number INTEGER NOT NULL CHECK (page_number >= 1),
	pos_x       REAL NOT NULL DEFAULT 0,
	pos_y       REAL NOT NULL DEFAULT 0,
	content     TEXT NOT NULL DEFAULT '',
	color       TEXT NOT NULL DEFAULT '',
	minimized   INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_annotations_document ON annotations(document_id, page_number);

CREATE TABLE IF NOT EXISTS connectors (
	id            TEXT PRIMARY KEY,
	annotation_id TEXT NOT NULL REFERENCES annotations(id) ON DELETE CASCADE,
	seq           INTEGER NOT NULL DEFAULT 0,
	type          TEXT NOT NULL,
	target        TEXT NOT NULL DEFAULT '{}',
	highlight_id  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_connectors_annotation ON connectors(annotation_id);

CREATE TABLE IF NOT EXISTS entry_groups (
	id         TEXT PRIMARY KEY,
	label      TEXT NOT NULL DEFAULT '',
	process_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id                  TEXT PRIMARY KEY,
	group_id            TEXT NOT NULL REFERENCES entry_groups(id) ON DELETE CASCADE,
	process_id          TEXT NOT NULL,
	seq                 INTEGER NOT NULL DEFAULT 0,
	linked_decision_ref TEXT NOT NULL DEFAULT '',
	situation_label     TEXT NOT NULL DEFAULT '',
	page_number         INTEGER,
	highlight_ids       TEXT NOT NULL DEFAULT '[]',
	check_preparer      INTEGER NOT NULL DEFAULT 0,
	check_preparer_at   DATETIME,
	check_reviewer      INTEGER NOT NULL DEFAULT 0,
	check_reviewer_at   DATETIME,
	CHECK (check_reviewer = 0 OR check_preparer = 1)
);

CREATE INDEX IF NOT EXISTS idx_entries_process ON ledger_entries(process_id);

CREATE TABLE IF NOT EXISTS decisions (
	id          TEXT PRIMARY KEY,
	identifier  TEXT NOT NULL,
	process_id  TEXT NOT NULL,
	page_number INTEGER,
	kind        TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_decisions_process ON decisions(process_id);

CREATE TABLE IF NOT EXISTS process_rollups (
	process_id       TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	total            INTEGER NOT NULL DEFAULT 0,
	pending          INTEGER NOT NULL DEFAULT 0,
	prepared         INTEGER NOT NULL DEFAULT 0,
	approved         INTEGER NOT NULL DEFAULT 0,
	percent_approved INTEGER NOT NULL DEFAULT 0,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with the engine's persistence operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
