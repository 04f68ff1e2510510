package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT    PRIMARY KEY,
		state      TEXT    NOT NULL DEFAULT '',
		turn       INTEGER NOT NULL DEFAULT 0,
		created_at TEXT    NOT NULL,
		updated_at TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,

	`CREATE TABLE IF NOT EXISTS cards (
		session_id  TEXT    NOT NULL,
		seq         INTEGER NOT NULL,
		id          TEXT    NOT NULL,
		title       TEXT    NOT NULL,
		type        TEXT    NOT NULL DEFAULT '',
		keys        TEXT    NOT NULL DEFAULT '',
		entry       TEXT    NOT NULL DEFAULT '',
		description TEXT    NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_cards_session ON cards(session_id, seq)`,

	`CREATE TABLE IF NOT EXISTS history (
		session_id TEXT    NOT NULL,
		seq        INTEGER NOT NULL,
		body       TEXT    NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS cards_fts USING fts5(
		title,
		entry,
		description,
		content=cards,
		content_rowid=rowid
	)`,

	`CREATE TRIGGER IF NOT EXISTS cards_ai AFTER INSERT ON cards BEGIN
		INSERT INTO cards_fts(rowid, title, entry, description)
		VALUES (new.rowid, new.title, new.entry, new.description);
	END`,

	`CREATE TRIGGER IF NOT EXISTS cards_ad AFTER DELETE ON cards BEGIN
		INSERT INTO cards_fts(cards_fts, rowid, title, entry, description)
		VALUES ('delete', old.rowid, old.title, old.entry, old.description);
	END`,

	`CREATE TRIGGER IF NOT EXISTS cards_au AFTER UPDATE ON cards BEGIN
		INSERT INTO cards_fts(cards_fts, rowid, title, entry, description)
		VALUES ('delete', old.rowid, old.title, old.entry, old.description);
		INSERT INTO cards_fts(rowid, title, entry, description)
		VALUES (new.rowid, new.title, new.entry, new.description);
	END`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}
