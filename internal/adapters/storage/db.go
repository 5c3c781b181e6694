package storage

import (
	"database/sql"
	"fmt"
)

// DateLayout is the text layout used for every timestamp column.
const DateLayout = "2006-01-02T15:04:05.999999999Z07:00"

// InitDB initializes the database schema.
// PRE: db is a valid database connection
// POST: All tables are created, WAL mode enabled
func InitDB(db *sql.DB) error {
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// Enable foreign key enforcement
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT,
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		failed_logins INTEGER NOT NULL DEFAULT 0,
		locked_until TEXT
	);

	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		slug TEXT NOT NULL,
		image_url TEXT,
		published INTEGER NOT NULL DEFAULT 0,
		author_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_author ON articles(author_id);

	CREATE TABLE IF NOT EXISTS article_milestone (
		id TEXT PRIMARY KEY,
		article_id INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		claimed_at TEXT NOT NULL,
		notified INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_attempted_at TEXT NOT NULL DEFAULT '',
		UNIQUE(article_id, threshold)
	);
	CREATE INDEX IF NOT EXISTS idx_article_milestone_pending ON article_milestone(notified, attempts);

	CREATE TABLE IF NOT EXISTS kv_counter (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv_entry (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}
