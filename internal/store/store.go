// Package store provides the embedded SQLite persistence layer for the
// token store.
//
// The database runs in embedded mode using ncruces/go-sqlite3 with WAL for
// concurrent reads during writes.
//
// Architecture:
//   - Database file: .toksync/toksync.db
//   - WAL mode: Concurrent readers during writes
//   - Schema: tokens, history, dismissals tables
//   - tokens carries a version column for optimistic concurrency
//   - history is append-only; rows are never updated or deleted
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite database connection for the token store.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it will be created; call InitSchema to
// create the tables.
//
// The caller MUST call Close() when done to ensure proper cleanup.
func Open(path string) (*DB, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		type TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		external_ref TEXT,
		remote_value TEXT,

		-- Optimistic concurrency
		version INTEGER NOT NULL DEFAULT 1,

		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,

		UNIQUE(project_id, category, name)
	);

	-- Append-only audit trail. The autoincrement id breaks timestamp ties
	-- so ordering is total.
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		token_id TEXT NOT NULL,
		action TEXT NOT NULL,
		changes TEXT NOT NULL,  -- JSON: field -> {before, after}
		origin TEXT NOT NULL,
		actor TEXT,
		created_at TEXT NOT NULL
	);

	-- Remote additions dismissed with a keep-local resolution.
	CREATE TABLE IF NOT EXISTS dismissals (
		project_id TEXT NOT NULL,
		variable_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (project_id, variable_id)
	);

	CREATE INDEX IF NOT EXISTS idx_tokens_project ON tokens(project_id);
	CREATE INDEX IF NOT EXISTS idx_tokens_external_ref ON tokens(project_id, external_ref);
	CREATE INDEX IF NOT EXISTS idx_history_token ON history(token_id);
	CREATE INDEX IF NOT EXISTS idx_history_project ON history(project_id, created_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// stringToNull converts an optional string to a nullable SQL string.
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullToString converts a nullable SQL string back to a plain string.
func nullToString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
