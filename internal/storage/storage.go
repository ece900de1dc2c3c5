// Package storage implements the session, activity, and usage stores on
// sqlite. A single database file holds everything; writes go through WAL
// so concurrent readers never block the recorder.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/store"
)

type Storage struct {
	db   *sql.DB
	path string
}

// Verify Storage implements domain.Store
var _ domain.Store = (*Storage)(nil)

func New(dbPath string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Storage{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project_name TEXT NOT NULL,
		project_path TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'working',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cache_creation INTEGER NOT NULL DEFAULT 0,
		cache_read INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		git_branch TEXT,
		files_changed INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_name);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS activity (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		detail TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_activity_session ON activity(session_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_activity_timestamp ON activity(timestamp DESC);

	CREATE TABLE IF NOT EXISTS usage_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cache_creation INTEGER NOT NULL DEFAULT 0,
		cache_read INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		messages INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_usage_events_session ON usage_events(session_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_events_timestamp ON usage_events(timestamp);

	CREATE TABLE IF NOT EXISTS ingest_offsets (
		file TEXT PRIMARY KEY,
		byte_offset INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the database connection is alive.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrConnection, err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Storage) Path() string {
	return s.path
}
