// Package store persists synced content items, the user directory,
// per-channel watermarks, and API budget windows in a local SQLite
// database.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const SchemaVersion = 1

// Store wraps the SQLite database connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates the slacksync database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn, path: dbPath}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Store) initSchema() error {
	var currentVersion int
	err := s.conn.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&currentVersion)

	if err == sql.ErrNoRows || (err != nil && strings.Contains(err.Error(), "no such table: schema_version")) {
		if _, err := s.conn.Exec(schemaSQL); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if currentVersion < SchemaVersion {
		return fmt.Errorf("schema migration needed from version %d to %d (not implemented)", currentVersion, SchemaVersion)
	}
	return nil
}

// DefaultPath returns the default database path.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./slacksync.db"
	}
	return filepath.Join(home, ".slacksync", "slacksync.db")
}

// Stats represents database statistics.
type Stats struct {
	ItemCount    int64
	ThreadCount  int64
	UserCount    int64
	ChannelCount int64
	LastSyncedAt *time.Time
	DatabaseSize int64
}

// Stats returns counts across the main tables.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}

	if err := s.conn.QueryRow("SELECT COUNT(*) FROM items").Scan(&stats.ItemCount); err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM items WHERE type = 'thread'").Scan(&stats.ThreadCount); err != nil {
		return nil, fmt.Errorf("failed to count threads: %w", err)
	}
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM users WHERE deleted = 0").Scan(&stats.UserCount); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM channel_sync_state").Scan(&stats.ChannelCount); err != nil {
		return nil, fmt.Errorf("failed to count channels: %w", err)
	}

	// MAX() strips the column's TIMESTAMP declared type, so the driver
	// would hand back a string. Ordering keeps the typed column.
	var last sql.NullTime
	err := s.conn.QueryRow("SELECT last_synced_at FROM channel_sync_state ORDER BY last_synced_at DESC LIMIT 1").Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last sync time: %w", err)
	}
	if last.Valid {
		t := last.Time.UTC()
		stats.LastSyncedAt = &t
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}
