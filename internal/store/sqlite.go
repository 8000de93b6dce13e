package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteKV is the durable KV backed by a single sqlite file. Writes go
// through an OS file lock so that only one process mutates the store at
// a time (single-writer discipline).
type SQLiteKV struct {
	db   *sql.DB
	lock *writeLock
}

// Open opens (or creates) the store file at path.
func Open(path string) (*SQLiteKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// WAL for concurrent reads while writes are serialized
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=500"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	kv, err := NewKV(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	kv.lock = newWriteLock(path + ".lock")
	return kv, nil
}

// NewKV wraps an existing connection, creating the schema if needed.
// No cross-process lock is attached; tests use this with in-memory
// databases.
func NewKV(db *sql.DB) (*SQLiteKV, error) {
	if _, err := db.Exec(kvSchema); err != nil {
		return nil, fmt.Errorf("init kv schema: %w", err)
	}
	return &SQLiteKV{db: db}, nil
}

// Get returns the value for key, if present.
func (s *SQLiteKV) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes all entries in one transaction. With the write lock held,
// concurrent processes cannot interleave partial batches.
func (s *SQLiteKV) Set(entries map[string]string) error {
	if s.lock != nil {
		if err := s.lock.acquire(lockTimeout); err != nil {
			return err
		}
		defer s.lock.release()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin kv write: %w", err)
	}
	defer tx.Rollback()

	for k, v := range entries {
		if _, err := tx.Exec(
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v,
		); err != nil {
			return fmt.Errorf("kv set %q: %w", k, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}
