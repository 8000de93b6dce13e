package server

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);
CREATE TABLE IF NOT EXISTS records (
	user_id    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);
`

// DB wraps the server database connection.
type DB struct {
	conn *sql.DB
}

// TokenUser is the identity a bearer token resolves to.
type TokenUser struct {
	UserID string
	Email  string
}

// StoredRecord is a persisted per-user payload.
type StoredRecord struct {
	Data      json.RawMessage
	Timestamp string
}

// Open opens the server database, creating it and its schema if needed.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// NewDB wraps an already-open connection and ensures the schema exists.
// Used by tests with an in-memory database.
func NewDB(conn *sql.DB) (*DB, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping checks the database connection is alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close checkpoints the WAL and closes the database connection.
func (db *DB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// VerifyToken resolves a bearer token. Returns nil for an unknown token.
func (db *DB) VerifyToken(token string) (*TokenUser, error) {
	var u TokenUser
	err := db.conn.QueryRow(
		"SELECT user_id, email FROM tokens WHERE token = ?", token,
	).Scan(&u.UserID, &u.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return &u, nil
}

// AddToken provisions a bearer token for a user. An empty token gets a
// generated one. Returns the effective token.
func (db *DB) AddToken(token, userID, email string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("token requires a user id")
	}
	if token == "" {
		t, err := generateToken()
		if err != nil {
			return "", err
		}
		token = t
	}
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO tokens (token, user_id, email) VALUES (?, ?, ?)",
		token, userID, email,
	)
	if err != nil {
		return "", fmt.Errorf("add token: %w", err)
	}
	return token, nil
}

// RevokeToken removes a bearer token. Unknown tokens are a no-op.
func (db *DB) RevokeToken(token string) error {
	_, err := db.conn.Exec("DELETE FROM tokens WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// PutRecord upserts the single record for a user.
func (db *DB) PutRecord(userID string, data json.RawMessage, timestamp string) error {
	_, err := db.conn.Exec(`
		INSERT INTO records (user_id, data, timestamp, updated_at)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		ON CONFLICT(user_id) DO UPDATE SET
			data = excluded.data,
			timestamp = excluded.timestamp,
			updated_at = excluded.updated_at`,
		userID, string(data), timestamp,
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// GetRecord fetches the record for a user. ok is false when the user has
// never saved.
func (db *DB) GetRecord(userID string) (rec StoredRecord, ok bool, err error) {
	var data string
	err = db.conn.QueryRow(
		"SELECT data, timestamp FROM records WHERE user_id = ?", userID,
	).Scan(&data, &rec.Timestamp)
	if err == sql.ErrNoRows {
		return StoredRecord{}, false, nil
	}
	if err != nil {
		return StoredRecord{}, false, fmt.Errorf("get record: %w", err)
	}
	rec.Data = json.RawMessage(data)
	return rec, true, nil
}

// generateToken creates a "ckt_" prefixed token with 16 random hex bytes.
func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return "ckt_" + hex.EncodeToString(b), nil
}
