// Package store provides durable per-user checklist persistence over an
// injected key-value abstraction. The sqlite-backed KV is the durable
// implementation; the in-memory KV substitutes for it in tests.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/ck/internal/models"
)

// namespace prefixes every persisted key so that multiple tools sharing
// one store file cannot collide.
const namespace = "ck"

// KV is get/put by namespaced key. Set writes all entries atomically.
type KV interface {
	Get(key string) (string, bool, error)
	Set(entries map[string]string) error
	Close() error
}

func dataKey(userID string) string {
	return fmt.Sprintf("%s-%s-data", namespace, userID)
}

func modifiedKey(userID string) string {
	return fmt.Sprintf("%s-%s-last-modified", namespace, userID)
}

// Records layers per-user record serialization over a KV. Keys are
// derived from the user ID, isolating different signed-in identities
// that share one store.
type Records struct {
	kv KV
}

// NewRecords wraps a KV in the record layer.
func NewRecords(kv KV) *Records {
	return &Records{kv: kv}
}

// Put serializes the record and writes the data and last-modified keys
// in one atomic batch. On failure the prior record is left untouched.
func (r *Records) Put(userID string, rec models.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("serialize snapshot: %w", err)
	}
	ts := rec.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	if err := r.kv.Set(map[string]string{
		dataKey(userID):     string(data),
		modifiedKey(userID): ts,
	}); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Get returns the last record written for the user. A missing or
// unparseable record is reported as absent, not as an error, so the
// caller falls back to empty state.
func (r *Records) Get(userID string) (models.Record, bool) {
	raw, ok, err := r.kv.Get(dataKey(userID))
	if err != nil {
		slog.Debug("store: read record", "user", userID, "err", err)
		return models.Record{}, false
	}
	if !ok {
		return models.Record{}, false
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		slog.Warn("store: unparseable record treated as absent", "user", userID, "err", err)
		return models.Record{}, false
	}
	if snap == nil {
		snap = models.Snapshot{}
	}

	ts, _, err := r.kv.Get(modifiedKey(userID))
	if err != nil {
		slog.Debug("store: read last-modified", "user", userID, "err", err)
	}
	return models.Record{Data: snap, Timestamp: ts}, true
}

// Close releases the underlying KV.
func (r *Records) Close() error {
	return r.kv.Close()
}
