package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/ck/internal/models"
)

func setupSQLiteKV(t *testing.T) *SQLiteKV {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	kv, err := NewKV(db)
	if err != nil {
		t.Fatalf("init kv: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestRecords_PutGet(t *testing.T) {
	rec := models.Record{
		Data:      models.Snapshot{"a": true, "b": false},
		Timestamp: "2026-08-28T10:00:00Z",
	}

	for name, kv := range map[string]KV{
		"sqlite": setupSQLiteKV(t),
		"memory": NewMemoryKV(),
	} {
		t.Run(name, func(t *testing.T) {
			records := NewRecords(kv)
			if err := records.Put("user-1", rec); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, ok := records.Get("user-1")
			if !ok {
				t.Fatal("record should be present")
			}
			if !got.Data.Equal(rec.Data) {
				t.Errorf("data: got %v, want %v", got.Data, rec.Data)
			}
			if got.Timestamp != rec.Timestamp {
				t.Errorf("timestamp: got %q, want %q", got.Timestamp, rec.Timestamp)
			}
		})
	}
}

func TestRecords_AbsentForUnknownUser(t *testing.T) {
	records := NewRecords(NewMemoryKV())
	if _, ok := records.Get("nobody"); ok {
		t.Fatal("unknown user should be absent")
	}
}

func TestRecords_UserIsolation(t *testing.T) {
	records := NewRecords(setupSQLiteKV(t))

	recA := models.Record{Data: models.Snapshot{"a": true}, Timestamp: "2026-08-28T10:00:00Z"}
	recB := models.Record{Data: models.Snapshot{"b": true}, Timestamp: "2026-08-28T11:00:00Z"}
	if err := records.Put("alice", recA); err != nil {
		t.Fatalf("put alice: %v", err)
	}
	if err := records.Put("bob", recB); err != nil {
		t.Fatalf("put bob: %v", err)
	}

	gotA, ok := records.Get("alice")
	if !ok || !gotA.Data.Equal(recA.Data) {
		t.Errorf("alice: got %v, want %v", gotA.Data, recA.Data)
	}
	gotB, ok := records.Get("bob")
	if !ok || !gotB.Data.Equal(recB.Data) {
		t.Errorf("bob: got %v, want %v", gotB.Data, recB.Data)
	}
}

func TestRecords_CorruptDataTreatedAsAbsent(t *testing.T) {
	kv := NewMemoryKV()
	records := NewRecords(kv)

	if err := kv.Set(map[string]string{dataKey("u1"): "{not json"}); err != nil {
		t.Fatalf("seed corrupt value: %v", err)
	}
	if _, ok := records.Get("u1"); ok {
		t.Fatal("corrupt record should read as absent")
	}
}

func TestRecords_FailedPutLeavesPriorState(t *testing.T) {
	kv := NewMemoryKV()
	records := NewRecords(kv)

	first := models.Record{Data: models.Snapshot{"a": true}, Timestamp: "2026-08-28T10:00:00Z"}
	if err := records.Put("u1", first); err != nil {
		t.Fatalf("put: %v", err)
	}

	kv.FailSet = errors.New("quota exceeded")
	err := records.Put("u1", models.Record{Data: models.Snapshot{"a": false}})
	if err == nil {
		t.Fatal("put should surface the storage error")
	}

	kv.FailSet = nil
	got, ok := records.Get("u1")
	if !ok || !got.Data.Equal(first.Data) {
		t.Errorf("prior record should be untouched, got %v", got.Data)
	}
}

func TestRecords_PutFillsTimestamp(t *testing.T) {
	records := NewRecords(NewMemoryKV())
	if err := records.Put("u1", models.Record{Data: models.Snapshot{"a": true}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := records.Get("u1")
	if !ok {
		t.Fatal("record should be present")
	}
	if got.ModifiedAt().IsZero() {
		t.Errorf("timestamp should be filled, got %q", got.Timestamp)
	}
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	kv, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	records := NewRecords(kv)
	rec := models.Record{
		Data:      models.Snapshot{"x": true},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := records.Put("u1", rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := records.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	kv2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv2.Close()

	got, ok := NewRecords(kv2).Get("u1")
	if !ok || !got.Data.Equal(rec.Data) {
		t.Errorf("after reopen: got %v, want %v", got.Data, rec.Data)
	}
}
