package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/marcus/ck/internal/models"
)

// ErrInvalidFormat marks an import file the engine cannot accept.
var ErrInvalidFormat = errors.New("invalid import file")

// Export writes the full current snapshot plus exporter identity and a
// format version tag. Purely a snapshot dump; the remote store is not
// touched.
func (e *Engine) Export(w io.Writer) error {
	e.mu.Lock()
	snap := e.snapshot.Clone()
	if snap == nil {
		snap = models.Snapshot{}
	}
	by := anonymousUser
	if e.creds != nil {
		by = e.creds.Email
		if by == "" {
			by = e.creds.UserID
		}
	}
	e.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(models.Export{
		Data:       snap,
		ExportedAt: e.now().UTC().Format(time.RFC3339),
		ExportedBy: by,
		Version:    models.ExportVersion,
	})
}

// Import reads an export artifact and replaces in-memory and local
// state wholesale. A missing data field is a format error. When
// auto-sync is enabled and a user is signed in, the write path runs
// immediately so the imported state propagates to the cloud.
func (e *Engine) Import(r io.Reader) error {
	var in struct {
		Data       *models.Snapshot `json:"data"`
		ExportedAt string           `json:"exportedAt"`
		Version    string           `json:"version"`
	}
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if in.Data == nil {
		return fmt.Errorf("%w: missing data field", ErrInvalidFormat)
	}

	e.mu.Lock()
	snap := (*in.Data).Clone()
	if snap == nil {
		snap = models.Snapshot{}
	}
	e.snapshot = snap
	userID := e.userIDLocked()
	ts := e.now().UTC().Format(time.RFC3339)
	if err := e.records.Put(userID, models.Record{Data: snap, Timestamp: ts}); err != nil {
		slog.Warn("local store write failed", "err", err)
	}
	autoSync := e.settings.AutoSyncEnabled()
	signedIn := e.creds != nil
	e.mu.Unlock()

	if autoSync && signedIn {
		return e.Sync()
	}
	return nil
}
