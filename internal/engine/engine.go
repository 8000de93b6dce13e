// Package engine is the sync orchestrator: it decides when to read and
// write which store, debounces bursts of mutations, and resolves
// failures into sync status transitions. Local writes always come
// first; the remote store only ever sees the debounced latest state.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/ck/internal/config"
	"github.com/marcus/ck/internal/identity"
	"github.com/marcus/ck/internal/models"
	"github.com/marcus/ck/internal/remote"
	"github.com/marcus/ck/internal/status"
	"github.com/marcus/ck/internal/store"
)

var (
	// ErrSyncInFlight is returned when a sync is requested while one
	// is already running. The engine never fires two concurrent saves.
	ErrSyncInFlight = errors.New("sync already in flight")

	// ErrNotConfigured is returned by cloud operations when no
	// endpoint is set.
	ErrNotConfigured = errors.New("cloud sync not configured")

	// ErrNotSignedIn is returned by cloud operations without stored
	// credentials.
	ErrNotSignedIn = errors.New("not signed in")
)

// anonymousUser namespaces local storage when nobody is signed in.
const anonymousUser = "local"

// Remote is the cloud store client surface the engine needs. Swapped
// out in tests.
type Remote interface {
	Save(req remote.SaveRequest) (*remote.SaveResponse, error)
	Load(userID string) (*remote.LoadResponse, error)
}

// Engine owns the in-memory snapshot, the settings, and the sync
// status. It is the single writer of the local store.
type Engine struct {
	mu       sync.Mutex
	records  *store.Records
	tracker  *status.Tracker
	settings *config.Settings
	creds    *identity.Credentials
	snapshot models.Snapshot

	debounce time.Duration
	timer    *time.Timer
	syncing  bool
	loadGen  uint64

	// NewRemote builds the client for a single call. Tests replace it.
	NewRemote func(endpoint, token string) Remote

	now func() time.Time
}

// New creates an engine. creds may be nil (signed out).
func New(records *store.Records, tracker *status.Tracker, settings *config.Settings, creds *identity.Credentials) *Engine {
	return &Engine{
		records:  records,
		tracker:  tracker,
		settings: settings,
		creds:    creds,
		snapshot: models.Snapshot{},
		debounce: settings.DebounceInterval(),
		NewRemote: func(endpoint, token string) Remote {
			return remote.New(endpoint, token)
		},
		now: time.Now,
	}
}

// Tracker exposes the status machine for observers.
func (e *Engine) Tracker() *status.Tracker {
	return e.tracker
}

// Credentials returns the signed-in credentials, or nil.
func (e *Engine) Credentials() *identity.Credentials {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.creds
}

func (e *Engine) userIDLocked() string {
	if e.creds != nil {
		return e.creds.UserID
	}
	return anonymousUser
}

// LoadLocal populates the in-memory snapshot from the local store.
// Runs before any network attempt so the view is never blocked on the
// cloud for initial paint. An absent or unreadable record falls back
// to empty state.
func (e *Engine) LoadLocal() models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records.Get(e.userIDLocked())
	if ok {
		e.snapshot = rec.Data.Clone()
	} else {
		e.snapshot = models.Snapshot{}
	}
	return e.snapshot.Clone()
}

// Items returns a copy of the current snapshot.
func (e *Engine) Items() models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.Clone()
}

// LocalRecord returns the last persisted record for the current user.
func (e *Engine) LocalRecord() (models.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records.Get(e.userIDLocked())
}

// AddItem creates an unchecked item. Returns false if it exists.
func (e *Engine) AddItem(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.snapshot[id]; exists {
		return false
	}
	e.snapshot[id] = false
	e.noteChangeLocked()
	return true
}

// SetDone marks an existing item done or not done. Returns false for
// an unknown item; the engine never invents keys.
func (e *Engine) SetDone(id string, done bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.snapshot[id]; !exists {
		return false
	}
	e.snapshot[id] = done
	e.noteChangeLocked()
	return true
}

// Toggle flips an item and returns its new state.
func (e *Engine) Toggle(id string) (done, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, exists := e.snapshot[id]
	if !exists {
		return false, false
	}
	e.snapshot[id] = !cur
	e.noteChangeLocked()
	return !cur, true
}

// RemoveItem deletes an item. Returns false if it did not exist.
func (e *Engine) RemoveItem(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.snapshot[id]; !exists {
		return false
	}
	delete(e.snapshot, id)
	e.noteChangeLocked()
	return true
}

// noteChangeLocked persists the mutated snapshot locally right away,
// then restarts the debounce timer for the cloud push. Only the most
// recent mutation within the window triggers a sync; earlier pending
// timers are cancelled. Callers hold e.mu.
func (e *Engine) noteChangeLocked() {
	ts := e.now().UTC().Format(time.RFC3339)
	if err := e.records.Put(e.userIDLocked(), models.Record{Data: e.snapshot.Clone(), Timestamp: ts}); err != nil {
		slog.Warn("local store write failed", "err", err)
	}

	if !e.settings.AutoSyncEnabled() || e.debounce <= 0 {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, func() {
		if err := e.Sync(); err != nil && !errors.Is(err, ErrSyncInFlight) {
			slog.Debug("debounced sync", "err", err)
		}
	})
}

// Sync runs the write path: status to syncing, local store write
// (always, even when the cloud is unavailable), then remote save if an
// endpoint is configured and a user is signed in. A remote failure
// never rolls back the local write. At most one sync runs at a time.
func (e *Engine) Sync() error {
	e.mu.Lock()
	if e.timer != nil {
		// this sync supersedes any pending debounce
		e.timer.Stop()
		e.timer = nil
	}
	if e.syncing {
		e.mu.Unlock()
		return ErrSyncInFlight
	}
	e.syncing = true
	snap := e.snapshot.Clone()
	if snap == nil {
		snap = models.Snapshot{}
	}
	endpoint := e.settings.EffectiveEndpoint()
	creds := e.creds
	userID := e.userIDLocked()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	e.tracker.Set(status.StateSyncing, "")

	ts := e.now().UTC().Format(time.RFC3339)
	if err := e.records.Put(userID, models.Record{Data: snap, Timestamp: ts}); err != nil {
		// non-fatal: in-memory state stays current, sync continues
		slog.Warn("local store write failed", "err", err)
	}

	if endpoint == "" {
		// offline here means "not configured for cloud"
		e.tracker.Set(status.StateOffline, "cloud sync not configured")
		return nil
	}
	if creds == nil {
		e.tracker.Set(status.StateOffline, "not signed in")
		return nil
	}

	client := e.NewRemote(endpoint, creds.AccessToken)
	_, err := client.Save(remote.SaveRequest{
		UserID:    creds.UserID,
		UserEmail: creds.Email,
		Data:      snap,
		Timestamp: ts,
	})
	if err != nil {
		if remote.IsAuthExpired(err) {
			e.tracker.Set(status.StateError, "session expired: sign in again with 'ck auth login'")
		} else {
			e.tracker.Set(status.StateError, fmt.Sprintf("cloud save failed: %v", err))
		}
		return err
	}

	e.tracker.Set(status.StateSynced, "")
	return nil
}

// LoadFromCloud runs the read path. On success the remote snapshot
// unconditionally overwrites in-memory and local state (remote-wins).
// On failure local data on disk is left untouched. Completions of
// superseded loads are discarded via a request generation counter.
func (e *Engine) LoadFromCloud() error {
	e.mu.Lock()
	endpoint := e.settings.EffectiveEndpoint()
	creds := e.creds
	if endpoint == "" {
		e.mu.Unlock()
		e.tracker.Set(status.StateOffline, "cloud sync not configured")
		return ErrNotConfigured
	}
	if creds == nil {
		e.mu.Unlock()
		e.tracker.Set(status.StateOffline, "not signed in")
		return ErrNotSignedIn
	}
	e.loadGen++
	gen := e.loadGen
	e.mu.Unlock()

	e.tracker.Set(status.StateSyncing, "")

	client := e.NewRemote(endpoint, creds.AccessToken)
	resp, err := client.Load(creds.UserID)

	e.mu.Lock()
	if gen != e.loadGen {
		// a newer load was issued while this one was in flight
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.mu.Unlock()
		msg := fmt.Sprintf("cloud load failed: %v", err)
		if remote.IsAuthExpired(err) {
			msg = "session expired: sign in again with 'ck auth login'"
		}
		e.tracker.Set(status.StateOffline, msg)
		return err
	}
	if resp.Data == nil {
		// nothing stored remotely for this user; keep local state
		e.mu.Unlock()
		e.tracker.Set(status.StateSynced, "")
		return nil
	}

	e.snapshot = resp.Data.Clone()
	ts := resp.Timestamp
	if ts == "" {
		ts = e.now().UTC().Format(time.RFC3339)
	}
	if err := e.records.Put(creds.UserID, models.Record{Data: e.snapshot, Timestamp: ts}); err != nil {
		slog.Warn("local store write failed", "err", err)
	}
	e.mu.Unlock()

	e.tracker.Set(status.StateSynced, "")
	return nil
}

// SetEndpoint persists a new endpoint. An endpoint becoming available
// with a signed-in user triggers an immediate cloud load: the remote
// may hold newer data than local.
func (e *Engine) SetEndpoint(url string) error {
	e.mu.Lock()
	e.settings.Endpoint = url
	err := config.Save(e.settings)
	creds := e.creds
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if url != "" && creds != nil {
		return e.LoadFromCloud()
	}
	return nil
}

// SetAutoSync persists the auto-sync preference.
func (e *Engine) SetAutoSync(on bool) error {
	e.mu.Lock()
	e.settings.AutoSync = &on
	err := config.Save(e.settings)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Flush fires any pending debounced sync immediately. Used on process
// exit so a short-lived command never loses the trailing mutation.
func (e *Engine) Flush() error {
	e.mu.Lock()
	pending := e.timer != nil
	if pending {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()
	if pending {
		return e.Sync()
	}
	return nil
}

// Close cancels any pending debounce timer.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
