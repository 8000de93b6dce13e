package engine

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcus/ck/internal/config"
	"github.com/marcus/ck/internal/identity"
	"github.com/marcus/ck/internal/models"
	"github.com/marcus/ck/internal/remote"
	"github.com/marcus/ck/internal/status"
	"github.com/marcus/ck/internal/store"
)

// fakeRemote records saves and serves canned load responses.
type fakeRemote struct {
	mu        sync.Mutex
	saves     []remote.SaveRequest
	saveErr   error
	saveGate  chan struct{} // when non-nil, Save blocks until closed
	loadResp  *remote.LoadResponse
	loadErr   error
	loadFn    func(call int, userID string) (*remote.LoadResponse, error)
	loadCalls int
}

func (f *fakeRemote) Save(req remote.SaveRequest) (*remote.SaveResponse, error) {
	f.mu.Lock()
	gate := f.saveGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, req)
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return &remote.SaveResponse{Success: true, Message: "saved", Timestamp: req.Timestamp, UserID: req.UserID}, nil
}

func (f *fakeRemote) Load(userID string) (*remote.LoadResponse, error) {
	f.mu.Lock()
	f.loadCalls++
	call := f.loadCalls
	fn := f.loadFn
	resp, err := f.loadResp, f.loadErr
	f.mu.Unlock()

	if fn != nil {
		return fn(call, userID)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *fakeRemote) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeRemote) lastSave() remote.SaveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[len(f.saves)-1]
}

func clearSyncEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CK_SYNC_URL", "")
	t.Setenv("CK_SYNC_AUTO", "")
	t.Setenv("CK_SYNC_DEBOUNCE", "")
	t.Setenv("CK_AUTH_TOKEN", "")
	t.Setenv("CK_AUTH_USER", "")
}

func testCreds() *identity.Credentials {
	return &identity.Credentials{UserID: "u1", Email: "u1@example.com", AccessToken: "tok"}
}

// newTestEngine builds an engine over an in-memory store and the fake
// remote. creds may be nil for signed-out scenarios.
func newTestEngine(t *testing.T, settings *config.Settings, creds *identity.Credentials, fake *fakeRemote) (*Engine, *store.Records) {
	t.Helper()
	clearSyncEnv(t)
	records := store.NewRecords(store.NewMemoryKV())
	e := New(records, status.NewTracker(), settings, creds)
	e.NewRemote = func(endpoint, token string) Remote { return fake }
	t.Cleanup(e.Close)
	return e, records
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSync_SavesLocallyAndRemotely(t *testing.T) {
	fake := &fakeRemote{}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)

	e.AddItem("a")
	e.SetDone("a", true)
	if err := e.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if n := fake.saveCount(); n != 1 {
		t.Fatalf("saves: got %d, want 1", n)
	}
	save := fake.lastSave()
	if save.UserID != "u1" || save.UserEmail != "u1@example.com" {
		t.Errorf("identity: got %+v", save)
	}
	if !save.Data.Equal(models.Snapshot{"a": true}) {
		t.Errorf("saved data: got %v", save.Data)
	}

	rec, ok := records.Get("u1")
	if !ok || !rec.Data.Equal(models.Snapshot{"a": true}) {
		t.Errorf("local record: got %v", rec.Data)
	}
	if state, _ := e.Tracker().Current(); state != status.StateSynced {
		t.Errorf("status: got %s, want synced", state)
	}
	if e.Tracker().LastSyncedAt().IsZero() {
		t.Error("last synced time should be recorded")
	}
}

func TestSync_NoEndpointGoesOffline(t *testing.T) {
	fake := &fakeRemote{}
	e, records := newTestEngine(t, &config.Settings{}, testCreds(), fake)

	e.AddItem("a")
	if err := e.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if n := fake.saveCount(); n != 0 {
		t.Fatalf("no endpoint must mean zero network calls, got %d", n)
	}
	rec, ok := records.Get("u1")
	if !ok || !rec.Data.Equal(models.Snapshot{"a": false}) {
		t.Errorf("local record: got %v", rec.Data)
	}
	state, msg := e.Tracker().Current()
	if state != status.StateOffline {
		t.Errorf("status: got %s, want offline", state)
	}
	if !strings.Contains(msg, "not configured") {
		t.Errorf("message: got %q", msg)
	}
}

func TestSync_AuthExpiredKeepsLocalWrite(t *testing.T) {
	fake := &fakeRemote{saveErr: fmt.Errorf("%w: token expired", remote.ErrUnauthorized)}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)

	e.AddItem("a")
	e.SetDone("a", true)
	err := e.Sync()
	if err == nil {
		t.Fatal("expected save error")
	}
	if !remote.IsAuthExpired(err) {
		t.Errorf("error class: got %v", err)
	}

	state, msg := e.Tracker().Current()
	if state != status.StateError {
		t.Errorf("status: got %s, want error", state)
	}
	if !strings.Contains(msg, "sign in") {
		t.Errorf("message should instruct re-auth, got %q", msg)
	}
	rec, ok := records.Get("u1")
	if !ok || !rec.Data["a"] {
		t.Errorf("local store must still hold the mutated value, got %v", rec.Data)
	}
}

func TestSync_TransportErrorKeepsLocalWrite(t *testing.T) {
	fake := &fakeRemote{saveErr: errors.New("connection refused")}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)

	e.AddItem("a")
	if err := e.Sync(); err == nil {
		t.Fatal("expected error")
	}

	state, msg := e.Tracker().Current()
	if state != status.StateError {
		t.Errorf("status: got %s", state)
	}
	if !strings.Contains(msg, "cloud save failed") {
		t.Errorf("message: got %q", msg)
	}
	if _, ok := records.Get("u1"); !ok {
		t.Error("local write must survive the remote failure")
	}
}

func TestSync_SignedOutWritesUnderLocalUser(t *testing.T) {
	fake := &fakeRemote{}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, nil, fake)

	e.AddItem("a")
	if err := e.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if n := fake.saveCount(); n != 0 {
		t.Fatalf("signed out must mean zero network calls, got %d", n)
	}
	if _, ok := records.Get("local"); !ok {
		t.Error("signed-out state should persist under the local namespace")
	}
	if state, _ := e.Tracker().Current(); state != status.StateOffline {
		t.Errorf("status: got %s, want offline", state)
	}
}

func TestDebounce_CollapsesBurstIntoOneSave(t *testing.T) {
	fake := &fakeRemote{}
	e, _ := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test", Debounce: "30ms"}, testCreds(), fake)

	for i := 0; i < 5; i++ {
		e.AddItem(fmt.Sprintf("item-%d", i))
	}
	e.SetDone("item-4", true)

	waitFor(t, "debounced save", func() bool { return fake.saveCount() >= 1 })
	// quiet period: no further saves may arrive
	time.Sleep(100 * time.Millisecond)

	if n := fake.saveCount(); n != 1 {
		t.Fatalf("burst must collapse to one save, got %d", n)
	}
	save := fake.lastSave()
	if len(save.Data) != 5 || !save.Data["item-4"] {
		t.Errorf("save must carry the state as of the last mutation, got %v", save.Data)
	}
}

func TestLoadFromCloud_RemoteWins(t *testing.T) {
	fake := &fakeRemote{loadResp: &remote.LoadResponse{
		Success:   true,
		Data:      models.Snapshot{"remote": true},
		Timestamp: "2026-08-28T09:00:00Z",
		UserID:    "u1",
	}}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)

	// seed diverging local state
	local := models.Record{Data: models.Snapshot{"local": true}, Timestamp: "2026-08-28T08:00:00Z"}
	if err := records.Put("u1", local); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e.LoadLocal()

	if err := e.LoadFromCloud(); err != nil {
		t.Fatalf("load: %v", err)
	}

	want := models.Snapshot{"remote": true}
	if got := e.Items(); !got.Equal(want) {
		t.Errorf("in-memory: got %v, want %v (no merge)", got, want)
	}
	rec, ok := records.Get("u1")
	if !ok || !rec.Data.Equal(want) {
		t.Errorf("local store: got %v, want %v", rec.Data, want)
	}
	if rec.Timestamp != "2026-08-28T09:00:00Z" {
		t.Errorf("timestamp: got %q", rec.Timestamp)
	}
	if state, _ := e.Tracker().Current(); state != status.StateSynced {
		t.Errorf("status: got %s", state)
	}
}

func TestLoadFromCloud_NullDataLeavesLocalUntouched(t *testing.T) {
	fake := &fakeRemote{loadResp: &remote.LoadResponse{Success: true, UserID: "u1"}}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)

	local := models.Record{Data: models.Snapshot{"local": true}, Timestamp: "2026-08-28T08:00:00Z"}
	if err := records.Put("u1", local); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e.LoadLocal()

	if err := e.LoadFromCloud(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := e.Items(); !got.Equal(local.Data) {
		t.Errorf("local state must survive a null remote, got %v", got)
	}
	if state, _ := e.Tracker().Current(); state != status.StateSynced {
		t.Errorf("status: got %s", state)
	}
}

func TestLoadFromCloud_FailureGoesOffline(t *testing.T) {
	fake := &fakeRemote{loadErr: errors.New("no route to host")}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)

	local := models.Record{Data: models.Snapshot{"local": true}}
	if err := records.Put("u1", local); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e.LoadLocal()

	if err := e.LoadFromCloud(); err == nil {
		t.Fatal("expected error")
	}

	state, msg := e.Tracker().Current()
	if state != status.StateOffline {
		t.Errorf("status: got %s, want offline", state)
	}
	if !strings.Contains(msg, "cloud load failed") {
		t.Errorf("message: got %q", msg)
	}
	rec, ok := records.Get("u1")
	if !ok || !rec.Data.Equal(local.Data) {
		t.Error("local data on disk must be left untouched")
	}
}

func TestLoadFromCloud_NotConfigured(t *testing.T) {
	fake := &fakeRemote{}
	e, _ := newTestEngine(t, &config.Settings{}, testCreds(), fake)
	if err := e.LoadFromCloud(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("got %v, want ErrNotConfigured", err)
	}

	e2, _ := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, nil, fake)
	if err := e2.LoadFromCloud(); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("got %v, want ErrNotSignedIn", err)
	}
}

func TestSync_SecondCallWhileInFlightIsRejected(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeRemote{saveGate: gate}
	e, _ := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)
	e.AddItem("a")

	done := make(chan error, 1)
	go func() { done <- e.Sync() }()

	waitFor(t, "first sync to reach the remote", func() bool {
		state, _ := e.Tracker().Current()
		return state == status.StateSyncing
	})

	if err := e.Sync(); !errors.Is(err, ErrSyncInFlight) {
		t.Errorf("second sync: got %v, want ErrSyncInFlight", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if n := fake.saveCount(); n != 1 {
		t.Errorf("saves: got %d, want 1", n)
	}
}

func TestLoadFromCloud_StaleCompletionDiscarded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	fake := &fakeRemote{}
	fake.loadFn = func(call int, userID string) (*remote.LoadResponse, error) {
		if call == 1 {
			close(entered)
			<-release
			return &remote.LoadResponse{Success: true, Data: models.Snapshot{"stale": true}, UserID: userID}, nil
		}
		return &remote.LoadResponse{Success: true, Data: models.Snapshot{"fresh": true}, UserID: userID}, nil
	}
	e, _ := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)

	done := make(chan error, 1)
	go func() { done <- e.LoadFromCloud() }()
	<-entered

	// a second load supersedes the first while it is still in flight
	if err := e.LoadFromCloud(); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if got := e.Items(); !got.Equal(models.Snapshot{"fresh": true}) {
		t.Fatalf("after fresh load: got %v", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("stale load: %v", err)
	}
	if got := e.Items(); !got.Equal(models.Snapshot{"fresh": true}) {
		t.Errorf("stale completion must be discarded, got %v", got)
	}
	if state, _ := e.Tracker().Current(); state != status.StateSynced {
		t.Errorf("status: got %s", state)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	fake := &fakeRemote{}
	e, _ := newTestEngine(t, &config.Settings{}, testCreds(), fake)

	e.AddItem("a")
	e.AddItem("b")
	e.SetDone("a", true)
	original := e.Items()

	var buf bytes.Buffer
	if err := e.Export(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(buf.String(), `"version": "1.0"`) {
		t.Errorf("export should carry the format version: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "u1@example.com") {
		t.Errorf("export should carry exporter identity: %s", buf.String())
	}

	// diverge, then restore from the artifact
	e.RemoveItem("a")
	e.AddItem("c")

	if err := e.Import(&buf); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := e.Items(); !got.Equal(original) {
		t.Errorf("round trip: got %v, want %v", got, original)
	}
}

func TestImport_MissingDataIsFormatError(t *testing.T) {
	fake := &fakeRemote{}
	e, _ := newTestEngine(t, &config.Settings{}, testCreds(), fake)

	err := e.Import(strings.NewReader(`{"exportedAt":"2026-08-28T10:00:00Z","version":"1.0"}`))
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("got %v, want ErrInvalidFormat", err)
	}

	err = e.Import(strings.NewReader(`not json at all`))
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("got %v, want ErrInvalidFormat", err)
	}
}

func TestImport_TriggersWritePathWhenActive(t *testing.T) {
	fake := &fakeRemote{}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)

	err := e.Import(strings.NewReader(`{"data":{"x":true},"exportedAt":"2026-08-28T10:00:00Z","exportedBy":"u1","version":"1.0"}`))
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if n := fake.saveCount(); n != 1 {
		t.Fatalf("import with auto-sync active should push once, got %d", n)
	}
	if !fake.lastSave().Data.Equal(models.Snapshot{"x": true}) {
		t.Errorf("pushed data: got %v", fake.lastSave().Data)
	}
	rec, ok := records.Get("u1")
	if !ok || !rec.Data.Equal(models.Snapshot{"x": true}) {
		t.Errorf("local store: got %v", rec.Data)
	}
}

func TestSetEndpoint_TriggersCloudLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	fake := &fakeRemote{loadResp: &remote.LoadResponse{
		Success: true,
		Data:    models.Snapshot{"cloud": true},
		UserID:  "u1",
	}}
	e, _ := newTestEngine(t, &config.Settings{}, testCreds(), fake)

	if err := e.SetEndpoint("https://cloud.test"); err != nil {
		t.Fatalf("set endpoint: %v", err)
	}
	if got := e.Items(); !got.Equal(models.Snapshot{"cloud": true}) {
		t.Errorf("endpoint change should adopt remote data, got %v", got)
	}

	// persisted
	s, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if s.Endpoint != "https://cloud.test" {
		t.Errorf("persisted endpoint: got %q", s.Endpoint)
	}
}

func TestFlush_RunsPendingDebounce(t *testing.T) {
	fake := &fakeRemote{}
	e, _ := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test", Debounce: "1h"}, testCreds(), fake)

	e.AddItem("a")
	if err := e.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := fake.saveCount(); n != 1 {
		t.Fatalf("flush should fire the pending sync, got %d saves", n)
	}

	// nothing pending now
	if err := e.Flush(); err != nil {
		t.Fatalf("idle flush: %v", err)
	}
	if n := fake.saveCount(); n != 1 {
		t.Errorf("idle flush must not sync again, got %d", n)
	}
}

func TestMutation_PersistsLocallyWithAutoSyncOff(t *testing.T) {
	off := false
	fake := &fakeRemote{}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test", AutoSync: &off}, testCreds(), fake)

	e.AddItem("a")
	e.SetDone("a", true)

	rec, ok := records.Get("u1")
	if !ok || !rec.Data["a"] {
		t.Fatalf("mutation must hit the local store immediately, got %v (ok=%v)", rec.Data, ok)
	}
	if n := fake.saveCount(); n != 0 {
		t.Errorf("auto-sync off must mean zero network calls, got %d", n)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := fake.saveCount(); n != 0 {
		t.Errorf("flush with no pending debounce must not push, got %d", n)
	}
}

func TestLoadLocal_PopulatesBeforeAnyNetwork(t *testing.T) {
	fake := &fakeRemote{loadErr: errors.New("unreachable")}
	e, records := newTestEngine(t, &config.Settings{Endpoint: "https://cloud.test"}, testCreds(), fake)

	seed := models.Record{Data: models.Snapshot{"a": true}, Timestamp: "2026-08-28T08:00:00Z"}
	if err := records.Put("u1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got := e.LoadLocal()
	if !got.Equal(seed.Data) {
		t.Errorf("mount: got %v, want %v", got, seed.Data)
	}
	if fake.loadCalls != 0 {
		t.Errorf("mount must not touch the network, got %d load calls", fake.loadCalls)
	}
}
