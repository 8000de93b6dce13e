// Package status tracks the sync state machine exposed to observers.
// The tracker makes no sync decisions; it records caller-reported
// transitions atomically, last-write-wins.
package status

import (
	"sync"
	"time"
)

// State is one of the five sync states. Idle is the only state
// reachable at cold start; the machine cycles for the process lifetime.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSynced  State = "synced"
	StateOffline State = "offline"
	StateError   State = "error"
)

// Transition is delivered to observers on every state change.
type Transition struct {
	State    State
	Message  string
	SyncedAt time.Time // last successful sync, zero if none yet
}

// Tracker is the finite state tracker. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	state    State
	message  string
	syncedAt time.Time
	subs     map[int]func(Transition)
	nextSub  int

	now func() time.Time
}

// NewTracker starts in the idle state.
func NewTracker() *Tracker {
	return &Tracker{
		state: StateIdle,
		subs:  make(map[int]func(Transition)),
		now:   time.Now,
	}
}

// Set records a transition and notifies observers. A transition to
// synced stamps the last-synced time and clears any prior message.
func (t *Tracker) Set(state State, message string) {
	t.mu.Lock()
	t.state = state
	t.message = message
	if state == StateSynced {
		t.syncedAt = t.now()
		t.message = ""
	}
	tr := Transition{State: t.state, Message: t.message, SyncedAt: t.syncedAt}
	fns := make([]func(Transition), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(tr)
	}
}

// Current returns the state and the message that accompanied it.
func (t *Tracker) Current() (State, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.message
}

// LastSyncedAt returns the time of the last successful sync, or the
// zero time if no sync has succeeded this session.
func (t *Tracker) LastSyncedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.syncedAt
}

// Subscribe registers an observer for future transitions and returns
// an unsubscribe func.
func (t *Tracker) Subscribe(fn func(Transition)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
