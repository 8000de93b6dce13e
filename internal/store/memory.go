package store

import "sync"

// MemoryKV is an in-memory KV for tests and throwaway state.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]string

	// FailSet, when set, makes every Set call return this error. Used
	// by tests to exercise the non-fatal local-write failure path.
	FailSet error
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]string)}
}

// Get returns the value for key, if present.
func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

// Set writes all entries atomically.
func (m *MemoryKV) Set(entries map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		return m.FailSet
	}
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

// Close is a no-op for the in-memory KV.
func (m *MemoryKV) Close() error {
	return nil
}
