package models

import (
	"sort"
	"time"
)

// Snapshot is the complete checklist completion state for one user:
// item identifier -> done. The sync engine treats it as an opaque
// serializable value and never invents or renames keys.
type Snapshot map[string]bool

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the item identifiers in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Done returns the number of completed items.
func (s Snapshot) Done() int {
	n := 0
	for _, v := range s {
		if v {
			n++
		}
	}
	return n
}

// Equal reports whether two snapshots hold the same key/value pairs.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Record is a stored snapshot plus its write timestamp (RFC 3339).
// Records are written atomically: a reader sees either the previous
// record or the new one, never a partial write.
type Record struct {
	Data      Snapshot `json:"data"`
	Timestamp string   `json:"timestamp"`
}

// ModifiedAt parses the record timestamp. Returns the zero time when
// the timestamp is missing or unparseable.
func (r Record) ModifiedAt() time.Time {
	if r.Timestamp == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Identity is the authenticated user as seen by the sync engine.
// ID is the sole key used for storage namespacing and remote
// authorization checks; Email and Name are display passthrough.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// ExportVersion tags the portable export file format.
const ExportVersion = "1.0"

// Export is the portable snapshot file: the full checklist state plus
// exporter metadata and a format version tag.
type Export struct {
	Data       Snapshot `json:"data"`
	ExportedAt string   `json:"exportedAt"`
	ExportedBy string   `json:"exportedBy"`
	Version    string   `json:"version"`
}
