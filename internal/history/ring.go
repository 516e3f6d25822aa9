// Package history provides a bounded in-memory log of change history
// entries.
package history

import (
	"sync"

	"github.com/chartstudio/collab/internal/model"
)

// Ring is a thread-safe circular log that keeps the most recent change
// history entries up to a fixed capacity. When the ring is full, the oldest
// entries are discarded.
//
// It bounds the per-workspace memory a hub session holds; the full audit
// log lives in SQLite.
type Ring struct {
	entries  []*model.ChangeHistoryEntry
	capacity int
	mu       sync.RWMutex
}

// NewRing creates a ring with the given capacity. A capacity below 1
// defaults to 1.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		entries:  make([]*model.ChangeHistoryEntry, 0, capacity),
		capacity: capacity,
	}
}

// Append adds an entry, discarding the oldest when the ring is full.
func (r *Ring) Append(entry *model.ChangeHistoryEntry) {
	if entry == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries[len(r.entries)-1] = entry
		return
	}
	r.entries = append(r.entries, entry)
}

// All returns a copy of the retained entries, oldest first.
func (r *Ring) All() []*model.ChangeHistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return nil
	}
	out := make([]*model.ChangeHistoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear removes all retained entries.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return r.capacity
}
