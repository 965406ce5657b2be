// Package freshness flags divergence between the in-memory campaign
// model and the last generated derived artifact.
package freshness

import (
	"sync"
	"time"
)

// Tracker is a two-state flag plus the time of the last successful
// generation. It never performs generation itself.
type Tracker struct {
	mu              sync.Mutex
	stale           bool
	reason          string
	lastGeneratedAt time.Time
}

func New() *Tracker {
	return &Tracker{stale: true, reason: "never generated"}
}

// MarkDirty records that the model changed since the last generation.
func (t *Tracker) MarkDirty(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stale = true
	t.reason = reason
}

// MarkGenerated clears the flag after a successful generation.
func (t *Tracker) MarkGenerated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stale = false
	t.reason = ""
	t.lastGeneratedAt = time.Now()
}

func (t *Tracker) IsStale() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stale
}

// Reason returns a human-readable state description.
func (t *Tracker) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stale {
		return "up to date"
	}
	return t.reason
}

func (t *Tracker) LastGeneratedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastGeneratedAt
}
