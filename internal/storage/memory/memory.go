// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/aeroduel/plane/pkg/core"
)

// Backend keeps the combat journal in memory. When maxEntries is set the
// oldest entries are discarded first.
type Backend struct {
	maxEntries int
	entries    []core.Entry

	combatID uint
	matchID  uint
	mu       sync.RWMutex
}

// New creates a new memory backend. maxEntries <= 0 keeps everything.
func New(maxEntries int) *Backend {
	return &Backend{maxEntries: maxEntries}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// RecordCombat appends an arbiter decision
func (b *Backend) RecordCombat(r *core.CombatRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.combatID++
	r.ID = b.combatID

	rec := *r
	b.append(core.Entry{Kind: core.KindCombat, Time: r.Time, Combat: &rec})
	return nil
}

// RecordMatch appends a match start or end
func (b *Backend) RecordMatch(r *core.MatchRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.matchID++
	r.ID = b.matchID

	rec := *r
	b.append(core.Entry{Kind: core.KindMatch, Time: r.Time, Match: &rec})
	return nil
}

// append adds e and enforces the size bound. Caller holds the lock.
func (b *Backend) append(e core.Entry) {
	b.entries = append(b.entries, e)
	if b.maxEntries > 0 && len(b.entries) > b.maxEntries {
		over := len(b.entries) - b.maxEntries
		b.entries = append(b.entries[:0:0], b.entries[over:]...)
	}
}

// Events returns up to limit entries, newest first
func (b *Backend) Events(limit int) ([]core.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.Entry, 0, n)
	for i := len(b.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.entries[i])
	}
	return out, nil
}

// Len returns the number of stored entries
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
