// internal/storage/storage.go
package storage

import "github.com/aeroduel/plane/pkg/core"

// Backend is the interface all combat journal implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Recording (assigns ID to the passed pointer where the backend can)
	RecordCombat(r *core.CombatRecord) error
	RecordMatch(r *core.MatchRecord) error

	// Events returns up to limit journal entries, newest first; limit <= 0 returns all.
	Events(limit int) ([]core.Entry, error)
}
