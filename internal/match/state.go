package match

import (
	"sync"
	"time"
)

// State holds whether a match is running.
type State struct {
	mu        sync.RWMutex
	active    bool
	changedAt time.Time
}

// NewState creates a State with the given initial value.
func NewState(active bool) *State {
	return &State{active: active, changedAt: time.Now()}
}

// Active reports whether a match is running.
func (s *State) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Set updates the state and reports whether it changed.
func (s *State) Set(active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == active {
		return false
	}
	s.active = active
	s.changedAt = time.Now()
	return true
}

// ChangedAt returns when the state last changed.
func (s *State) ChangedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changedAt
}
