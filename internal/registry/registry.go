// Package registry tracks the planes taking part in a match: identity,
// session token, online flag and remaining lives.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFull is returned when registering a new plane at capacity.
	ErrFull = errors.New("registry full")
	// ErrInvalidID is returned for an empty plane or user id.
	ErrInvalidID = errors.New("invalid plane or user id")
)

// Aircraft is a registered plane. Values returned by the registry are copies.
type Aircraft struct {
	PlaneID      string
	UserID       string
	AuthToken    string
	IsOnline     bool
	Lives        int
	RegisteredAt time.Time
}

// PlaneStatus is the public view of a plane, in registration order.
type PlaneStatus struct {
	PlaneID  string `json:"planeId"`
	IsOnline bool   `json:"isOnline"`
	Lives    int    `json:"lives"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithTokenSource replaces the session token generator.
func WithTokenSource(fn func(planeID string) string) Option {
	return func(r *Registry) {
		r.newToken = fn
	}
}

// WithClock replaces time.Now for registration timestamps.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		r.now = fn
	}
}

// Registry is a bounded, ordered collection of aircraft.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	planes    []Aircraft
	maxPlanes int
	maxLives  int

	newToken func(planeID string) string
	now      func() time.Time
}

// New creates a registry holding at most maxPlanes aircraft, each starting with maxLives.
func New(maxPlanes, maxLives int, opts ...Option) *Registry {
	r := &Registry{
		planes:    make([]Aircraft, 0, maxPlanes),
		maxPlanes: maxPlanes,
		maxLives:  maxLives,
		newToken:  defaultToken,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultToken(planeID string) string {
	return planeID + "-" + uuid.NewString()
}

// Register adds a plane or marks an existing one online.
// Re-registration returns the existing token and keeps the life count;
// created reports whether a new entry was made.
func (r *Registry) Register(planeID, userID string) (token string, created bool, err error) {
	if planeID == "" || userID == "" {
		return "", false, ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(planeID); i >= 0 {
		r.planes[i].IsOnline = true
		return r.planes[i].AuthToken, false, nil
	}

	if len(r.planes) >= r.maxPlanes {
		return "", false, ErrFull
	}

	r.planes = append(r.planes, Aircraft{
		PlaneID:      planeID,
		UserID:       userID,
		AuthToken:    r.uniqueToken(planeID),
		IsOnline:     true,
		Lives:        r.maxLives,
		RegisteredAt: r.now(),
	})
	return r.planes[len(r.planes)-1].AuthToken, true, nil
}

// uniqueToken draws tokens until one is unused. Caller holds the lock.
func (r *Registry) uniqueToken(planeID string) string {
	for {
		tok := r.newToken(planeID)
		if tok != "" && r.indexOfToken(tok) < 0 {
			return tok
		}
	}
}

// FindByID looks a plane up by id.
func (r *Registry) FindByID(planeID string) (Aircraft, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(planeID); i >= 0 {
		return r.planes[i], true
	}
	return Aircraft{}, false
}

// FindByToken looks a plane up by session token.
func (r *Registry) FindByToken(token string) (Aircraft, bool) {
	if token == "" {
		return Aircraft{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOfToken(token); i >= 0 {
		return r.planes[i], true
	}
	return Aircraft{}, false
}

// FirstOnlineExcept returns the earliest registered online plane whose id is not exclude.
func (r *Registry) FirstOnlineExcept(exclude string) (Aircraft, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.planes {
		if p.IsOnline && p.PlaneID != exclude {
			return p, true
		}
	}
	return Aircraft{}, false
}

// DecrementLife removes one life, never going below zero, and returns the
// new count. ok is false if the plane is unknown.
func (r *Registry) DecrementLife(planeID string) (lives int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(planeID)
	if i < 0 {
		return 0, false
	}
	if r.planes[i].Lives > 0 {
		r.planes[i].Lives--
	}
	return r.planes[i].Lives, true
}

// SetOnline updates the online flag. It returns false if the plane is unknown.
func (r *Registry) SetOnline(planeID string, online bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(planeID)
	if i < 0 {
		return false
	}
	r.planes[i].IsOnline = online
	return true
}

// ResetLives restores every plane to the maximum life count.
func (r *Registry) ResetLives() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.planes {
		r.planes[i].Lives = r.maxLives
	}
}

// Purge removes a plane, freeing its slot and invalidating its token.
func (r *Registry) Purge(planeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(planeID)
	if i < 0 {
		return false
	}
	r.planes = append(r.planes[:i], r.planes[i+1:]...)
	return true
}

// Snapshot returns every plane's status in registration order.
func (r *Registry) Snapshot() []PlaneStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PlaneStatus, len(r.planes))
	for i, p := range r.planes {
		out[i] = PlaneStatus{PlaneID: p.PlaneID, IsOnline: p.IsOnline, Lives: p.Lives}
	}
	return out
}

// Len returns the number of registered planes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.planes)
}

// MaxLives returns the life count planes start with.
func (r *Registry) MaxLives() int {
	return r.maxLives
}

// MaxPlanes returns the registry capacity.
func (r *Registry) MaxPlanes() int {
	return r.maxPlanes
}

func (r *Registry) indexOf(planeID string) int {
	for i := range r.planes {
		if r.planes[i].PlaneID == planeID {
			return i
		}
	}
	return -1
}

func (r *Registry) indexOfToken(token string) int {
	for i := range r.planes {
		if r.planes[i].AuthToken == token {
			return i
		}
	}
	return -1
}
