// Package session holds per-session state: the execution Context, the fact
// Memory, and the Store that tracks sessions for the daemon.
//
// Each Session owns exactly one Context and one Memory. They are never
// shared between sessions, and a session admits one dispatch at a time.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one operator conversation.
type Session struct {
	ID      string
	Context *Context
	Memory  *Memory
	Created time.Time

	dispatch chan struct{}

	mu       sync.Mutex
	lastUsed time.Time
}

// New creates a session with a random ID.
func New() *Session {
	return newSession(uuid.NewString(), time.Now())
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:       id,
		Context:  NewContext(),
		Memory:   NewMemory(),
		Created:  now,
		dispatch: make(chan struct{}, 1),
		lastUsed: now,
	}
}

// Acquire takes the session's dispatch lock. It blocks until the lock is
// free or ctx is done. The returned function releases the lock.
func (s *Session) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.dispatch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s.dispatch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastUsed) {
		s.lastUsed = now
	}
}

// LastUsed returns the time of the most recent activity.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Snapshot is a point-in-time JSON view of a session.
type Snapshot struct {
	ID       string         `json:"id"`
	Created  time.Time      `json:"created"`
	LastUsed time.Time      `json:"last_used"`
	Context  map[Slot]any   `json:"context"`
	Memory   map[string]any `json:"memory"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:       s.ID,
		Created:  s.Created,
		LastUsed: s.LastUsed(),
		Context:  s.Context.GetAll(),
		Memory:   s.Memory.GetContext(),
	}
}
