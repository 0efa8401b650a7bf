package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/hooks"
	"github.com/fyrsmithlabs/opsagent/internal/logging"
)

var (
	// ErrNotFound is returned for unknown or expired session IDs.
	ErrNotFound = errors.New("session not found")
	// ErrLimitReached is returned when MaxSessions live sessions exist.
	ErrLimitReached = errors.New("session limit reached")
)

// StoreConfig bounds the store.
type StoreConfig struct {
	IdleTimeout time.Duration
	MaxSessions int
	// ClearMemoryWithContext also wipes Memory on ClearContext.
	ClearMemoryWithContext bool
}

// Store tracks live sessions by ID. Sessions idle for longer than
// IdleTimeout are dropped on the next Expire or lookup.
type Store struct {
	cfg    StoreConfig
	hooks  *hooks.HookManager
	logger *logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates a store. hm and logger may be nil.
func NewStore(cfg StoreConfig, hm *hooks.HookManager, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		cfg:      cfg,
		hooks:    hm,
		logger:   logger.Named("session"),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session and fires session_start.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	s.Expire(ctx)

	s.mu.Lock()
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		return nil, ErrLimitReached
	}
	sess := newSession(uuid.NewString(), s.now())
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	ctx = logging.WithSessionID(ctx, sess.ID)
	s.logger.Info(ctx, "session created")
	s.fire(ctx, hooks.HookSessionStart, sess.ID, "created")
	return sess, nil
}

// Get returns a live session and marks it used.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok && s.idle(sess) {
		delete(s.sessions, id)
		s.mu.Unlock()
		s.ended(ctx, sess, "expired")
		return nil, ErrNotFound
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	sess.Touch(s.now())
	return sess, nil
}

// Delete removes a session and fires session_end.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.ended(ctx, sess, "deleted")
	return nil
}

// ClearContext resets a session's Context, and its Memory when configured,
// between before_clear and after_clear hooks.
func (s *Store) ClearContext(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	ctx = logging.WithSessionID(ctx, id)
	s.fire(ctx, hooks.HookBeforeClear, id, "clear")
	sess.Context.Clear()
	if s.cfg.ClearMemoryWithContext {
		sess.Memory.Clear()
	}
	s.fire(ctx, hooks.HookAfterClear, id, "clear")
	return nil
}

// Expire drops idle sessions and returns how many were removed.
func (s *Store) Expire(ctx context.Context) int {
	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if s.idle(sess) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		s.ended(ctx, sess, "expired")
	}
	return len(expired)
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run expires idle sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Expire(ctx); n > 0 {
				s.logger.Debug(ctx, "expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

// caller holds s.mu
func (s *Store) idle(sess *Session) bool {
	return s.cfg.IdleTimeout > 0 && s.now().Sub(sess.LastUsed()) > s.cfg.IdleTimeout
}

func (s *Store) ended(ctx context.Context, sess *Session, reason string) {
	ctx = logging.WithSessionID(ctx, sess.ID)
	s.logger.Info(ctx, "session ended", zap.String("reason", reason))
	s.fire(ctx, hooks.HookSessionEnd, sess.ID, reason)
}

func (s *Store) fire(ctx context.Context, hookType hooks.HookType, id, reason string) {
	err := s.hooks.Execute(ctx, hookType, map[string]interface{}{
		hooks.KeySessionID: id,
		hooks.KeyReason:    reason,
	})
	if err != nil {
		s.logger.Warn(ctx, "hook failed", zap.String("hook", string(hookType)), zap.Error(err))
	}
}
