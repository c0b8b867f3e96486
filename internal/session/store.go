package session

import (
	"sync"
	"time"

	"cvtailor/internal/config"
	"cvtailor/internal/errors"

	"github.com/google/uuid"
)

// Store keeps sessions in memory, keyed by random IDs, and evicts idle ones.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
	factory  func() *Controller
	ttl      time.Duration
	max      int
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
	logger   *errors.Logger
}

// NewStore creates a store and starts the cleanup goroutine when cfg.CleanupInterval is positive.
func NewStore(cfg config.SessionConfig, factory func() *Controller, logger *errors.Logger) *Store {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	s := &Store{
		sessions: make(map[string]*Controller),
		factory:  factory,
		ttl:      cfg.TTL,
		max:      cfg.MaxSessions,
		now:      time.Now,
		done:     make(chan struct{}),
		logger:   logger,
	}
	if cfg.CleanupInterval > 0 && cfg.TTL > 0 {
		go s.cleanupRoutine(cfg.CleanupInterval)
	}
	return s
}

// Create adds a new idle session
func (s *Store) Create() (string, *Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.max > 0 && len(s.sessions) >= s.max {
		return "", nil, errors.NewStateError(errors.ErrCodeTooManySessions, "session limit reached", nil).
			WithContext("max_sessions", s.max)
	}
	id := uuid.NewString()
	c := s.factory()
	s.sessions[id] = c
	s.logger.Debug("Session created", "session_id", id, "active_sessions", len(s.sessions))
	return id, c, nil
}

// Get returns the session with the given ID
func (s *Store) Get(id string) (*Controller, error) {
	s.mu.RLock()
	c, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrCodeSessionNotFound, "session not found", nil).
			WithContext("session_id", id)
	}
	return c, nil
}

// Delete removes a session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stats returns store statistics
func (s *Store) Stats() map[string]any {
	return map[string]any{
		"active_sessions": s.Len(),
		"max_sessions":    s.max,
		"ttl_seconds":     s.ttl.Seconds(),
	}
}

func (s *Store) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

// cleanup evicts sessions idle for longer than the TTL. Sessions with a call in flight are kept.
func (s *Store) cleanup() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.sessions {
		lastActive, busy := c.idleSince()
		if !busy && now.Sub(lastActive) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Session cleanup completed",
			"removed_sessions", removed,
			"remaining_sessions", len(s.sessions))
	}
	return removed
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
