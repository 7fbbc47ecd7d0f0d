package memory

import (
	"errors"
	"sync"

	"github.com/PabloGalante/mermaidbot/internal/domain"
)

var ErrSessionExists = errors.New("session already exists")

// SessionStore is a concurrency-safe in-memory registry of live sessions.
// Nothing survives a restart.
type SessionStore[T any] struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]T
}

func NewSessionStore[T any]() *SessionStore[T] {
	return &SessionStore[T]{
		sessions: make(map[domain.SessionID]T),
	}
}

func (s *SessionStore[T]) Create(id domain.SessionID, session T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; exists {
		return ErrSessionExists
	}

	s.sessions[id] = session
	return nil
}

func (s *SessionStore[T]) Get(id domain.SessionID) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		var zero T
		return zero, domain.ErrSessionNotFound
	}

	return sess, nil
}

// Delete removes and returns the session.
func (s *SessionStore[T]) Delete(id domain.SessionID) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		var zero T
		return zero, domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return sess, nil
}

// Drain removes every session and returns them.
func (s *SessionStore[T]) Drain() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, len(s.sessions))
	for id, sess := range s.sessions {
		out = append(out, sess)
		delete(s.sessions, id)
	}
	return out
}

func (s *SessionStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
