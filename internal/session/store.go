package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryStore implements Store in process memory. Sessions do not survive a restart.
type MemoryStore struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
	logger   zerolog.Logger
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		logger:   logger.With().Str("component", "memory_store").Logger(),
	}
}

// Set stores a copy of session under its ID.
func (s *MemoryStore) Set(_ context.Context, session *Session) error {
	cp := *session

	s.mutex.Lock()
	s.sessions[session.ID] = &cp
	s.mutex.Unlock()

	s.logger.Debug().
		Str("session_id", session.ID).
		Time("expires_at", session.ExpiresAt).
		Msg("Storing session")
	return nil
}

// Get returns a copy of the stored session.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mutex.RLock()
	session, exists := s.sessions[sessionID]
	s.mutex.RUnlock()

	if !exists {
		return nil, NewSessionNotFoundError(sessionID)
	}
	cp := *session
	return &cp, nil
}

// Delete removes a session
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return NewSessionNotFoundError(sessionID)
	}
	delete(s.sessions, sessionID)

	s.logger.Debug().
		Str("session_id", sessionID).
		Msg("Session deleted")
	return nil
}

// List returns copies of all stored sessions.
func (s *MemoryStore) List(_ context.Context) ([]*Session, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		cp := *session
		sessions = append(sessions, &cp)
	}
	return sessions, nil
}

// Count returns the number of stored sessions
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sessions), nil
}

// Close drops every session.
func (s *MemoryStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cleared := len(s.sessions)
	s.sessions = make(map[string]*Session)

	s.logger.Info().
		Int("cleared_sessions", cleared).
		Msg("Memory store closed and cleared")
	return nil
}
