package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout is the idle time after which a session expires.
const DefaultTimeout = time.Hour

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	SessionTimeout time.Duration
}

// DefaultManager implements Manager on top of a Store.
type DefaultManager struct {
	store   Store
	timeout time.Duration
	clock   func() time.Time
	logger  zerolog.Logger
}

// NewDefaultManager creates a new session manager
func NewDefaultManager(store Store, config ManagerConfig, logger zerolog.Logger) *DefaultManager {
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = DefaultTimeout
	}
	return &DefaultManager{
		store:   store,
		timeout: config.SessionTimeout,
		clock:   time.Now,
		logger:  logger.With().Str("component", "session_manager").Logger(),
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *DefaultManager) WithClock(clock func() time.Time) *DefaultManager {
	m.clock = clock
	return m
}

// Create opens a new session with a random UUID.
func (m *DefaultManager) Create(ctx context.Context, protocolVersion string, client ClientInfo) (*Session, error) {
	now := m.clock()
	session := &Session{
		ID:              uuid.NewString(),
		ProtocolVersion: protocolVersion,
		CreatedAt:       now,
		LastAccess:      now,
		ExpiresAt:       now.Add(m.timeout),
		ClientInfo:      client,
	}

	if err := m.store.Set(ctx, session); err != nil {
		m.logger.Error().
			Err(err).
			Str("transport", client.Transport).
			Msg("Failed to store session")
		return nil, NewSessionStorageError("create", err)
	}

	m.logger.Info().
		Str("session_id", session.ID).
		Str("client", client.Name).
		Str("client_version", client.Version).
		Str("transport", client.Transport).
		Str("remote_addr", client.RemoteAddr).
		Time("expires_at", session.ExpiresAt).
		Msg("Session created successfully")

	return session, nil
}

// Touch validates sessionID and slides its expiry. An expired session is removed.
func (m *DefaultManager) Touch(ctx context.Context, sessionID string) (*Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, NewSessionInvalidError(sessionID, err)
	}

	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	if session.ExpiredAt(now) {
		m.logger.Debug().
			Str("session_id", sessionID).
			Time("expires_at", session.ExpiresAt).
			Msg("Session has expired")
		if err := m.store.Delete(ctx, sessionID); err != nil {
			m.logger.Warn().
				Err(err).
				Str("session_id", sessionID).
				Msg("Failed to delete expired session")
		}
		return nil, NewSessionExpiredError(sessionID)
	}

	session.Refresh(now, m.timeout)
	if err := m.store.Set(ctx, session); err != nil {
		return nil, NewSessionStorageError("refresh", err)
	}
	return session, nil
}

// Delete terminates a session
func (m *DefaultManager) Delete(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return err
	}

	m.logger.Info().
		Str("session_id", sessionID).
		Msg("Session deleted successfully")
	return nil
}

// CleanupExpired removes all expired sessions
func (m *DefaultManager) CleanupExpired(ctx context.Context) (int, error) {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return 0, NewSessionStorageError("cleanup_list", err)
	}

	now := m.clock()
	deleted := 0
	for _, session := range sessions {
		if !session.ExpiredAt(now) {
			continue
		}
		if err := m.store.Delete(ctx, session.ID); err != nil {
			m.logger.Warn().
				Err(err).
				Str("session_id", session.ID).
				Msg("Failed to delete expired session during cleanup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		m.logger.Info().
			Int("deleted_count", deleted).
			Int("total_sessions", len(sessions)).
			Msg("Cleanup completed")
	}
	return deleted, nil
}

// Count returns the number of stored sessions
func (m *DefaultManager) Count(ctx context.Context) (int, error) {
	count, err := m.store.Count(ctx)
	if err != nil {
		return 0, NewSessionStorageError("count", err)
	}
	return count, nil
}
