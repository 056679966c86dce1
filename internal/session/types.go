package session

import (
	"context"
	"time"
)

// HeaderName carries the session ID on streamable HTTP requests.
const HeaderName = "Mcp-Session-Id"

// Session is one MCP client connection, created by initialize.
type Session struct {
	ID              string     `json:"id"`
	ProtocolVersion string     `json:"protocol_version"`
	CreatedAt       time.Time  `json:"created_at"`
	LastAccess      time.Time  `json:"last_access"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ClientInfo      ClientInfo `json:"client_info"`
}

// ClientInfo identifies the client that opened the session.
type ClientInfo struct {
	Name       string `json:"name,omitempty"`
	Version    string `json:"version,omitempty"`
	Transport  string `json:"transport"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// ExpiredAt reports whether the session had expired at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Refresh slides the expiry forward from now.
func (s *Session) Refresh(now time.Time, timeout time.Duration) {
	s.LastAccess = now
	s.ExpiresAt = now.Add(timeout)
}

// Manager defines session lifecycle operations.
type Manager interface {
	// Create opens a new session.
	Create(ctx context.Context, protocolVersion string, client ClientInfo) (*Session, error)

	// Touch validates a session and slides its expiry.
	Touch(ctx context.Context, sessionID string) (*Session, error)

	// Delete terminates a session.
	Delete(ctx context.Context, sessionID string) error

	// CleanupExpired removes all expired sessions.
	CleanupExpired(ctx context.Context) (int, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}

// Store defines the interface for session storage operations
type Store interface {
	Set(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]*Session, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
