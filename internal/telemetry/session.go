package telemetry

import (
	"context"
	"time"

	"airtable-mcp-go/internal/session"
)

// SessionManagerWrapper wraps a session manager to add telemetry
type SessionManagerWrapper struct {
	session.Manager
	metrics *Metrics
	clock   func() time.Time
}

// NewSessionManagerWrapper creates a new telemetry-aware session manager wrapper
func NewSessionManagerWrapper(manager session.Manager, metrics *Metrics) *SessionManagerWrapper {
	return &SessionManagerWrapper{
		Manager: manager,
		metrics: metrics,
		clock:   time.Now,
	}
}

// Create wraps the original Create to add telemetry
func (w *SessionManagerWrapper) Create(ctx context.Context, protocolVersion string, client session.ClientInfo) (*session.Session, error) {
	sess, err := w.Manager.Create(ctx, protocolVersion, client)
	if err == nil {
		w.metrics.RecordSessionCreated()
		w.syncActive(ctx)
	}
	return sess, err
}

// Delete wraps the original Delete to add telemetry
func (w *SessionManagerWrapper) Delete(ctx context.Context, sessionID string) error {
	// Look the session up first so its lifetime can be observed.
	sess, getErr := w.Manager.Touch(ctx, sessionID)

	err := w.Manager.Delete(ctx, sessionID)
	if err == nil && getErr == nil {
		w.metrics.RecordSessionDeleted(w.clock().Sub(sess.CreatedAt))
	}
	w.syncActive(ctx)
	return err
}

// CleanupExpired wraps the original CleanupExpired to add telemetry
func (w *SessionManagerWrapper) CleanupExpired(ctx context.Context) (int, error) {
	deleted, err := w.Manager.CleanupExpired(ctx)
	if deleted > 0 {
		w.metrics.RecordSessionsExpired(deleted)
	}
	w.syncActive(ctx)
	return deleted, err
}

func (w *SessionManagerWrapper) syncActive(ctx context.Context) {
	if count, err := w.Manager.Count(ctx); err == nil {
		w.metrics.MCPSessionsActive.Set(float64(count))
	}
}
