package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCleanupInterval is how often expired sessions are swept.
const DefaultCleanupInterval = 5 * time.Minute

// CleanupConfig contains configuration for the cleanup service
type CleanupConfig struct {
	CleanupInterval time.Duration
}

// CleanupService periodically removes expired sessions.
type CleanupService struct {
	manager  Manager
	interval time.Duration
	logger   zerolog.Logger

	mutex     sync.Mutex
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(manager Manager, config CleanupConfig, logger zerolog.Logger) *CleanupService {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}
	return &CleanupService{
		manager:  manager,
		interval: config.CleanupInterval,
		logger:   logger.With().Str("component", "cleanup_service").Logger(),
	}
}

// Start runs the sweep loop in the background until Stop or ctx is done.
// Calling Start on a running service is a no-op.
func (c *CleanupService) Start(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stopCh != nil {
		return
	}
	c.stopCh = make(chan struct{})
	c.stoppedCh = make(chan struct{})

	c.logger.Info().
		Dur("interval", c.interval).
		Msg("Starting session cleanup service")

	go c.run(ctx, c.stopCh, c.stoppedCh)
}

// Stop ends the sweep loop and waits for it to exit.
func (c *CleanupService) Stop() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.stoppedCh
	c.stopCh, c.stoppedCh = nil, nil

	c.logger.Info().Msg("Session cleanup service stopped")
}

// IsRunning reports whether the sweep loop is active.
func (c *CleanupService) IsRunning() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stopCh != nil
}

// RunOnce performs a single sweep.
func (c *CleanupService) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	deleted, err := c.manager.CleanupExpired(ctx)
	if err != nil {
		c.logger.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Session cleanup failed")
		return 0, err
	}

	c.logger.Debug().
		Int("deleted_count", deleted).
		Dur("duration", time.Since(start)).
		Msg("Session cleanup completed")
	return deleted, nil
}

func (c *CleanupService) run(ctx context.Context, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			_, _ = c.RunOnce(sweepCtx)
			cancel()
		}
	}
}
