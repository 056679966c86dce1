package telemetry

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCollectInterval is how often the collector samples gauges.
const DefaultCollectInterval = 15 * time.Second

// WindowSource reports per-resource usage of the rate window.
type WindowSource interface {
	Snapshot() map[string]int
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// SystemMetricsCollector periodically samples runtime, governor and session gauges.
type SystemMetricsCollector struct {
	metrics  *Metrics
	governor WindowSource
	sessions SessionCounter
	logger   zerolog.Logger
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSystemMetricsCollector creates a new collector. governor and sessions may be nil.
func NewSystemMetricsCollector(metrics *Metrics, governor WindowSource, sessions SessionCounter, logger zerolog.Logger, interval time.Duration) *SystemMetricsCollector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &SystemMetricsCollector{
		metrics:  metrics,
		governor: governor,
		sessions: sessions,
		logger:   logger.With().Str("component", "metrics_collector").Logger(),
		interval: interval,
	}
}

// Start begins collecting in the background. It is a no-op when already running.
func (c *SystemMetricsCollector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return
	}
	c.done = make(chan struct{})

	c.logger.Info().
		Dur("interval", c.interval).
		Msg("Starting system metrics collection")

	c.wg.Add(1)
	go c.run(ctx, c.done)
}

func (c *SystemMetricsCollector) run(ctx context.Context, done <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Stopping system metrics collection due to context cancellation")
			return
		case <-done:
			c.logger.Info().Msg("Stopping system metrics collection")
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *SystemMetricsCollector) Stop() {
	c.mu.Lock()
	if c.done == nil {
		c.mu.Unlock()
		return
	}
	close(c.done)
	c.done = nil
	c.mu.Unlock()
	c.wg.Wait()
}

// Collect samples every gauge once.
func (c *SystemMetricsCollector) Collect(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.metrics.UpdateSystemMetrics(runtime.NumGoroutine(), m.Alloc)

	if c.governor != nil {
		c.metrics.GovernorWindowUsed.Reset()
		for key, used := range c.governor.Snapshot() {
			c.metrics.GovernorWindowUsed.WithLabelValues(key).Set(float64(used))
		}
	}

	if c.sessions != nil {
		count, err := c.sessions.Count(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to count sessions")
		} else {
			c.metrics.MCPSessionsActive.Set(float64(count))
		}
	}

	c.logger.Debug().
		Int("goroutines", runtime.NumGoroutine()).
		Uint64("memory_bytes", m.Alloc).
		Msg("Updated system metrics")
}
