package airtable

import (
	"sync"
	"time"
)

// Airtable allows 5 requests per second per base.
const (
	DefaultCeiling = 5
	DefaultWindow  = time.Second
)

// GovernorConfig contains the fixed ceiling applied to every resource key.
type GovernorConfig struct {
	Ceiling int
	Window  time.Duration
}

// DefaultGovernorConfig returns the Airtable per-base limit.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		Ceiling: DefaultCeiling,
		Window:  DefaultWindow,
	}
}

// rateWindow is the per-key state. grants holds the times of the most recent
// permitted requests, oldest first, never more than the ceiling.
type rateWindow struct {
	mu     sync.Mutex
	grants []time.Time
}

// Governor decides whether a request against a resource key may proceed now.
type Governor struct {
	ceiling int
	window  time.Duration
	clock   func() time.Time

	mu      sync.Mutex
	windows map[string]*rateWindow
}

// NewGovernor creates a governor. Non-positive values fall back to the defaults.
func NewGovernor(cfg GovernorConfig) *Governor {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Governor{
		ceiling: cfg.Ceiling,
		window:  cfg.Window,
		windows: make(map[string]*rateWindow),
	}
}

// WithClock replaces the time source. Intended for tests.
func (g *Governor) WithClock(clock func() time.Time) *Governor {
	g.clock = clock
	return g
}

// Ceiling returns the number of requests allowed per window.
func (g *Governor) Ceiling() int {
	return g.ceiling
}

// Window returns the window length.
func (g *Governor) Window() time.Duration {
	return g.window
}

// Acquire returns zero and records a slot if a request against key may be sent
// now. Otherwise it returns how long the caller must wait before asking again.
func (g *Governor) Acquire(key string) time.Duration {
	w := g.entry(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := g.now()
	w.expire(now.Add(-g.window))

	if len(w.grants) < g.ceiling {
		w.grants = append(w.grants, now)
		return 0
	}

	wait := w.grants[0].Add(g.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// Snapshot returns the number of grants inside the current window per key.
func (g *Governor) Snapshot() map[string]int {
	g.mu.Lock()
	keys := make(map[string]*rateWindow, len(g.windows))
	for k, w := range g.windows {
		keys[k] = w
	}
	g.mu.Unlock()

	cutoff := g.now().Add(-g.window)
	out := make(map[string]int, len(keys))
	for k, w := range keys {
		w.mu.Lock()
		w.expire(cutoff)
		out[k] = len(w.grants)
		w.mu.Unlock()
	}
	return out
}

// entry returns the window for key, creating it on first use. The map lock is
// held only for the lookup.
func (g *Governor) entry(key string) *rateWindow {
	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.windows[key]
	if !ok {
		w = &rateWindow{grants: make([]time.Time, 0, g.ceiling)}
		g.windows[key] = w
	}
	return w
}

func (g *Governor) now() time.Time {
	if g.clock != nil {
		return g.clock()
	}
	return time.Now()
}

// expire drops grants at or before cutoff. Caller holds w.mu.
func (w *rateWindow) expire(cutoff time.Time) {
	i := 0
	for i < len(w.grants) && !w.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.grants = append(w.grants[:0], w.grants[i:]...)
	}
}
