// Package ratelimit provides sliding-window rate limiting keyed by client.
package ratelimit

import (
	"sync"
	"time"
)

// Window counts events per key over a rolling time window. Allow prunes
// entries older than the window on every call, so memory is bounded by
// limit per active key.
type Window struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewWindow creates a limiter allowing limit events per window per key.
func NewWindow(limit int, window time.Duration) *Window {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Window{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an event for key and reports whether it fits the window.
// The event is only recorded when allowed, so rejected events do not extend
// the lockout.
func (w *Window) Allow(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)

	recent := w.hits[key][:0]
	for _, t := range w.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= w.limit {
		w.hits[key] = recent
		return false
	}

	w.hits[key] = append(recent, now)
	return true
}

// Count returns the number of in-window events for key.
func (w *Window) Count(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	n := 0
	for _, t := range w.hits[key] {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// Forget drops all state for a key (client disconnected).
func (w *Window) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.hits, key)
}
