// Package ratelimit implements an in-process sliding-window rate
// limiter.  State lives entirely in memory; in a multi-instance
// deployment each instance enforces its own ceiling.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits up to limit requests per key within a rolling window.
// Each key keeps the timestamps of its admitted requests; stamps older
// than the window fall off the front before every decision, so the
// window slides continuously instead of resetting at fixed boundaries.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	idleTTL time.Duration
	entries map[string]*entry

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

type entry struct {
	stamps   []time.Time
	lastSeen time.Time
}

// New builds a Limiter admitting limit requests per window.  Keys idle
// longer than idleTTL are dropped by the janitor started with Start.
func New(limit int, window, idleTTL time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if idleTTL < window {
		idleTTL = window
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		idleTTL: idleTTL,
		entries: make(map[string]*entry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int           // admissions left in the current window
	RetryAfter time.Duration // zero when Allowed
}

// Allow decides whether one request under key may proceed right now,
// recording it if admitted.  The decision is synchronous and atomic
// with respect to concurrent callers of the same limiter.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil {
		e = &entry{}
		l.entries[key] = e
	}
	e.lastSeen = now

	// Evict expired stamps from the front; they are stored in order.
	i := 0
	for i < len(e.stamps) && !e.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.stamps = append(e.stamps[:0], e.stamps[i:]...)
	}

	if len(e.stamps) >= l.limit {
		// The oldest stamp leaving the window is when a slot opens.
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: e.stamps[0].Add(l.window).Sub(now),
		}
	}

	e.stamps = append(e.stamps, now)
	return Decision{Allowed: true, Remaining: l.limit - len(e.stamps)}
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start launches the background janitor that drops keys idle longer
// than the idle TTL.  Call Stop to terminate it.
func (l *Limiter) Start() {
	go func() {
		ticker := time.NewTicker(l.idleTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-l.done:
				return
			}
		}
	}()
}

// Stop terminates the janitor.  Safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
