// Package ratelimit implements a process-local fixed-window request counter.
//
// Keys are arbitrary strings (client IP, session id). The first request for a
// key opens a window; requests inside the window increment a counter and are
// rejected past the maximum. A request after the window expires resets it.
// Bursts at window boundaries are accepted in exchange for O(1) memory and CPU
// per check. Counters are not shared across instances -- horizontal scaling
// needs an external counter if strict global limits are required.
package ratelimit

import (
	"sync"
	"time"
)

// entry tracks one key's current window.
type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window rate limiter. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	maxRequests int
	window      time.Duration

	done chan struct{}
	once sync.Once

	// now is swapped out in tests to step through windows without sleeping.
	now func() time.Time
}

// New creates a Limiter allowing maxRequests per key per window.
// A background goroutine purges expired keys every window to bound memory;
// call Stop to release it.
func New(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		entries:     make(map[string]*entry),
		maxRequests: maxRequests,
		window:      window,
		done:        make(chan struct{}),
		now:         time.Now,
	}
	go l.purgeLoop()
	return l
}

// Allow records a request for key and reports whether it is within policy.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || !e.resetAt.After(now) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	e.count++
	return e.count <= l.maxRequests
}

// Stop terminates the background purge goroutine. Idempotent.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.done) })
}

// purgeLoop drops expired windows at window cadence. Holding the lock only
// while sweeping keeps Allow calls unblocked between ticks.
func (l *Limiter) purgeLoop() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, e := range l.entries {
				if !e.resetAt.After(now) {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}
