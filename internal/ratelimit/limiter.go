package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of a single rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window per-identity request limiter. Windows live in
// memory only, so counts reset on process restart.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	entries map[string]window
}

// New creates a Limiter allowing max requests per window per identity.
func New(max int, windowLen time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  windowLen,
		now:     time.Now,
		entries: make(map[string]window),
	}
}

// NewWithClock is New with an injectable clock, for tests.
func NewWithClock(max int, windowLen time.Duration, now func() time.Time) *Limiter {
	l := New(max, windowLen)
	l.now = now
	return l
}

// Check records one request for id and reports whether it is within the
// limit. A rejected request does not extend the window.
func (l *Limiter) Check(id string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.entries[id]
	if !ok || now.After(w.resetAt) || now.Equal(w.resetAt) {
		w = window{count: 0, resetAt: now.Add(l.window)}
	}

	if w.count >= l.max {
		return Decision{Allowed: false, Remaining: 0, ResetIn: w.resetAt.Sub(now)}
	}

	w.count++
	l.entries[id] = w
	return Decision{Allowed: true, Remaining: l.max - w.count, ResetIn: w.resetAt.Sub(now)}
}

// Prune drops expired windows. Callers may run it periodically to bound
// memory; correctness does not depend on it.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, w := range l.entries {
		if now.After(w.resetAt) {
			delete(l.entries, id)
		}
	}
}
