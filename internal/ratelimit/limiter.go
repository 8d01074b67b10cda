package ratelimit

import (
	"encoding/hex"
	"sync"
	"time"
)

// Decision is the outcome of a single CheckAndUpdate call.
type Decision struct {
	Allowed bool
	// RetryAfter is set when the key is limited and tells the caller how long
	// until the current window closes.
	RetryAfter time.Duration
}

type entry struct {
	lastRequestAt time.Time
	count         int
}

// Limiter is a fixed-window request counter. Every key gets at most max
// requests per window; the count resets to one on the first request after
// the window has elapsed.
type Limiter struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time
}

// New creates a limiter. A max of zero or less disables limiting.
func New(window time.Duration, max int) *Limiter {
	return &Limiter{
		window:  window,
		max:     max,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// PubkeyKey is the limiter key of a requester public key.
func PubkeyKey(pubkey [32]byte) string {
	return "pubkey:" + hex.EncodeToString(pubkey[:])
}

// IPKey is the limiter key of a client address.
func IPKey(ip string) string {
	return "ip:" + ip
}

// CheckAndUpdate records a request for key and reports whether it is allowed.
func (l *Limiter) CheckAndUpdate(key string) Decision {
	if l.max <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		l.entries[key] = &entry{lastRequestAt: now, count: 1}
		return Decision{Allowed: true}
	}

	elapsed := now.Sub(e.lastRequestAt)
	if elapsed >= l.window {
		e.lastRequestAt = now
		e.count = 1
		return Decision{Allowed: true}
	}

	if e.count >= l.max {
		return Decision{Allowed: false, RetryAfter: l.window - elapsed}
	}

	e.count++
	return Decision{Allowed: true}
}

// Cleanup drops keys that have been idle for more than two windows and
// returns how many were removed.
func (l *Limiter) Cleanup() int {
	cutoff := l.now().Add(-2 * l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if e.lastRequestAt.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
