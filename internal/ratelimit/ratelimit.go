// Package ratelimit implements the per-user inbound token bucket from
// spec.md §4.4, a map guarded by one mutex per Limiter rather than
// golang.org/x/time/rate: the spec requires continuous refill against a
// per-bucket last_update timestamp and direct inspection of the remaining
// token count, which a generic limiter would hide behind Allow()/Wait().
package ratelimit

import (
	"sync"
	"time"
)

// bucket mirrors spec.md §4.4's {tokens, last_update, rate, burst} state.
type bucket struct {
	tokens     float64
	lastUpdate time.Time
	rate       float64 // tokens per second
	burst      float64
}

// Limiter holds one bucket per telegram user id. The dispatcher factory
// builds one Limiter per bot, so a user's buckets on different bots are
// independent of each other.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[int64]*bucket
	rate     float64
	burst    float64
	requests int
}

// New constructs a Limiter with the given steady-state rate (tokens/min)
// and burst size.
func New(ratePerMin float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[int64]*bucket),
		rate:    ratePerMin / 60,
		burst:   float64(burst),
	}
}

// Allow reports whether userID may proceed now, refilling its bucket based
// on elapsed time since the last call and, if admitted, decrementing by one
// token. Every 1000th call also runs a janitor sweep dropping buckets idle
// for more than 5 minutes, bounding the map's size without a separate timer
// goroutine — the same gate-by-call-count idiom the original's
// `_cleanup_old_buckets` uses gated by timestamp instead of count.
func (l *Limiter) Allow(userID int64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{tokens: l.burst, lastUpdate: now, rate: l.rate, burst: l.burst}
		l.buckets[userID] = b
	}

	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens = min(b.burst, b.tokens+elapsed*b.rate)
	b.lastUpdate = now

	l.requests++
	if l.requests%1000 == 0 {
		l.sweep(now)
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// sweep drops buckets that have not been touched in 5 minutes. Callers
// must hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.lastUpdate) > 5*time.Minute {
			delete(l.buckets, id)
		}
	}
}

// Remaining reports a user's current token count without consuming one,
// used by tests and admin inspection.
func (l *Limiter) Remaining(userID int64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[userID]
	if !ok {
		return l.burst
	}
	elapsed := time.Since(b.lastUpdate).Seconds()
	return min(b.burst, b.tokens+elapsed*b.rate)
}
