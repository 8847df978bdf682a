package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AttemptLimiter throttles credential checks per key (the username).
//
// Each key gets a token bucket: Burst attempts up front, refilled at
// PerMinute per minute. A successful login resets the key so a user who
// mistyped a few times is not locked out after getting it right.
//
// Keys are whatever the caller typed, so the map is bounded two ways:
//   - buckets idle for longer than idleTTL are swept, at most once per
//     idleTTL/2, so Allow stays O(1) between sweeps
//   - at maxEntries a new key evicts an arbitrary existing bucket
type AttemptLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	idleTTL    time.Duration
	maxEntries int
	now        func() time.Time
	lastPrune  time.Time
	entries    map[string]*attemptEntry
}

// DefaultMaxAttemptKeys caps how many usernames are tracked at once.
const DefaultMaxAttemptKeys = 10000

type attemptEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAttemptLimiter allows burst attempts per key, refilled at perMinute
// attempts per minute. Non-positive arguments fall back to 5.
func NewAttemptLimiter(perMinute, burst int) *AttemptLimiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return &AttemptLimiter{
		limit:      rate.Limit(float64(perMinute) / 60),
		burst:      burst,
		idleTTL:    15 * time.Minute,
		maxEntries: DefaultMaxAttemptKeys,
		now:        time.Now,
		entries:    make(map[string]*attemptEntry),
	}
}

// Allow consumes one attempt for key and reports whether it was available.
func (l *AttemptLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > l.idleTTL/2 {
		l.prune(now)
		l.lastPrune = now
	}

	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= l.maxEntries {
			l.evictOne()
		}
		e = &attemptEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Reset forgets every attempt recorded for key.
func (l *AttemptLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *AttemptLimiter) prune(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.entries, k)
		}
	}
}

// Map iteration order is unspecified, so the first key is as good as any.
func (l *AttemptLimiter) evictOne() {
	for k := range l.entries {
		delete(l.entries, k)
		return
	}
}

// Len reports how many keys are currently tracked.
func (l *AttemptLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
