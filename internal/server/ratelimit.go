package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiter manages rate limit buckets per client IP using the token bucket
// algorithm. Only the CSV export endpoint is limited; the export walks the
// whole heuristics table per request.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const bucketIdleExpiry = 10 * time.Minute

// newLimiter creates a rate limiter allowing requests tokens per window with
// burst capacity.
func newLimiter(requests int, window time.Duration, burst int) *limiter {
	return &limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(requests) / window.Seconds()),
		burst:   burst,
	}
}

// allow checks if a request with the given key is allowed. Idle buckets are
// evicted opportunistically to bound the map.
func (l *limiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketIdleExpiry {
			delete(l.buckets, k)
		}
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}
