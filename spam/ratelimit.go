package spam

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is the heuristic abuse layer: a per-IP token bucket.
// Exhausting the bucket is the hard block threshold; everything below
// it passes.
type RateLimiter struct {
	mu      sync.Mutex
	perIP   map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	lastGC  time.Time
	maxIdle int
}

// NewRateLimiter allows perMinute sustained submissions per IP with the
// given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		perIP:   make(map[string]*rate.Limiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		lastGC:  time.Now(),
		maxIdle: 10000,
	}
}

func (l *RateLimiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	// Keep the map bounded under address churn.
	if len(l.perIP) > l.maxIdle && time.Since(l.lastGC) > time.Minute {
		l.perIP = make(map[string]*rate.Limiter)
		l.lastGC = time.Now()
	}

	limiter, ok := l.perIP[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.perIP[ip] = limiter
	}
	return limiter.Allow()
}
