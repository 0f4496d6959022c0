package share

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// AttemptLimiter throttles redemption attempts per share with one token
// bucket per key. Idle buckets are evicted after the idle timeout.
type AttemptLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

const (
	limiterMaxKeys = 65536
	limiterIdle    = 10 * time.Minute
)

// NewAttemptLimiter allows r attempts per second per key, with bursts up to
// burst. A non-positive r disables limiting.
func NewAttemptLimiter(r float64, burst int) *AttemptLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AttemptLimiter{
		limit:   rate.Limit(r),
		burst:   burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](limiterMaxKeys, nil, limiterIdle),
	}
}

// Allow consumes one token for key.
func (l *AttemptLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true // No limit
	}

	l.mu.Lock()
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-adding refreshes the idle deadline.
	l.buckets.Add(key, b)
	l.mu.Unlock()

	return b.Allow()
}

// Forget drops the bucket for key.
func (l *AttemptLimiter) Forget(key string) {
	if l == nil {
		return
	}
	l.buckets.Remove(key)
}
