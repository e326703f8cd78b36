package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates a request by key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter is the in-process fallback used when redis is not
// configured. Buckets are pruned lazily on access.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	rate    rate.Limit
	burst   int
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocal(r float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*localBucket),
		rate:    rate.Limit(r),
		burst:   burst,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &localBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now

	if len(l.buckets) > 10000 {
		l.prune(now)
	}

	return bucket.limiter.Allow(), nil
}

func (l *LocalLimiter) prune(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > 10*time.Minute {
			delete(l.buckets, key)
		}
	}
}
