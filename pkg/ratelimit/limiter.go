package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key. Buckets idle for longer than the
// TTL are dropped by Cleanup.
type Limiter struct {
	capacity int
	limit    rate.Limit
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter creates a limiter allowing bursts of capacity and refilling
// perMinute tokens every minute.
// ttl: Time to keep inactive buckets in memory (0 = forever)
func NewLimiter(capacity int, perMinute float64, ttl time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		capacity: capacity,
		limit:    rate.Limit(perMinute / 60.0),
		ttl:      ttl,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
}

// Allow takes a token for key. When none is available it reports how long
// until the next one.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.capacity)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	return false, l.retryAfter(b.limiter, now)
}

func (l *Limiter) retryAfter(lim *rate.Limiter, now time.Time) time.Duration {
	if l.limit <= 0 {
		return time.Duration(math.MaxInt64)
	}
	missing := 1 - lim.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(l.limit) * float64(time.Second))
}

// Cleanup drops buckets idle for longer than the TTL and returns how many
// were removed.
func (l *Limiter) Cleanup() int {
	if l.ttl <= 0 {
		return 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every TTL until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	if l.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Stats returns statistics about the rate limiter
type Stats struct {
	ActiveBuckets int
	Capacity      int
	PerMinute     float64
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		ActiveBuckets: len(l.buckets),
		Capacity:      l.capacity,
		PerMinute:     float64(l.limit) * 60,
	}
}
