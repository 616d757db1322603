package accounts

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles login attempts per key, usually the email address.
// It complements the persisted attempt counter kept by UserProvider.
type LoginLimiter interface {
	Allow(key string) bool
}

type limiterBucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// TokenBucketLimiter is a token bucket per key
type TokenBucketLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*limiterBucket
	perSecond float64
	burst     int
	ttl       time.Duration
	now       func() time.Time
	lastPrune time.Time
}

var _ LoginLimiter = (*TokenBucketLimiter)(nil)

// NewTokenBucketLimiter returns a limiter allowing burst attempts and
// refilling at perSecond.
func NewTokenBucketLimiter(perSecond float64, burst int) *TokenBucketLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		buckets:   make(map[string]*limiterBucket),
		perSecond: perSecond,
		burst:     burst,
		ttl:       5 * time.Minute,
		now:       time.Now,
	}
}

// WithClock is used by tests
func (l *TokenBucketLimiter) WithClock(now func() time.Time) *TokenBucketLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *TokenBucketLimiter) Allow(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &limiterBucket{lim: rate.NewLimiter(rate.Limit(l.perSecond), l.burst)}
		l.buckets[key] = b
	}
	b.ts = now

	return b.lim.AllowN(now, 1)
}

// Len returns the number of tracked keys
func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *TokenBucketLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < time.Minute {
		return
	}
	l.lastPrune = now

	for k, b := range l.buckets {
		if now.Sub(b.ts) > l.ttl {
			delete(l.buckets, k)
		}
	}
}

type unlimited struct{}

func (unlimited) Allow(string) bool { return true }
