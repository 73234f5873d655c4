// Package ratelimit budgets API requests with per-tier token buckets. Model-backed
// assessments get the tightest budget; interview writes are budgeted per session.
package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type bucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64 // tokens per second
	tokens   float64
	last     time.Time
}

func newBucket(b Budget, now time.Time) *bucket {
	capacity := b.Burst
	if capacity <= 0 {
		capacity = b.Limit
	}
	return &bucket{
		capacity: float64(capacity),
		rate:     float64(b.Limit) / b.Window.Seconds(),
		tokens:   float64(capacity),
		last:     now,
	}
}

// take refills the bucket to now and consumes a token if one is available.
// It also reports when the bucket will be full and, when denied, how long until
// the next token.
func (b *bucket) take(now time.Time) (ok bool, remaining int, full time.Time, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		ok = true
	} else {
		wait = seconds((1 - b.tokens) / b.rate)
	}
	return ok, int(b.tokens), now.Add(seconds((b.capacity - b.tokens) / b.rate)), wait
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Info describes the outcome of a rate limit check.
type Info struct {
	Tier       Tier
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter holds one bucket per tier and subject.
type Limiter struct {
	config  *Config
	buckets *lru.Cache[string, *bucket]
	mu      sync.Mutex
	now     func() time.Time
}

// NewLimiter creates a limiter. A nil config enables the default budgets.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{Enabled: true}
	}
	if config.Budgets == nil {
		config.Budgets = DefaultBudgets()
	}
	size := config.MaxKeys
	if size <= 0 {
		size = DefaultMaxKeys
	}
	cache, _ := lru.New[string, *bucket](size)
	return &Limiter{config: config, buckets: cache, now: time.Now}
}

// Allow checks a request from clientID and consumes a token from its bucket.
func (l *Limiter) Allow(clientID, method, path string) Info {
	route := Classify(method, path)
	if !l.config.Enabled || route.Tier == TierUnlimited {
		return Info{Tier: route.Tier, Allowed: true}
	}
	budget, ok := l.config.Budgets[route.Tier]
	if !ok {
		budget = l.config.Budgets[TierDefault]
	}
	if budget.Limit <= 0 || budget.Window <= 0 {
		return Info{Tier: route.Tier, Allowed: true}
	}

	now := l.now()
	allowed, remaining, full, wait := l.bucket(route.key(clientID), budget, now).take(now)
	return Info{
		Tier:       route.Tier,
		Allowed:    allowed,
		Limit:      budget.Limit,
		Remaining:  remaining,
		ResetTime:  full,
		RetryAfter: wait,
	}
}

func (l *Limiter) bucket(key string, budget Budget, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := newBucket(budget, now)
	l.buckets.Add(key, b)
	return b
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	return l.buckets.Len()
}
