package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// windowRateLimiter counts attempts per key inside a fixed window. It guards
// the coupon endpoint against code guessing; precision beyond that is not
// needed, so expired entries are pruned opportunistically on writes.
type windowRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	counts map[string]windowCount
}

type windowCount struct {
	attempts int
	resetAt  time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		counts: make(map[string]windowCount),
	}
}

func (l *windowRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.counts[key]
	if !ok || now.After(entry.resetAt) {
		l.counts[key] = windowCount{attempts: 1, resetAt: now.Add(l.window)}
		l.pruneLocked(now)
		return true
	}

	if entry.attempts >= l.limit {
		return false
	}
	entry.attempts++
	l.counts[key] = entry
	return true
}

func (l *windowRateLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.counts {
		if now.After(entry.resetAt) {
			delete(l.counts, key)
		}
	}
}
