package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const memoryPruneEvery = 1024

type memoryEntry struct {
	limiter  *rate.Limiter
	rule     Rule
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key. A bucket holds Limit tokens
// and refills the whole budget over Window.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*memoryEntry
	calls   int
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*memoryEntry),
	}
}

// Allow takes one token from the bucket for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if rule.disabled() || key == "" {
		return Result{Allowed: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%memoryPruneEvery == 0 {
		l.prune(now)
	}

	entry := l.buckets[key]
	if entry == nil || entry.rule != rule {
		entry = &memoryEntry{
			limiter: rate.NewLimiter(rate.Every(rule.Window/time.Duration(rule.Limit)), rule.Limit),
			rule:    rule,
		}
		l.buckets[key] = entry
	}
	entry.lastSeen = now

	allowed := entry.limiter.AllowN(now, 1)
	tokens := entry.limiter.TokensAt(now)
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		Reset:     now.Add(refillDelay(entry.limiter, tokens)).UTC(),
	}, nil
}

// refillDelay returns how long until the next token is available.
func refillDelay(limiter *rate.Limiter, tokens float64) time.Duration {
	if tokens >= 1 {
		return 0
	}
	perSecond := float64(limiter.Limit())
	if perSecond <= 0 {
		return 0
	}
	return time.Duration((1 - tokens) / perSecond * float64(time.Second))
}

// prune drops buckets idle for longer than their window; such a bucket is
// full again and indistinguishable from a fresh one.
func (l *MemoryLimiter) prune(now time.Time) {
	for key, entry := range l.buckets {
		if now.Sub(entry.lastSeen) > entry.rule.Window {
			delete(l.buckets, key)
		}
	}
}
