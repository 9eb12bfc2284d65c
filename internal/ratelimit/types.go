package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Rule bounds a named route to Limit requests per Window for each client.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

func (r Rule) disabled() bool {
	return r.Limit <= 0 || r.Window <= 0
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule, now time.Time) (Result, error)
}
