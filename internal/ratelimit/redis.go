package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisIncrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter implements a fixed-window rate limiter backed by Redis so the
// budget is shared by every instance.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Allow counts the request in the window containing now.
func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if rule.disabled() || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	window := now.UnixNano() / int64(rule.Window)
	reset := time.Unix(0, (window+1)*int64(rule.Window)).UTC()
	redisKey := l.buildKey(key, window)
	ttl := rule.Window.Milliseconds() + 1000
	res, errEval := redisIncrScript.Run(ctx, l.client, []string{redisKey}, ttl).Result()
	if errEval != nil {
		return Result{}, errEval
	}
	count, ok := res.(int64)
	if !ok {
		switch v := res.(type) {
		case int:
			count = int64(v)
		case uint64:
			count = int64(v)
		default:
			return Result{}, errors.New("rate limit redis: unexpected response type")
		}
	}
	if count > int64(rule.Limit) {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	remaining := rule.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, Reset: reset}, nil
}

func (l *RedisLimiter) buildKey(key string, window int64) string {
	windowStr := strconv.FormatInt(window, 10)
	if l.prefix == "" {
		return "ratelimit:" + key + ":" + windowStr
	}
	return l.prefix + ":ratelimit:" + key + ":" + windowStr
}
