package grouplock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLeaseTTL   = 15 * time.Second
	redisRetryBackoff = 25 * time.Millisecond
	redisReleaseLimit = 2 * time.Second
)

var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var redisRenewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements leased locks with SET NX PX and a token-checked
// release. A held lease is renewed in the background until released.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker constructs a RedisLocker.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Lock retries until the lease is taken or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	for {
		unlock, err := l.TryLock(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		timer := time.NewTimer(redisRetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// TryLock makes one attempt at taking the lease.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("grouplock redis: nil client")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	redisKey := l.buildKey(key)
	token := uuid.NewString()
	ok, errSet := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if errSet != nil {
		return nil, errSet
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	renew := func(ctx context.Context) (bool, error) {
		n, err := redisRenewScript.Run(ctx, l.client, []string{redisKey}, token, ttl.Milliseconds()).Int64()
		return n == 1, err
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go holdLease(redisKey, renewInterval(ttl), renew, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), redisReleaseLimit)
			defer cancel()
			_ = redisReleaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}

func (l *RedisLocker) buildKey(key string) string {
	if l.prefix == "" {
		return "lock:" + key
	}
	return l.prefix + ":lock:" + key
}
