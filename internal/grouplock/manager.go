package grouplock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// Settings selects the lock backend.
type Settings struct {
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() Settings

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager always holds the in-process lock and adds a Redis lease when
// Redis is enabled and reachable. A Redis failure trips a breaker and the
// manager falls back to in-process locking until it expires.
type Manager struct {
	provider       SettingsProvider
	nowFn          func() time.Time
	memory         *MemoryLocker
	newRedisClient RedisClientFactory
	mu             sync.Mutex
	redisLocker    *RedisLocker
	redisCfg       Settings
	breakerUntil   time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(provider SettingsProvider, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if provider == nil {
		provider = func() Settings { return Settings{} }
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		provider:       provider,
		nowFn:          nowFn,
		memory:         NewMemoryLocker(),
		newRedisClient: newRedisClient,
	}
}

// Lock blocks until key is held locally and, when available, in Redis.
func (m *Manager) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	return m.acquire(ctx, key, ttl, false)
}

// TryLock acquires key without waiting.
func (m *Manager) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	return m.acquire(ctx, key, ttl, true)
}

func (m *Manager) acquire(ctx context.Context, key string, ttl time.Duration, try bool) (Unlock, error) {
	if m == nil || key == "" {
		return noopUnlock, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		localUnlock Unlock
		errLocal    error
	)
	if try {
		localUnlock, errLocal = m.memory.TryLock(ctx, key, ttl)
	} else {
		localUnlock, errLocal = m.memory.Lock(ctx, key, ttl)
	}
	if errLocal != nil {
		return nil, errLocal
	}

	cfg := m.provider()
	if !cfg.RedisEnabled {
		return localUnlock, nil
	}
	remoteUnlock, errRemote := m.acquireRedis(ctx, key, ttl, try, cfg)
	if errRemote != nil {
		if errors.Is(errRemote, ErrNotAcquired) || errors.Is(errRemote, context.Canceled) || errors.Is(errRemote, context.DeadlineExceeded) {
			localUnlock()
			return nil, errRemote
		}
		return localUnlock, nil
	}
	return func() {
		remoteUnlock()
		localUnlock()
	}, nil
}

// acquireRedis returns ErrNotAcquired or a context error when the caller must
// give up; any other error means Redis is unusable and the breaker tripped.
func (m *Manager) acquireRedis(ctx context.Context, key string, ttl time.Duration, try bool, cfg Settings) (Unlock, error) {
	now := m.nowFn()
	if m.isBreakerActive(now) {
		return nil, errBreakerOpen
	}
	locker, errEnsure := m.ensureRedis(ctx, cfg)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return nil, errEnsure
	}
	var (
		unlock Unlock
		err    error
	)
	if try {
		unlock, err = locker.TryLock(ctx, key, ttl)
	} else {
		unlock, err = locker.Lock(ctx, key, ttl)
	}
	if err != nil && !errors.Is(err, ErrNotAcquired) && ctx.Err() == nil {
		m.tripBreaker(err, now)
	}
	return unlock, err
}

var errBreakerOpen = errors.New("grouplock redis: breaker open")

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("group lock: redis unavailable, falling back to in-process locks")
}

func (m *Manager) ensureRedis(ctx context.Context, cfg Settings) (*RedisLocker, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("grouplock redis: missing address")
	}
	next := Settings{
		RedisEnabled:  true,
		RedisAddr:     addr,
		RedisPassword: strings.TrimSpace(cfg.RedisPassword),
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   strings.TrimSpace(cfg.RedisPrefix),
	}
	if next.RedisDB < 0 {
		next.RedisDB = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redisLocker != nil && m.redisCfg == next {
		return m.redisLocker, nil
	}
	if m.redisLocker != nil {
		_ = m.redisLocker.client.Close()
		m.redisLocker = nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     next.RedisAddr,
		Password: next.RedisPassword,
		DB:       next.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisLocker = NewRedisLocker(client, next.RedisPrefix)
	m.redisCfg = next
	return m.redisLocker, nil
}

// Close releases the Redis client if one was created.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisLocker == nil {
		return nil
	}
	errClose := m.redisLocker.client.Close()
	m.redisLocker = nil
	return errClose
}
