package grouplock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryLockerSerializesSameKey(t *testing.T) {
	locker := NewMemoryLocker()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), GroupKey(1), 0)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen.Load() != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen.Load())
	}
	if locker.size() != 0 {
		t.Fatalf("expected entries to be released, got %d", locker.size())
	}
}

func TestMemoryLockerTryLock(t *testing.T) {
	locker := NewMemoryLocker()
	unlock, err := locker.TryLock(context.Background(), JobKey("expiration"), 0)
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	if _, errSecond := locker.TryLock(context.Background(), JobKey("expiration"), 0); !errors.Is(errSecond, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", errSecond)
	}
	if other, errOther := locker.TryLock(context.Background(), JobKey("refund"), 0); errOther != nil {
		t.Fatalf("independent key should be free: %v", errOther)
	} else {
		other()
	}
	unlock()
	unlock()
	again, errAgain := locker.TryLock(context.Background(), JobKey("expiration"), 0)
	if errAgain != nil {
		t.Fatalf("expected lock to be free after unlock: %v", errAgain)
	}
	again()
}

func TestMemoryLockerHonorsContext(t *testing.T) {
	locker := NewMemoryLocker()
	unlock, err := locker.Lock(context.Background(), GroupKey(9), 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, errWait := locker.Lock(ctx, GroupKey(9), 0); !errors.Is(errWait, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", errWait)
	}
}

func TestManagerFallsBackWhenRedisUnreachable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var clients atomic.Int32
	manager := NewManager(
		func() Settings { return Settings{RedisEnabled: true, RedisAddr: "127.0.0.1:1"} },
		func() time.Time { return now },
		func(options *redis.Options) *redis.Client {
			clients.Add(1)
			options.DialTimeout = 100 * time.Millisecond
			options.MaxRetries = -1
			return redis.NewClient(options)
		},
	)
	defer manager.Close()

	unlock, err := manager.Lock(context.Background(), GroupKey(3), time.Second)
	if err != nil {
		t.Fatalf("expected fallback lock, got %v", err)
	}
	unlock()

	unlock, err = manager.Lock(context.Background(), GroupKey(3), time.Second)
	if err != nil {
		t.Fatalf("expected fallback lock, got %v", err)
	}
	unlock()

	if clients.Load() != 1 {
		t.Fatalf("expected breaker to skip reconnects, got %d clients", clients.Load())
	}
}

func TestManagerWithoutRedisUsesMemory(t *testing.T) {
	manager := NewManager(nil, nil, nil)
	unlock, err := manager.TryLock(context.Background(), JobKey("reminder"), time.Second)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, errHeld := manager.TryLock(context.Background(), JobKey("reminder"), time.Second); !errors.Is(errHeld, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", errHeld)
	}
	unlock()
}

func TestHoldLeaseRenewsUntilStopped(t *testing.T) {
	var renewals atomic.Int32
	renew := func(context.Context) (bool, error) {
		renewals.Add(1)
		return true, nil
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go holdLease("job:refund", 5*time.Millisecond, renew, stop, done)

	deadline := time.Now().Add(2 * time.Second)
	for renewals.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated renewals, got %d", renewals.Load())
		}
		time.Sleep(time.Millisecond)
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected renewal loop to stop")
	}
	after := renewals.Load()
	time.Sleep(20 * time.Millisecond)
	if renewals.Load() != after {
		t.Fatalf("expected no renewals after stop")
	}
}

func TestHoldLeaseStopsWhenLeaseLost(t *testing.T) {
	var renewals atomic.Int32
	renew := func(context.Context) (bool, error) {
		if renewals.Add(1) == 1 {
			return false, errors.New("redis timeout")
		}
		return false, nil
	}
	stop := make(chan struct{})
	defer close(stop)
	done := make(chan struct{})
	go holdLease("job:refund", 5*time.Millisecond, renew, stop, done)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected renewal loop to exit once the lease is lost")
	}
	if renewals.Load() != 2 {
		t.Fatalf("expected a retry after the error then exit, got %d renewals", renewals.Load())
	}
}

func TestRenewInterval(t *testing.T) {
	if got := renewInterval(15 * time.Minute); got != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", got)
	}
	if got := renewInterval(time.Millisecond); got != minRenewInterval {
		t.Fatalf("expected floor %s, got %s", minRenewInterval, got)
	}
}
