// Package grouplock serializes writes to a single group across goroutines and,
// when Redis is configured, across processes.
package grouplock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotAcquired reports that a non-blocking acquisition found the lock held.
var ErrNotAcquired = errors.New("grouplock: lock held elsewhere")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker acquires named locks.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done.
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
	// TryLock returns ErrNotAcquired instead of waiting.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// GroupKey builds the lock key for a group.
func GroupKey(groupID uint64) string {
	return fmt.Sprintf("group:%d", groupID)
}

// JobKey builds the lock key for a sweep job.
func JobKey(name string) string {
	return "job:" + name
}

func noopUnlock() {}
