package grouplock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	slot chan struct{}
	refs int
}

// MemoryLocker implements per-key mutual exclusion inside one process.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryLocker constructs a MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*memoryEntry)}
}

// Lock waits for key. The ttl is ignored; in-process holders always release.
func (l *MemoryLocker) Lock(ctx context.Context, key string, _ time.Duration) (Unlock, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := l.acquireRef(key)
	select {
	case entry.slot <- struct{}{}:
		return l.unlockFunc(key, entry), nil
	case <-ctx.Done():
		l.releaseRef(key, entry)
		return nil, ctx.Err()
	}
}

// TryLock takes key only if it is free.
func (l *MemoryLocker) TryLock(_ context.Context, key string, _ time.Duration) (Unlock, error) {
	entry := l.acquireRef(key)
	select {
	case entry.slot <- struct{}{}:
		return l.unlockFunc(key, entry), nil
	default:
		l.releaseRef(key, entry)
		return nil, ErrNotAcquired
	}
}

func (l *MemoryLocker) acquireRef(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entries[key]
	if entry == nil {
		entry = &memoryEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) releaseRef(key string, entry *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 && l.entries[key] == entry {
		delete(l.entries, key)
	}
}

func (l *MemoryLocker) unlockFunc(key string, entry *memoryEntry) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			l.releaseRef(key, entry)
		})
	}
}

func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
