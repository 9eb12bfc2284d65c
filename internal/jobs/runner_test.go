package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/grouplock"
)

func TestRunner_RunOnceUnknownJob(t *testing.T) {
	r := NewRunner(nil)
	if _, err := r.RunOnce(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestRunner_SkipsOverlappingRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := NewRunner(nil, Job{Name: "slow", Interval: time.Hour, Run: func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 3, nil
	}})

	done := make(chan int, 1)
	go func() {
		n, err := r.RunOnce(context.Background(), "slow")
		if err != nil {
			t.Errorf("first run: %v", err)
		}
		done <- n
	}()
	<-started

	if _, err := r.RunOnce(context.Background(), "slow"); !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected ErrSkipped while running, got %v", err)
	}
	close(release)
	if n := <-done; n != 3 {
		t.Fatalf("expected 3 processed, got %d", n)
	}
}

func TestRunner_SkipsWhenLeaseHeldElsewhere(t *testing.T) {
	locks := grouplock.NewMemoryLocker()
	unlock, err := locks.TryLock(context.Background(), grouplock.JobKey("refund"), time.Minute)
	if err != nil {
		t.Fatalf("take lease: %v", err)
	}
	var calls atomic.Int32
	r := NewRunner(locks, Job{Name: "refund", Run: func(context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	}})

	if _, err := r.RunOnce(context.Background(), "refund"); !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected ErrSkipped, got %v", err)
	}
	unlock()
	if _, err := r.RunOnce(context.Background(), "refund"); err != nil {
		t.Fatalf("expected run after release, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestRunner_StartRunsUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	r := NewRunner(nil, Job{Name: "tick", Interval: 10 * time.Millisecond, Run: func(context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("boom")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	r.Wait()

	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", calls.Load())
	}
	if names := r.Names(); len(names) != 1 || names[0] != "tick" {
		t.Fatalf("unexpected names %v", names)
	}
}
