package grouplock

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const minRenewInterval = 10 * time.Millisecond

// renewFunc extends a lease and reports whether it was still held.
type renewFunc func(ctx context.Context) (bool, error)

// renewInterval is a third of ttl, floored at minRenewInterval.
func renewInterval(ttl time.Duration) time.Duration {
	if interval := ttl / 3; interval > minRenewInterval {
		return interval
	}
	return minRenewInterval
}

// holdLease calls renew every interval until stop is closed or the lease is
// reported lost. done is closed on return.
func holdLease(key string, interval time.Duration, renew renewFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), redisReleaseLimit)
		held, err := renew(ctx)
		cancel()
		if err != nil {
			log.WithError(err).WithField("key", key).Debug("lease renewal failed")
			continue
		}
		if !held {
			log.WithField("key", key).Warn("lease lost before release")
			return
		}
	}
}
