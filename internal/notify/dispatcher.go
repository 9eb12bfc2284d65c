package notify

import (
	"context"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDispatchTimeout     = 5 * time.Second
	defaultDispatchConcurrency = 8
)

// Dispatcher delivers notifications on a best-effort basis: failures are
// logged and counted, never returned.
type Dispatcher struct {
	notifier    Notifier
	timeout     time.Duration
	concurrency int
}

// NewDispatcher constructs a Dispatcher. A nil notifier drops every message.
func NewDispatcher(notifier Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, concurrency: defaultDispatchConcurrency}
}

// Send delivers msgs and waits for them to finish or time out. The deadline
// is detached from ctx cancellation so an aborted request does not drop
// notifications for a change that already committed.
func (d *Dispatcher) Send(ctx context.Context, msgs ...Message) {
	if d == nil || d.notifier == nil || len(msgs) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for _, msg := range msgs {
		g.Go(func() error {
			if err := d.notifier.Notify(sendCtx, msg); err != nil {
				metrics.NotificationFailures.WithLabelValues(string(msg.Kind)).Inc()
				log.WithError(err).WithFields(log.Fields{
					"user_id": msg.UserID,
					"kind":    msg.Kind,
				}).Warn("notify: delivery failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
