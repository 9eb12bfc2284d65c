// Package jobs runs the periodic group sweeps: expiration, deposit refunds
// and deadline reminders.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/grouplock"
	"github.com/router-for-me/GroupBuyBusiness/internal/metrics"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultLeaseTTL = 15 * time.Minute
	defaultInterval = 5 * time.Minute
)

var (
	// ErrUnknownJob is returned by RunOnce for an unregistered job name.
	ErrUnknownJob = errors.New("jobs: unknown job")
	// ErrSkipped reports that a previous run of the job is still active,
	// in this process or, with Redis enabled, on another node.
	ErrSkipped = errors.New("jobs: previous run still active")
)

// Job is a named periodic task. Run returns how many items it processed.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

type jobState struct {
	job     Job
	running atomic.Bool
}

// Runner schedules jobs and guarantees a job never overlaps with itself.
type Runner struct {
	jobs     map[string]*jobState
	locks    grouplock.Locker
	leaseTTL time.Duration
	wg       sync.WaitGroup
}

// NewRunner constructs a Runner. A nil locker uses an in-process lock.
func NewRunner(locks grouplock.Locker, jobs ...Job) *Runner {
	if locks == nil {
		locks = grouplock.NewMemoryLocker()
	}
	r := &Runner{
		jobs:     make(map[string]*jobState, len(jobs)),
		locks:    locks,
		leaseTTL: defaultLeaseTTL,
	}
	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			continue
		}
		r.jobs[job.Name] = &jobState{job: job}
	}
	return r
}

// Names returns the registered job names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start runs every job in the background until ctx is cancelled. Each job
// runs once immediately and then on its interval.
func (r *Runner) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, name := range r.Names() {
		state := r.jobs[name]
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.loop(ctx, state)
		}()
		log.Infof("sweep %s started (interval=%s)", name, intervalOf(state.job))
	}
}

// Wait blocks until every loop started by Start has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, state *jobState) {
	r.runLogged(ctx, state)

	ticker := time.NewTicker(intervalOf(state.job))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runLogged(ctx, state)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context, state *jobState) {
	processed, err := r.run(ctx, state)
	switch {
	case errors.Is(err, ErrSkipped):
		log.WithField("job", state.job.Name).Debug("sweep skipped, previous run still active")
	case err != nil:
		log.WithError(err).WithField("job", state.job.Name).Warn("sweep failed")
	case processed > 0:
		log.WithFields(log.Fields{"job": state.job.Name, "processed": processed}).Info("sweep finished")
	}
}

// RunOnce runs the named job immediately.
func (r *Runner) RunOnce(ctx context.Context, name string) (int, error) {
	state, ok := r.jobs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return r.run(ctx, state)
}

func (r *Runner) run(ctx context.Context, state *jobState) (processed int, err error) {
	name := state.job.Name
	if !state.running.CompareAndSwap(false, true) {
		metrics.SweepRuns.WithLabelValues(name, "skipped").Inc()
		return 0, ErrSkipped
	}
	defer state.running.Store(false)

	unlock, errLock := r.locks.TryLock(ctx, grouplock.JobKey(name), r.leaseTTL)
	if errLock != nil {
		if errors.Is(errLock, grouplock.ErrNotAcquired) {
			metrics.SweepRuns.WithLabelValues(name, "skipped").Inc()
			return 0, ErrSkipped
		}
		metrics.SweepRuns.WithLabelValues(name, "error").Inc()
		return 0, fmt.Errorf("jobs: lease %s: %w", name, errLock)
	}
	defer unlock()

	ctx, span := tracer.Start(ctx, "jobs."+name, trace.WithAttributes(attribute.String("job.name", name)))
	started := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
		span.SetAttributes(attribute.Int("job.processed", processed))
		if err != nil {
			metrics.SweepRuns.WithLabelValues(name, "error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			metrics.SweepRuns.WithLabelValues(name, "ok").Inc()
		}
		span.End()
	}()

	return state.job.Run(ctx)
}

func intervalOf(job Job) time.Duration {
	if job.Interval <= 0 {
		return defaultInterval
	}
	return job.Interval
}
