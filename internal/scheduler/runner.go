package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"giftflow/internal/logger"
	"giftflow/internal/metrics"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrUnknownJob is returned by RunNamed for a name no job was registered under.
var ErrUnknownJob = errors.New("unknown job")

// Runner invokes registered jobs on their interval, each under its own lock.
type Runner struct {
	locker   Locker
	logger   *logrus.Logger
	lockTTL  time.Duration
	interval time.Duration
	now      func() time.Time

	mu   sync.RWMutex
	jobs []Job
}

func NewRunner(locker Locker, log *logrus.Logger, interval, lockTTL time.Duration) *Runner {
	return &Runner{
		locker:   locker,
		logger:   log,
		lockTTL:  lockTTL,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register adds jobs; they run in registration order within a tick.
func (r *Runner) Register(jobs ...Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, jobs...)
}

func (r *Runner) Jobs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		names = append(names, j.Name())
	}
	return names
}

func (r *Runner) find(name string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.jobs {
		if j.Name() == name {
			return j, true
		}
	}
	return nil, false
}

// Start ticks until ctx is cancelled. A tick runs every job once, in order.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunAll(ctx, r.now())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopped")
			return
		case <-ticker.C:
			r.RunAll(ctx, r.now())
		}
	}
}

// RunAll invokes every job once; a failing job does not stop the others.
func (r *Runner) RunAll(ctx context.Context, now time.Time) {
	r.mu.RLock()
	jobs := append([]Job(nil), r.jobs...)
	r.mu.RUnlock()

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		_, _ = r.run(ctx, job, now)
	}
}

// RunNamed invokes one job immediately, e.g. from an operator request.
func (r *Runner) RunNamed(ctx context.Context, name string, now time.Time) (Result, error) {
	job, ok := r.find(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return r.run(ctx, job, now)
}

func (r *Runner) run(ctx context.Context, job Job, now time.Time) (Result, error) {
	release, err := r.locker.Obtain(ctx, job.Name(), r.lockTTL)
	if errors.Is(err, ErrLocked) {
		metrics.JobRuns.WithLabelValues(job.Name(), "locked").Inc()
		r.logger.WithField("job", job.Name()).Debug("job skipped: lock held elsewhere")
		return Result{}, err
	}
	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name(), "lock_error").Inc()
		logger.LogError(r.logger, "scheduler", "run", "obtain lock", job.Name(), err)
		return Result{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.LogError(r.logger, "scheduler", "run", "release lock", job.Name(), err)
		}
	}()

	ctx, span := otel.Tracer("giftflow/scheduler").Start(ctx, "job."+job.Name())
	defer span.End()

	started := time.Now()
	result, err := job.Run(ctx, now)
	metrics.JobDuration.WithLabelValues(job.Name()).Observe(time.Since(started).Seconds())
	span.SetAttributes(
		attribute.Int("job.processed", result.Processed),
		attribute.Int("job.failed", result.Failed),
	)

	fields := logrus.Fields{
		"job":       job.Name(),
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"duration":  time.Since(started).String(),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.JobRuns.WithLabelValues(job.Name(), "error").Inc()
		r.logger.WithFields(fields).Error("job failed: " + err.Error())
		return result, err
	}
	metrics.JobRuns.WithLabelValues(job.Name(), "ok").Inc()
	r.logger.WithFields(fields).Info("job finished")
	return result, nil
}
