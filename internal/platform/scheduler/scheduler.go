// Package scheduler runs the in-process maintenance jobs (idempotency cleanup, reference audit)
// on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultJobTimeout = 2 * time.Minute

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ErrUnknownJob is returned by Trigger for names that were never registered.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// Job is one named maintenance task.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler wraps robfig/cron with per-job timeouts, overlap protection and zap logging.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]Job
	base context.Context
	stop context.CancelFunc
}

// Option customises the scheduler.
type Option func(*options)

type options struct {
	location *time.Location
}

// WithLocation evaluates schedules in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// New constructs an idle scheduler.
func New(logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{location: time.UTC}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	cronLogger := zapCronLogger{logger: logger.Named("cron")}
	base, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(o.location),
			cron.WithParser(parser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
		jobs:   make(map[string]Job),
		base:   base,
		stop:   stop,
	}
}

// Add registers job. A blank schedule leaves the job disabled but still available to Trigger;
// the returned bool reports whether it was scheduled.
func (s *Scheduler) Add(job Job) (bool, error) {
	job.Name = strings.TrimSpace(job.Name)
	if job.Name == "" || job.Run == nil {
		return false, errors.New("scheduler: job name and run func are required")
	}
	if job.Timeout <= 0 {
		job.Timeout = defaultJobTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return false, fmt.Errorf("scheduler: job %q already registered", job.Name)
	}
	s.jobs[job.Name] = job

	schedule := strings.TrimSpace(job.Schedule)
	if schedule == "" {
		s.logger.Info("job disabled", zap.String("job", job.Name))
		return false, nil
	}
	if _, err := s.cron.AddFunc(schedule, func() { _ = s.run(s.base, job) }); err != nil {
		delete(s.jobs, job.Name)
		return false, fmt.Errorf("scheduler: job %q: %w", job.Name, err)
	}
	s.logger.Info("job scheduled", zap.String("job", job.Name), zap.String("schedule", schedule))
	return true, nil
}

// Trigger runs a registered job immediately on the caller's goroutine.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job)
}

// Start begins evaluating schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	logger := s.logger.With(zap.String("job", job.Name))
	if err := job.Run(ctx); err != nil {
		logger.Error("job failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return err
	}
	logger.Info("job finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
