// Package scheduler fires retry jobs at a fixed rate on a worker pool
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/types"
	"github.com/jzx17/goretry/pkg/worker"
)

// ErrNoJobs is returned by Run when nothing was registered
var ErrNoJobs = errors.New("scheduler has no jobs")

// Job is a named unit of work fired on every tick
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config configures a Scheduler
type Config struct {
	// Interval between two firings, measured from the start of each firing
	Interval time.Duration

	// JobTimeout bounds a single firing, zero means unbounded
	JobTimeout time.Duration

	// Pool runs the firings, it must be started by the caller
	Pool types.WorkerPool

	// Clock (optional, defaults to real clock)
	Clock types.Clock

	// Logger (optional, defaults to a no-op logger)
	Logger *zap.Logger
}

// Stats counts firings
type Stats struct {
	Ticks     int64
	Submitted int64
	Skipped   int64
}

// Scheduler submits every registered job to the pool once immediately and then
// once per interval. Firings overlap when a job outlives the interval; a firing
// the pool cannot accept is skipped.
type Scheduler struct {
	config Config
	clock  types.Clock
	logger *zap.Logger

	mu   sync.Mutex
	jobs []Job

	ticks     atomic.Int64
	submitted atomic.Int64
	skipped   atomic.Int64
}

// New creates a scheduler
func New(config Config) (*Scheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", config.Interval)
	}
	if config.Pool == nil {
		return nil, errors.New("worker pool is required")
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Scheduler{
		config: config,
		clock:  config.Clock,
		logger: config.Logger,
	}, nil
}

// Add registers a job
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Jobs returns the registered job names
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// Run fires jobs until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()
	if len(jobs) == 0 {
		return ErrNoJobs
	}

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Strings("jobs", s.Jobs()))

	s.fire(ctx, jobs)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", zap.Int64("ticks", s.ticks.Load()))
			return nil
		case <-ticker.C():
			s.fire(ctx, jobs)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, jobs []Job) {
	tick := s.ticks.Add(1)
	for _, job := range jobs {
		run := job.Run
		task := worker.NewTaskWithTimeout(
			worker.NewBasicTaskWithID(fmt.Sprintf("%s-%d", job.Name, tick), func(taskCtx context.Context) error {
				// stopping the scheduler cancels firings still running
				runCtx, cancel := context.WithCancel(taskCtx)
				defer cancel()
				stop := context.AfterFunc(ctx, cancel)
				defer stop()
				return run(runCtx)
			}),
			s.config.JobTimeout,
		)

		if err := s.config.Pool.Submit(task); err != nil {
			s.skipped.Add(1)
			s.logger.Warn("skipping firing",
				zap.String("job", job.Name),
				zap.Int64("tick", tick),
				zap.Error(err))
			continue
		}
		s.submitted.Add(1)
	}
}

// Stats returns firing counters
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:     s.ticks.Load(),
		Submitted: s.submitted.Load(),
		Skipped:   s.skipped.Load(),
	}
}
