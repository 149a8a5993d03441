package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/types"
)

const (
	poolStopped int32 = iota
	poolRunning
	poolClosed
)

// FixedWorkerPoolConfig defines configuration for fixed worker pool
type FixedWorkerPoolConfig struct {
	// PoolSize is the size of the worker pool
	PoolSize int

	// QueueSize is the task queue size
	QueueSize int

	// SubmitTimeout bounds how long Submit waits for queue space, zero fails fast
	SubmitTimeout time.Duration

	// StopTimeout bounds how long Close waits for running tasks
	StopTimeout time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger (optional, defaults to a no-op logger)
	Logger *zap.Logger

	// OnComplete is called after each task with its duration and error
	OnComplete func(task types.Task, d time.Duration, err error)
}

// DefaultFixedWorkerPoolConfig returns default configuration
func DefaultFixedWorkerPoolConfig() *FixedWorkerPoolConfig {
	return &FixedWorkerPoolConfig{
		PoolSize:      4,
		QueueSize:     64,
		SubmitTimeout: time.Second,
		StopTimeout:   10 * time.Second,
	}
}

// FixedWorkerPool implements a fixed-size worker pool
type FixedWorkerPool struct {
	config   FixedWorkerPoolConfig
	workers  []*Worker
	taskChan chan types.Task

	state     atomic.Int32
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	submitMu  sync.RWMutex // guards ctx and taskChan against Start and Close during Submit

	completed atomic.Int64
	failed    atomic.Int64
}

var _ types.WorkerPool = (*FixedWorkerPool)(nil)

// NewFixedWorkerPool creates a new fixed worker pool
func NewFixedWorkerPool(config *FixedWorkerPoolConfig) (*FixedWorkerPool, error) {
	if config == nil {
		config = DefaultFixedWorkerPoolConfig()
	}

	// parameter validation
	if config.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", config.PoolSize)
	}
	if config.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", config.QueueSize)
	}

	cfg := *config
	if cfg.Clock == nil {
		cfg.Clock = types.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}

	pool := &FixedWorkerPool{
		config:   cfg,
		workers:  make([]*Worker, cfg.PoolSize),
		taskChan: make(chan types.Task, cfg.QueueSize),
	}

	for i := range pool.workers {
		w := NewWorker(i, pool.taskChan, cfg.Clock, cfg.Logger)
		w.onComplete = pool.taskDone
		pool.workers[i] = w
	}

	return pool, nil
}

func (p *FixedWorkerPool) taskDone(task types.Task, d time.Duration, err error) {
	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	if p.config.OnComplete != nil {
		p.config.OnComplete(task, d, err)
	}
}

// Start starts the worker pool
func (p *FixedWorkerPool) Start(ctx context.Context) error {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	if !p.state.CompareAndSwap(poolStopped, poolRunning) {
		if p.state.Load() == poolRunning {
			return fmt.Errorf("worker pool is already running")
		}
		return ErrPoolClosed
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Start(p.ctx)
	}

	p.config.Logger.Debug("worker pool started",
		zap.Int("pool_size", p.config.PoolSize),
		zap.Int("queue_size", p.config.QueueSize))
	return nil
}

// Submit submits a task to the worker pool
func (p *FixedWorkerPool) Submit(task types.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	switch p.state.Load() {
	case poolStopped:
		return ErrPoolNotStarted
	case poolClosed:
		return ErrPoolClosed
	}

	// if no timeout, try to send directly
	if p.config.SubmitTimeout <= 0 {
		select {
		case p.taskChan <- task:
			return nil
		default:
			return ErrPoolFull
		}
	}

	timer := p.config.Clock.NewTimer(p.config.SubmitTimeout)
	defer timer.Stop()

	select {
	case p.taskChan <- task:
		return nil
	case <-timer.C():
		return ErrPoolFull
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Close stops the workers, waiting up to StopTimeout for running tasks, and
// releases resources. Queued tasks that never started are dropped.
func (p *FixedWorkerPool) Close() error {
	var closeErr error

	p.closeOnce.Do(func() {
		wasRunning := p.state.Swap(poolClosed) == poolRunning

		p.submitMu.RLock()
		cancel := p.cancel
		p.submitMu.RUnlock()
		if cancel != nil {
			cancel()
		}

		var errs []error
		if wasRunning {
			var mu sync.Mutex
			var wg sync.WaitGroup
			for _, w := range p.workers {
				wg.Add(1)
				go func(w *Worker) {
					defer wg.Done()
					if err := w.Stop(p.config.StopTimeout); err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
					}
				}(w)
			}
			wg.Wait()
		}

		p.submitMu.Lock()
		close(p.taskChan)
		p.submitMu.Unlock()

		closeErr = errors.Join(errs...)
		p.config.Logger.Debug("worker pool closed", zap.Error(closeErr))
	})

	return closeErr
}

// Size returns the worker pool size
func (p *FixedWorkerPool) Size() int {
	return p.config.PoolSize
}

// Stats gets basic worker pool statistics
func (p *FixedWorkerPool) Stats() types.WorkerPoolStats {
	var activeWorkers int
	for _, w := range p.workers {
		if w.State() == WorkerStateWorking {
			activeWorkers++
		}
	}

	return types.WorkerPoolStats{
		PoolSize:      p.config.PoolSize,
		ActiveWorkers: activeWorkers,
		QueueSize:     len(p.taskChan),
		QueueCapacity: p.config.QueueSize,
		Completed:     p.completed.Load(),
		Failed:        p.failed.Load(),
	}
}

// GetWorkerStats gets statistics of all Workers
func (p *FixedWorkerPool) GetWorkerStats() []WorkerStats {
	stats := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		stats[i] = w.Stats()
	}
	return stats
}

// IsRunning checks if the worker pool is running
func (p *FixedWorkerPool) IsRunning() bool {
	return p.state.Load() == poolRunning
}

// IsClosed checks if the worker pool is closed
func (p *FixedWorkerPool) IsClosed() bool {
	return p.state.Load() == poolClosed
}
