package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents idle worker state
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents working worker state
	WorkerStateWorking
	// WorkerStateStopped represents stopped worker state
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker represents a single worker goroutine draining a shared task channel
type Worker struct {
	id       int
	state    atomic.Int32
	taskChan <-chan types.Task
	quit     chan struct{}
	done     chan struct{}

	// statistics
	totalProcessed atomic.Int64
	totalFailed    atomic.Int64
	lastTaskTime   atomic.Int64 // Unix nanosecond timestamp

	// pool callback for syncing statistics
	onComplete func(task types.Task, d time.Duration, err error)

	clock  types.Clock
	logger *zap.Logger
}

// NewWorker creates a new Worker. A nil clock or logger selects the real clock
// and a no-op logger.
func NewWorker(id int, taskChan <-chan types.Task, clock types.Clock, logger *zap.Logger) *Worker {
	if clock == nil {
		clock = types.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		id:       id,
		taskChan: taskChan,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		clock:    clock,
		logger:   logger.With(zap.Int("worker_id", id)),
	}
}

// ID returns the Worker ID
func (w *Worker) ID() int {
	return w.id
}

// State returns the current Worker state
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Start runs the Worker until ctx is done, Stop is called or the task channel closes
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)
	defer w.state.Store(int32(WorkerStateStopped))

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case task, ok := <-w.taskChan:
			if !ok {
				return
			}
			w.processTask(ctx, task)
		}
	}
}

// processTask processes a single task
func (w *Worker) processTask(ctx context.Context, task types.Task) {
	w.state.Store(int32(WorkerStateWorking))
	defer w.state.Store(int32(WorkerStateIdle))

	startTime := w.clock.Now()
	w.lastTaskTime.Store(startTime.UnixNano())

	err := w.executeTask(ctx, task)
	executionTime := w.clock.Since(startTime)

	if err != nil {
		w.totalFailed.Add(1)
		w.logger.Debug("task failed",
			zap.String("task_id", task.ID()),
			zap.Duration("duration", executionTime),
			zap.Error(err))
	} else {
		w.totalProcessed.Add(1)
	}

	if w.onComplete != nil {
		w.onComplete(task, executionTime, err)
	}
}

// executeTask executes a task with panic recovery support
func (w *Worker) executeTask(ctx context.Context, task types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task panicked",
				zap.String("task_id", task.ID()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))

			if e, ok := r.(error); ok {
				err = fmt.Errorf("task %s panicked: %w", task.ID(), e)
				return
			}
			err = fmt.Errorf("task %s panicked: %v", task.ID(), r)
		}
	}()

	return task.Execute(ctx)
}

// Stop stops the Worker, waiting for the current task to finish
func (w *Worker) Stop(timeout time.Duration) error {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}

	timer := w.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C():
		return fmt.Errorf("worker %d stop timeout", w.id)
	}
}

// Stats gets Worker statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		ID:             w.id,
		State:          w.State(),
		TotalProcessed: w.totalProcessed.Load(),
		TotalFailed:    w.totalFailed.Load(),
		LastTaskTime:   time.Unix(0, w.lastTaskTime.Load()),
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	ID             int
	State          WorkerState
	TotalProcessed int64
	TotalFailed    int64
	LastTaskTime   time.Time
}

// IsActive checks if Worker is active
func (ws WorkerStats) IsActive() bool {
	return ws.State == WorkerStateWorking
}

// GetSuccessRate gets the success rate
func (ws WorkerStats) GetSuccessRate() float64 {
	total := ws.TotalProcessed + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalProcessed) / float64(total)
}
