// Package types defines core interfaces and types shared by the retry library
package types

import (
	"context"
	"time"
)

// Task defines a unit of work submitted to a worker pool
type Task interface {
	// Execute executes the task
	Execute(ctx context.Context) error

	// ID returns the task ID (for tracking and logging)
	ID() string
}

// WorkerPool defines the worker pool interface used by trigger sources
type WorkerPool interface {
	// Submit submits a task to the worker pool
	Submit(task Task) error

	// Start starts the worker pool
	Start(ctx context.Context) error

	// Close stops the workers and releases resources
	Close() error

	// Size returns the size of the worker pool
	Size() int

	// Stats returns worker pool statistics
	Stats() WorkerPoolStats
}

// WorkerPoolStats defines basic statistics for worker pools
type WorkerPoolStats struct {
	// PoolSize is the size of the pool
	PoolSize int

	// ActiveWorkers is the number of workers currently executing a task
	ActiveWorkers int

	// QueueSize is the current number of tasks in the queue
	QueueSize int

	// QueueCapacity is the capacity of the queue
	QueueCapacity int

	// Completed is the number of tasks that finished without error
	Completed int64

	// Failed is the number of tasks that returned an error
	Failed int64
}

// Result defines the result of asynchronous execution
type Result[R any] struct {
	// Value is the execution result
	Value R

	// Error is the execution error
	Error error

	// Duration is the execution time
	Duration time.Duration
}
