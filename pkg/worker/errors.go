package worker

import "errors"

var (
	// ErrPoolFull is returned when a task cannot be queued in time
	ErrPoolFull = errors.New("worker pool queue is full")

	// ErrPoolNotStarted is returned when submitting to a pool that is not running
	ErrPoolNotStarted = errors.New("worker pool is not started")

	// ErrPoolClosed is returned when using a pool after Close
	ErrPoolClosed = errors.New("worker pool is closed")
)
