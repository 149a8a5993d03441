// Package retry provides backoff algorithm implementations
package retry

import (
	"time"
)

// BackoffStrategy defines the backoff strategy interface.
// Implementations must be pure: the same attempt always yields the same delay,
// and NextDelay may be called concurrently by in-flight retries.
type BackoffStrategy interface {
	// NextDelay calculates the delay applied after the given attempt failed
	NextDelay(attempt int) time.Duration
}

// FixedBackoff implements fixed backoff strategy
type FixedBackoff struct {
	delay time.Duration
}

// NewFixedBackoff creates a fixed backoff strategy
func NewFixedBackoff(delay time.Duration) *FixedBackoff {
	if delay < 0 {
		delay = 0
	}
	return &FixedBackoff{delay: delay}
}

// NextDelay calculates the delay for the next retry
func (b *FixedBackoff) NextDelay(attempt int) time.Duration {
	return b.delay
}

// Delay returns the configured delay
func (b *FixedBackoff) Delay() time.Duration {
	return b.delay
}

// NoBackoff retries immediately
type NoBackoff struct{}

// NextDelay always returns zero
func (NoBackoff) NextDelay(int) time.Duration {
	return 0
}

// BackoffFunc adapts a plain function to BackoffStrategy
type BackoffFunc func(attempt int) time.Duration

// NextDelay calls f(attempt)
func (f BackoffFunc) NextDelay(attempt int) time.Duration {
	return f(attempt)
}
