package retry

import "time"

// StopStrategy decides whether another attempt is allowed.
// It is evaluated after a retryable failure and before any backoff is applied.
type StopStrategy interface {
	// ShouldStop reports whether the series must end after attempts attempts
	ShouldStop(attempts int, elapsed time.Duration) bool
}

// MaxAttemptsStop stops once the attempt count reaches a maximum
type MaxAttemptsStop struct {
	maxAttempts int
}

// StopAfterAttempts creates a stop strategy that allows at most maxAttempts attempts
func StopAfterAttempts(maxAttempts int) *MaxAttemptsStop {
	return &MaxAttemptsStop{maxAttempts: maxAttempts}
}

// ShouldStop returns true when attempts >= maxAttempts
func (s *MaxAttemptsStop) ShouldStop(attempts int, _ time.Duration) bool {
	return attempts >= s.maxAttempts
}

// MaxAttempts returns the configured maximum
func (s *MaxAttemptsStop) MaxAttempts() int {
	return s.maxAttempts
}

// MaxDelayStop stops once the series has been running for a given duration
type MaxDelayStop struct {
	maxElapsed time.Duration
}

// StopAfterDelay creates a stop strategy bounded by elapsed time since the first attempt
func StopAfterDelay(maxElapsed time.Duration) *MaxDelayStop {
	return &MaxDelayStop{maxElapsed: maxElapsed}
}

// ShouldStop returns true when elapsed >= maxElapsed
func (s *MaxDelayStop) ShouldStop(_ int, elapsed time.Duration) bool {
	return elapsed >= s.maxElapsed
}

// StopFunc adapts a plain function to StopStrategy
type StopFunc func(attempts int, elapsed time.Duration) bool

// ShouldStop calls f
func (f StopFunc) ShouldStop(attempts int, elapsed time.Duration) bool {
	return f(attempts, elapsed)
}

// StopAny stops as soon as one of the strategies stops
func StopAny(strategies ...StopStrategy) StopStrategy {
	return StopFunc(func(attempts int, elapsed time.Duration) bool {
		for _, s := range strategies {
			if s != nil && s.ShouldStop(attempts, elapsed) {
				return true
			}
		}
		return false
	})
}
