// Package retry provides retry executor implementation
package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/types"
)

// RetryExecutor implements retry execution logic
type RetryExecutor struct {
	policy    Policy
	listeners Listeners
	cache     RetryContextCache
	locks     *KeyLocker
	clock     types.Clock
	logger    *zap.Logger
	stats     RetryStats
}

// ExecuteFunc is the function type to retry
type ExecuteFunc[T any] func(ctx context.Context) (T, error)

// RecoverFunc is the fallback invoked with the last failure once retries end
type RecoverFunc[T any] func(ctx context.Context, err error) (T, error)

// StatefulFunc is a work unit taking the logical argument of a stateful series
type StatefulFunc[A, T any] func(ctx context.Context, arg A) (T, error)

// StatefulRecoverFunc is the fallback of a stateful series; it receives the
// failure first and then the same logical argument as the work unit
type StatefulRecoverFunc[A, T any] func(ctx context.Context, err error, arg A) (T, error)

// RetryStats contains retry statistics
type RetryStats struct {
	TotalAttempts   int64         // total attempt count
	TotalRetries    int64         // attempts beyond the first of a series
	TotalSuccesses  int64         // series that ended with a successful attempt
	TotalRecoveries int64         // series that ended in the recovery unit
	TotalFailures   int64         // series that surfaced an error without recovery
	LastRetryTime   time.Time     // last time a backoff started
	TotalRetryDelay time.Duration // total backoff time requested
	mu              sync.RWMutex
}

// NewRetryExecutor creates a retry executor
func NewRetryExecutor(policy Policy, opts ...ExecutorOption) (*RetryExecutor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	executor := &RetryExecutor{
		policy: policy,
		locks:  NewKeyLocker(),
		clock:  types.NewRealClock(),
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(executor)
	}

	if executor.cache == nil {
		executor.cache = NewShardedContextCache(DefaultCacheCapacity, WithCacheClock(executor.clock))
	}

	return executor, nil
}

// Policy returns the policy bundle
func (r *RetryExecutor) Policy() Policy {
	return r.policy
}

// Cache returns the cache holding stateful contexts
func (r *RetryExecutor) Cache() RetryContextCache {
	return r.cache
}

// Execute runs fn as a stateless series. Attempt history never outlives the call.
func Execute[T any](r *RetryExecutor, ctx context.Context, fn ExecuteFunc[T], recoverFn RecoverFunc[T]) (T, error) {
	return execute(r, ctx, nil, fn, recoverFn)
}

// ExecuteWithKey runs fn as a stateful series identified by key.
// Calls sharing key are serialized and continue the same attempt count until
// the series succeeds or ends in recovery.
func ExecuteWithKey[T any](r *RetryExecutor, ctx context.Context, key StateKey, fn ExecuteFunc[T], recoverFn RecoverFunc[T]) (T, error) {
	return execute(r, ctx, &key, fn, recoverFn)
}

// ExecuteStateful runs fn(arg) as a stateful series keyed by the policy label
// and the fingerprint of arg (see DeriveKey)
func ExecuteStateful[A, T any](r *RetryExecutor, ctx context.Context, arg A, fn StatefulFunc[A, T], recoverFn StatefulRecoverFunc[A, T]) (T, error) {
	key := DeriveKey(r.policy.Label, arg)

	var rf RecoverFunc[T]
	if recoverFn != nil {
		rf = func(ctx context.Context, err error) (T, error) {
			return recoverFn(ctx, err, arg)
		}
	}

	return execute(r, ctx, &key, func(ctx context.Context) (T, error) {
		return fn(ctx, arg)
	}, rf)
}

// ExecuteAsync executes a stateless series asynchronously
func ExecuteAsync[T any](r *RetryExecutor, ctx context.Context, fn ExecuteFunc[T], recoverFn RecoverFunc[T]) <-chan types.Result[T] {
	return async(r, func() (T, error) {
		return Execute(r, ctx, fn, recoverFn)
	})
}

// ExecuteStatefulAsync executes a stateful series asynchronously
func ExecuteStatefulAsync[A, T any](r *RetryExecutor, ctx context.Context, arg A, fn StatefulFunc[A, T], recoverFn StatefulRecoverFunc[A, T]) <-chan types.Result[T] {
	return async(r, func() (T, error) {
		return ExecuteStateful(r, ctx, arg, fn, recoverFn)
	})
}

func async[T any](r *RetryExecutor, run func() (T, error)) <-chan types.Result[T] {
	resultChan := make(chan types.Result[T], 1)

	go func() {
		defer close(resultChan)

		start := r.clock.Now()
		value, err := run()
		duration := r.clock.Since(start)

		resultChan <- types.Result[T]{
			Value:    value,
			Error:    err,
			Duration: duration,
		}
	}()

	return resultChan
}

func execute[T any](r *RetryExecutor, ctx context.Context, key *StateKey, fn ExecuteFunc[T], recoverFn RecoverFunc[T]) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var rc *RetryContext
	if key != nil {
		unlock, err := r.locks.Lock(ctx, *key)
		if err != nil {
			return zero, err
		}
		defer unlock()

		rc, err = r.resolveStateful(*key)
		if err != nil {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalFailures++
			})
			return zero, err
		}
	} else {
		rc = NewRetryContext(r.policy.Label, r.clock.Now())
	}
	ctx = withRetryContext(ctx, rc)

	for {
		// check if context is cancelled
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if !r.listeners.OnOpen(rc) {
			r.listeners.OnClose(rc, types.ErrAttemptDenied)
			r.updateStats(func(stats *RetryStats) {
				stats.TotalFailures++
			})
			return zero, r.retryError(rc, types.ErrAttemptDenied, rc.LastFailure())
		}

		attempt := rc.beginAttempt()
		r.updateStats(func(stats *RetryStats) {
			stats.TotalAttempts++
			if attempt > 1 {
				stats.TotalRetries++
			}
		})

		result, err := fn(ctx)

		// execution successful
		if err == nil {
			rc.registerSuccess()
			r.listeners.OnClose(rc, nil)
			r.forget(rc)
			r.updateStats(func(stats *RetryStats) {
				stats.TotalSuccesses++
			})
			return result, nil
		}

		rc.registerFailure(err)

		// the caller gave up, stateful contexts stay cached for the next delivery
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, r.retryError(rc, ctxErr, err)
		}

		if !r.policy.Predicate.Retryable(err) {
			r.logger.Debug("terminal failure",
				zap.String("label", rc.Label()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			r.listeners.OnClose(rc, err)
			r.forget(rc)
			return recoverOrFail(r, ctx, rc, err, recoverFn)
		}

		r.listeners.OnError(rc, err)

		if r.policy.Stop.ShouldStop(attempt, r.clock.Since(rc.StartedAt())) {
			r.logger.Debug("retries exhausted",
				zap.String("label", rc.Label()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			r.listeners.OnClose(rc, err)
			r.forget(rc)
			return recoverOrFail(r, ctx, rc, err, recoverFn)
		}

		if key != nil && r.policy.Redeliver {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalFailures++
			})
			return zero, r.retryError(rc, types.ErrRetryPending, err)
		}

		// calculate delay time
		delay := r.policy.Backoff.NextDelay(attempt)
		r.updateStats(func(stats *RetryStats) {
			stats.LastRetryTime = r.clock.Now()
			stats.TotalRetryDelay += delay
		})

		// wait for retry delay, cancellation leaves the attempt count untouched
		if err := types.Sleep(ctx, r.clock, delay); err != nil {
			return zero, err
		}
	}
}

// resolveStateful returns the cached context for key, registering a fresh one if absent
func (r *RetryExecutor) resolveStateful(key StateKey) (*RetryContext, error) {
	if rc, ok := r.cache.Get(key); ok {
		return rc, nil
	}

	rc := NewStatefulRetryContext(key, r.clock.Now())
	if err := r.cache.Put(key, rc); err != nil {
		return nil, fmt.Errorf("register retry context: %w", err)
	}
	return rc, nil
}

// forget removes a finished stateful context from the cache
func (r *RetryExecutor) forget(rc *RetryContext) {
	if key, ok := rc.Key(); ok {
		r.cache.Remove(key)
	}
}

func recoverOrFail[T any](r *RetryExecutor, ctx context.Context, rc *RetryContext, err error, recoverFn RecoverFunc[T]) (T, error) {
	if recoverFn == nil {
		r.updateStats(func(stats *RetryStats) {
			stats.TotalFailures++
		})
		var zero T
		return zero, r.retryError(rc, types.ErrNoRecoveryAvailable, err)
	}

	r.updateStats(func(stats *RetryStats) {
		stats.TotalRecoveries++
	})
	return recoverFn(ctx, err)
}

// retryError wraps err with retry information
func (r *RetryExecutor) retryError(rc *RetryContext, reason, err error) error {
	retryErr := types.NewRetryError(rc.Label(), rc.AttemptCount(), reason, err)
	if key, ok := rc.Key(); ok {
		retryErr.WithKey(key.String())
	}
	retryErr.WithContext("context_id", rc.ID())
	if r.policy.MaxAttempts > 0 {
		retryErr.WithContext("max_attempts", r.policy.MaxAttempts)
	}
	return retryErr
}

// GetStats gets retry statistics
func (r *RetryExecutor) GetStats() RetryStats {
	r.stats.mu.RLock()
	defer r.stats.mu.RUnlock()
	return RetryStats{
		TotalAttempts:   r.stats.TotalAttempts,
		TotalRetries:    r.stats.TotalRetries,
		TotalSuccesses:  r.stats.TotalSuccesses,
		TotalRecoveries: r.stats.TotalRecoveries,
		TotalFailures:   r.stats.TotalFailures,
		LastRetryTime:   r.stats.LastRetryTime,
		TotalRetryDelay: r.stats.TotalRetryDelay,
		// don't copy mutex
	}
}

// ResetStats resets statistics
func (r *RetryExecutor) ResetStats() {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()

	r.stats.TotalAttempts = 0
	r.stats.TotalRetries = 0
	r.stats.TotalSuccesses = 0
	r.stats.TotalRecoveries = 0
	r.stats.TotalFailures = 0
	r.stats.LastRetryTime = time.Time{}
	r.stats.TotalRetryDelay = 0
}

// updateStats updates statistics (thread-safe)
func (r *RetryExecutor) updateStats(fn func(*RetryStats)) {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	fn(&r.stats)
}

// ExecutorOption is a configuration option for retry executor
type ExecutorOption func(*RetryExecutor)

// WithListener adds retry listeners
func WithListener(listeners ...RetryListener) ExecutorOption {
	return func(r *RetryExecutor) {
		r.listeners = append(r.listeners, listeners...)
	}
}

// WithCache sets the cache holding stateful contexts
func WithCache(cache RetryContextCache) ExecutorOption {
	return func(r *RetryExecutor) {
		r.cache = cache
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) ExecutorOption {
	return func(r *RetryExecutor) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(r *RetryExecutor) {
		if logger != nil {
			r.logger = logger
		}
	}
}
