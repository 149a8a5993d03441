// Package retry provides a retry engine with stateless and stateful execution, pluggable stop, backoff and classification strategies, and listener hooks.
//
// Key Features:
//
// 1. Policy bundle:
//   - StopStrategy: StopAfterAttempts, StopAfterDelay, StopAny
//   - BackoffStrategy: FixedBackoff, NoBackoff, BackoffFunc
//   - RetryPredicate: KindPredicate classifying failures by ErrorKind,
//     optionally walking the cause chain
//
// 2. Stateless execution:
//   - Execute runs a work unit until it succeeds, fails terminally or the stop
//     strategy ends the series, then falls back to the recovery unit
//   - Attempt history lives only for the duration of the call
//
// 3. Stateful execution:
//   - ExecuteStateful and ExecuteWithKey keep attempt history in a
//     RetryContextCache keyed by StateKey{Label, Fingerprint}
//   - Calls sharing a key are serialized; distinct keys never block each other
//   - With Policy.Redeliver a retryable failure returns ErrRetryPending and the
//     next delivery of the same message resumes the attempt count
//
// 4. Context caches:
//   - ShardedContextCache: bounded, evicts the least recently accessed entry
//   - ExpiringContextCache: bounded LRU with a time to live
//
// 5. Listeners:
//   - OnOpen before every attempt (may veto), OnError after retryable
//     failures, OnClose once per series
//   - LoggingListener (zap) and MetricsListener (Prometheus)
//
// Basic usage example:
//
//	policy := retry.NewPolicy(2, 5*time.Second, retry.WithLabel("send"))
//
//	executor, err := retry.NewRetryExecutor(policy,
//		retry.WithListener(retry.NewLoggingListener(logger)))
//	if err != nil {
//		return err
//	}
//
//	result, err := retry.Execute(executor, ctx,
//		func(ctx context.Context) (string, error) {
//			return client.Call(ctx)
//		},
//		func(ctx context.Context, err error) (string, error) {
//			return "fallback", nil
//		})
//
// Stateful usage example:
//
//	result, err := retry.ExecuteStateful(executor, ctx, msg,
//		func(ctx context.Context, msg Message) (int, error) {
//			return send(ctx, msg)
//		},
//		func(ctx context.Context, err error, msg Message) (int, error) {
//			return park(ctx, msg, err)
//		})
//
// The running RetryContext is available to work and recovery units through
// FromContext. Listener implementations must be safe for concurrent use.
package retry
