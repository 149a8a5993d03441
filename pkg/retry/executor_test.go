package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/goretry/internal/testutils"
	"github.com/jzx17/goretry/pkg/types"
)

type outcome struct {
	value string
	err   error
}

func newTestExecutor(t *testing.T, policy Policy, opts ...ExecutorOption) *RetryExecutor {
	t.Helper()
	executor, err := NewRetryExecutor(policy, opts...)
	require.NoError(t, err)
	return executor
}

func alwaysRemote(calls *atomic.Int32) ExecuteFunc[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", types.NewRemoteAccessError(500, nil)
	}
}

func TestRetryExecutor_Execute_Success(t *testing.T) {
	log := &eventLog{}
	executor := newTestExecutor(t, NewPolicy(2, time.Second),
		WithListener(newRecordingListener("l", log)))

	result, err := Execute(executor, context.Background(), func(ctx context.Context) (string, error) {
		return "success", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, []string{"l:open", "l:close"}, log.all())

	stats := executor.GetStats()
	assert.Equal(t, int64(1), stats.TotalAttempts)
	assert.Equal(t, int64(1), stats.TotalSuccesses)
	assert.Equal(t, int64(0), stats.TotalRetries)
}

func TestRetryExecutor_Execute_RecoversAfterMaxAttempts(t *testing.T) {
	clock := testutils.NewMockClockWrapper(t)
	log := &eventLog{}
	executor := newTestExecutor(t, NewPolicy(2, 5*time.Second),
		WithClock(clock),
		WithListener(newRecordingListener("l", log)))

	var calls, recoveries atomic.Int32
	done := make(chan outcome, 1)
	go func() {
		v, err := Execute(executor, context.Background(), alwaysRemote(&calls),
			func(ctx context.Context, err error) (string, error) {
				recoveries.Add(1)
				var remote *types.RemoteAccessError
				if !errors.As(err, &remote) {
					return "", errors.New("unexpected failure type")
				}
				return "recovered", nil
			})
		done <- outcome{v, err}
	}()

	assert.Equal(t, 5*time.Second, clock.AdvanceTimer(t))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "recovered", res.value)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), recoveries.Load())
	assert.Equal(t, []string{
		"l:open", "l:error",
		"l:open", "l:error",
		"l:close:error",
	}, log.all())

	stats := executor.GetStats()
	assert.Equal(t, int64(2), stats.TotalAttempts)
	assert.Equal(t, int64(1), stats.TotalRetries)
	assert.Equal(t, int64(1), stats.TotalRecoveries)
	assert.Equal(t, 5*time.Second, stats.TotalRetryDelay)
}

func TestRetryExecutor_Execute_BackoffBetweenAttempts(t *testing.T) {
	clock := testutils.NewMockClockWrapper(t)
	executor := newTestExecutor(t, NewPolicy(3, 2*time.Second), WithClock(clock))
	flaky := testutils.NewFlakyFunc(2)

	start := clock.Now()
	done := make(chan outcome, 1)
	go func() {
		v, err := Execute(executor, context.Background(), flaky.Call, nil)
		done <- outcome{v, err}
	}()

	clock.AdvanceTimer(t)
	clock.AdvanceTimer(t)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "ok", res.value)
	assert.Equal(t, 3, flaky.Calls())
	assert.Equal(t, 4*time.Second, clock.Since(start))
	assert.Equal(t, int64(2), executor.GetStats().TotalRetries)
}

func TestRetryExecutor_Execute_TerminalFailure(t *testing.T) {
	clock := testutils.NewMockClockWrapper(t)
	log := &eventLog{}
	executor := newTestExecutor(t, NewPolicy(5, time.Second),
		WithClock(clock),
		WithListener(newRecordingListener("l", log)))

	var calls atomic.Int32
	terminal := types.NewTerminalError(errors.New("invalid message"))
	var recovered error

	_, err := Execute(executor, context.Background(), func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", terminal
	}, func(ctx context.Context, err error) (string, error) {
		recovered = err
		return "", err
	})

	assert.ErrorIs(t, err, terminal)
	assert.Same(t, terminal, recovered)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"l:open", "l:close:error"}, log.all())

	assert.Zero(t, clock.PendingTimers(), "terminal failures must not back off")
}

func TestRetryExecutor_Execute_NoRecoveryAvailable(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(2, 0, WithLabel("send")))

	var calls atomic.Int32
	_, err := Execute(executor, context.Background(), alwaysRemote(&calls), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoRecoveryAvailable)

	var retryErr *types.RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, "send", retryErr.Label)
	assert.Equal(t, 2, retryErr.Attempts)
	assert.Equal(t, 2, retryErr.Context["max_attempts"])

	var remote *types.RemoteAccessError
	assert.ErrorAs(t, err, &remote)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), executor.GetStats().TotalFailures)
}

func TestRetryExecutor_Execute_CancelledDuringBackoff(t *testing.T) {
	clock := testutils.NewMockClockWrapper(t)
	executor := newTestExecutor(t, NewPolicy(3, time.Minute), WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls, recoveries atomic.Int32
	done := make(chan outcome, 1)
	go func() {
		v, err := Execute(executor, ctx, alwaysRemote(&calls), func(ctx context.Context, err error) (string, error) {
			recoveries.Add(1)
			return "", nil
		})
		done <- outcome{v, err}
	}()

	clock.WaitForTimer(t)
	cancel()

	res := <-done
	assert.ErrorIs(t, res.err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(0), recoveries.Load())
}

func TestRetryExecutor_Execute_ContextAlreadyCancelled(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(3, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	_, err := Execute(executor, ctx, alwaysRemote(&calls), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRetryExecutor_Execute_ListenerVeto(t *testing.T) {
	log := &eventLog{}
	vetoing := newRecordingListener("l", log)
	vetoing.veto = func(rc *RetryContext) bool { return rc.AttemptCount() >= 1 }
	executor := newTestExecutor(t, NewPolicy(5, 0, WithBackoff(NoBackoff{})), WithListener(vetoing))

	var calls, recoveries atomic.Int32
	_, err := Execute(executor, context.Background(), alwaysRemote(&calls), func(ctx context.Context, err error) (string, error) {
		recoveries.Add(1)
		return "", nil
	})

	assert.ErrorIs(t, err, types.ErrAttemptDenied)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(0), recoveries.Load())
	assert.Equal(t, []string{"l:open", "l:error", "l:open", "l:close:error"}, log.all())
}

func TestRetryExecutor_Execute_StopAfterDelay(t *testing.T) {
	clock := testutils.NewMockClockWrapper(t)
	policy := NewPolicy(100, 5*time.Second, WithStopStrategy(StopAfterDelay(10*time.Second)))
	executor := newTestExecutor(t, policy, WithClock(clock))

	var calls atomic.Int32
	done := make(chan outcome, 1)
	go func() {
		v, err := Execute(executor, context.Background(), alwaysRemote(&calls), nil)
		done <- outcome{v, err}
	}()

	clock.AdvanceTimer(t)
	clock.AdvanceTimer(t)

	res := <-done
	assert.ErrorIs(t, res.err, types.ErrNoRecoveryAvailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryExecutor_RetryContextVisibleToUnits(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(2, 0, WithLabel("send")))

	var seen []int
	result, err := Execute(executor, context.Background(), func(ctx context.Context) (string, error) {
		rc, ok := FromContext(ctx)
		if !ok {
			return "", errors.New("missing retry context")
		}
		seen = append(seen, rc.AttemptCount())
		return "", types.NewRemoteAccessError(500, nil)
	}, func(ctx context.Context, err error) (string, error) {
		rc, ok := FromContext(ctx)
		if !ok {
			return "", errors.New("missing retry context")
		}
		rc.SetAttribute("stack", "trace")
		return rc.Label(), nil
	})

	require.NoError(t, err)
	assert.Equal(t, "send", result)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetryExecutor_ExecuteStateful_Redeliver(t *testing.T) {
	policy := NewPolicy(3, time.Hour, WithLabel("send"), WithRedeliver(true))
	executor := newTestExecutor(t, policy)
	msg := testMessage{id: "001"}

	var seen []int
	var recovered atomic.Int32
	work := func(ctx context.Context, m testMessage) (string, error) {
		rc, _ := FromContext(ctx)
		seen = append(seen, rc.AttemptCount())
		return "", types.NewRemoteAccessError(500, nil)
	}
	recoverFn := func(ctx context.Context, err error, m testMessage) (string, error) {
		recovered.Add(1)
		return "parked " + m.id, nil
	}

	for i := 1; i <= 2; i++ {
		_, err := ExecuteStateful(executor, context.Background(), msg, work, recoverFn)
		require.ErrorIs(t, err, types.ErrRetryPending)

		rc, ok := executor.Cache().Get(key("001"))
		require.True(t, ok)
		assert.Equal(t, i, rc.AttemptCount())
	}

	result, err := ExecuteStateful(executor, context.Background(), msg, work, recoverFn)
	require.NoError(t, err)
	assert.Equal(t, "parked 001", result)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, int32(1), recovered.Load())
	assert.Equal(t, 0, executor.Cache().Len())
}

func TestRetryExecutor_ExecuteStateful_InProcess(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(3, 0, WithLabel("send")))
	flaky := testutils.NewFlakyFunc(1)

	result, err := ExecuteStateful(executor, context.Background(), testMessage{id: "001"},
		func(ctx context.Context, m testMessage) (string, error) {
			return flaky.Call(ctx)
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, flaky.Calls())
	assert.Equal(t, 0, executor.Cache().Len())
}

func TestRetryExecutor_ExecuteStateful_EvictionRestartsCount(t *testing.T) {
	policy := NewPolicy(3, 0, WithLabel("send"), WithRedeliver(true))
	executor := newTestExecutor(t, policy, WithCache(NewShardedContextCache(1)))

	var seen []int
	work := func(ctx context.Context, m testMessage) (string, error) {
		rc, _ := FromContext(ctx)
		seen = append(seen, rc.AttemptCount())
		return "", types.NewRemoteAccessError(500, nil)
	}

	for _, id := range []string{"a", "b", "a"} {
		_, err := ExecuteStateful(executor, context.Background(), testMessage{id: id}, work, nil)
		require.ErrorIs(t, err, types.ErrRetryPending)
	}

	assert.Equal(t, []int{1, 1, 1}, seen)
	assert.Equal(t, 1, executor.Cache().Len())
}

func TestRetryExecutor_ExecuteStateful_CancellationKeepsContext(t *testing.T) {
	clock := testutils.NewMockClockWrapper(t)
	executor := newTestExecutor(t, NewPolicy(3, time.Minute, WithLabel("send")), WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := ExecuteStateful(executor, ctx, testMessage{id: "001"},
			func(ctx context.Context, m testMessage) (string, error) {
				return "", types.NewRemoteAccessError(503, nil)
			}, nil)
		done <- err
	}()

	clock.WaitForTimer(t)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	rc, ok := executor.Cache().Get(key("001"))
	require.True(t, ok)
	assert.Equal(t, 1, rc.AttemptCount())
}

func TestRetryExecutor_ExecuteStateful_SameKeySerialized(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(1, 0, WithLabel("send")))

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ExecuteStateful(executor, context.Background(), testMessage{id: "001"},
				func(ctx context.Context, m testMessage) (string, error) {
					n := active.Add(1)
					for {
						current := maxActive.Load()
						if n <= current || maxActive.CompareAndSwap(current, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					active.Add(-1)
					return "ok", nil
				}, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, 0, executor.Cache().Len())
}

func TestRetryExecutor_ExecuteStateful_DistinctKeysDoNotBlock(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(1, 0, WithLabel("send")))

	release := make(chan struct{})
	started := make(chan struct{})
	blocked := make(chan error, 1)
	go func() {
		_, err := ExecuteStateful(executor, context.Background(), testMessage{id: "a"},
			func(ctx context.Context, m testMessage) (string, error) {
				close(started)
				<-release
				return "a", nil
			}, nil)
		blocked <- err
	}()
	<-started

	ctx := testutils.TestContext(t, time.Second)
	result, err := ExecuteStateful(executor, ctx, testMessage{id: "b"},
		func(ctx context.Context, m testMessage) (string, error) {
			return "b", nil
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", result)

	close(release)
	assert.NoError(t, <-blocked)
}

func TestRetryExecutor_ExecuteWithKey(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(2, 0, WithRedeliver(true)))
	k := StateKey{Label: "custom", Fingerprint: "42"}

	var calls atomic.Int32
	_, err := ExecuteWithKey(executor, context.Background(), k, alwaysRemote(&calls), nil)
	require.ErrorIs(t, err, types.ErrRetryPending)

	var retryErr *types.RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, "custom:42", retryErr.Key)

	_, err = ExecuteWithKey(executor, context.Background(), k, alwaysRemote(&calls), nil)
	assert.ErrorIs(t, err, types.ErrNoRecoveryAvailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryExecutor_ExecuteAsync(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(2, 0))
	flaky := testutils.NewFlakyFunc(1)

	res := <-ExecuteAsync(executor, context.Background(), flaky.Call, nil)
	require.NoError(t, res.Error)
	assert.Equal(t, "ok", res.Value)

	stateful := <-ExecuteStatefulAsync(executor, context.Background(), Fingerprint("x"),
		func(ctx context.Context, f Fingerprint) (int, error) {
			return 7, nil
		}, nil)
	require.NoError(t, stateful.Error)
	assert.Equal(t, 7, stateful.Value)
}

func TestRetryExecutor_InvalidPolicy(t *testing.T) {
	_, err := NewRetryExecutor(NewPolicy(0, time.Second))
	assert.ErrorIs(t, err, types.ErrInvalidPolicy)
}

func TestRetryExecutor_ResetStats(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(1, 0))
	_, _ = Execute(executor, context.Background(), func(ctx context.Context) (int, error) {
		return 1, nil
	}, nil)
	require.Equal(t, int64(1), executor.GetStats().TotalAttempts)

	executor.ResetStats()
	stats := executor.GetStats()
	assert.Zero(t, stats.TotalAttempts)
	assert.Zero(t, stats.TotalSuccesses)
}

func TestRetryExecutor_ExecuteStateful_ResumesAfterCancellation(t *testing.T) {
	clock := testutils.NewMockClockWrapper(t)
	executor := newTestExecutor(t, NewPolicy(3, time.Minute, WithLabel("send")), WithClock(clock))
	msg := testMessage{id: "001"}

	var mu sync.Mutex
	var seen []int
	work := func(ctx context.Context, m testMessage) (string, error) {
		rc, _ := FromContext(ctx)
		mu.Lock()
		seen = append(seen, rc.AttemptCount())
		mu.Unlock()
		return "", types.NewRemoteAccessError(503, nil)
	}
	var recovered atomic.Int32
	recoverFn := func(ctx context.Context, err error, m testMessage) (string, error) {
		recovered.Add(1)
		return "parked " + m.id, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan error, 1)
	go func() {
		_, err := ExecuteStateful(executor, ctx, msg, work, recoverFn)
		first <- err
	}()

	clock.WaitForTimer(t)
	cancel()
	require.ErrorIs(t, <-first, context.Canceled)
	assert.Equal(t, 0, executor.locks.Held())

	// the next delivery continues the count instead of starting over
	second := make(chan outcome, 1)
	go func() {
		v, err := ExecuteStateful(executor, context.Background(), msg, work, recoverFn)
		second <- outcome{v, err}
	}()

	clock.AdvanceTimer(t)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "parked 001", res.value)
	assert.Equal(t, int32(1), recovered.Load())

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, seen)
	mu.Unlock()
	assert.Equal(t, 0, executor.Cache().Len())
	assert.Equal(t, 0, executor.locks.Held())
}

func TestRetryExecutor_Execute_EachCallStartsFresh(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(2, 0))

	for i := 0; i < 2; i++ {
		var calls atomic.Int32
		var seen []int
		_, err := Execute(executor, context.Background(), func(ctx context.Context) (string, error) {
			rc, _ := FromContext(ctx)
			seen = append(seen, rc.AttemptCount())
			calls.Add(1)
			return "", types.NewRemoteAccessError(500, nil)
		}, nil)

		var retryErr *types.RetryError
		require.ErrorAs(t, err, &retryErr)
		assert.ErrorIs(t, err, types.ErrNoRecoveryAvailable)
		assert.Equal(t, 2, retryErr.Attempts, "call %d", i)
		assert.Equal(t, int32(2), calls.Load(), "call %d", i)
		assert.Equal(t, []int{1, 2}, seen, "call %d", i)
	}

	assert.Equal(t, 0, executor.Cache().Len())
	assert.Equal(t, int64(4), executor.GetStats().TotalAttempts)
}

func TestRetryExecutor_Execute_CancelledByWorkUnitKeepsFailure(t *testing.T) {
	executor := newTestExecutor(t, NewPolicy(3, 0, WithLabel("send")))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	_, err := Execute(executor, ctx, func(ctx context.Context) (string, error) {
		calls.Add(1)
		cancel()
		return "", types.NewRemoteAccessError(502, nil)
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)

	var retryErr *types.RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, "send", retryErr.Label)
	assert.Equal(t, 1, retryErr.Attempts)

	var remote *types.RemoteAccessError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 502, remote.Status)
	assert.Equal(t, int32(1), calls.Load())
}
