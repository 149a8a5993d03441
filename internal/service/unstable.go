package service

import (
	"context"

	"github.com/jzx17/goretry/pkg/retry"
	"github.com/jzx17/goretry/pkg/types"
)

// UnstableService calls the unstable endpoint with stateless retries
type UnstableService struct {
	caller
	executor *retry.RetryExecutor
}

// NewUnstableService creates an UnstableService running attempts through executor
func NewUnstableService(executor *retry.RetryExecutor, fetcher Fetcher, opts ...Option) *UnstableService {
	return &UnstableService{
		caller:   newCaller(fetcher, opts),
		executor: executor,
	}
}

// Call runs the work unit until it succeeds or retries are exhausted, then
// falls back to the recovery call
func (s *UnstableService) Call(ctx context.Context) (int, error) {
	return retry.Execute(s.executor, ctx, s.call, s.recover)
}

// CallAsync is Call on its own goroutine
func (s *UnstableService) CallAsync(ctx context.Context) <-chan types.Result[int] {
	return retry.ExecuteAsync(s.executor, ctx, s.call, s.recover)
}

func (s *UnstableService) recover(ctx context.Context, err error) (int, error) {
	return s.fallback(ctx)
}

// Invocations returns how many times the work unit has run
func (s *UnstableService) Invocations() int {
	return s.counter.Peek() - 1
}
