// Package service contains the work units driven by the retry demo: a stateless
// call to the unstable endpoint and a stateful message send keyed by message id.
package service

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/retry"
)

// StackAttribute is the retry context attribute holding the stack captured by a recovery
const StackAttribute = "stack"

// Fetcher calls the remote endpoint with the status it should answer
type Fetcher interface {
	Fetch(ctx context.Context, status int) (int, error)
}

// Oracle decides from the invocation count whether a call targets the healthy status
type Oracle func(count int) bool

// EveryTenth succeeds on invocations divisible by both 2 and 5
func EveryTenth(count int) bool {
	return count%2 == 0 && count%5 == 0
}

// Counter numbers invocations starting at 1
type Counter struct {
	next atomic.Int64
}

// NewCounter creates a counter whose first value is 1
func NewCounter() *Counter {
	c := &Counter{}
	c.next.Store(1)
	return c
}

// Next returns the current value and advances the counter
func (c *Counter) Next() int {
	return int(c.next.Add(1) - 1)
}

// Peek returns the value Next will return
func (c *Counter) Peek() int {
	return int(c.next.Load())
}

// Option configures a service
type Option func(*caller)

// WithOracle replaces EveryTenth
func WithOracle(oracle Oracle) Option {
	return func(c *caller) {
		if oracle != nil {
			c.oracle = oracle
		}
	}
}

// WithCounter shares an invocation counter
func WithCounter(counter *Counter) Option {
	return func(c *caller) {
		if counter != nil {
			c.counter = counter
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *caller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// caller holds what both services share: the fetcher, the invocation counter and
// the oracle picking the status to request
type caller struct {
	fetcher Fetcher
	counter *Counter
	oracle  Oracle
	logger  *zap.Logger
}

func newCaller(fetcher Fetcher, opts []Option) caller {
	c := caller{
		fetcher: fetcher,
		counter: NewCounter(),
		oracle:  EveryTenth,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// call performs one attempt. The endpoint is asked for 200 when the oracle
// allows it and for 500 otherwise; a successful attempt returns 500.
func (c *caller) call(ctx context.Context) (int, error) {
	count := c.counter.Next()
	status := http.StatusInternalServerError
	if c.oracle(count) {
		status = http.StatusOK
	}

	if _, err := c.fetcher.Fetch(ctx, status); err != nil {
		c.logger.Info("try get unstable api failed", zap.Int("invocation", count), zap.Error(err))
		return 0, err
	}
	return http.StatusInternalServerError, nil
}

// fallback asks the endpoint for 200 and returns the echoed value
func (c *caller) fallback(ctx context.Context) (int, error) {
	if rc, ok := retry.FromContext(ctx); ok {
		stack := string(debug.Stack())
		rc.SetAttribute(StackAttribute, stack)
		c.logger.Debug("recover is begin", zap.String("context_id", rc.ID()), zap.String("stack", stack))
	}

	value, err := c.fetcher.Fetch(ctx, http.StatusOK)
	if err != nil {
		return 0, err
	}
	c.logger.Info("remote response", zap.Int("value", value))
	return value, nil
}
