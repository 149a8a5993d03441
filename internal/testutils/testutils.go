// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jzx17/goretry/pkg/types"
)

// TestContext returns a context cancelled when the test ends or after timeout
func TestContext(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// ObservedLogger returns a zap logger recording every entry at or above level
func ObservedLogger(level zap.AtomicLevel) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// ErrRemote is the failure returned by FlakyFunc while failing
var ErrRemote = errors.New("remote unavailable")

// FlakyFunc fails with a remote access error for the first failures calls and
// succeeds afterwards
type FlakyFunc struct {
	failures int64
	calls    atomic.Int64
}

// NewFlakyFunc creates a FlakyFunc
func NewFlakyFunc(failures int) *FlakyFunc {
	return &FlakyFunc{failures: int64(failures)}
}

// Call records an invocation
func (f *FlakyFunc) Call(ctx context.Context) (string, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return "", types.NewRemoteAccessError(500, ErrRemote)
	}
	return "ok", nil
}

// Calls returns the number of invocations so far
func (f *FlakyFunc) Calls() int {
	return int(f.calls.Load())
}

// AssertEventually waits for condition to be true
func AssertEventually(t testing.TB, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Eventually(t, condition, 5*time.Second, 5*time.Millisecond, msgAndArgs...)
}
