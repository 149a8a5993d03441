package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/jzx17/goretry/pkg/types"
)

// NewMockClock creates a mock clock for testing
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// ClockWrapper wraps quartz.Mock to implement types.Clock.
// Every timer and ticker created through it is announced on a channel so tests
// can advance the mock only once the code under test is actually waiting.
type ClockWrapper struct {
	*quartz.Mock
	timers  chan time.Duration
	tickers chan time.Duration
}

// NewClockWrapper creates a new ClockWrapper
func NewClockWrapper(mock *quartz.Mock) *ClockWrapper {
	return &ClockWrapper{
		Mock:    mock,
		timers:  make(chan time.Duration, 128),
		tickers: make(chan time.Duration, 128),
	}
}

// NewMockClockWrapper creates a mock clock and its wrapper in one step
func NewMockClockWrapper(t testing.TB) *ClockWrapper {
	return NewClockWrapper(NewMockClock(t))
}

// Now returns the current time
func (c *ClockWrapper) Now() time.Time {
	return c.Mock.Now()
}

// Since returns the time elapsed since t
func (c *ClockWrapper) Since(t time.Time) time.Duration {
	return c.Mock.Since(t)
}

// NewTimer creates a new Timer
func (c *ClockWrapper) NewTimer(d time.Duration) types.Timer {
	timer := c.Mock.NewTimer(d)
	select {
	case c.timers <- d:
	default:
	}
	return &TimerWrapper{timer: timer}
}

// NewTicker creates a new Ticker
func (c *ClockWrapper) NewTicker(d time.Duration) types.Ticker {
	ticker := c.Mock.NewTicker(d)
	select {
	case c.tickers <- d:
	default:
	}
	return &TickerWrapper{ticker: ticker}
}

// WaitForTimer blocks until the next timer is created and returns its duration
func (c *ClockWrapper) WaitForTimer(t testing.TB) time.Duration {
	t.Helper()
	select {
	case d := <-c.timers:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a timer")
		return 0
	}
}

// WaitForTicker blocks until the next ticker is created and returns its period
func (c *ClockWrapper) WaitForTicker(t testing.TB) time.Duration {
	t.Helper()
	select {
	case d := <-c.tickers:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a ticker")
		return 0
	}
}

// PendingTimers returns the number of created timers not yet consumed by a wait
func (c *ClockWrapper) PendingTimers() int {
	return len(c.timers)
}

// AdvanceTimer waits for the next timer and advances the mock to its deadline
func (c *ClockWrapper) AdvanceTimer(t testing.TB) time.Duration {
	t.Helper()
	d := c.WaitForTimer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Mock.Advance(d).MustWait(ctx)
	return d
}

// TimerWrapper wraps quartz timer
type TimerWrapper struct {
	timer *quartz.Timer
}

func (t *TimerWrapper) C() <-chan time.Time {
	return t.timer.C
}

func (t *TimerWrapper) Stop() bool {
	return t.timer.Stop()
}

func (t *TimerWrapper) Reset(d time.Duration) bool {
	return t.timer.Reset(d)
}

// TickerWrapper wraps quartz ticker
type TickerWrapper struct {
	ticker *quartz.Ticker
}

func (t *TickerWrapper) C() <-chan time.Time {
	return t.ticker.C
}

func (t *TickerWrapper) Stop() {
	t.ticker.Stop()
}

func (t *TickerWrapper) Reset(d time.Duration) {
	t.ticker.Reset(d)
}
