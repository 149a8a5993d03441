package retry

import (
	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/types"
)

// RetryListener observes a retry series.
// Listeners must not alter retry decisions, except that OnOpen may veto an
// attempt before the work unit is invoked.
type RetryListener interface {
	// OnOpen is called before every attempt, returning false aborts the series
	OnOpen(rc *RetryContext) bool

	// OnError is called after each retryable failure
	OnError(rc *RetryContext, err error)

	// OnClose is called once when the series ends, err is nil on success
	OnClose(rc *RetryContext, err error)
}

// ListenerSupport is a no-op RetryListener meant for embedding
type ListenerSupport struct{}

// OnOpen allows every attempt
func (ListenerSupport) OnOpen(*RetryContext) bool { return true }

// OnError does nothing
func (ListenerSupport) OnError(*RetryContext, error) {}

// OnClose does nothing
func (ListenerSupport) OnClose(*RetryContext, error) {}

// Listeners fans events out to several listeners.
// OnOpen runs in registration order and every listener is asked even after a
// veto; OnError and OnClose run in reverse order.
type Listeners []RetryListener

// OnOpen implements RetryListener
func (ls Listeners) OnOpen(rc *RetryContext) bool {
	allowed := true
	for _, l := range ls {
		if !l.OnOpen(rc) {
			allowed = false
		}
	}
	return allowed
}

// OnError implements RetryListener
func (ls Listeners) OnError(rc *RetryContext, err error) {
	for i := len(ls) - 1; i >= 0; i-- {
		ls[i].OnError(rc, err)
	}
}

// OnClose implements RetryListener
func (ls Listeners) OnClose(rc *RetryContext, err error) {
	for i := len(ls) - 1; i >= 0; i-- {
		ls[i].OnClose(rc, err)
	}
}

// LoggingListener logs retry events with zap
type LoggingListener struct {
	logger *zap.Logger
}

// NewLoggingListener creates a logging listener
func NewLoggingListener(logger *zap.Logger) *LoggingListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingListener{logger: logger}
}

func contextFields(rc *RetryContext) []zap.Field {
	fields := []zap.Field{
		zap.String("label", rc.Label()),
		zap.String("context_id", rc.ID()),
		zap.Int("attempt", rc.AttemptCount()),
	}
	if key, ok := rc.Key(); ok {
		fields = append(fields, zap.String("key", key.String()))
	}
	return fields
}

// OnOpen implements RetryListener
func (l *LoggingListener) OnOpen(rc *RetryContext) bool {
	l.logger.Info("retry open", contextFields(rc)...)
	return true
}

// OnError implements RetryListener
func (l *LoggingListener) OnError(rc *RetryContext, err error) {
	fields := append(contextFields(rc),
		zap.String("kind", types.KindOf(err).String()),
		zap.Error(err))
	l.logger.Info("retry error", fields...)
}

// OnClose implements RetryListener
func (l *LoggingListener) OnClose(rc *RetryContext, err error) {
	if err != nil {
		l.logger.Warn("retry close", append(contextFields(rc), zap.Error(err))...)
		return
	}
	l.logger.Info("retry close", contextFields(rc)...)
}
