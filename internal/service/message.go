package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/jzx17/goretry/pkg/retry"
)

// TextMessage is a delivered message. Its identity is the message id only, so a
// redelivered copy with a different body continues the same retry series.
type TextMessage struct {
	MessageID string `json:"messageId" yaml:"message_id"`
	Body      string `json:"body,omitempty" yaml:"body"`
}

// Fingerprint implements retry.Fingerprinter
func (m TextMessage) Fingerprint() string {
	return m.MessageID
}

// MessageService sends messages with stateful retries keyed by message id
type MessageService struct {
	caller
	executor *retry.RetryExecutor
}

// NewMessageService creates a MessageService. The executor's policy label
// namespaces the message keys.
func NewMessageService(executor *retry.RetryExecutor, fetcher Fetcher, opts ...Option) *MessageService {
	return &MessageService{
		caller:   newCaller(fetcher, opts),
		executor: executor,
	}
}

// Send delivers msg. Failed attempts for the same message id share one retry
// context, across calls as well as within one call.
func (s *MessageService) Send(ctx context.Context, msg TextMessage) (int, error) {
	return retry.ExecuteStateful(s.executor, ctx, msg, s.send, s.recover)
}

// Key returns the state key Send uses for msg
func (s *MessageService) Key(msg TextMessage) retry.StateKey {
	return retry.DeriveKey(s.executor.Policy().Label, msg)
}

func (s *MessageService) send(ctx context.Context, msg TextMessage) (int, error) {
	return s.call(ctx)
}

func (s *MessageService) recover(ctx context.Context, err error, msg TextMessage) (int, error) {
	s.logger.Error("send message failed",
		zap.String("message_id", msg.MessageID),
		zap.Error(err))
	return s.fallback(ctx)
}

// Invocations returns how many times the work unit has run
func (s *MessageService) Invocations() int {
	return s.counter.Peek() - 1
}
