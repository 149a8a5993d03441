package scheduler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jzx17/goretry/internal/service"
	"github.com/jzx17/goretry/pkg/types"
)

// UnstableJob calls svc on every firing and logs the response
func UnstableJob(name string, svc *service.UnstableService, logger *zap.Logger) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Job{
		Name: name,
		Run: func(ctx context.Context) error {
			value, err := svc.Call(ctx)
			if err != nil {
				logger.Warn("unstable call failed", zap.String("job", name), zap.Error(err))
				return err
			}
			logger.Info("unstable call response", zap.String("job", name), zap.Int("result", value))
			return nil
		},
	}
}

// MessageJob delivers msg on every firing, acting as the broker that redelivers
// a message whose send is pending
func MessageJob(name string, svc *service.MessageService, msg service.TextMessage, logger *zap.Logger) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Job{
		Name: name,
		Run: func(ctx context.Context) error {
			value, err := svc.Send(ctx, msg)
			switch {
			case errors.Is(err, types.ErrRetryPending):
				logger.Info("message send pending redelivery",
					zap.String("job", name),
					zap.String("message_id", msg.MessageID),
					zap.Error(err))
				return nil
			case err != nil:
				logger.Warn("message send failed",
					zap.String("job", name),
					zap.String("message_id", msg.MessageID),
					zap.Error(err))
				return err
			}
			logger.Info("message send response",
				zap.String("job", name),
				zap.String("message_id", msg.MessageID),
				zap.Int("result", value))
			return nil
		},
	}
}
