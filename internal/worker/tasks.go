package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeCompleteDue completes confirmed bookings whose event date has passed.
const TypeCompleteDue = "booking:complete_due"

// Completer is the booking operation the sweep drives.
type Completer interface {
	CompleteDue(ctx context.Context) (int, error)
}

func NewCompleteDueTask() *asynq.Task {
	return asynq.NewTask(TypeCompleteDue, nil, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute))
}

func handleCompleteDue(bookings Completer, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		n, err := bookings.CompleteDue(ctx)
		if err != nil {
			logger.Error("completion sweep failed", zap.Int("completed", n), zap.Error(err))
			return fmt.Errorf("complete due bookings: %w", err)
		}
		if n > 0 {
			logger.Info("completion sweep finished", zap.Int("completed", n))
		}
		return nil
	}
}
