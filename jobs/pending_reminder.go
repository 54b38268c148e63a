package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// StalePendingCounter counts pending movements older than a cutoff.
type StalePendingCounter interface {
	CountStalePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// NewPendingReminderHandler returns the handler for TaskPendingReminder.
// Pending movements block stock forever until someone decides; this keeps
// the backlog visible.
func NewPendingReminderHandler(logger *slog.Logger, movements StalePendingCounter) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PendingReminderPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		olderThan := payload.OlderThan
		if olderThan <= 0 {
			olderThan = 48 * time.Hour
		}
		n, err := movements.CountStalePending(ctx, olderThan)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Warn("stale pending movements awaiting decision",
				slog.Int("count", n),
				slog.Duration("older_than", olderThan),
			)
		}
		return nil
	}
}
