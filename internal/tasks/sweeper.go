package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ent0n29/saba/internal/eventstream"
	"github.com/ent0n29/saba/internal/logger"
	"github.com/ent0n29/saba/internal/observability"
)

// ReminderSweeper periodically fires due reminders and publishes each one.
type ReminderSweeper struct {
	manager   *Manager
	publisher eventstream.Publisher
	interval  time.Duration
	log       *slog.Logger
	metrics   *observability.Metrics
}

func NewReminderSweeper(manager *Manager, publisher eventstream.Publisher, interval time.Duration, log *slog.Logger, metrics *observability.Metrics) *ReminderSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReminderSweeper{
		manager:   manager,
		publisher: publisher,
		interval:  interval,
		log:       log,
		metrics:   metrics,
	}
}

// Run sweeps until ctx is cancelled. Sweep failures are logged and retried
// on the next tick.
func (s *ReminderSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("reminder sweep failed", "err", err)
			}
		}
	}
}

// Sweep fires due reminders once and returns how many fired.
func (s *ReminderSweeper) Sweep(ctx context.Context) (int, error) {
	fired, err := s.manager.FireDue(ctx)
	for _, task := range fired {
		s.metrics.ObserveReminderFired()
		if s.publisher == nil {
			continue
		}
		event := &eventstream.ReminderEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeReminderFired,
			EventID:       ulid.Make().String(),
			EmittedAt:     time.Now().UTC(),
			TaskID:        task.ID,
			UserID:        task.UserID,
			TaskType:      string(task.Type),
			Content:       task.Content,
			DueDate:       task.DueDate,
		}
		if perr := s.publisher.PublishReminder(ctx, event); perr != nil {
			s.log.Warn("publish reminder event failed", "task_id", task.ID, "err", perr)
		}
	}
	if len(fired) > 0 {
		s.log.Info("reminders fired", "count", len(fired))
	}
	return len(fired), err
}
