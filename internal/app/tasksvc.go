package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/saba/internal/config"
	"github.com/ent0n29/saba/internal/eventstream"
	"github.com/ent0n29/saba/internal/eventstream/kafka"
	"github.com/ent0n29/saba/internal/eventstream/nop"
	"github.com/ent0n29/saba/internal/logger"
	"github.com/ent0n29/saba/internal/observability"
	"github.com/ent0n29/saba/internal/tasks"
)

// TaskService is the task service with its reminder sweeper.
type TaskService struct {
	Config    config.Config
	Manager   *tasks.Manager
	Handler   *tasks.Handler
	Sweeper   *tasks.ReminderSweeper
	Publisher eventstream.Publisher
	Logger    *slog.Logger

	store tasks.Store
}

// BuildTaskService wires the task service. extra publishers, such as a live
// refresh hub in the same process, receive every fired reminder alongside
// the configured event stream.
func BuildTaskService(ctx context.Context, cfg config.Config, log *slog.Logger, metrics *observability.Metrics, extra ...eventstream.Publisher) (*TaskService, error) {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	store, err := tasks.NewStore(ctx, cfg.TaskDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("task store init failed: %w", err)
	}

	var stream eventstream.Publisher = nop.NewPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, log)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("kafka publisher init failed: %w", err)
		}
		stream = kp
		log.Info("reminder events go to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	publisher := append(eventstream.Fanout{stream}, extra...)

	manager := tasks.NewManager(store, 0, log)
	return &TaskService{
		Config:    cfg,
		Manager:   manager,
		Handler:   tasks.NewHandler(manager, log, metrics),
		Sweeper:   tasks.NewReminderSweeper(manager, publisher, cfg.ReminderSweepInterval, log, metrics),
		Publisher: publisher,
		Logger:    log,
		store:     store,
	}, nil
}

// Run serves the task API and sweeps reminders until ctx ends.
func (t *TaskService) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.Sweeper.Run(ctx)
	})
	g.Go(func() error {
		t.logEvents(ctx)
		return nil
	})
	g.Go(func() error {
		return serveHTTP(ctx, t.Logger, "tasksvc", t.Config.TaskBindAddr, t.Handler.Router(), t.Config.ShutdownTimeout)
	})
	return g.Wait()
}

// logEvents writes an audit line for every task change.
func (t *TaskService) logEvents(ctx context.Context) {
	ch, unsubscribe := t.Manager.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			t.Logger.Debug("task event", "type", ev.Type, "user_id", ev.UserID, "task_id", ev.TaskID)
		}
	}
}

// Close releases the store and the event publishers.
func (t *TaskService) Close() error {
	var errs []string
	if err := t.Publisher.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := t.store.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	return joinErrors(errs)
}
