package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/saba/internal/chat"
	"github.com/ent0n29/saba/internal/config"
	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/events"
	"github.com/ent0n29/saba/internal/extraction"
	"github.com/ent0n29/saba/internal/httpapi"
	"github.com/ent0n29/saba/internal/llm"
	"github.com/ent0n29/saba/internal/logger"
	"github.com/ent0n29/saba/internal/memory"
	"github.com/ent0n29/saba/internal/observability"
	"github.com/ent0n29/saba/internal/prompts"
	"github.com/ent0n29/saba/internal/recordstore"
	"github.com/ent0n29/saba/internal/reliability"
	"github.com/ent0n29/saba/internal/taskservice"
	"github.com/ent0n29/saba/internal/users"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Store   recordstore.Store
	Hub     *events.Hub
	Metrics *observability.Metrics
	Logger  *slog.Logger

	// Cleanup should be called on shutdown to release the record store.
	Cleanup func() error
}

// Build wires the assistant API from cfg. metrics may be shared with a task
// service running in the same process; nil creates a new set.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger, metrics *observability.Metrics) (*BuildResult, error) {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	store, err := recordstore.Open(ctx, recordstore.Options{
		Backend:     cfg.StoreBackend,
		DataDir:     cfg.DataDir,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("record store init failed: %w", err)
	}

	promptSet, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("prompts init failed: %w", err)
	}

	adapter := llm.NewAdapter(llm.Config{
		APIKey:        cfg.GeminiAPIKey,
		BaseURL:       cfg.GeminiBaseURL,
		Model:         cfg.GeminiModel,
		FallbackModel: cfg.GeminiFallback,
		Timeout:       cfg.LLMTimeout,
		MaxRetries:    cfg.LLMMaxRetries,
	}, metrics)
	if adapter == nil {
		log.Info("text generation disabled, using heuristic extraction and fallback replies")
	} else {
		log.Info("text generation enabled", "model", cfg.GeminiModel, "fallback_model", cfg.GeminiFallback)
	}

	userRepo := users.NewRepository(store, log)
	convRepo := conversations.NewRepository(store, log)
	memRepo := memory.NewRepository(store, log)
	taskAPI := taskservice.NewClient(cfg.BackendURL, cfg.TaskServiceTimeout, reliability.Policy{
		MaxRetries: 2,
		Base:       200 * time.Millisecond,
		Cap:        2 * time.Second,
	}, metrics)
	hub := events.NewHub(metrics)

	api := httpapi.New(cfg, httpapi.Deps{
		Store:         store,
		Users:         userRepo,
		Conversations: convRepo,
		Memories:      memRepo,
		Extraction:    extraction.NewEngine(convRepo, memRepo, adapter, promptSet, log, metrics),
		Chat: chat.NewService(convRepo, taskAPI, adapter, promptSet, chat.Options{
			HistoryLimit: cfg.ChatHistoryLimit,
			Logger:       log,
		}),
		Tasks:      taskAPI,
		Hub:        hub,
		Events:     events.NewHandler(hub, cfg.AllowAnyOrigin, log),
		Metrics:    metrics,
		Logger:     log,
		LLMEnabled: adapter != nil,
	})

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Store:   store,
		Hub:     hub,
		Metrics: metrics,
		Logger:  log,
		Cleanup: store.Close,
	}, nil
}

// Run serves the API until ctx ends, then shuts down within the configured
// timeout. When the store can watch for outside edits, changes are
// broadcast to live subscribers.
func (b *BuildResult) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w, ok := b.Store.(recordstore.Watcher); ok && b.Config.WatchStore {
		g.Go(func() error {
			err := w.Watch(ctx, func(kind recordstore.Kind) {
				if k, ok := refreshKind(kind); ok {
					b.Logger.Debug("store changed on disk", "kind", kind)
					b.Hub.Broadcast(k)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("store watcher: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return serveHTTP(ctx, b.Logger, "api", b.Config.BindAddr, b.API.Router(), b.Config.ShutdownTimeout)
	})
	return g.Wait()
}

func refreshKind(kind recordstore.Kind) (events.Kind, bool) {
	switch kind {
	case recordstore.KindConversations:
		return events.KindConversations, true
	case recordstore.KindMemories:
		return events.KindMemories, true
	}
	return "", false
}

func serveHTTP(ctx context.Context, log *slog.Logger, name, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listen: %w", name, err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "server", name, "err", err)
		_ = srv.Close()
	}
	log.Info("server stopped", "server", name)
	return nil
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}
