package client

import (
	"context"
	"time"
)

// StartSync refreshes tasks once after SyncInitialDelay and then every
// SyncInterval until ctx ends or the workspace is closed. A refresh that
// comes due while a mutation is in flight is skipped, and so is one whose
// result arrives after a mutation started. Calling StartSync again has no
// effect.
func (w *Workspace) StartSync(ctx context.Context) {
	w.syncOnce.Do(func() {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		w.syncCancel = cancel
		w.syncDone = make(chan struct{})
		w.mu.Unlock()

		go w.syncLoop(ctx)
	})
}

func (w *Workspace) syncLoop(ctx context.Context) {
	defer close(w.syncDone)

	timer := time.NewTimer(w.opts.SyncInitialDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	w.syncOnceNow(ctx)

	ticker := time.NewTicker(w.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.syncOnceNow(ctx)
		}
	}
}

func (w *Workspace) syncOnceNow(ctx context.Context) {
	if w.inflight.Load() > 0 {
		w.log.Debug("task sync skipped, mutation in flight")
		return
	}
	gen := w.generation.Load()
	list, err := w.api.ListTasks(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("task sync failed", "err", err)
		}
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.inflight.Load() > 0 || w.generation.Load() != gen {
		w.log.Debug("task sync result dropped, mutation started")
		return
	}
	w.replaceTasksLocked(list)
}
