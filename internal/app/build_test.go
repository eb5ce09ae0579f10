package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ent0n29/saba/internal/config"
	"github.com/ent0n29/saba/internal/eventstream"
	"github.com/ent0n29/saba/internal/events"
	"github.com/ent0n29/saba/internal/identity"
	"github.com/ent0n29/saba/internal/observability"
	"github.com/ent0n29/saba/internal/recordstore"
	"github.com/ent0n29/saba/internal/tasks"
)

func TestBuildServesReadiness(t *testing.T) {
	cfg := config.Config{StoreBackend: config.StoreMemory, BackendURL: "http://127.0.0.1:1"}
	metrics := observability.NewMetrics("app_test_build")

	res, err := Build(context.Background(), cfg, nil, metrics)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if body["store_backend"] != recordstore.BackendMemory || body["llm_mode"] != "heuristic" {
		t.Fatalf("readyz = %+v, want memory store without text generation", body)
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := config.Config{StoreBackend: "redis"}
	if _, err := Build(context.Background(), cfg, nil, observability.NewMetrics("app_test_unknown")); err == nil {
		t.Fatalf("Build() error = nil, want unknown backend error")
	}
}

func TestTaskServiceFiresRemindersToHub(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics("app_test_tasksvc")
	hub := events.NewHub(nil)
	cfg := config.Config{ReminderSweepInterval: time.Second}

	svc, err := BuildTaskService(ctx, cfg, nil, metrics, hub)
	if err != nil {
		t.Fatalf("BuildTaskService() error = %v", err)
	}
	defer svc.Close()

	if _, ok := svc.Publisher.(eventstream.Fanout); !ok {
		t.Fatalf("publisher = %T, want fanout", svc.Publisher)
	}
	notices, unsubscribe := hub.Subscribe("user-1")
	defer unsubscribe()

	due := time.Now().Add(-time.Minute)
	if _, _, err := svc.Manager.Create(ctx, "user-1", tasks.CreateRequest{Content: "stretch", Type: tasks.TaskTypeReminder, DueDate: &due}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	fired, err := svc.Sweeper.Sweep(ctx)
	if err != nil || fired != 1 {
		t.Fatalf("Sweep() = %d, %v; want 1 fired", fired, err)
	}
	select {
	case n := <-notices:
		if n.Kind != events.KindTasks {
			t.Fatalf("notice = %+v, want tasks refresh", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("no refresh notice for fired reminder")
	}

	ts := httptest.NewServer(svc.Handler.Router())
	defer ts.Close()
	tok := identity.IssueLegacyToken("user-1", "u@example.com", "U", time.Now())
	resp, err := http.Get(ts.URL + "/api/tasks?token=" + url.QueryEscape(tok))
	if err != nil {
		t.Fatalf("GET /api/tasks error = %v", err)
	}
	defer resp.Body.Close()
	var list struct {
		Tasks []tasks.Task `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	if len(list.Tasks) != 1 || !list.Tasks[0].Completed {
		t.Fatalf("tasks = %+v, want the fired reminder completed", list.Tasks)
	}
}
