package taskservice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/saba/internal/identity"
	"github.com/ent0n29/saba/internal/reliability"
	"github.com/ent0n29/saba/internal/tasks"
)

var fastRetry = reliability.Policy{MaxRetries: 2, Base: time.Millisecond, Cap: 2 * time.Millisecond}

func userToken(id string) string {
	return identity.IssueLegacyToken(id, id+"@example.com", id, time.Unix(1_700_000_000, 0))
}

func TestClientAgainstTaskService(t *testing.T) {
	ctx := context.Background()
	manager := tasks.NewManager(tasks.NewInMemoryStore(), time.Second, nil)
	ts := httptest.NewServer(tasks.NewHandler(manager, nil, nil).Router())
	defer ts.Close()
	c := NewClient(ts.URL+"/", time.Second, fastRetry, nil)
	tok := userToken("user-1")

	created, err := c.Create(ctx, tok, tasks.CreateRequest{Content: "file taxes", Priority: tasks.PriorityHigh})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.UserID != "user-1" {
		t.Fatalf("created = %+v, want owned task with id", created)
	}

	done := true
	if err := c.Patch(ctx, tok, created.ID, tasks.Patch{Completed: &done}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	list, err := c.List(ctx, tok)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || !list[0].Completed {
		t.Fatalf("list = %+v, want one completed task", list)
	}

	if err := c.Delete(ctx, userToken("intruder"), created.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Delete() by other user error = %v, want ErrTaskNotFound", err)
	}
	if err := c.Delete(ctx, tok, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := c.Create(ctx, tok, tasks.CreateRequest{Content: " "}); !errors.Is(err, ErrRejected) {
		t.Fatalf("Create(empty) error = %v, want ErrRejected", err)
	}
}

func TestClientRetriesIdempotentCalls(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"tasks":[{"id":"t1","content":"x","type":"Task","priority":"low","completed":false,"tags":[]}]}`))
	}))
	defer ts.Close()

	list, err := NewClient(ts.URL, time.Second, fastRetry, nil).List(context.Background(), "tok")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != "t1" {
		t.Fatalf("list = %+v, want t1", list)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestClientDoesNotRetryCreate(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, time.Second, fastRetry, nil).Create(context.Background(), "tok", tasks.CreateRequest{Content: "x"})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("Create() error = %v, want ErrUpstreamUnavailable", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestClientRejectsMalformedResponses(t *testing.T) {
	cases := map[string]string{
		"not json":      `<html>oops</html>`,
		"success false": `{"success":false,"error":"db down"}`,
		"missing task":  `{"success":true}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer ts.Close()

			_, err := NewClient(ts.URL, time.Second, fastRetry, nil).Create(context.Background(), "tok", tasks.CreateRequest{Content: "x"})
			if !errors.Is(err, ErrUpstreamUnavailable) {
				t.Fatalf("Create() error = %v, want ErrUpstreamUnavailable", err)
			}
		})
	}
}

func TestClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, time.Second, reliability.Policy{}, nil).List(context.Background(), "tok")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("List() error = %v, want ErrUpstreamUnavailable", err)
	}
}
