package tasks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T) (*Manager, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewManager(NewInMemoryStore(), 10*time.Second, nil)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestManagerCreateDefaultsAndDedup(t *testing.T) {
	ctx := context.Background()
	m, now := newTestManager(t)

	first, deduped, err := m.Create(ctx, "u1", CreateRequest{Content: "  buy milk "})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if deduped {
		t.Fatalf("first create deduped = true, want false")
	}
	if first.Type != TaskTypeTask || first.Priority != PriorityMedium || first.Content != "buy milk" {
		t.Fatalf("task = %+v, want defaults applied", first)
	}
	if first.Tags == nil {
		t.Fatalf("Tags = nil, want empty slice")
	}

	second, deduped, err := m.Create(ctx, "u1", CreateRequest{Content: "Buy  MILK"})
	if err != nil {
		t.Fatalf("Create() second error = %v", err)
	}
	if !deduped || second.ID != first.ID {
		t.Fatalf("second create = %q deduped=%v, want %q deduped", second.ID, deduped, first.ID)
	}

	*now = now.Add(11 * time.Second)
	third, deduped, err := m.Create(ctx, "u1", CreateRequest{Content: "buy milk"})
	if err != nil {
		t.Fatalf("Create() third error = %v", err)
	}
	if deduped || third.ID == first.ID {
		t.Fatalf("create after window deduped=%v id=%q, want a new task", deduped, third.ID)
	}

	other, deduped, _ := m.Create(ctx, "u2", CreateRequest{Content: "buy milk"})
	if deduped || other.ID == first.ID {
		t.Fatalf("other user's create was deduped against u1")
	}
}

func TestManagerCreateValidation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	cases := []CreateRequest{
		{Content: "   "},
		{Content: "x", Type: "Chore"},
		{Content: "x", Priority: "urgent"},
	}
	for _, req := range cases {
		if _, _, err := m.Create(ctx, "u1", req); !errors.Is(err, ErrInvalidTask) {
			t.Fatalf("Create(%+v) error = %v, want ErrInvalidTask", req, err)
		}
	}
	if _, _, err := m.Create(ctx, "", CreateRequest{Content: "x"}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("Create() without user error = %v, want ErrInvalidTask", err)
	}
}

func TestManagerOwnership(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	task, _, _ := m.Create(ctx, "owner", CreateRequest{Content: "secret"})

	done := true
	if _, err := m.Update(ctx, "intruder", task.ID, Patch{Completed: &done}); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Update() by other user error = %v, want ErrTaskNotFound", err)
	}
	if err := m.Delete(ctx, "intruder", task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Delete() by other user error = %v, want ErrTaskNotFound", err)
	}
	list, _ := m.List(ctx, "intruder")
	if len(list) != 0 {
		t.Fatalf("List(intruder) = %d tasks, want 0", len(list))
	}

	updated, err := m.Update(ctx, "owner", task.ID, Patch{Completed: &done})
	if err != nil || !updated.Completed {
		t.Fatalf("Update() by owner = %+v, %v, want completed", updated, err)
	}
	if err := m.Delete(ctx, "owner", task.ID); err != nil {
		t.Fatalf("Delete() by owner error = %v", err)
	}
	if err := m.Delete(ctx, "owner", task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrTaskNotFound", err)
	}
}

func TestManagerFireDue(t *testing.T) {
	ctx := context.Background()
	m, now := newTestManager(t)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due, _, _ := m.Create(ctx, "u1", CreateRequest{Content: "call mom", Type: TaskTypeReminder, DueDate: &past})
	_, _, _ = m.Create(ctx, "u1", CreateRequest{Content: "later", Type: TaskTypeReminder, DueDate: &future})
	_, _, _ = m.Create(ctx, "u1", CreateRequest{Content: "plain task", Type: TaskTypeTask, DueDate: &past})
	_, _, _ = m.Create(ctx, "u1", CreateRequest{Content: "no date", Type: TaskTypeAlarm})

	events, unsubscribe := m.Subscribe()
	defer unsubscribe()

	fired, err := m.FireDue(ctx)
	if err != nil {
		t.Fatalf("FireDue() error = %v", err)
	}
	if len(fired) != 1 || fired[0].ID != due.ID || !fired[0].Completed {
		t.Fatalf("fired = %+v, want only the due reminder, completed", fired)
	}
	select {
	case evt := <-events:
		if evt.Type != EventReminderFired || evt.TaskID != due.ID || evt.UserID != "u1" {
			t.Fatalf("event = %+v, want reminder_fired for %q", evt, due.ID)
		}
	default:
		t.Fatalf("no event published for fired reminder")
	}

	again, _ := m.FireDue(ctx)
	if len(again) != 0 {
		t.Fatalf("second FireDue() fired %d, want 0", len(again))
	}
}

func TestManagerListNewestFirst(t *testing.T) {
	ctx := context.Background()
	m, now := newTestManager(t)
	a, _, _ := m.Create(ctx, "u1", CreateRequest{Content: "a"})
	*now = now.Add(time.Second)
	b, _, _ := m.Create(ctx, "u1", CreateRequest{Content: "b"})

	list, err := m.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("List() order = %+v, want newest first", list)
	}
}

func TestSubscribeUnsubscribeClosesChannel(t *testing.T) {
	m, _ := newTestManager(t)
	ch, unsubscribe := m.Subscribe()
	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after unsubscribe")
	}
}
