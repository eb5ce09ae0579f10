package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/saba/internal/logger"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidTask  = errors.New("invalid task")
)

type idempotencyEntry struct {
	TaskID    string
	CreatedAt time.Time
}

// Manager owns task lifecycle for every user. All reads and writes are
// scoped to the owning user; another user's task is reported as
// ErrTaskNotFound.
type Manager struct {
	mu sync.Mutex

	store             Store
	log               *slog.Logger
	now               func() time.Time
	idempotencyWindow time.Duration
	idempotency       map[string]idempotencyEntry

	subscribers map[int]chan Event
	nextSubID   int
}

// NewManager creates a manager over store. Identical creates from the same
// user within idempotencyWindow return the first task.
func NewManager(store Store, idempotencyWindow time.Duration, log *slog.Logger) *Manager {
	if idempotencyWindow <= 0 {
		idempotencyWindow = 10 * time.Second
	}
	if store == nil {
		store = NewInMemoryStore()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		store:             store,
		log:               log,
		now:               func() time.Time { return time.Now().UTC() },
		idempotencyWindow: idempotencyWindow,
		idempotency:       make(map[string]idempotencyEntry),
		subscribers:       make(map[int]chan Event),
	}
}

// StoreMode names the backing store.
func (m *Manager) StoreMode() string {
	return m.store.Mode()
}

// Subscribe returns a channel of task events for every user. Slow
// subscribers miss events rather than block writers.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 256)
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
}

func (m *Manager) List(ctx context.Context, userID string) ([]Task, error) {
	return m.store.ListTasksByUser(ctx, userID)
}

// Create validates req and stores a new task. The boolean reports whether an
// identical recent create was returned instead.
func (m *Manager) Create(ctx context.Context, userID string, req CreateRequest) (Task, bool, error) {
	userID = strings.TrimSpace(userID)
	req.Content = strings.TrimSpace(req.Content)
	if userID == "" {
		return Task{}, false, fmt.Errorf("%w: user is required", ErrInvalidTask)
	}
	if req.Content == "" {
		return Task{}, false, fmt.Errorf("%w: content is required", ErrInvalidTask)
	}
	if req.Type == "" {
		req.Type = TaskTypeTask
	}
	if !req.Type.Valid() {
		return Task{}, false, fmt.Errorf("%w: type %q", ErrInvalidTask, req.Type)
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !req.Priority.Valid() {
		return Task{}, false, fmt.Errorf("%w: priority %q", ErrInvalidTask, req.Priority)
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	now := m.now()
	key := idempotencyKey(userID, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcIdempotencyLocked(now)

	if hit, ok := m.idempotency[key]; ok && now.Sub(hit.CreatedAt) <= m.idempotencyWindow {
		if existing, err := m.store.GetTask(ctx, hit.TaskID); err == nil {
			return existing, true, nil
		}
	}

	task := Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   req.Content,
		Type:      req.Type,
		Priority:  req.Priority,
		Completed: req.Completed,
		DueDate:   req.DueDate,
		Tags:      append([]string(nil), tags...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.SaveTask(ctx, task); err != nil {
		return Task{}, false, err
	}
	m.idempotency[key] = idempotencyEntry{TaskID: task.ID, CreatedAt: now}
	m.log.Debug("task created", "task_id", task.ID, "type", task.Type)
	m.publishLocked(EventTaskCreated, task)
	return task.Clone(), false, nil
}

// Update applies a patch to the user's task.
func (m *Manager) Update(ctx context.Context, userID, taskID string, patch Patch) (Task, error) {
	if patch.Priority != nil && !patch.Priority.Valid() {
		return Task{}, fmt.Errorf("%w: priority %q", ErrInvalidTask, *patch.Priority)
	}
	if patch.Content != nil && strings.TrimSpace(*patch.Content) == "" {
		return Task{}, fmt.Errorf("%w: content is required", ErrInvalidTask)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.ownedLocked(ctx, userID, taskID)
	if err != nil {
		return Task{}, err
	}
	if patch.Completed != nil {
		task.Completed = *patch.Completed
	}
	if patch.Content != nil {
		task.Content = strings.TrimSpace(*patch.Content)
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		d := *patch.DueDate
		task.DueDate = &d
	}
	task.UpdatedAt = m.now()
	if err := m.store.SaveTask(ctx, task); err != nil {
		return Task{}, err
	}
	m.publishLocked(EventTaskUpdated, task)
	return task.Clone(), nil
}

func (m *Manager) Delete(ctx context.Context, userID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.ownedLocked(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if err := m.store.DeleteTask(ctx, task.ID); err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrTaskNotFound
		}
		return err
	}
	m.publishLocked(EventTaskDeleted, task)
	return nil
}

// FireDue completes every due, incomplete reminder or alarm and returns the
// fired tasks.
func (m *Manager) FireDue(ctx context.Context) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	due, err := m.store.ListDue(ctx, now)
	if err != nil {
		return nil, err
	}
	fired := make([]Task, 0, len(due))
	for _, task := range due {
		task.Completed = true
		task.UpdatedAt = now
		if err := m.store.SaveTask(ctx, task); err != nil {
			return fired, err
		}
		m.publishLocked(EventReminderFired, task)
		fired = append(fired, task.Clone())
	}
	return fired, nil
}

func (m *Manager) ownedLocked(ctx context.Context, userID, taskID string) (Task, error) {
	task, err := m.store.GetTask(ctx, strings.TrimSpace(taskID))
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}
	if task.UserID != userID {
		return Task{}, ErrTaskNotFound
	}
	return task, nil
}

func idempotencyKey(userID string, req CreateRequest) string {
	due := ""
	if req.DueDate != nil {
		due = req.DueDate.UTC().Format(time.RFC3339)
	}
	return userID + "|" + string(req.Type) + "|" + normalizeContent(req.Content) + "|" + due
}

func (m *Manager) gcIdempotencyLocked(now time.Time) {
	for key, entry := range m.idempotency {
		if now.Sub(entry.CreatedAt) > m.idempotencyWindow {
			delete(m.idempotency, key)
		}
	}
}

func (m *Manager) publishLocked(kind EventType, task Task) {
	if len(m.subscribers) == 0 {
		return
	}
	snapshot := task.Clone()
	evt := Event{Type: kind, UserID: task.UserID, TaskID: task.ID, Task: &snapshot, At: m.now()}
	for _, ch := range m.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}
