package tasks

import (
	"strings"
	"time"
)

type TaskType string

const (
	TaskTypeTask     TaskType = "Task"
	TaskTypeReminder TaskType = "Reminder"
	TaskTypeAlarm    TaskType = "Alarm"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeTask, TaskTypeReminder, TaskTypeAlarm:
		return true
	default:
		return false
	}
}

// Fires reports whether tasks of this type are completed by the reminder
// sweeper once due.
func (t TaskType) Fires() bool {
	return t == TaskTypeReminder || t == TaskTypeAlarm
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Task is the task-service wire and storage shape.
type Task struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Content   string     `json:"content"`
	Type      TaskType   `json:"type"`
	Priority  Priority   `json:"priority"`
	Completed bool       `json:"completed"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	Tags      []string   `json:"tags"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CreateRequest is the body of POST /api/tasks. Token carries the caller's
// bearer token when it is not sent as a query parameter or header.
type CreateRequest struct {
	Content   string     `json:"content"`
	Type      TaskType   `json:"type,omitempty"`
	Priority  Priority   `json:"priority,omitempty"`
	Completed bool       `json:"completed,omitempty"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Token     string     `json:"token,omitempty"`
}

// Patch is the body of PATCH /api/tasks/{id}. Nil fields are left alone.
type Patch struct {
	Completed *bool      `json:"completed,omitempty"`
	Content   *string    `json:"content,omitempty"`
	Priority  *Priority  `json:"priority,omitempty"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Completed == nil && p.Content == nil && p.Priority == nil && p.DueDate == nil
}

type EventType string

const (
	EventTaskCreated   EventType = "task_created"
	EventTaskUpdated   EventType = "task_updated"
	EventTaskDeleted   EventType = "task_deleted"
	EventReminderFired EventType = "reminder_fired"
)

// Event describes a change to a user's tasks.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id"`
	TaskID string    `json:"task_id"`
	Task   *Task     `json:"task,omitempty"`
	At     time.Time `json:"at"`
}

func (t Task) Clone() Task {
	out := t
	if t.Tags != nil {
		out.Tags = append([]string(nil), t.Tags...)
	}
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	return out
}

// Due reports whether an incomplete firing task has reached its due date.
func (t Task) Due(now time.Time) bool {
	return !t.Completed && t.Type.Fires() && t.DueDate != nil && !t.DueDate.After(now)
}

func normalizeContent(in string) string {
	return strings.Join(strings.Fields(strings.ToLower(in)), " ")
}
