package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeReminderFired is emitted when the task service fires a due
	// reminder or alarm.
	EventTypeReminderFired = "saba.reminder.fired"
)

// ReminderEvent is a transport-neutral payload for a fired reminder.
type ReminderEvent struct {
	SchemaVersion int        `json:"schema_version"`
	EventType     string     `json:"event_type"`
	EventID       string     `json:"event_id"`
	EmittedAt     time.Time  `json:"emitted_at"`
	TaskID        string     `json:"task_id"`
	UserID        string     `json:"user_id"`
	TaskType      string     `json:"task_type"`
	Content       string     `json:"content"`
	DueDate       *time.Time `json:"due_date,omitempty"`
}
