package nop

import (
	"context"

	"github.com/ent0n29/saba/internal/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishReminder validates input and otherwise does nothing.
func (p *Publisher) PublishReminder(_ context.Context, event *eventstream.ReminderEvent) error {
	if event == nil {
		return eventstream.ErrNilReminderEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
