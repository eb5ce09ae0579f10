package eventstream

import (
	"context"
	"errors"
)

// Publisher publishes reminder events to an event stream backend.
type Publisher interface {
	PublishReminder(ctx context.Context, event *ReminderEvent) error
	Close() error
}

// Fanout publishes every event to each publisher in order. All publishers
// are attempted; their errors are joined.
type Fanout []Publisher

func (f Fanout) PublishReminder(ctx context.Context, event *ReminderEvent) error {
	if event == nil {
		return ErrNilReminderEvent
	}
	var errs []error
	for _, p := range f {
		if err := p.PublishReminder(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
