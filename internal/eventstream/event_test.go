package eventstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ent0n29/saba/internal/eventstream"
	"github.com/ent0n29/saba/internal/eventstream/nop"
)

type recordingPublisher struct {
	events []*eventstream.ReminderEvent
	err    error
	closed bool
}

func (r *recordingPublisher) PublishReminder(_ context.Context, event *eventstream.ReminderEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

var _ = Describe("ReminderEvent", func() {
	It("marshals with expected top-level keys", func() {
		due := time.Unix(1735689600, 0).UTC()
		event := eventstream.ReminderEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeReminderFired,
			EventID:       "evt_1",
			EmittedAt:     due.Add(time.Second),
			TaskID:        "task-1",
			UserID:        "user-1",
			TaskType:      "Reminder",
			Content:       "call mom",
			DueDate:       &due,
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())
		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKeyWithValue("task_id", "task-1"))
		Expect(got).To(HaveKeyWithValue("user_id", "user-1"))
		Expect(got).To(HaveKey("due_date"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.EventTypeReminderFired).To(Equal("saba.reminder.fired"))
		Expect(eventstream.ErrNilReminderEvent).To(MatchError("nil reminder event"))
	})
})

var _ = Describe("Fanout", func() {
	It("delivers to every publisher and joins errors", func() {
		boom := errors.New("boom")
		a := &recordingPublisher{err: boom}
		b := &recordingPublisher{}
		f := eventstream.Fanout{a, b, nop.NewPublisher()}

		err := f.PublishReminder(context.Background(), &eventstream.ReminderEvent{TaskID: "t"})
		Expect(err).To(MatchError(boom))
		Expect(a.events).To(HaveLen(1))
		Expect(b.events).To(HaveLen(1))

		Expect(f.Close()).To(Succeed())
		Expect(a.closed).To(BeTrue())
		Expect(b.closed).To(BeTrue())
	})

	It("rejects nil events", func() {
		Expect(eventstream.Fanout{}.PublishReminder(context.Background(), nil)).To(MatchError(eventstream.ErrNilReminderEvent))
	})
})
