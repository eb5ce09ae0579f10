package eventstream

import "errors"

// ErrNilReminderEvent indicates a nil reminder payload was provided to a publisher.
var ErrNilReminderEvent = errors.New("nil reminder event")
