package bus

import "time"

// Reminder event topics.
const (
	TopicReminderDelivered = "reminder.delivered"
	TopicRemindersChanged  = "reminders.changed"
)

// Permission and lifecycle topics.
const (
	TopicPermissionChanged   = "permission.changed"
	TopicLifecycleForeground = "lifecycle.foreground"
)

// ReminderDeliveredEvent is published when a scheduled notification fires.
type ReminderDeliveredEvent struct {
	ID      int64     // Reminder ID carried as the notification payload
	Title   string    // Displayed notification body
	FiredAt time.Time // When the notification fired
}

// RemindersChangedEvent is published whenever the persisted reminder set
// changes; view adapters refresh their displayed list on it.
type RemindersChangedEvent struct {
	Reason string // "add", "delete", "delivered"
}

// PermissionChangedEvent is published on every permission state transition.
type PermissionChangedEvent struct {
	Granted bool
}

// ForegroundEvent is published by the host when the application transitions
// from background to foreground.
type ForegroundEvent struct {
	At time.Time
}
