package domain

import "time"

// NotificationCategory classifies what a notification is about.
type NotificationCategory string

const (
	NotificationNew             NotificationCategory = "new"
	NotificationAssigned        NotificationCategory = "assigned"
	NotificationPriorityChanged NotificationCategory = "priority_changed"
	NotificationResolved        NotificationCategory = "resolved"
	NotificationDeleted         NotificationCategory = "deleted"
	NotificationGeneric         NotificationCategory = "generic"
)

// Notification is a recipient-scoped message persisted by the dispatcher.
// The ticket reference is informational only; it may dangle after a
// ticket is removed and readers must tolerate that.
type Notification struct {
	ID          string
	RecipientID string
	Title       string
	Category    NotificationCategory
	TicketID    *string
	Read        bool
	CreatedAt   time.Time
}
