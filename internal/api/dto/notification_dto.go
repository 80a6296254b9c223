package dto

import (
	"time"

	"github.com/campus-kit/helpdesk/internal/domain"
)

// NotificationResponse represents one inbox entry.
type NotificationResponse struct {
	ID        string                      `json:"id"`
	Title     string                      `json:"title"`
	Category  domain.NotificationCategory `json:"category"`
	TicketID  *string                     `json:"ticket_id,omitempty"`
	Read      bool                        `json:"read"`
	CreatedAt time.Time                   `json:"created_at"`
}

// NewNotificationResponse maps a domain notification.
func NewNotificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Category:  n.Category,
		TicketID:  n.TicketID,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
