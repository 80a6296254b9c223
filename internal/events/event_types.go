package events

import (
	"time"

	"github.com/campus-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketResolved        EventType = "ticket_resolved"
	EventTicketRejected        EventType = "ticket_rejected"
	EventTicketArchived        EventType = "ticket_archived"
	EventTicketCommented       EventType = "ticket_commented"
	EventTicketDeleted         EventType = "ticket_deleted"
)

// Event represents a domain event emitted by the ticket state machine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Folio     string      `json:"folio"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category  domain.TicketCategory `json:"category"`
	FaultType string                `json:"fault_type"`
	Priority  domain.TicketPriority `json:"priority"`
	CreatedBy string                `json:"created_by"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	From    domain.TicketStatus `json:"from"`
	To      domain.TicketStatus `json:"to"`
	Comment string              `json:"comment,omitempty"`
}

// PriorityChangedPayload payload. AssigneeID carries the current assignee
// so the dispatcher can decide the audience without re-reading the ticket.
type PriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
}

// AssignedPayload payload.
type AssignedPayload struct {
	AssigneeID string `json:"assignee_id"`
	SelfAssign bool   `json:"self_assign"`
}

// ResolvedPayload payload.
type ResolvedPayload struct {
	Status            domain.TicketStatus `json:"status"`
	ResolutionMinutes *int64              `json:"resolution_minutes,omitempty"`
}
