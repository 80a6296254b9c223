package dto

import (
	"time"

	"github.com/campus-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Category    domain.TicketCategory `json:"category"`
	Subcategory string                `json:"subcategory"`
	FaultType   string                `json:"fault_type"`
	Description string                `json:"description"`
	Lab         string                `json:"lab"`
	Equipment   string                `json:"equipment"`
	Location    string                `json:"location"`
	Room        string                `json:"room"`
	Priority    domain.TicketPriority `json:"priority"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	Status         domain.TicketStatus `json:"status"`
	Comment        string              `json:"comment"`
	MaterialNeeded string              `json:"material_needed"`
	Resolution     string              `json:"resolution"`
}

// PriorityRequest payload.
type PriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignRequest payload. An empty AssigneeID with self=true assigns the
// caller.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
	Self       bool   `json:"self"`
}

// CommentRequest payload.
type CommentRequest struct {
	Text string `json:"text"`
}

// MaterialRequest payload.
type MaterialRequest struct {
	MaterialNeeded string `json:"material_needed"`
}

// ResolutionRequest payload.
type ResolutionRequest struct {
	Resolution string `json:"resolution"`
}

// RejectRequest payload.
type RejectRequest struct {
	Comment string `json:"comment"`
}

// TicketSummary response.
type TicketSummary struct {
	ID         string                `json:"id"`
	Folio      string                `json:"folio"`
	Category   domain.TicketCategory `json:"category"`
	FaultType  string                `json:"fault_type"`
	Status     domain.TicketStatus   `json:"status"`
	Priority   domain.TicketPriority `json:"priority"`
	CreatedBy  string                `json:"created_by"`
	AssignedTo *string               `json:"assigned_to"`
	Archived   bool                  `json:"archived"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
	ClosedAt   *time.Time            `json:"closed_at,omitempty"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Subcategory    string                 `json:"subcategory,omitempty"`
	Description    string                 `json:"description"`
	Lab            *string                `json:"lab,omitempty"`
	Equipment      *string                `json:"equipment,omitempty"`
	Location       *string                `json:"location,omitempty"`
	Room           *string                `json:"room,omitempty"`
	MaterialNeeded string                 `json:"material_needed,omitempty"`
	ResolutionNote string                 `json:"resolution_note,omitempty"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	PausedAt       *time.Time             `json:"paused_at,omitempty"`
	ResumedAt      *time.Time             `json:"resumed_at,omitempty"`
	OverdueAt      *time.Time             `json:"overdue_at,omitempty"`
	Evidence       []domain.EvidenceRef   `json:"evidence"`
	History        []HistoryEntryResponse `json:"history"`
}

// HistoryEntryResponse represents one audit row.
type HistoryEntryResponse struct {
	At                time.Time           `json:"at"`
	Actor             string              `json:"actor"`
	From              domain.TicketStatus `json:"from"`
	To                domain.TicketStatus `json:"to"`
	Comment           string              `json:"comment,omitempty"`
	MaterialNeeded    string              `json:"material_needed,omitempty"`
	Resolution        string              `json:"resolution,omitempty"`
	ResolutionMinutes *int64              `json:"resolution_minutes,omitempty"`
}

// AdminCommentResponse represents a privileged note.
type AdminCommentResponse struct {
	At        time.Time `json:"at"`
	ActorName string    `json:"actor_name"`
	Text      string    `json:"text"`
}

// NewTicketSummary maps a domain ticket.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:         t.ID,
		Folio:      t.Folio,
		Category:   t.Category,
		FaultType:  t.FaultType,
		Status:     t.Status,
		Priority:   t.Priority,
		CreatedBy:  t.CreatedBy,
		AssignedTo: t.AssignedTo,
		Archived:   t.Archived,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
		ClosedAt:   t.ClosedAt,
	}
}

// NewTicketDetail maps a domain ticket with its trail.
func NewTicketDetail(t *domain.Ticket) TicketDetailResponse {
	history := make([]HistoryEntryResponse, 0, len(t.History))
	for _, entry := range t.History {
		history = append(history, NewHistoryEntry(entry))
	}
	return TicketDetailResponse{
		TicketSummary:  NewTicketSummary(t),
		Subcategory:    t.Subcategory,
		Description:    t.Description,
		Lab:            t.Lab,
		Equipment:      t.Equipment,
		Location:       t.Location,
		Room:           t.Room,
		MaterialNeeded: t.MaterialNeeded,
		ResolutionNote: t.ResolutionNote,
		StartedAt:      t.StartedAt,
		PausedAt:       t.PausedAt,
		ResumedAt:      t.ResumedAt,
		OverdueAt:      t.OverdueAt,
		Evidence:       t.Evidence,
		History:        history,
	}
}

// NewHistoryEntry maps an audit entry.
func NewHistoryEntry(entry domain.HistoryEntry) HistoryEntryResponse {
	actor := entry.ActorName
	if actor == "" {
		actor = entry.ActorID
	}
	return HistoryEntryResponse{
		At:                entry.At,
		Actor:             actor,
		From:              entry.From,
		To:                entry.To,
		Comment:           entry.Comment,
		MaterialNeeded:    entry.MaterialNeeded,
		Resolution:        entry.Resolution,
		ResolutionMinutes: entry.ResolutionMinutes,
	}
}
