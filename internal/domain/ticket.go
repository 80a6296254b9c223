package domain

import "time"

// TicketCategory is the responsible area for a ticket.
type TicketCategory string

const (
	CategorySystems     TicketCategory = "systems"
	CategoryMaintenance TicketCategory = "maintenance"
)

// Subcategory values for systems tickets.
const (
	SubcategoryLab   = "lab"
	SubcategoryOther = "other"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	StatusOpen             TicketStatus = "OPEN"
	StatusInProgress       TicketStatus = "IN_PROGRESS"
	StatusAwaitingMaterial TicketStatus = "AWAITING_MATERIAL"
	StatusResolved         TicketStatus = "RESOLVED"
	StatusOverdue          TicketStatus = "OVERDUE"
	StatusClosed           TicketStatus = "CLOSED"
	StatusRejected         TicketStatus = "REJECTED"
)

// ValidStatus reports whether s belongs to the canonical status set.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusAwaitingMaterial,
		StatusResolved, StatusOverdue, StatusClosed, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether a ticket in status s can no longer be worked on.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	PriorityUnset  TicketPriority = "UNSET"
	PriorityLow    TicketPriority = "LOW"
	PriorityMedium TicketPriority = "MEDIUM"
	PriorityHigh   TicketPriority = "HIGH"
)

// ValidPriority reports whether p belongs to the priority set.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case PriorityUnset, PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// AdminComment is a free-form note visible only to privileged roles.
type AdminComment struct {
	At        time.Time `json:"at"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Text      string    `json:"text"`
}

// EvidenceRef is an opaque reference to an attachment owned by the
// evidence store.
type EvidenceRef struct {
	ID         string    `json:"id"`
	StorageKey string    `json:"storage_key"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Ticket is the aggregate for support and maintenance requests. It owns
// its history, admin comments and evidence references; those collections
// are persisted with the ticket row and share its write atomicity.
type Ticket struct {
	ID          string
	Folio       string
	Category    TicketCategory
	Subcategory string
	FaultType   string
	Description string

	// Location context, mutually exclusive by category.
	Lab       *string
	Equipment *string
	Location  *string
	Room      *string

	Status         TicketStatus
	Priority       TicketPriority
	MaterialNeeded string
	ResolutionNote string

	CreatedBy  string
	AssignedTo *string

	CreatedAt time.Time
	UpdatedAt time.Time
	StartedAt *time.Time
	PausedAt  *time.Time
	ResumedAt *time.Time
	OverdueAt *time.Time
	ClosedAt  *time.Time

	Archived   bool
	ArchivedAt *time.Time
	ArchivedBy *string

	History       []HistoryEntry
	AdminComments []AdminComment
	Evidence      []EvidenceRef

	// Version guards read-modify-write cycles on the ticket row.
	Version int64
}
