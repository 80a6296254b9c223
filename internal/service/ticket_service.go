package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campus-kit/helpdesk/internal/domain"
	"github.com/campus-kit/helpdesk/internal/events"
	"github.com/campus-kit/helpdesk/internal/repository"
	apperrors "github.com/campus-kit/helpdesk/pkg/util"
)

// conflictRetryDelay is the backoff before the single internal retry after
// an optimistic write conflict.
const conflictRetryDelay = 50 * time.Millisecond

// errNoChange signals inside a mutation closure that the request changes
// nothing; the ticket is returned as-is with no write and no audit entry.
var errNoChange = errors.New("no change")

// EvidenceStore persists attachment blobs and hands back opaque
// references; the engine never inspects stored content.
type EvidenceStore interface {
	Save(ctx context.Context, ticketID, fileName, mimeType string, content []byte) (domain.EvidenceRef, error)
}

// TicketService owns the ticket lifecycle: creation with folio issuance,
// guarded status transitions, independent field changes, assignment,
// archival and the audit trail that accompanies each of them.
type TicketService struct {
	tickets    repository.TicketRepository
	counters   repository.CounterRepository
	users      repository.UserRepository
	evidence   EvidenceStore
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CounterRepo repository.CounterRepository
	UserRepo    repository.UserRepository
	Evidence    EvidenceStore
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		counters:   deps.CounterRepo,
		users:      deps.UserRepo,
		evidence:   deps.Evidence,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Category    domain.TicketCategory
	Subcategory string
	FaultType   string
	Description string
	Lab         string
	Equipment   string
	Location    string
	Room        string
	Priority    domain.TicketPriority
}

// TransitionInput carries the optional fields a status change may need.
type TransitionInput struct {
	Comment        string
	MaterialNeeded string
	Resolution     string
}

// Create validates category-specific required fields, issues the folio
// from the per-category-and-year counter, seeds an empty history and
// announces the new ticket.
func (s *TicketService) Create(ctx context.Context, creatorID string, input TicketCreateInput) (*domain.Ticket, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	now := s.now()
	year := now.Year()
	key := domain.CounterKey(input.Category, year)
	seq, err := s.counters.Next(ctx, key)
	if err != nil {
		// One retry on a transient counter conflict; the sequence is never
		// cached, so a retry can only issue a fresh number.
		s.logger.Warn("folio issuance failed, retrying", zap.String("key", key), zap.Error(err))
		time.Sleep(conflictRetryDelay)
		if seq, err = s.counters.Next(ctx, key); err != nil {
			return nil, apperrors.NewConflict("folio issuance failed", map[string]any{"category": input.Category})
		}
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityUnset
	}

	ticket := &domain.Ticket{
		ID:            uuid.NewString(),
		Folio:         domain.FormatFolio(input.Category, year, seq),
		Category:      input.Category,
		Subcategory:   input.Subcategory,
		FaultType:     strings.TrimSpace(input.FaultType),
		Description:   strings.TrimSpace(input.Description),
		Lab:           optional(input.Lab),
		Equipment:     optional(input.Equipment),
		Location:      optional(input.Location),
		Room:          optional(input.Room),
		Status:        domain.StatusOpen,
		Priority:      priority,
		CreatedBy:     creatorID,
		CreatedAt:     now,
		UpdatedAt:     now,
		History:       []domain.HistoryEntry{},
		AdminComments: []domain.AdminComment{},
		Evidence:      []domain.EvidenceRef{},
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Folio:    ticket.Folio,
		ActorID:  creatorID,
		Payload: events.TicketCreatedPayload{
			Category:  ticket.Category,
			FaultType: ticket.FaultType,
			Priority:  ticket.Priority,
			CreatedBy: creatorID,
		},
	})
	return ticket, nil
}

// Transition applies a status change with its guard conditions and
// timestamp effects. Requesting the current status is a no-op: no write,
// no history entry, no event.
func (s *TicketService) Transition(ctx context.Context, actorID, ticketID string, next domain.TicketStatus, input TransitionInput) (*domain.Ticket, error) {
	if !domain.ValidStatus(next) {
		return nil, apperrors.NewInvalidTransition(string(next))
	}

	var (
		from     domain.TicketStatus
		resolved *int64
		changed  bool
	)
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) error {
		resolved = nil
		changed = false
		if t.Status == next {
			return errNoChange
		}
		from = t.Status
		now := s.now()

		opts := historyOptions{comment: strings.TrimSpace(input.Comment)}

		switch next {
		case domain.StatusInProgress:
			if t.StartedAt == nil {
				started := now
				t.StartedAt = &started
			}
			if t.Status == domain.StatusAwaitingMaterial {
				resumed := now
				t.ResumedAt = &resumed
			}
		case domain.StatusAwaitingMaterial:
			material := strings.TrimSpace(input.MaterialNeeded)
			if material == "" {
				return apperrors.NewGuardFailed("material description required to pause a ticket")
			}
			paused := now
			t.PausedAt = &paused
			t.MaterialNeeded = material
			opts.material = material
		case domain.StatusOverdue:
			overdue := now
			t.OverdueAt = &overdue
		case domain.StatusResolved, domain.StatusClosed:
			closed := now
			t.ClosedAt = &closed
			if note := strings.TrimSpace(input.Resolution); note != "" {
				t.ResolutionNote = note
			}
			opts.resolution = t.ResolutionNote
		case domain.StatusOpen:
			t.StartedAt = nil
			t.PausedAt = nil
			t.ResumedAt = nil
			t.OverdueAt = nil
			t.ClosedAt = nil
		case domain.StatusRejected:
			if opts.comment == "" {
				return apperrors.NewGuardFailed("rejection requires a comment")
			}
			s.forceArchive(t, actorID, now)
		}

		s.appendHistory(ctx, t, actorID, from, next, opts)
		t.Status = next
		if last := t.History[len(t.History)-1]; last.ResolutionMinutes != nil {
			resolved = last.ResolutionMinutes
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return ticket, nil
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Folio:    ticket.Folio,
		ActorID:  actorID,
		Payload:  events.StatusChangedPayload{From: from, To: next, Comment: input.Comment},
	})
	switch next {
	case domain.StatusResolved, domain.StatusClosed:
		s.publish(ctx, events.Event{
			Type:     events.EventTicketResolved,
			TicketID: ticket.ID,
			Folio:    ticket.Folio,
			ActorID:  actorID,
			Payload:  events.ResolvedPayload{Status: next, ResolutionMinutes: resolved},
		})
	case domain.StatusRejected:
		s.publish(ctx, events.Event{
			Type:     events.EventTicketRejected,
			TicketID: ticket.ID,
			Folio:    ticket.Folio,
			ActorID:  actorID,
			Payload:  events.StatusChangedPayload{From: from, To: next, Comment: input.Comment},
		})
	}
	return ticket, nil
}

// UpdatePriority changes the priority, auditing only actual changes.
func (s *TicketService) UpdatePriority(ctx context.Context, actorID, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !domain.ValidPriority(priority) {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	var (
		old     domain.TicketPriority
		changed bool
	)
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) error {
		changed = false
		if t.Priority == priority {
			return errNoChange
		}
		old = t.Priority
		s.appendHistory(ctx, t, actorID, t.Status, t.Status, historyOptions{
			comment: fmt.Sprintf("priority changed: %s -> %s", t.Priority, priority),
		})
		t.Priority = priority
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return ticket, nil
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Folio:    ticket.Folio,
		ActorID:  actorID,
		Payload: events.PriorityChangedPayload{
			OldPriority: old,
			NewPriority: priority,
			AssigneeID:  ticket.AssignedTo,
		},
	})
	return ticket, nil
}

// UpdateMaterial records a change to the required-material text. Worker
// roles only.
func (s *TicketService) UpdateMaterial(ctx context.Context, actorID, ticketID, material string) (*domain.Ticket, error) {
	if err := s.requireWorker(ctx, actorID); err != nil {
		return nil, err
	}
	material = strings.TrimSpace(material)
	return s.mutate(ctx, ticketID, func(t *domain.Ticket) error {
		if t.MaterialNeeded == material {
			return errNoChange
		}
		s.appendHistory(ctx, t, actorID, t.Status, t.Status, historyOptions{
			comment:  "material requirement updated",
			material: material,
		})
		t.MaterialNeeded = material
		return nil
	})
}

// UpdateResolution records a change to the resolution note. Worker roles
// only.
func (s *TicketService) UpdateResolution(ctx context.Context, actorID, ticketID, note string) (*domain.Ticket, error) {
	if err := s.requireWorker(ctx, actorID); err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	return s.mutate(ctx, ticketID, func(t *domain.Ticket) error {
		if t.ResolutionNote == note {
			return errNoChange
		}
		s.appendHistory(ctx, t, actorID, t.Status, t.Status, historyOptions{
			comment:    "resolution updated",
			resolution: note,
		})
		t.ResolutionNote = note
		return nil
	})
}

// Assign sets the assignee. Self-assignment is open to worker roles while
// the ticket is not closed or resolved; direct assignment to an arbitrary
// identity requires a privileged actor. Re-saving the current assignee is
// a no-op with no audit entry and no event.
func (s *TicketService) Assign(ctx context.Context, actorID, ticketID, assigneeID string, selfAssign bool) (*domain.Ticket, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, apperrors.NewForbidden("unknown actor")
	}

	if selfAssign {
		if !domain.IsWorker(actor.Roles) {
			return nil, apperrors.NewForbidden("insufficient role for self assignment")
		}
		assigneeID = actorID
	} else if !domain.IsAdminLike(actor.Roles) {
		return nil, apperrors.NewForbidden("insufficient role for assignment")
	}

	assignee := actor
	if assigneeID != actorID {
		assignee, err = s.users.GetByID(ctx, assigneeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("assignee", map[string]any{"user_id": assigneeID})
			}
			return nil, apperrors.MapError(err)
		}
	}

	changed := false
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) error {
		changed = false
		if selfAssign && t.Status.IsTerminal() {
			return apperrors.NewGuardFailed("cannot self-assign a closed or resolved ticket")
		}
		if t.AssignedTo != nil && *t.AssignedTo == assigneeID {
			return errNoChange
		}
		comment := fmt.Sprintf("assigned to %s", assignee.Name)
		if selfAssign {
			comment = "self-assigned"
		}
		s.appendHistory(ctx, t, actorID, t.Status, t.Status, historyOptions{comment: comment})
		target := assigneeID
		t.AssignedTo = &target
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Folio:    ticket.Folio,
			ActorID:  actorID,
			Payload:  events.AssignedPayload{AssigneeID: assigneeID, SelfAssign: selfAssign},
		})
	}
	return ticket, nil
}

// AddComment appends a comment-only history entry.
func (s *TicketService) AddComment(ctx context.Context, actorID, ticketID, text string) (*domain.Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment required", nil)
	}
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) error {
		s.appendHistory(ctx, t, actorID, t.Status, t.Status, historyOptions{comment: text})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketCommented,
		TicketID: ticket.ID,
		Folio:    ticket.Folio,
		ActorID:  actorID,
	})
	return ticket, nil
}

// AddAdminComment appends a note visible only to privileged roles.
func (s *TicketService) AddAdminComment(ctx context.Context, actorID, ticketID, text string) (*domain.Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment required", nil)
	}
	if err := s.requireAdminLike(ctx, actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, ticketID, func(t *domain.Ticket) error {
		t.AdminComments = append(t.AdminComments, domain.AdminComment{
			At:        s.now(),
			ActorID:   actorID,
			ActorName: s.actorName(ctx, actorID),
			Text:      text,
		})
		return nil
	})
}

// ListAdminComments returns privileged notes, newest first.
func (s *TicketService) ListAdminComments(ctx context.Context, ticketID string) ([]domain.AdminComment, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	comments := append([]domain.AdminComment{}, ticket.AdminComments...)
	sort.Slice(comments, func(i, j int) bool { return comments[i].At.After(comments[j].At) })
	return comments, nil
}

// Archive marks a ticket archived regardless of status. Idempotent;
// archival is one-way.
func (s *TicketService) Archive(ctx context.Context, actorID, ticketID string) (*domain.Ticket, error) {
	if err := s.requireAdminLike(ctx, actorID); err != nil {
		return nil, err
	}
	var archived bool
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) error {
		archived = false
		if t.Archived {
			return errNoChange
		}
		s.forceArchive(t, actorID, s.now())
		s.appendHistory(ctx, t, actorID, t.Status, t.Status, historyOptions{comment: "ticket archived"})
		archived = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if archived {
		s.publish(ctx, events.Event{
			Type:     events.EventTicketArchived,
			TicketID: ticket.ID,
			Folio:    ticket.Folio,
			ActorID:  actorID,
		})
	}
	return ticket, nil
}

// Reject moves the ticket to the rejected state; the mandatory comment and
// forced archival are handled by the transition guard.
func (s *TicketService) Reject(ctx context.Context, actorID, ticketID, comment string) (*domain.Ticket, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, apperrors.NewValidationError("rejection comment required", nil)
	}
	return s.Transition(ctx, actorID, ticketID, domain.StatusRejected, TransitionInput{Comment: comment})
}

// Get fetches a ticket by id.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// GetByFolio fetches a ticket by its display reference; folio is how
// people quote tickets to each other.
func (s *TicketService) GetByFolio(ctx context.Context, folio string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByFolio(ctx, folio)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"folio": folio})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ListVisible returns the tickets the caller's role set allows. Archived
// tickets are included only for privileged callers that ask for them.
func (s *TicketService) ListVisible(ctx context.Context, roles []domain.Role, callerID string, includeArchived bool) ([]domain.Ticket, error) {
	filter := ScopeFor(roles, callerID, includeArchived)
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListAssignable returns unassigned tickets still open for work; the
// privileged assignment panel feed.
func (s *TicketService) ListAssignable(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:   []domain.TicketStatus{domain.StatusOpen, domain.StatusInProgress},
		Unassigned: true,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListClosedReport returns finished tickets, most recently closed first;
// the privileged reporting table. Archived tickets are included since
// rejection archives in the same write.
func (s *TicketService) ListClosedReport(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:          []domain.TicketStatus{domain.StatusResolved, domain.StatusClosed},
		IncludeArchived:   true,
		OrderByClosedDesc: true,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// History returns the audit trail in chronological ascending order.
func (s *TicketService) History(ctx context.Context, ticketID string) ([]domain.HistoryEntry, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	entries := append([]domain.HistoryEntry{}, ticket.History...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}

// AttachEvidence stores the blob in the evidence store and appends the
// returned opaque reference to the ticket.
func (s *TicketService) AttachEvidence(ctx context.Context, actorID, ticketID, fileName, mimeType string, content []byte) (*domain.Ticket, error) {
	if s.evidence == nil {
		return nil, apperrors.NewValidationError("evidence store not configured", nil)
	}
	if len(content) == 0 {
		return nil, apperrors.NewValidationError("empty attachment", nil)
	}
	ref, err := s.evidence.Save(ctx, ticketID, fileName, mimeType, content)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	ref.UploadedBy = actorID
	ref.UploadedAt = s.now()
	return s.mutate(ctx, ticketID, func(t *domain.Ticket) error {
		t.Evidence = append(t.Evidence, ref)
		return nil
	})
}

// mutate runs a read-modify-write cycle against a single ticket. The
// closure applies field changes and the matching history entries to the
// freshly read aggregate; both land in one write, so an unaudited state
// change cannot be persisted. A version conflict gets one retry from a
// fresh read, then surfaces as a transient conflict.
func (s *TicketService) mutate(ctx context.Context, ticketID string, fn func(*domain.Ticket) error) (*domain.Ticket, error) {
	for attempt := 0; ; attempt++ {
		ticket, err := s.Get(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if err := fn(ticket); err != nil {
			if errors.Is(err, errNoChange) {
				return ticket, nil
			}
			return nil, err
		}
		ticket.UpdatedAt = s.now()
		err = s.tickets.Update(ctx, ticket)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperrors.MapError(err)
		}
		if attempt >= 1 {
			return nil, apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticketID})
		}
		s.logger.Warn("ticket write conflict, retrying", zap.String("ticket_id", ticketID))
		time.Sleep(conflictRetryDelay)
	}
}

func (s *TicketService) forceArchive(t *domain.Ticket, actorID string, at time.Time) {
	t.Archived = true
	archivedAt := at
	actor := actorID
	t.ArchivedAt = &archivedAt
	t.ArchivedBy = &actor
}

func (s *TicketService) requireAdminLike(ctx context.Context, actorID string) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return apperrors.NewForbidden("unknown actor")
	}
	if !domain.IsAdminLike(actor.Roles) {
		return apperrors.NewForbidden("administrative role required")
	}
	return nil
}

func (s *TicketService) requireWorker(ctx context.Context, actorID string) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return apperrors.NewForbidden("unknown actor")
	}
	if !domain.IsWorker(actor.Roles) {
		return apperrors.NewForbidden("worker role required")
	}
	return nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func validateCreate(input TicketCreateInput) error {
	problems := []string{}
	if strings.TrimSpace(input.Description) == "" {
		problems = append(problems, "description is required")
	}
	if strings.TrimSpace(input.FaultType) == "" {
		problems = append(problems, "fault type is required")
	}
	if input.Priority != "" && !domain.ValidPriority(input.Priority) {
		problems = append(problems, "invalid priority")
	}

	switch input.Category {
	case domain.CategorySystems:
		switch input.Subcategory {
		case domain.SubcategoryLab:
			if strings.TrimSpace(input.Lab) == "" {
				problems = append(problems, "lab is required for in-lab incidents")
			}
			if strings.TrimSpace(input.Equipment) == "" {
				problems = append(problems, "equipment tag is required for in-lab incidents")
			}
		case domain.SubcategoryOther:
			if strings.TrimSpace(input.Location) == "" {
				problems = append(problems, "location is required for out-of-lab incidents")
			}
		default:
			problems = append(problems, "systems tickets require subcategory lab or other")
		}
	case domain.CategoryMaintenance:
		if strings.TrimSpace(input.Room) == "" {
			problems = append(problems, "room is required for maintenance tickets")
		}
	default:
		problems = append(problems, "category must be systems or maintenance")
	}

	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid ticket payload", map[string]any{"errors": problems})
	}
	return nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
