package service

import (
	"context"
	"math"
	"time"

	"github.com/campus-kit/helpdesk/internal/domain"
)

// historyOptions carries the optional snapshots recorded with an entry.
type historyOptions struct {
	comment    string
	material   string
	resolution string
}

// appendHistory builds an immutable audit entry and appends it to the
// ticket. When the target status closes the ticket, the time to
// resolution is computed once here and frozen into the entry; later clock
// or ticket changes never alter it.
func (s *TicketService) appendHistory(ctx context.Context, ticket *domain.Ticket, actorID string, from, to domain.TicketStatus, opts historyOptions) {
	now := s.now()
	entry := domain.HistoryEntry{
		At:             now,
		ActorID:        actorID,
		ActorName:      s.actorName(ctx, actorID),
		From:           from,
		To:             to,
		Comment:        opts.comment,
		MaterialNeeded: opts.material,
		Resolution:     opts.resolution,
	}
	if to == domain.StatusResolved || to == domain.StatusClosed {
		minutes := resolutionMinutes(ticket, now)
		entry.ResolutionMinutes = &minutes
	}
	ticket.History = append(ticket.History, entry)
}

// resolutionMinutes measures elapsed wall-clock time from the latest of
// {resume, start, creation} to now, rounded to the nearest whole minute.
func resolutionMinutes(ticket *domain.Ticket, now time.Time) int64 {
	base := ticket.CreatedAt
	if ticket.StartedAt != nil && ticket.StartedAt.After(base) {
		base = *ticket.StartedAt
	}
	if ticket.ResumedAt != nil && ticket.ResumedAt.After(base) {
		base = *ticket.ResumedAt
	}
	return int64(math.Round(now.Sub(base).Minutes()))
}

// actorName snapshots the actor's display name from the user directory.
// The snapshot is best effort; a directory miss must not abort the audited
// mutation.
func (s *TicketService) actorName(ctx context.Context, actorID string) string {
	user, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return ""
	}
	return user.Name
}
