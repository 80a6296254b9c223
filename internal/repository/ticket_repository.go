package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-kit/helpdesk/internal/domain"
)

// ErrVersionConflict reports that a ticket write lost a read-modify-write
// race and should be retried from a fresh read.
var ErrVersionConflict = errors.New("ticket version conflict")

// TicketFilter captures listing parameters. The visibility resolver
// produces these; repositories never decide scope on their own.
type TicketFilter struct {
	Category        *domain.TicketCategory
	AssignedTo      *string
	CreatedBy       *string
	Statuses        []domain.TicketStatus
	Unassigned      bool
	IncludeArchived bool
	// OrderByClosedDesc sorts by close time instead of creation time; the
	// closed-ticket report wants the most recently finished work first.
	OrderByClosedDesc bool
	Limit             int
	Offset            int
}

// TicketRepository encapsulates ticket persistence. The ticket row —
// including its embedded history, admin comments and evidence — is the
// unit of atomicity.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update persists the full aggregate guarded by the version read with
	// it; ErrVersionConflict means a concurrent writer got there first.
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByFolio(ctx context.Context, folio string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, folio, category, subcategory, fault_type, description,
       lab, equipment, location, room,
       status, priority, material_needed, resolution_note,
       created_by, assigned_to,
       created_at, updated_at, started_at, paused_at, resumed_at, overdue_at, closed_at,
       archived, archived_at, archived_by,
       history, admin_comments, evidence, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	history, comments, evidence, err := marshalCollections(ticket)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (id, folio, category, subcategory, fault_type, description,
            lab, equipment, location, room,
            status, priority, material_needed, resolution_note,
            created_by, assigned_to, created_at, updated_at,
            archived, history, admin_comments, evidence, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`
	_, err = r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.Folio,
		ticket.Category,
		ticket.Subcategory,
		ticket.FaultType,
		ticket.Description,
		ticket.Lab,
		ticket.Equipment,
		ticket.Location,
		ticket.Room,
		ticket.Status,
		ticket.Priority,
		ticket.MaterialNeeded,
		ticket.ResolutionNote,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.Archived,
		history,
		comments,
		evidence,
		ticket.Version,
	)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	history, comments, evidence, err := marshalCollections(ticket)
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET
            status=$1, priority=$2, material_needed=$3, resolution_note=$4,
            assigned_to=$5, updated_at=$6,
            started_at=$7, paused_at=$8, resumed_at=$9, overdue_at=$10, closed_at=$11,
            archived=$12, archived_at=$13, archived_by=$14,
            history=$15, admin_comments=$16, evidence=$17,
            version=version+1
        WHERE id=$18 AND version=$19`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.MaterialNeeded,
		ticket.ResolutionNote,
		ticket.AssignedTo,
		ticket.UpdatedAt,
		ticket.StartedAt,
		ticket.PausedAt,
		ticket.ResumedAt,
		ticket.OverdueAt,
		ticket.ClosedAt,
		ticket.Archived,
		ticket.ArchivedAt,
		ticket.ArchivedBy,
		history,
		comments,
		evidence,
		ticket.ID,
		ticket.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// Either the row vanished or another writer bumped the version.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return pgx.ErrNoRows
	}
	ticket.Version++
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByFolio(ctx context.Context, folio string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE folio=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, folio)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	ticket, err := scanTicket(row)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if !filter.IncludeArchived {
		clauses = append(clauses, "archived = FALSE")
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	orderBy := "created_at DESC"
	if filter.OrderByClosedDesc {
		orderBy = "closed_at DESC NULLS LAST"
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), orderBy, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func marshalCollections(ticket *domain.Ticket) (history, comments, evidence []byte, err error) {
	if history, err = json.Marshal(ticket.History); err != nil {
		return nil, nil, nil, err
	}
	if comments, err = json.Marshal(ticket.AdminComments); err != nil {
		return nil, nil, nil, err
	}
	if evidence, err = json.Marshal(ticket.Evidence); err != nil {
		return nil, nil, nil, err
	}
	return history, comments, evidence, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var history, comments, evidence []byte
	if err := row.Scan(
		&ticket.ID,
		&ticket.Folio,
		&ticket.Category,
		&ticket.Subcategory,
		&ticket.FaultType,
		&ticket.Description,
		&ticket.Lab,
		&ticket.Equipment,
		&ticket.Location,
		&ticket.Room,
		&ticket.Status,
		&ticket.Priority,
		&ticket.MaterialNeeded,
		&ticket.ResolutionNote,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.StartedAt,
		&ticket.PausedAt,
		&ticket.ResumedAt,
		&ticket.OverdueAt,
		&ticket.ClosedAt,
		&ticket.Archived,
		&ticket.ArchivedAt,
		&ticket.ArchivedBy,
		&history,
		&comments,
		&evidence,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(history, &ticket.History); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(comments, &ticket.AdminComments); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(evidence, &ticket.Evidence); err != nil {
		return nil, err
	}
	return &ticket, nil
}
