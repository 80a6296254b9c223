package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-kit/helpdesk/internal/domain"
)

// NotificationRepository stores recipient-scoped notifications. Rows are
// created by the dispatcher and only ever mutated by MarkAllRead.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) error
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	const query = `
        INSERT INTO notifications (id, recipient_id, title, category, ticket_id, read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, query,
		notification.ID,
		notification.RecipientID,
		notification.Title,
		notification.Category,
		notification.TicketID,
		notification.Read,
		notification.CreatedAt,
	)
	return err
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
        SELECT id, recipient_id, title, category, ticket_id, read, created_at
        FROM notifications WHERE recipient_id=$1
        ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Title,
			&n.Category,
			&n.TicketID,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	const query = `UPDATE notifications SET read=TRUE WHERE recipient_id=$1 AND read=FALSE`
	_, err := r.pool.Exec(ctx, query, recipientID)
	return err
}
