package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-kit/helpdesk/internal/domain"
	"github.com/campus-kit/helpdesk/internal/events"
	"github.com/campus-kit/helpdesk/internal/repository"
	apperrors "github.com/campus-kit/helpdesk/pkg/util"
)

// LiveFeed forwards a notification to a recipient's connected sessions.
// Delivery is best effort; false means nobody was listening, which is not
// an error — the persisted row remains for later retrieval.
type LiveFeed interface {
	PushToUser(ctx context.Context, userID string, notification domain.Notification) (bool, error)
}

// NotificationService resolves audiences for domain events, persists one
// notification per recipient and forwards them to the live feed. Every
// failure here is logged and swallowed: notifying is never allowed to
// fail or roll back the ticket mutation that triggered it.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	feed          LiveFeed
	logger        *zap.Logger
	now           func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository, users repository.UserRepository, feed LiveFeed, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: notifications,
		users:         users,
		feed:          feed,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterHandlers subscribes to the events that produce notifications.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	dispatcher.Subscribe(events.EventTicketResolved, n.handleTicketResolved)
	dispatcher.Subscribe(events.EventTicketDeleted, n.handleTicketDeleted)
	dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	dispatcher.Subscribe(events.EventTicketPriorityChanged, n.handleTicketPriorityChanged)
}

// ListForRecipient returns the recipient's latest notifications, newest
// first.
func (n *NotificationService) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	items, err := n.notifications.ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

// MarkAllRead flags every unread notification of the recipient as read.
func (n *NotificationService) MarkAllRead(ctx context.Context, recipientID string) error {
	if err := n.notifications.MarkAllRead(ctx, recipientID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	title := fmt.Sprintf("New ticket %s", event.Folio)
	if payload, ok := event.Payload.(events.TicketCreatedPayload); ok && payload.FaultType != "" {
		title = fmt.Sprintf("New ticket %s: %s", event.Folio, payload.FaultType)
	}
	n.notifyAdminAudience(ctx, event, domain.NotificationNew, title)
	return nil
}

func (n *NotificationService) handleTicketResolved(ctx context.Context, event events.Event) error {
	n.notifyAdminAudience(ctx, event, domain.NotificationResolved, fmt.Sprintf("Ticket %s resolved", event.Folio))
	return nil
}

func (n *NotificationService) handleTicketDeleted(ctx context.Context, event events.Event) error {
	n.notifyAdminAudience(ctx, event, domain.NotificationDeleted, fmt.Sprintf("Ticket %s deleted", event.Folio))
	return nil
}

// handleTicketAssigned notifies exactly the new assignee. The state
// machine only emits the event when the assignee actually changed, so an
// idempotent re-save produces no duplicate here.
func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AssignedPayload)
	if !ok || payload.AssigneeID == "" {
		return nil
	}
	n.deliver(ctx, payload.AssigneeID, event, domain.NotificationAssigned,
		fmt.Sprintf("Ticket %s assigned to you", event.Folio))
	return nil
}

// handleTicketPriorityChanged notifies the current assignee, but only when
// the assignee holds a support or maintenance role — privileged assignees
// are not told about their own priority edits.
func (n *NotificationService) handleTicketPriorityChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PriorityChangedPayload)
	if !ok || payload.AssigneeID == nil {
		return nil
	}
	assignee, err := n.users.GetByID(ctx, *payload.AssigneeID)
	if err != nil {
		n.logger.Warn("priority notification: assignee lookup failed",
			zap.String("user_id", *payload.AssigneeID), zap.Error(err))
		return nil
	}
	if !domain.HasRole(assignee.Roles, domain.RoleSupport) && !domain.HasRole(assignee.Roles, domain.RoleMaintenance) {
		return nil
	}
	n.deliver(ctx, assignee.ID, event, domain.NotificationPriorityChanged,
		fmt.Sprintf("Ticket %s priority is now %s", event.Folio, payload.NewPriority))
	return nil
}

// notifyAdminAudience fans a notification out to every identity holding an
// administrative or finance-equivalent role.
func (n *NotificationService) notifyAdminAudience(ctx context.Context, event events.Event, category domain.NotificationCategory, title string) {
	audience, err := n.users.ListByRoles(ctx, domain.AdminLikeRoles())
	if err != nil {
		n.logger.Warn("audience resolution failed",
			zap.String("event_type", string(event.Type)), zap.Error(err))
		return
	}
	for _, recipient := range audience {
		n.deliver(ctx, recipient.ID, event, category, title)
	}
}

// deliver persists the notification row, then attempts live delivery.
func (n *NotificationService) deliver(ctx context.Context, recipientID string, event events.Event, category domain.NotificationCategory, title string) {
	ticketID := event.TicketID
	notification := domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Title:       title,
		Category:    category,
		CreatedAt:   n.now(),
	}
	if ticketID != "" {
		notification.TicketID = &ticketID
	}

	if err := n.notifications.Create(ctx, &notification); err != nil {
		n.logger.Warn("notification persist failed",
			zap.String("recipient_id", recipientID),
			zap.String("category", string(category)),
			zap.Error(err))
		return
	}

	if n.feed == nil {
		return
	}
	delivered, err := n.feed.PushToUser(ctx, recipientID, notification)
	if err != nil {
		n.logger.Warn("live delivery failed",
			zap.String("recipient_id", recipientID), zap.Error(err))
		return
	}
	if !delivered {
		n.logger.Debug("recipient not connected",
			zap.String("recipient_id", recipientID))
	}
}
