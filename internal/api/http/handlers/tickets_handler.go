package handlers

import (
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/campus-kit/helpdesk/internal/api/dto"
	"github.com/campus-kit/helpdesk/internal/auth"
	"github.com/campus-kit/helpdesk/internal/domain"
	"github.com/campus-kit/helpdesk/internal/service"
	apperrors "github.com/campus-kit/helpdesk/pkg/util"
)

// TicketsHandler manages ticket lifecycle endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Create(c.UserContext(), principal.UserID, service.TicketCreateInput{
		Category:    req.Category,
		Subcategory: req.Subcategory,
		FaultType:   req.FaultType,
		Description: req.Description,
		Lab:         req.Lab,
		Equipment:   req.Equipment,
		Location:    req.Location,
		Room:        req.Room,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// ListTickets GET /tickets. Visibility follows the caller's role set;
// ?archived=true only has effect for privileged callers.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	includeArchived, _ := strconv.ParseBool(c.Query("archived", "false"))

	tickets, err := h.service.ListVisible(c.UserContext(), principal.Roles, principal.UserID, includeArchived)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListAssignable GET /tickets/assignable.
func (h *TicketsHandler) ListAssignable(c *fiber.Ctx) error {
	tickets, err := h.service.ListAssignable(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ClosedReport GET /tickets/report/closed.
func (h *TicketsHandler) ClosedReport(c *fiber.Ctx) error {
	tickets, err := h.service.ListClosedReport(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// GetByFolio GET /tickets/folio/:folio.
func (h *TicketsHandler) GetByFolio(c *fiber.Ctx) error {
	ticket, err := h.service.GetByFolio(c.UserContext(), c.Params("folio"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// GetHistory GET /tickets/:id/history.
func (h *TicketsHandler) GetHistory(c *fiber.Ctx) error {
	entries, err := h.service.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewHistoryEntry(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateStatus PUT /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Transition(c.UserContext(), principal.UserID, c.Params("id"), req.Status, service.TransitionInput{
		Comment:        req.Comment,
		MaterialNeeded: req.MaterialNeeded,
		Resolution:     req.Resolution,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// UpdatePriority PUT /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.PriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.UpdatePriority(c.UserContext(), principal.UserID, c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// UpdateMaterial PUT /tickets/:id/material.
func (h *TicketsHandler) UpdateMaterial(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.MaterialRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.UpdateMaterial(c.UserContext(), principal.UserID, c.Params("id"), req.MaterialNeeded)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// UpdateResolution PUT /tickets/:id/resolution.
func (h *TicketsHandler) UpdateResolution(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ResolutionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.UpdateResolution(c.UserContext(), principal.UserID, c.Params("id"), req.Resolution)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !req.Self && req.AssigneeID == "" {
		return apperrors.NewValidationError("assignee_id required unless self-assigning", nil)
	}

	ticket, err := h.service.Assign(c.UserContext(), principal.UserID, c.Params("id"), req.AssigneeID, req.Self)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.AddComment(c.UserContext(), principal.UserID, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// ListAdminComments GET /tickets/:id/admin-comments.
func (h *TicketsHandler) ListAdminComments(c *fiber.Ctx) error {
	comments, err := h.service.ListAdminComments(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AdminCommentResponse, 0, len(comments))
	for _, comment := range comments {
		name := comment.ActorName
		if name == "" {
			name = comment.ActorID
		}
		items = append(items, dto.AdminCommentResponse{
			At:        comment.At,
			ActorName: name,
			Text:      comment.Text,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// AddAdminComment POST /tickets/:id/admin-comments.
func (h *TicketsHandler) AddAdminComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	if _, err := h.service.AddAdminComment(c.UserContext(), principal.UserID, c.Params("id"), req.Text); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusCreated)
}

// Archive POST /tickets/:id/archive.
func (h *TicketsHandler) Archive(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.service.Archive(c.UserContext(), principal.UserID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// Reject POST /tickets/:id/reject.
func (h *TicketsHandler) Reject(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Reject(c.UserContext(), principal.UserID, c.Params("id"), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// UploadEvidence POST /tickets/:id/evidence. Multipart upload, field "file".
func (h *TicketsHandler) UploadEvidence(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("file field required", nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return apperrors.NewValidationError("unreadable attachment", nil)
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return apperrors.MapError(err)
	}

	ticket, err := h.service.AttachEvidence(c.UserContext(), principal.UserID, c.Params("id"),
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), content)
	if err != nil {
		return err
	}
	refs := make([]domain.EvidenceRef, len(ticket.Evidence))
	copy(refs, ticket.Evidence)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": refs})
}
