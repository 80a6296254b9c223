package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campus-kit/helpdesk/internal/api/http/handlers"
	"github.com/campus-kit/helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/assignable", auth.RequireAdminLike(), cfg.Tickets.ListAssignable)
	tickets.Get("/report/closed", auth.RequireAdminLike(), cfg.Tickets.ClosedReport)
	tickets.Get("/folio/:folio", cfg.Tickets.GetByFolio)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", cfg.Tickets.GetHistory)
	tickets.Put("/:id/status", auth.RequireWorker(), cfg.Tickets.UpdateStatus)
	tickets.Put("/:id/priority", auth.RequireWorker(), cfg.Tickets.UpdatePriority)
	tickets.Put("/:id/material", auth.RequireWorker(), cfg.Tickets.UpdateMaterial)
	tickets.Put("/:id/resolution", auth.RequireWorker(), cfg.Tickets.UpdateResolution)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/evidence", cfg.Tickets.UploadEvidence)
	tickets.Get("/:id/admin-comments", auth.RequireAdminLike(), cfg.Tickets.ListAdminComments)
	tickets.Post("/:id/admin-comments", auth.RequireAdminLike(), cfg.Tickets.AddAdminComment)
	tickets.Post("/:id/archive", auth.RequireAdminLike(), cfg.Tickets.Archive)
	tickets.Post("/:id/reject", auth.RequireAdminLike(), cfg.Tickets.Reject)

	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	notifications.Get("", cfg.Notifications.List)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
}
