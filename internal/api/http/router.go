package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ledgerdesk/ledgerdesk/internal/api/http/handlers"
	"github.com/ledgerdesk/ledgerdesk/internal/auth"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireActor())
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/stats", auth.RequireRole(domain.RoleManager), cfg.Tickets.Stats)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/actions", cfg.Tickets.PermittedActions)
	tickets.Post("/:id/transitions", cfg.Tickets.RequestTransition)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleManager))
	admin.Put("/roles/:address", cfg.Admin.SetRole)
}

// RegisterBlobRoutes wires the blob server.
func RegisterBlobRoutes(app *fiber.App, health *handlers.HealthHandler, blobs *handlers.BlobsHandler) {
	app.Get("/health/live", health.Live)
	app.Get("/health/ready", health.Ready)
	app.Put("/blobs", blobs.Put)
	app.Get("/blobs/:digest", blobs.Get)
}
