package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/support-tickets/internal/api/http/handlers"
	"github.com/spec-kit/support-tickets/internal/auth"
	"github.com/spec-kit/support-tickets/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Sessions       *handlers.SessionsHandler
	Tickets        *handlers.TicketsHandler
	AdminTickets   *handlers.AdminTicketsHandler
	AuthMiddleware *auth.Middleware
	Admins         auth.AdminPolicy
	Metrics        *observability.Metrics
	MetricsPath    string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		app.Get(cfg.MetricsPath, adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Post("/sessions", cfg.Sessions.Start)

	api := app.Group("", cfg.AuthMiddleware.Handle)
	api.Get("/me", cfg.Sessions.Me)

	tickets := api.Group("/tickets", auth.RequireCaller())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/replies", cfg.Tickets.AddReply)
	tickets.Post("/:id/read", cfg.Tickets.MarkRead)

	admin := api.Group("/admin", auth.RequireAdmin(cfg.Admins))
	admin.Get("/tickets", cfg.AdminTickets.ListTickets)
	admin.Get("/tickets/stats", cfg.AdminTickets.Stats)
	admin.Get("/tickets/:id", cfg.AdminTickets.GetTicket)
	admin.Patch("/tickets/:id", cfg.AdminTickets.UpdateTicket)
	admin.Post("/tickets/:id/replies", cfg.AdminTickets.AddReply)
	admin.Post("/tickets/:id/read", cfg.AdminTickets.MarkRead)
}
