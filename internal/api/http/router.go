package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/maintenance-dispatch/internal/auth"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Requests       *handlers.RequestsHandler
	Dispatch       *handlers.DispatchHandler
	Views          *handlers.ViewsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	requests := api.Group("/requests")
	requests.Post("", auth.RequireRole(domain.RoleRequester), cfg.Requests.Create)
	requests.Get("", cfg.Requests.List)
	requests.Get("/:id", cfg.Requests.Get)
	requests.Post("/:id/cancel", auth.RequireRole(domain.RoleRequester), cfg.Requests.Cancel)
	requests.Post("/:id/rating", auth.RequireRole(domain.RoleRequester), cfg.Requests.SubmitRating)
	requests.Post("/:id/escalate", auth.RequireRole(domain.RoleRequester, domain.RoleAdmin), cfg.Requests.Escalate)

	requests.Post("/:id/assign", auth.RequireRole(domain.RoleAdmin), cfg.Dispatch.Assign)
	requests.Post("/:id/reassign", auth.RequireRole(domain.RoleAdmin), cfg.Dispatch.Reassign)
	requests.Patch("/:id/status", auth.RequireRole(domain.RoleTechnician, domain.RoleAdmin), cfg.Dispatch.UpdateStatus)
	requests.Post("/:id/schedule", auth.RequireRole(domain.RoleTechnician, domain.RoleAdmin), cfg.Dispatch.Schedule)

	api.Get("/notifications", cfg.Views.Notifications)
	api.Get("/dashboard", auth.RequireRole(domain.RoleAdmin), cfg.Views.Dashboard)
	api.Get("/escalations", auth.RequireRole(domain.RoleAdmin), cfg.Views.Escalations)
	api.Get("/breakdown", auth.RequireRole(domain.RoleAdmin), cfg.Views.Breakdown)
	api.Get("/technicians", auth.RequireRole(domain.RoleAdmin), cfg.Views.Technicians)
	api.Get("/technicians/:id/metrics", auth.RequireRole(domain.RoleTechnician, domain.RoleAdmin), cfg.Views.TechnicianMetrics)
}
