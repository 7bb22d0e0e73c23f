package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/gema-workbench/internal/config"
	"github.com/noah-isme/gema-workbench/internal/handler"
	"github.com/noah-isme/gema-workbench/internal/middleware"
	"github.com/noah-isme/gema-workbench/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SessionHandler   *handler.SessionHandler
	WorkspaceHandler *handler.WorkspaceHandler
	TestCaseHandler  *handler.TestCaseHandler
	EventHandler     *handler.EventHandler
	Sessions         middleware.SessionProvider
	HealthProbes     map[string]handler.HealthProbe
	Gatherer         prometheus.Gatherer
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", observability.MetricsHandler(gatherer))

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	if deps.SessionHandler != nil {
		deps.SessionHandler.Register(api)
	}

	// Everything below acts on the student's behalf and needs a session.
	requireSession := func(c *fiber.Ctx) error { return c.Next() }
	if deps.Sessions != nil {
		requireSession = middleware.RequireSession(deps.Sessions)
	}

	assignments := api.Group("/assignments/:assignmentId", requireSession)
	assignments.Use("/evaluation", middleware.RateLimit("evaluation", cfg.EvaluationLimit, cfg.EvaluationWindow))
	if deps.WorkspaceHandler != nil {
		deps.WorkspaceHandler.Register(assignments)
	}
	if deps.TestCaseHandler != nil {
		deps.TestCaseHandler.Register(assignments)
	}

	if deps.EventHandler != nil {
		events := api.Group("/events", requireSession)
		deps.EventHandler.Register(events)
	}
}
