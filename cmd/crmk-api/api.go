// Package main provides the automation API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/magnusmagz/crm-k-sub002/pkg/engine"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/eventbus"
	"github.com/magnusmagz/crm-k-sub002/pkg/otelhelper"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
	"github.com/magnusmagz/crm-k-sub002/pkg/registry"
	"github.com/magnusmagz/crm-k-sub002/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	entities    entities.Service
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persist persistence.Persistence,
	entityService entities.Service,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persist,
		entities:    entityService,
		registry:    reg,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	// The API embeds a matcher and executor so the test and event
	// injection endpoints can run synchronously; the scheduler lives in
	// the engine binary.
	executor := engine.NewExecutor(a.logger, a.persistence, a.entities, a.registry, a.eventBus)
	matcher := engine.NewMatcher(a.logger, a.persistence, executor, a.eventBus)

	handlers := web.NewAPIHandlers(a.logger, a.persistence, executor, matcher, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("CRM Automation API")
	})

	au := app.Group("/automations")
	au.Get("/", handlers.GetAutomations)
	au.Post("/", handlers.CreateAutomation)
	au.Get("/:id", handlers.GetAutomation)
	au.Patch("/:id", handlers.UpdateAutomation)
	au.Delete("/:id", handlers.DeleteAutomation)
	au.Post("/:id/activate", handlers.ActivateAutomation)
	au.Post("/:id/deactivate", handlers.DeactivateAutomation)
	au.Post("/:id/test", handlers.TestAutomation)

	// Debug reads:
	au.Get("/:id/enrollments", handlers.GetAutomationEnrollments)
	au.Get("/:id/executions", handlers.GetAutomationExecutions)

	en := app.Group("/entities/:type/:entityId")
	en.Get("/enrollments", handlers.GetEntityEnrollments)
	en.Get("/executions", handlers.GetEntityExecutions)

	app.Post("/events", handlers.InjectEvent)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	if _, err := otelhelper.NewTracer(ctx, "crmk-api"); err != nil {
		a.logger.WarnContext(ctx, "Failed to initialize tracer, spans will not be exported", "error", err)
	}

	return a.App().Listen(":" + strconv.Itoa(port))
}
