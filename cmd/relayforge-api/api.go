// Package main provides the RelayForge API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/relayforge/relayforge/pkg/audit"
	"github.com/relayforge/relayforge/pkg/connectors"
	"github.com/relayforge/relayforge/pkg/engine"
	"github.com/relayforge/relayforge/pkg/graph"
	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/tools"
	"github.com/relayforge/relayforge/pkg/triggers"
	"github.com/relayforge/relayforge/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	engine      engine.Engine
	router      *triggers.Router
	connectors  *connectors.Gateway
	oauth       *connectors.OAuthService
	tools       *tools.Gateway
	graph       *graph.Store
	auditor     *audit.Auditor
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eng engine.Engine,
	router *triggers.Router,
	connectorGateway *connectors.Gateway,
	oauthService *connectors.OAuthService,
	toolGateway *tools.Gateway,
	graphStore *graph.Store,
	auditor *audit.Auditor,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		engine:      eng,
		router:      router,
		connectors:  connectorGateway,
		oauth:       oauthService,
		tools:       toolGateway,
		graph:       graphStore,
		auditor:     auditor,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.persistence,
		a.engine,
		a.router,
		a.connectors,
		a.oauth,
		a.tools,
		a.graph,
		a.auditor,
		a.validate,
		a.logger,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("RelayForge API")
	})

	// Public webhook ingress, authenticated per trigger by shared secret.
	app.Post("/triggers/webhook/*", handlers.HandleWebhook)

	o := app.Group("/oauth")
	o.Get("/authorize/:connector", handlers.OAuthAuthorize)
	o.Post("/callback", handlers.OAuthCallback)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Put("/:id/triggers", handlers.RegisterTriggers)
	w.Post("/:id/run", handlers.RunWorkflow)
	w.Post("/:id/pause", handlers.PauseWorkflow)
	w.Post("/:id/resume", handlers.ResumeWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/signals", handlers.SignalExecution)
	e.Get("/:id/query/:name", handlers.QueryExecution)
	e.Post("/:id/terminate", handlers.TerminateExecution)

	cg := app.Group("/connectors")
	cg.Get("/", handlers.ListConnectors)
	cg.Get("/installations", handlers.ListInstallations)
	cg.Post("/:slug/install", handlers.InstallConnector)
	cg.Post("/:slug/credentials", handlers.RotateConnectorCredentials)
	cg.Delete("/:slug", handlers.UninstallConnector)

	t := app.Group("/tools")
	t.Get("/", handlers.ListTools)
	t.Get("/top", handlers.TopTools)
	t.Post("/call", handlers.CallTool)

	app.Post("/admin/audit", handlers.RunAudit)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
