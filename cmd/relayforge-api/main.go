package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/relayforge/relayforge/pkg/audit"
	"github.com/relayforge/relayforge/pkg/cmd"
	"github.com/relayforge/relayforge/pkg/connectors"
	"github.com/relayforge/relayforge/pkg/engine"
	"github.com/relayforge/relayforge/pkg/log"
	"github.com/relayforge/relayforge/pkg/otelhelper"
	"github.com/relayforge/relayforge/pkg/tools"
	"github.com/relayforge/relayforge/pkg/triggers"
	"github.com/relayforge/relayforge/pkg/workflows"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "relayforge-api",
		Usage:                 "Manage workflows, connectors and tool servers",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "secrets-backend",
				Usage:   "Secret storage backend (vault, database)",
				Value:   "database",
				Sources: cli.EnvVars("SECRETS_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for the tool interaction graph",
				Value:   "redis://localhost:6379",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup("relayforge-api", command.String("log-level"))

			logger.InfoContext(ctx, "Initializing RelayForge API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "relayforge-api", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			tracer, err := otelhelper.NewTracer(ctx, "relayforge-api")
			if err != nil {
				return err
			}

			secretStore := cmd.NewSecretStore(logger, command.String("secrets-backend"), persistence)

			connectorRegistry := connectors.DefaultRegistry()
			connectorGateway := connectors.NewGateway(logger, connectorRegistry, persistence.InstallationRepository(), secretStore)
			oauthService := connectors.NewOAuthService(logger, connectorGateway, cmd.NewOAuthClients(connectorRegistry))

			graphStore := cmd.NewGraphStore(logger, command.String("redis-url"))
			defer func() {
				if err := graphStore.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close graph store", "error", err)
				}
			}()

			toolGateway := tools.NewGateway(logger, persistence.InstallationRepository(), connectorGateway, tools.NewMCPClient, graphStore)
			auditor := audit.NewAuditor(persistence.AuditRepository(), logger)

			registry := workflows.NewDefaultRegistry()
			eng := engine.NewBusEngine(persistence, eventBus, registry, logger)
			router := triggers.NewRouter(persistence.WorkflowRepository(), eng, tracer, logger)

			api := NewAPI(
				logger,
				persistence,
				eng,
				router,
				connectorGateway,
				oauthService,
				toolGateway,
				graphStore,
				auditor,
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
