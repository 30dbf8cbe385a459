package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/relayforge/relayforge/pkg/activities"
	"github.com/relayforge/relayforge/pkg/agents"
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

func main() {
	command := &cli.Command{
		Name:                  "relayforge-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to advance workflow executions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
				Name:     "agent-endpoint",
				Usage:    "Base URL of the agent execution service",
				Required: true,
				Sources:  cli.EnvVars("AGENT_ENDPOINT"),
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
			log.Setup("relayforge-worker", command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("relayforge-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing RelayForge Worker")

			eventBus := cmd.NewEventBus(command.String("event-bus"), "relayforge-worker", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			tracer, err := otelhelper.NewTracer(ctx, "relayforge-worker")
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
			agentClient := agents.NewClient(command.String("agent-endpoint"), logger)

			runner := activities.NewRunner(
				agentClient,
				connectorGateway,
				oauthService,
				toolGateway,
				graphStore,
				auditor,
				persistence.ExecutionRepository(),
				logger,
			)

			registry := workflows.NewDefaultRegistry()
			eng := engine.NewBusEngine(persistence, eventBus, registry, logger)

			scheduler := triggers.NewScheduler(persistence.WorkflowRepository(), eng, logger)
			go scheduler.Start(ctx)

			sweeper := engine.NewTimeoutSweeper(persistence.ExecutionRepository(), eventBus, logger)
			go sweeper.Run(ctx)

			worker := engine.NewWorker(
				workerID,
				persistence,
				eventBus,
				registry,
				runner,
				tracer,
				logger,
			)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Worker started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down worker...")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
