package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/magnusmagz/crm-k-sub002/pkg/cmd"
	"github.com/magnusmagz/crm-k-sub002/pkg/log"
	"github.com/magnusmagz/crm-k-sub002/pkg/scheduler"
)

func main() {
	command := &cli.Command{
		Name:                  "crmk-engine",
		EnableShellCompletion: true,
		Usage:                 "Run the automation engine: trigger matching plus the enrollment scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (empty for in-memory)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "email-endpoint",
				Usage:   "Delivery endpoint for send_email actions",
				Sources: cli.EnvVars("EMAIL_ENDPOINT"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often the scheduler polls for due enrollments",
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Number of concurrent enrollment workers",
				Sources: cli.EnvVars("WORKER_COUNT"),
			},
			&cli.StringFlag{
				Name:    "queue-addr",
				Usage:   "Redis address for the entity-event queue feed (disabled when empty)",
				Sources: cli.EnvVars("QUEUE_REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "queue-password",
				Usage:   "Redis password for the queue feed",
				Sources: cli.EnvVars("QUEUE_REDIS_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "queue-db",
				Usage:   "Redis database for the queue feed",
				Sources: cli.EnvVars("QUEUE_REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "queue-name",
				Usage:   "Redis list holding entity events",
				Value:   "crmk:entity-events",
				Sources: cli.EnvVars("QUEUE_NAME"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log output format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("crmk-engine").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing automation engine")

			persist := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persist.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "crmk-engine", logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			entityService := cmd.NewEntityService(logger, persist)
			reg := cmd.NewRegistry(logger, entityService, command.String("email-endpoint"))

			manager := NewEngineManager(workerID, logger, persist, entityService, reg, eventBus, scheduler.Config{
				WorkerID:     workerID,
				PollInterval: command.Duration("poll-interval"),
				WorkerCount:  command.Int("workers"),
			})

			manager.QueueFeed(
				command.String("queue-addr"),
				command.String("queue-password"),
				command.String("queue-db"),
				command.String("queue-name"),
			)

			return manager.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
