// Package main runs the automation engine: the trigger matcher consuming
// entity events, the due-work scheduler, and optionally a Redis queue
// feed for CRMs that push events through a list instead of the bus.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magnusmagz/crm-k-sub002/pkg/engine"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/eventbus"
	"github.com/magnusmagz/crm-k-sub002/pkg/events"
	"github.com/magnusmagz/crm-k-sub002/pkg/feeds/queue"
	"github.com/magnusmagz/crm-k-sub002/pkg/otelhelper"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
	"github.com/magnusmagz/crm-k-sub002/pkg/registry"
	"github.com/magnusmagz/crm-k-sub002/pkg/scheduler"
)

type EngineManager struct {
	id        string
	logger    *slog.Logger
	eventBus  eventbus.EventBus
	matcher   *engine.Matcher
	scheduler *scheduler.Scheduler

	queueFeed *queue.Feed
}

func NewEngineManager(
	id string,
	logger *slog.Logger,
	persist persistence.Persistence,
	entityService entities.Service,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	schedulerConfig scheduler.Config,
) *EngineManager {
	executor := engine.NewExecutor(logger, persist, entityService, reg, eventBus)
	matcher := engine.NewMatcher(logger, persist, executor, eventBus)

	return &EngineManager{
		id:        id,
		logger:    logger,
		eventBus:  eventBus,
		matcher:   matcher,
		scheduler: scheduler.NewScheduler(logger, persist, executor, schedulerConfig),
	}
}

// QueueFeed enables the Redis list feed. A feed with no address stays
// disabled; the bus and the API's event injection endpoint still work.
func (m *EngineManager) QueueFeed(addr, password, db, name string) {
	if addr == "" {
		return
	}

	feed, err := queue.NewFeed(addr, password, db, name, m.logger)
	if err != nil {
		panic(err)
	}

	m.queueFeed = feed
}

func (m *EngineManager) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting engine manager")

	if _, err := otelhelper.NewTracer(ctx, "crmk-engine"); err != nil {
		m.logger.WarnContext(ctx, "Failed to initialize tracer, spans will not be exported", "error", err)
	}

	if err := m.eventBus.Handle(events.EntityChangedEvent, m.matcher.HandleEvent); err != nil {
		return err
	}

	if err := m.eventBus.Subscribe(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if m.queueFeed != nil {
		if err := m.queueFeed.Start(ctx, func(ctx context.Context, event *events.EntityEvent) error {
			return m.matcher.Match(ctx, event)
		}); err != nil {
			return err
		}
	}

	m.scheduler.Start(ctx)

	m.logger.InfoContext(ctx, "Engine started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	m.logger.InfoContext(ctx, "Shutting down engine...")

	if m.queueFeed != nil {
		if err := m.queueFeed.Stop(ctx); err != nil {
			m.logger.ErrorContext(ctx, "Failed to stop queue feed", "error", err)
		}
	}

	m.scheduler.Stop()

	return nil
}
