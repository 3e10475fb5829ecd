// Package queue consumes entity-lifecycle events from a Redis list. It
// lets an external CRM push events without speaking Kafka: each list
// element is one JSON-encoded entity event.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/magnusmagz/crm-k-sub002/pkg/events"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

const popTimeout = 1 * time.Second

// Callback receives each decoded entity event. A callback error is
// logged and the event is dropped; the feed does not retry.
type Callback func(ctx context.Context, event *events.EntityEvent) error

type Feed struct {
	Addr     string
	Password string
	DB       int
	Queue    string

	client   redis.UniversalClient
	callback Callback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewFeed(addr, password, dbStr, queue string, logger *slog.Logger) (*Feed, error) {
	if queue == "" {
		return nil, errors.New("queue feed requires a queue name")
	}

	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0

	if dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db value: %w", err)
		}

		db = parsed
	}

	return &Feed{
		Addr:     addr,
		Password: password,
		DB:       db,
		Queue:    queue,
		stopCh:   make(chan struct{}),
		logger: logger.With(
			"module", "queue_feed",
			"queue", queue,
		),
	}, nil
}

func (f *Feed) Start(ctx context.Context, callback Callback) error {
	f.logger.InfoContext(ctx, "Starting queue feed")
	f.callback = callback

	f.client = redis.NewClient(&redis.Options{
		Addr:     f.Addr,
		Password: f.Password,
		DB:       f.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := f.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	f.logger.InfoContext(ctx, "Connected to Redis", "addr", f.Addr, "db", f.DB)

	f.wg.Add(1)

	go f.consume(ctx)

	return nil
}

func (f *Feed) consume(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-f.stopCh:
			f.logger.InfoContext(ctx, "Queue feed stopped")

			return
		case <-ctx.Done():
			f.logger.InfoContext(ctx, "Context cancelled, stopping queue feed")

			return
		default:
			if err := f.processMessage(ctx); err != nil {
				f.logger.ErrorContext(ctx, "Error processing queue message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (f *Feed) processMessage(ctx context.Context) error {
	result, err := f.client.BLPop(ctx, popTimeout, f.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	event, err := decodeEntityEvent([]byte(result[1]))
	if err != nil {
		// Malformed payloads are dropped, not retried.
		f.logger.WarnContext(ctx, "Dropping malformed queue message", "error", err)

		return nil
	}

	if err := f.callback(ctx, event); err != nil {
		f.logger.ErrorContext(ctx, "Error handling entity event",
			"trigger_type", event.TriggerType,
			"entity_id", event.EntityID,
			"error", err)
	}

	return nil
}

func decodeEntityEvent(payload []byte) (*events.EntityEvent, error) {
	var event events.EntityEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode entity event: %w", err)
	}

	if event.TriggerType == "" {
		return nil, errors.New("entity event has no trigger type")
	}

	known := false

	for _, t := range models.KnownTriggerTypes {
		if t == event.TriggerType {
			known = true

			break
		}
	}

	if !known {
		return nil, fmt.Errorf("unknown trigger type '%s'", event.TriggerType)
	}

	if event.EntityID == "" {
		return nil, errors.New("entity event has no entity id")
	}

	if event.EntityType == "" {
		event.EntityType = event.TriggerType.EntityType()
	}

	if event.Type == "" {
		event.BaseEvent = events.NewBaseEvent(events.EntityChangedEvent)
	}

	return &event, nil
}

func (f *Feed) Stop(ctx context.Context) error {
	f.logger.InfoContext(ctx, "Stopping queue feed")

	close(f.stopCh)
	f.wg.Wait()

	if f.client != nil {
		if err := f.client.Close(); err != nil {
			f.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
