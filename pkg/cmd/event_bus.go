package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/magnusmagz/crm-k-sub002/pkg/channels/gochannel"
	"github.com/magnusmagz/crm-k-sub002/pkg/channels/kafka"
	"github.com/magnusmagz/crm-k-sub002/pkg/eventbus"
)

// NewEventBus creates the bus for the given provider. "gochannel" keeps
// everything in-process and is the default for single-binary
// deployments; "kafka" is for running the API and engine separately.
func NewEventBus(provider, serviceName string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
