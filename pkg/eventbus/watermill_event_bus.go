package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/magnusmagz/crm-k-sub002/pkg/events"
)

// WatermillEventBus routes engine and entity events over any Watermill
// publisher/subscriber pair (gochannel in-process, Kafka in production).
// Entity events and engine events share one bus; the topic is picked per
// event type.
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func topicFor(eventType events.EventType) string {
	if eventType == events.EntityChangedEvent {
		return events.EntityTopic
	}

	return events.EngineTopic
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

// Subscribe starts consuming every topic a handler was registered for.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	topics := make(map[string]bool)
	for eventType := range eb.subscriptions {
		topics[topicFor(eventType)] = true
	}

	for topic := range topics {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		handler, exists := eb.subscriptions[eventType]
		if !exists {
			msg.Ack()

			continue
		}

		var event any

		switch eventType {
		case events.EntityChangedEvent:
			event = &events.EntityEvent{}
		case events.AutomationTriggeredEvent:
			event = &events.AutomationTriggered{}
		case events.StepExecutedEvent:
			event = &events.StepExecuted{}
		case events.EnrollmentCompletedEvent:
			event = &events.EnrollmentCompleted{}
		case events.EnrollmentExitedEvent:
			event = &events.EnrollmentExited{}
		default:
			msg.Nack()

			continue
		}

		err := json.Unmarshal(msg.Payload, event)
		if err != nil {
			msg.Nack()

			continue
		}

		err = handler(ctx, event)
		if err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
