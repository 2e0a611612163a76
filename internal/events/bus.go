package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/redis/go-redis/v9"
)

var marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

func NewRedisPublisher(rdb redis.UniversalClient, logger watermill.LoggerAdapter) (message.Publisher, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}

	return CorrelationPublisher{Publisher: publisher}, nil
}

// NewEventBus publishes every event on a topic named after its struct.
func NewEventBus(publisher message.Publisher, logger watermill.LoggerAdapter) (*cqrs.EventBus, error) {
	bus, err := cqrs.NewEventBusWithConfig(publisher, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			return params.EventName, nil
		},
		Marshaler: marshaler,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	return bus, nil
}

// CorrelationPublisher stamps outgoing messages with the id of the HTTP
// request that produced them, or a generated one.
type CorrelationPublisher struct {
	message.Publisher
}

func (p CorrelationPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if middleware.MessageCorrelationID(msg) != "" {
			continue
		}

		correlationID := chimiddleware.GetReqID(msg.Context())
		if correlationID == "" {
			correlationID = "gen_" + shortuuid.New()
		}

		middleware.SetCorrelationID(correlationID, msg)
	}

	return p.Publisher.Publish(topic, msgs...)
}
