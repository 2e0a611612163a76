package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/mailer"
	"github.com/redis/go-redis/v9"
)

const consumerGroupPrefix = "cinex-booking."

type RouterDeps struct {
	Logger      *slog.Logger
	RedisClient redis.UniversalClient
	Users       domain.UserRepository
	Mailer      mailer.Mailer
}

type Router struct {
	*message.Router
}

func NewRouter(deps RouterDeps) (*Router, error) {
	logger := NewSlogAdapter(deps.Logger)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	router.AddMiddleware(correlationIDMiddleware(deps.Logger))
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      10,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          logger,
	}.Middleware)
	router.AddMiddleware(middleware.Recoverer)

	ep, err := cqrs.NewEventProcessorWithConfig(router, cqrs.EventProcessorConfig{
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        deps.RedisClient,
				ConsumerGroup: consumerGroupPrefix + params.HandlerName,
			}, logger)
		},
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return params.EventName, nil
		},
		Marshaler: marshaler,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event processor: %w", err)
	}

	err = ep.AddHandlers(
		cqrs.NewEventHandler("send-booking-confirmation", handleSendBookingConfirmation(deps.Users, deps.Mailer, deps.Logger)),
		cqrs.NewEventHandler("send-booking-cancellation", handleSendBookingCancellation(deps.Users, deps.Mailer, deps.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("adding handlers: %w", err)
	}

	return &Router{router}, nil
}

type loggerKey struct{}

func correlationIDMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			correlationID := middleware.MessageCorrelationID(msg)
			if correlationID == "" {
				correlationID = "gen_" + shortuuid.New()
			}

			l := logger.With("message_uuid", msg.UUID, "correlation_id", correlationID)
			msg.SetContext(context.WithValue(msg.Context(), loggerKey{}, l))

			return next(msg)
		}
	}
}

func loggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}

	return fallback
}
