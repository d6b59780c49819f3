package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
)

// Subscriber pulls messages off one Pub/Sub subscription and feeds them to the
// Consumer. Poison messages (undecodable envelopes) are acked so they don't
// wedge the subscription; processing failures nack for redelivery.
type Subscriber struct {
	consumer     *Consumer
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewSubscriber binds a consumer to a Pub/Sub subscription.
func NewSubscriber(consumer *Consumer, subscription *pubsub.Subscriber, logg *logger.Logger) (*Subscriber, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Subscriber{
		consumer:     consumer,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run starts the receive loop until the context is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

func (s *Subscriber) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		s.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}

	if err := s.consumer.Process(ctx, eventType, envelope); err != nil {
		s.logg.Error(logCtx, "notification processing failed", err)
		return false
	}
	return true
}
