package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/config"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.BookingTopic == "" {
		return nil, fmt.Errorf("booking topic is required")
	}
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	bookingTopic := cfg.BookingTopic
	notificationTopic := cfg.NotificationTopic

	for _, eventType := range []enums.OutboxEventType{
		enums.EventBookingCreated,
		enums.EventBookingAccepted,
		enums.EventBookingDeclined,
		enums.EventBookingCancelled,
		enums.EventBookingCompleted,
	} {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateBooking,
			Topic:          bookingTopic,
			PayloadFactory: func() interface{} { return &payloads.BookingEvent{} },
		})
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventPaymentInitiated,
		enums.EventPaymentConfirmed,
		enums.EventPaymentFailed,
		enums.EventPaymentExpired,
		enums.EventPayoutSettled,
		enums.EventPayoutFailed,
	} {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateTransaction,
			Topic:          bookingTopic,
			PayloadFactory: func() interface{} { return &payloads.PaymentEvent{} },
		})
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventDisputeFiled,
		enums.EventDisputeUnderReview,
		enums.EventDisputeResolved,
	} {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateDispute,
			Topic:          bookingTopic,
			PayloadFactory: func() interface{} { return &payloads.DisputeEvent{} },
		})
	}
	// Refunds carry the dispute payload but land on the transaction aggregate.
	reg.register(EventDescriptor{
		EventType:      enums.EventRefundIssued,
		AggregateType:  enums.AggregateTransaction,
		Topic:          bookingTopic,
		PayloadFactory: func() interface{} { return &payloads.DisputeEvent{} },
	})
	for _, eventType := range []enums.OutboxEventType{
		enums.EventReviewSubmitted,
		enums.EventReviewRevealed,
	} {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateReview,
			Topic:          bookingTopic,
			PayloadFactory: func() interface{} { return &payloads.ReviewEvent{} },
		})
	}
	reg.register(EventDescriptor{
		EventType:      enums.EventRatingRecalculated,
		AggregateType:  enums.AggregateUser,
		Topic:          bookingTopic,
		PayloadFactory: func() interface{} { return &payloads.RatingEvent{} },
	})
	reg.register(EventDescriptor{
		EventType:      enums.EventNotificationRequested,
		AggregateType:  enums.AggregateNotification,
		Topic:          notificationTopic,
		PayloadFactory: func() interface{} { return &payloads.NotificationRequestedEvent{} },
	})

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
