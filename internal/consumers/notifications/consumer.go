package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	appnotifications "github.com/stagepasshq/stagepass-backend/internal/notifications"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox/payloads"
)

const notificationsConsumerName = "notifications"

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer fans booking-domain events out into per-user in-app notifications,
// honoring Redis idempotency so redelivered messages write one row.
type Consumer struct {
	notifications appnotifications.Service
	bookings      bookings.Repository
	manager       idempotencyChecker
	logg          *logger.Logger
	eventFilter   map[enums.OutboxEventType]struct{}
}

// NewConsumer builds a new notifications consumer.
func NewConsumer(svc appnotifications.Service, bookingRepo bookings.Repository, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if bookingRepo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		notifications: svc,
		bookings:      bookingRepo,
		manager:       manager,
		logg:          logg,
		eventFilter: map[enums.OutboxEventType]struct{}{
			enums.EventBookingCreated:        {},
			enums.EventBookingAccepted:       {},
			enums.EventBookingDeclined:       {},
			enums.EventPaymentConfirmed:      {},
			enums.EventPayoutSettled:         {},
			enums.EventDisputeFiled:          {},
			enums.EventDisputeResolved:       {},
			enums.EventReviewRevealed:        {},
			enums.EventNotificationRequested: {},
		},
	}, nil
}

// Process delivers the notifications implied by the event, if any.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if _, ok := c.eventFilter[eventType]; !ok {
		c.logg.Info(logCtx, "event not handled by notifications consumer")
		return nil
	}

	if envelope.EventID == "" {
		return fmt.Errorf("event id missing")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, notificationsConsumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	records, err := c.buildRecords(ctx, eventType, envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to build notifications", err)
		_ = c.manager.Delete(ctx, notificationsConsumerName, eventID)
		return err
	}

	for _, record := range records {
		if err := c.notifications.Record(ctx, nil, record); err != nil {
			c.logg.Error(logCtx, "failed to record notification", err)
			_ = c.manager.Delete(ctx, notificationsConsumerName, eventID)
			return err
		}
	}

	c.logg.Info(logCtx, "notifications recorded")
	return nil
}

func (c *Consumer) buildRecords(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) ([]appnotifications.RecordInput, error) {
	switch eventType {
	case enums.EventBookingCreated, enums.EventBookingAccepted, enums.EventBookingDeclined:
		var payload payloads.BookingEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode booking payload: %w", err)
		}
		return bookingRecords(eventType, payload), nil

	case enums.EventPaymentConfirmed, enums.EventPayoutSettled:
		var payload payloads.PaymentEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode payment payload: %w", err)
		}
		booking, err := c.bookings.FindByID(ctx, payload.BookingID)
		if err != nil {
			return nil, fmt.Errorf("load booking %s: %w", payload.BookingID, err)
		}
		return paymentRecords(eventType, booking.OrganizerID, booking.TalentID), nil

	case enums.EventDisputeFiled, enums.EventDisputeResolved:
		var payload payloads.DisputeEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode dispute payload: %w", err)
		}
		booking, err := c.bookings.FindByID(ctx, payload.BookingID)
		if err != nil {
			return nil, fmt.Errorf("load booking %s: %w", payload.BookingID, err)
		}
		return disputeRecords(eventType, booking.OrganizerID, booking.TalentID), nil

	case enums.EventReviewRevealed:
		var payload payloads.ReviewEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode review payload: %w", err)
		}
		return []appnotifications.RecordInput{{
			UserID:  payload.ReceiverID,
			Type:    enums.NotificationTypeReviewRevealed,
			Title:   "New review published",
			Message: "A review about you is now visible on your profile.",
		}}, nil

	case enums.EventNotificationRequested:
		var payload payloads.NotificationRequestedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode notification payload: %w", err)
		}
		return []appnotifications.RecordInput{{
			UserID:  payload.UserID,
			Type:    payload.Type,
			Title:   payload.Title,
			Message: payload.Message,
			Link:    payload.Link,
		}}, nil
	}
	return nil, nil
}

func bookingRecords(eventType enums.OutboxEventType, payload payloads.BookingEvent) []appnotifications.RecordInput {
	switch eventType {
	case enums.EventBookingCreated:
		return []appnotifications.RecordInput{{
			UserID:  payload.TalentID,
			Type:    enums.NotificationTypeBookingRequested,
			Title:   "New booking request",
			Message: "An organizer has requested to book you for an event.",
		}}
	case enums.EventBookingAccepted:
		return []appnotifications.RecordInput{{
			UserID:  payload.OrganizerID,
			Type:    enums.NotificationTypeBookingDecided,
			Title:   "Booking accepted",
			Message: "The talent accepted your booking. You can now complete payment.",
		}}
	case enums.EventBookingDeclined:
		return []appnotifications.RecordInput{{
			UserID:  payload.OrganizerID,
			Type:    enums.NotificationTypeBookingDecided,
			Title:   "Booking declined",
			Message: "The talent declined your booking request.",
		}}
	}
	return nil
}

func paymentRecords(eventType enums.OutboxEventType, organizerID, talentID uuid.UUID) []appnotifications.RecordInput {
	switch eventType {
	case enums.EventPaymentConfirmed:
		return []appnotifications.RecordInput{
			{
				UserID:  organizerID,
				Type:    enums.NotificationTypePaymentConfirmed,
				Title:   "Payment received",
				Message: "Your payment is confirmed and held until the event completes.",
			},
			{
				UserID:  talentID,
				Type:    enums.NotificationTypePaymentConfirmed,
				Title:   "Booking funded",
				Message: "The organizer's payment cleared. The booking is now secured.",
			},
		}
	case enums.EventPayoutSettled:
		return []appnotifications.RecordInput{{
			UserID:  talentID,
			Type:    enums.NotificationTypePayoutSettled,
			Title:   "Payout sent",
			Message: "Your earnings for a completed booking are on the way.",
		}}
	}
	return nil
}

func disputeRecords(eventType enums.OutboxEventType, organizerID, talentID uuid.UUID) []appnotifications.RecordInput {
	notificationType := enums.NotificationTypeDisputeFiled
	title := "Dispute opened"
	message := "A dispute was filed on one of your bookings. Settlement is paused until it resolves."
	if eventType == enums.EventDisputeResolved {
		notificationType = enums.NotificationTypeDisputeResolved
		title = "Dispute resolved"
		message = "An admin resolved the dispute on your booking. Check the outcome for details."
	}
	return []appnotifications.RecordInput{
		{UserID: organizerID, Type: notificationType, Title: title, Message: message},
		{UserID: talentID, Type: notificationType, Title: title, Message: message},
	}
}
