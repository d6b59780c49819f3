package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateBooking      OutboxAggregateType = "booking"
	AggregateTransaction  OutboxAggregateType = "transaction"
	AggregateDispute      OutboxAggregateType = "dispute"
	AggregateReview       OutboxAggregateType = "review"
	AggregateUser         OutboxAggregateType = "user"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBooking,
	AggregateTransaction,
	AggregateDispute,
	AggregateReview,
	AggregateUser,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventBookingCreated        OutboxEventType = "booking_created"
	EventBookingAccepted       OutboxEventType = "booking_accepted"
	EventBookingDeclined       OutboxEventType = "booking_declined"
	EventBookingCancelled      OutboxEventType = "booking_cancelled"
	EventBookingCompleted      OutboxEventType = "booking_completed"
	EventPaymentInitiated      OutboxEventType = "payment_initiated"
	EventPaymentConfirmed      OutboxEventType = "payment_confirmed"
	EventPaymentFailed         OutboxEventType = "payment_failed"
	EventPaymentExpired        OutboxEventType = "payment_expired"
	EventPayoutSettled         OutboxEventType = "payout_settled"
	EventPayoutFailed          OutboxEventType = "payout_failed"
	EventRefundIssued          OutboxEventType = "refund_issued"
	EventDisputeFiled          OutboxEventType = "dispute_filed"
	EventDisputeUnderReview    OutboxEventType = "dispute_under_review"
	EventDisputeResolved       OutboxEventType = "dispute_resolved"
	EventReviewSubmitted       OutboxEventType = "review_submitted"
	EventReviewRevealed        OutboxEventType = "review_revealed"
	EventRatingRecalculated    OutboxEventType = "rating_recalculated"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBookingCreated,
	EventBookingAccepted,
	EventBookingDeclined,
	EventBookingCancelled,
	EventBookingCompleted,
	EventPaymentInitiated,
	EventPaymentConfirmed,
	EventPaymentFailed,
	EventPaymentExpired,
	EventPayoutSettled,
	EventPayoutFailed,
	EventRefundIssued,
	EventDisputeFiled,
	EventDisputeUnderReview,
	EventDisputeResolved,
	EventReviewSubmitted,
	EventReviewRevealed,
	EventRatingRecalculated,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
