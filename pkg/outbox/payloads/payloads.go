package payloads

import (
	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// BookingEvent mirrors the booking lifecycle payload written by the booking
// service.
type BookingEvent struct {
	BookingID   uuid.UUID           `json:"booking_id"`
	OrganizerID uuid.UUID           `json:"organizer_id"`
	TalentID    uuid.UUID           `json:"talent_id"`
	Status      enums.BookingStatus `json:"status"`
	GrossCents  int64               `json:"gross_amount_cents"`
}

// PaymentEvent mirrors the escrow payment/payout payload.
type PaymentEvent struct {
	BookingID     uuid.UUID                 `json:"booking_id"`
	TransactionID uuid.UUID                 `json:"transaction_id"`
	Reference     string                    `json:"reference"`
	AmountCents   int64                     `json:"amount_cents"`
	Source        *enums.ConfirmationSource `json:"source,omitempty"`
}

// DisputeEvent mirrors the dispute lifecycle payload.
type DisputeEvent struct {
	DisputeID   uuid.UUID           `json:"dispute_id"`
	BookingID   uuid.UUID           `json:"booking_id"`
	Status      enums.DisputeStatus `json:"status"`
	RefundCents int64               `json:"refund_amount_cents,omitempty"`
	PayoutCents int64               `json:"payout_amount_cents,omitempty"`
}

// ReviewEvent mirrors the review submit/reveal payload.
type ReviewEvent struct {
	ReviewID   uuid.UUID `json:"review_id"`
	BookingID  uuid.UUID `json:"booking_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Visible    bool      `json:"visible"`
}

// RatingEvent mirrors the rating aggregate payload.
type RatingEvent struct {
	UserID        uuid.UUID `json:"user_id"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int64     `json:"rating_count"`
}

// NotificationRequestedEvent asks the notification consumer to deliver an
// arbitrary in-app message.
type NotificationRequestedEvent struct {
	UserID  uuid.UUID              `json:"user_id"`
	Type    enums.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Link    *string                `json:"link,omitempty"`
}
