package escrow

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// PaymentSession is returned from initiatePayment for the organizer's browser.
type PaymentSession struct {
	BookingID   uuid.UUID `json:"bookingId"`
	Reference   string    `json:"reference"`
	CheckoutURL string    `json:"checkoutUrl"`
}

// PaymentConfirmation is the stable result of confirmPayment. Both inbound
// channels receive the same shape, whichever of them performed the transition.
type PaymentConfirmation struct {
	BookingID     uuid.UUID                `json:"bookingId"`
	TransactionID uuid.UUID                `json:"transactionId"`
	Reference     string                   `json:"reference"`
	Status        enums.TransactionStatus  `json:"status"`
	BookingStatus enums.BookingStatus      `json:"bookingStatus"`
	AmountCents   int64                    `json:"amountCents"`
	Currency      enums.Currency           `json:"currency"`
	ConfirmedVia  *enums.ConfirmationSource `json:"confirmedVia,omitempty"`
	ConfirmedAt   *time.Time               `json:"confirmedAt,omitempty"`
}

// PayoutResult reports a settled (or already settled) payout.
type PayoutResult struct {
	BookingID     uuid.UUID `json:"bookingId"`
	TransactionID uuid.UUID `json:"transactionId"`
	AmountCents   int64     `json:"amountCents"`
	TransferID    string    `json:"transferId,omitempty"`
}
