package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// Transaction records a single money movement for a booking. The unique
// external_reference is the idempotency key shared with the payment gateway.
type Transaction struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID         uuid.UUID                 `gorm:"column:booking_id;type:uuid;not null;index"`
	UserID            uuid.UUID                 `gorm:"column:user_id;type:uuid;not null"`
	Kind              enums.TransactionKind     `gorm:"column:kind;type:transaction_kind;not null"`
	Status            enums.TransactionStatus   `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	AmountCents       int64                     `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency            `gorm:"column:currency;type:text;not null;default:'USD'"`
	ExternalReference string                    `gorm:"column:external_reference;type:text;not null;uniqueIndex:ux_transactions_external_reference"`
	ConfirmedVia      *enums.ConfirmationSource `gorm:"column:confirmed_via;type:text"`
	FailureReason     *string                   `gorm:"column:failure_reason;type:text"`
	ConfirmedAt       *time.Time                `gorm:"column:confirmed_at"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
