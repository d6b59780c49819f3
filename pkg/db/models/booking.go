package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// Booking represents a paid engagement between an organizer and a talent.
// Rows are never hard-deleted; terminal states are the audit trail.
type Booking struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizerID       uuid.UUID           `gorm:"column:organizer_id;type:uuid;not null"`
	TalentID          uuid.UUID           `gorm:"column:talent_id;type:uuid;not null"`
	EventName         string              `gorm:"column:event_name;type:text;not null"`
	EventLocation     *string             `gorm:"column:event_location;type:text"`
	EventDate         time.Time           `gorm:"column:event_date;not null"`
	Status            enums.BookingStatus `gorm:"column:status;type:booking_status;not null;default:'pending'"`
	Currency          enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	GrossAmountCents  int64               `gorm:"column:gross_amount_cents;not null"`
	PlatformFeeCents  int64               `gorm:"column:platform_fee_cents;not null"`
	TalentAmountCents int64               `gorm:"column:talent_amount_cents;not null"`
	IsPaidOut         bool                `gorm:"column:is_paid_out;not null;default:false"`
	Notes             *string             `gorm:"column:notes;type:text"`
	Version           int64               `gorm:"column:version;not null;default:0"`
	AcceptedAt        *time.Time          `gorm:"column:accepted_at"`
	CompletedAt       *time.Time          `gorm:"column:completed_at"`
	Transactions      []Transaction       `gorm:"foreignKey:BookingID"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
