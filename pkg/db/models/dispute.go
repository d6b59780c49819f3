package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// Dispute freezes a booking's settlement until an admin resolves it.
// At most one open/under_review dispute exists per booking.
type Dispute struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID         uuid.UUID           `gorm:"column:booking_id;type:uuid;not null;index"`
	DisputedByID      uuid.UUID           `gorm:"column:disputed_by_id;type:uuid;not null"`
	DisputedByRole    enums.UserRole      `gorm:"column:disputed_by_role;type:user_role;not null"`
	Reason            enums.DisputeReason `gorm:"column:reason;type:dispute_reason;not null"`
	Explanation       string              `gorm:"column:explanation;type:text;not null"`
	Status            enums.DisputeStatus `gorm:"column:status;type:dispute_status;not null;default:'open'"`
	ResolutionNotes   *string             `gorm:"column:resolution_notes;type:text"`
	ResolvedByID      *uuid.UUID          `gorm:"column:resolved_by_id;type:uuid"`
	RefundAmountCents *int64              `gorm:"column:refund_amount_cents"`
	PayoutAmountCents *int64              `gorm:"column:payout_amount_cents"`
	ResolvedAt        *time.Time          `gorm:"column:resolved_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
