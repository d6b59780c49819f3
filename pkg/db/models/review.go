package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// Review is one side of a double-blind review pair. Invisible until the
// counterpart arrives or the disclosure window elapses.
type Review struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID    uuid.UUID          `gorm:"column:booking_id;type:uuid;not null;uniqueIndex:ux_reviews_booking_reviewer,priority:1"`
	ReviewerType enums.ReviewerType `gorm:"column:reviewer_type;type:reviewer_type;not null;uniqueIndex:ux_reviews_booking_reviewer,priority:2"`
	GiverID      uuid.UUID          `gorm:"column:giver_id;type:uuid;not null"`
	ReceiverID   uuid.UUID          `gorm:"column:receiver_id;type:uuid;not null;index"`
	Rating       int                `gorm:"column:rating;not null"`
	Comment      *string            `gorm:"column:comment;type:text"`
	IsVisible    bool               `gorm:"column:is_visible;not null;default:false"`
	RevealedAt   *time.Time         `gorm:"column:revealed_at"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
