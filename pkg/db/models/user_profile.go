package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// UserProfile is the platform-facing identity row. Identity provisioning is
// owned by an upstream service; this table carries the booking-relevant
// attributes plus the denormalized rating aggregate.
type UserProfile struct {
	ID                  uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email               string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	DisplayName         string         `gorm:"column:display_name;type:text;not null"`
	Role                enums.UserRole `gorm:"column:role;type:user_role;not null"`
	IsActive            bool           `gorm:"column:is_active;not null;default:true"`
	PayoutAccountHandle *string        `gorm:"column:payout_account_handle;type:text"`
	AverageRating       *float64       `gorm:"column:average_rating"`
	RatingCount         int            `gorm:"column:rating_count;not null;default:0"`
	CreatedAt           time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
