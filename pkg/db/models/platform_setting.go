package models

import "time"

// PlatformSetting is a key/value row for operator-tunable policy.
// Values are stored as text and parsed by the settings service.
type PlatformSetting struct {
	Key         string    `gorm:"column:key;type:text;primaryKey"`
	Value       string    `gorm:"column:value;type:text;not null"`
	Description *string   `gorm:"column:description;type:text"`
	UpdatedBy   *string   `gorm:"column:updated_by;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
