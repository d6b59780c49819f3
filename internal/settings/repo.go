package settings

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stagepasshq/stagepass-backend/internal/repo"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
)

// Repository abstracts platform_settings access.
type Repository interface {
	Find(ctx context.Context, key string) (*models.PlatformSetting, error)
	List(ctx context.Context) ([]models.PlatformSetting, error)
	Upsert(ctx context.Context, key, value, updatedBy string) (*models.PlatformSetting, error)
}

type gormRepository struct {
	repo.Base
}

// NewRepository builds the GORM-backed settings repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Base: repo.NewBase(db)}
}

func (r *gormRepository) Find(ctx context.Context, key string) (*models.PlatformSetting, error) {
	var row models.PlatformSetting
	if err := r.DB(ctx).Where("key = ?", key).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *gormRepository) List(ctx context.Context) ([]models.PlatformSetting, error) {
	var rows []models.PlatformSetting
	err := r.DB(ctx).Order("key ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepository) Upsert(ctx context.Context, key, value, updatedBy string) (*models.PlatformSetting, error) {
	row := models.PlatformSetting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	if updatedBy != "" {
		row.UpdatedBy = &updatedBy
	}
	err := r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
