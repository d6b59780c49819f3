package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// Repository abstracts user_profiles access for the booking domain.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
	FindActiveByRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*models.UserProfile, error)
	UpdateRatingAggregate(ctx context.Context, id uuid.UUID, average float64, count int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a users repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	var user models.UserProfile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindActiveByRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*models.UserProfile, error) {
	var user models.UserProfile
	err := r.db.WithContext(ctx).
		Where("id = ? AND role = ? AND is_active = true", id, role).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) UpdateRatingAggregate(ctx context.Context, id uuid.UUID, average float64, count int) error {
	return r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"average_rating": average,
			"rating_count":   count,
		}).Error
}
