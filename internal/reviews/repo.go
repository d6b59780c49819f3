package reviews

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// Repository abstracts review persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, review *models.Review) (*models.Review, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error)
	FindByBookingAndType(ctx context.Context, bookingID uuid.UUID, reviewerType enums.ReviewerType) (*models.Review, error)
	FindByBookingForUpdate(ctx context.Context, bookingID uuid.UUID) ([]models.Review, error)
	Reveal(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error)
	ListVisibleForReceiver(ctx context.Context, receiverID uuid.UUID, limit int) ([]models.Review, error)
	ListHiddenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Review, error)
	VisibleAggregateForReceiver(ctx context.Context, receiverID uuid.UUID) (float64, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reviews repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, review *models.Review) (*models.Review, error) {
	if err := r.db.WithContext(ctx).Create(review).Error; err != nil {
		return nil, err
	}
	return review, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&review).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *repository) FindByBookingAndType(ctx context.Context, bookingID uuid.UUID, reviewerType enums.ReviewerType) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND reviewer_type = ?", bookingID, reviewerType).
		First(&review).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// FindByBookingForUpdate locks the booking's review rows so a concurrent
// submit or sweep cannot reveal the same pair twice.
func (r *repository) FindByBookingForUpdate(ctx context.Context, bookingID uuid.UUID) ([]models.Review, error) {
	var rows []models.Review
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// Reveal flips hidden reviews visible. The is_visible guard keeps the write
// idempotent.
func (r *repository) Reveal(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Review{}).
		Where("id IN ? AND is_visible = false", ids).
		Updates(map[string]any{
			"is_visible":  true,
			"revealed_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListVisibleForReceiver(ctx context.Context, receiverID uuid.UUID, limit int) ([]models.Review, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Review
	err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND is_visible = true", receiverID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListHiddenOlderThan feeds the disclosure sweep with candidate bookings.
func (r *repository) ListHiddenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Review, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Review
	err := r.db.WithContext(ctx).
		Where("is_visible = false AND created_at <= ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) VisibleAggregateForReceiver(ctx context.Context, receiverID uuid.UUID) (float64, int64, error) {
	var agg struct {
		Average float64
		Count   int64
	}
	err := r.db.WithContext(ctx).Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("receiver_id = ? AND is_visible = true", receiverID).
		Scan(&agg).Error
	if err != nil {
		return 0, 0, err
	}
	return agg.Average, agg.Count, nil
}
