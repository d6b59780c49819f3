package disputes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// Repository abstracts dispute persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error)
	MarkUnderReview(ctx context.Context, id uuid.UUID) (bool, error)
	Resolve(ctx context.Context, id uuid.UUID, outcome ResolutionRecord) (bool, error)
	ListActive(ctx context.Context, limit int) ([]models.Dispute, error)
}

// ResolutionRecord carries the terminal fields written on resolution.
type ResolutionRecord struct {
	Status            enums.DisputeStatus
	ResolvedByID      uuid.UUID
	Notes             *string
	RefundAmountCents int64
	PayoutAmountCents int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a disputes repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error) {
	if err := r.db.WithContext(ctx).Create(dispute).Error; err != nil {
		return nil, err
	}
	return dispute, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dispute).Error
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&dispute).Error
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND status IN ?", bookingID,
			[]enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview}).
		First(&dispute).Error
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) MarkUnderReview(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Dispute{}).
		Where("id = ? AND status = ?", id, enums.DisputeStatusOpen).
		Update("status", enums.DisputeStatusUnderReview)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Resolve finalizes an active dispute. The status guard makes resolution a
// one-shot transition.
func (r *repository) Resolve(ctx context.Context, id uuid.UUID, outcome ResolutionRecord) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Dispute{}).
		Where("id = ? AND status IN ?", id,
			[]enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview}).
		Updates(map[string]any{
			"status":              outcome.Status,
			"resolved_by_id":      outcome.ResolvedByID,
			"resolution_notes":    outcome.Notes,
			"refund_amount_cents": outcome.RefundAmountCents,
			"payout_amount_cents": outcome.PayoutAmountCents,
			"resolved_at":         time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListActive(ctx context.Context, limit int) ([]models.Dispute, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Dispute
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview}).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
