package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// Repository abstracts transaction rows. Every money movement, in or out,
// lands here so a booking's financial history is reconstructible.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error)
	FindByBookingAndKind(ctx context.Context, bookingID uuid.UUID, kind enums.TransactionKind) (*models.Transaction, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error)
	ListStalePending(ctx context.Context, kind enums.TransactionKind, olderThan time.Time, limit int) ([]models.Transaction, error)
	MarkSuccessIfPending(ctx context.Context, id uuid.UUID, source enums.ConfirmationSource) (bool, error)
	MarkSuccess(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Requeue(ctx context.Context, id uuid.UUID) error
	UpdateReference(ctx context.Context, id uuid.UUID, reference string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("external_reference = ?", reference).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_reference = ?", reference).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByBookingAndKind(ctx context.Context, bookingID uuid.UUID, kind enums.TransactionKind) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND kind = ?", bookingID, kind).
		Order("created_at DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListStalePending(ctx context.Context, kind enums.TransactionKind, olderThan time.Time, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND created_at < ?", kind, enums.TransactionStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkSuccessIfPending performs the pending -> success compare-and-swap. The
// returned bool reports whether this caller won the transition.
func (r *repository) MarkSuccessIfPending(ctx context.Context, id uuid.UUID, source enums.ConfirmationSource) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(map[string]any{
			"status":        enums.TransactionStatusSuccess,
			"confirmed_via": source,
			"confirmed_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkSuccess finalizes outbound movements (payouts, refunds) that have no
// confirmation source channel.
func (r *repository) MarkSuccess(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.TransactionStatusSuccess,
			"confirmed_at": time.Now(),
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         enums.TransactionStatusFailed,
			"failure_reason": reason,
		}).Error
}

// Requeue returns a failed movement to pending ahead of a retry.
func (r *repository) Requeue(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusFailed).
		Updates(map[string]any{
			"status":         enums.TransactionStatusPending,
			"failure_reason": nil,
		}).Error
}

func (r *repository) UpdateReference(ctx context.Context, id uuid.UUID, reference string) error {
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Update("external_reference", reference).Error
}
