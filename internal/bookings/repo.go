package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	"github.com/stagepasshq/stagepass-backend/pkg/pagination"
)

// Repository abstracts booking persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from enums.BookingStatus, to enums.BookingStatus, extra map[string]any) (bool, error)
	SetPaidOutIfFalse(ctx context.Context, id uuid.UUID) (bool, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Booking, error)
	ListCompletable(ctx context.Context, before time.Time, limit int) ([]models.Booking, error)
	CountConfirmedOn(ctx context.Context, talentID uuid.UUID, from, until time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate takes the per-booking row lock that serializes every
// state-mutating operation on a booking's financial state.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// TransitionStatus performs a guarded status swap. The version bump makes the
// write observable to optimistic readers; the status guard makes it a CAS.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from enums.BookingStatus, to enums.BookingStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":  to,
		"version": gorm.Expr("version + 1"),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPaidOutIfFalse flips is_paid_out exactly once.
func (r *repository) SetPaidOutIfFalse(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND is_paid_out = false AND status = ?", id, enums.BookingStatusCompleted).
		Updates(map[string]any{
			"is_paid_out": true,
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Booking, error) {
	query := r.db.WithContext(ctx).
		Where("organizer_id = ? OR talent_id = ?", userID, userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Booking
	err = query.Find(&rows).Error
	return rows, err
}

// CountConfirmedOn counts the talent's committed bookings inside the window.
// Pending requests don't block the calendar; accepted and paid ones do.
func (r *repository) CountConfirmedOn(ctx context.Context, talentID uuid.UUID, from, until time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("talent_id = ? AND event_date >= ? AND event_date < ? AND status IN ?",
			talentID, from, until, []enums.BookingStatus{enums.BookingStatusAccepted, enums.BookingStatusPaid}).
		Count(&count).Error
	return count, err
}

// ListCompletable returns paid bookings whose event date has elapsed, for the
// scheduled completion sweep.
func (r *repository) ListCompletable(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND event_date < ?", enums.BookingStatusPaid, before).
		Order("event_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
