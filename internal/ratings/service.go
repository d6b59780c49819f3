package ratings

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/reviews"
	"github.com/stagepasshq/stagepass-backend/internal/users"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service maintains per-user rating aggregates derived from visible reviews.
type Service interface {
	reviews.RatingRecalculator
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)
}

// Summary is a user's current aggregate.
type Summary struct {
	UserID        uuid.UUID `json:"userId"`
	AverageRating float64   `json:"averageRating"`
	RatingCount   int64     `json:"ratingCount"`
}

type service struct {
	reviews reviews.Repository
	users   users.Repository
	outbox  outboxPublisher
}

// NewService builds the rating aggregation service.
func NewService(reviewRepo reviews.Repository, userRepo users.Repository, publisher outboxPublisher) (Service, error) {
	if reviewRepo == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{reviews: reviewRepo, users: userRepo, outbox: publisher}, nil
}

type ratingEvent struct {
	UserID        uuid.UUID `json:"user_id"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int64     `json:"rating_count"`
}

// Recalculate recomputes the aggregate from visible reviews inside the
// caller's transaction, so the reveal and the new average commit together.
func (s *service) Recalculate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	average, count, err := s.reviews.WithTx(tx).VisibleAggregateForReceiver(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregating visible reviews")
	}
	average = roundRating(average)
	if err := s.users.WithTx(tx).UpdateRatingAggregate(ctx, userID, average, int(count)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating rating aggregate")
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRatingRecalculated,
		AggregateType: enums.AggregateUser,
		AggregateID:   userID,
		Data: ratingEvent{
			UserID:        userID,
			AverageRating: average,
			RatingCount:   count,
		},
		Version: 1,
	})
}

func (s *service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading user")
	}
	summary := &Summary{UserID: user.ID, RatingCount: int64(user.RatingCount)}
	if user.AverageRating != nil {
		summary.AverageRating = *user.AverageRating
	}
	return summary, nil
}

// roundRating keeps the stored average at two decimal places.
func roundRating(v float64) float64 {
	return math.Round(v*100) / 100
}
