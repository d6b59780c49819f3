package reviews

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	"github.com/stagepasshq/stagepass-backend/pkg/db"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type disclosureWindowSource interface {
	ReviewDisclosureWindow(ctx context.Context) (time.Duration, error)
}

// RatingRecalculator refreshes a user's aggregate after reviews about them
// become visible. Runs inside the caller's transaction.
type RatingRecalculator interface {
	Recalculate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

// Service implements double-blind reviews: each side's review stays hidden
// until the counterpart submits theirs or the disclosure window elapses.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*ReviewResponse, error)
	ListForUser(ctx context.Context, receiverID uuid.UUID, limit int) ([]ReviewResponse, error)
	GetOwn(ctx context.Context, reviewID, giverID uuid.UUID) (*ReviewResponse, error)
	SweepDisclosures(ctx context.Context, batchSize int) (*SweepResult, error)
}

// ServiceParams bundles the dependencies for NewService.
type ServiceParams struct {
	Repo     Repository
	Bookings bookings.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Settings disclosureWindowSource
	Ratings  RatingRecalculator
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	bookings bookings.Repository
	tx       txRunner
	outbox   outboxPublisher
	settings disclosureWindowSource
	ratings  RatingRecalculator
	logg     *logger.Logger
}

// NewService builds the review service.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if p.Bookings == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Settings == nil {
		return nil, fmt.Errorf("settings source required")
	}
	if p.Ratings == nil {
		return nil, fmt.Errorf("rating recalculator required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     p.Repo,
		bookings: p.Bookings,
		tx:       p.Tx,
		outbox:   p.Outbox,
		settings: p.Settings,
		ratings:  p.Ratings,
		logg:     p.Logger,
	}, nil
}

type reviewEvent struct {
	ReviewID   uuid.UUID `json:"review_id"`
	BookingID  uuid.UUID `json:"booking_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Visible    bool      `json:"visible"`
}

// Submit records a review and, when it completes the pair, reveals both
// sides in the same transaction.
func (s *service) Submit(ctx context.Context, input SubmitInput) (*ReviewResponse, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.GiverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}

	var review *models.Review
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// The booking row lock serializes the two first submissions; a
		// FOR UPDATE on review rows alone cannot, since neither row exists
		// yet and both writers would miss each other's counterpart.
		booking, err := s.bookings.WithTx(tx).FindByIDForUpdate(ctx, input.BookingID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}

		var reviewerType enums.ReviewerType
		var receiverID uuid.UUID
		switch input.GiverID {
		case booking.OrganizerID:
			reviewerType = enums.ReviewerTypeOrganizer
			receiverID = booking.TalentID
		case booking.TalentID:
			reviewerType = enums.ReviewerTypeTalent
			receiverID = booking.OrganizerID
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "only booking participants may review")
		}

		if booking.Status != enums.BookingStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("booking is %s, reviews open once completed", booking.Status))
		}

		// Lock any existing review rows for this booking so the
		// reveal-on-pair decision is serialized.
		txRepo := s.repo.WithTx(tx)
		existing, err := txRepo.FindByBookingForUpdate(ctx, booking.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking reviews")
		}
		var counterpart *models.Review
		for i := range existing {
			if existing[i].ReviewerType == reviewerType {
				return pkgerrors.New(pkgerrors.CodeConflict, "review already submitted for this booking")
			}
			if existing[i].ReviewerType == reviewerType.Counterpart() {
				counterpart = &existing[i]
			}
		}

		review = &models.Review{
			BookingID:    booking.ID,
			ReviewerType: reviewerType,
			GiverID:      input.GiverID,
			ReceiverID:   receiverID,
			Rating:       input.Rating,
			Comment:      input.Comment,
		}
		if _, err := txRepo.Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, "ux_reviews_booking_reviewer") {
				return pkgerrors.New(pkgerrors.CodeConflict, "review already submitted for this booking")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating review")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReviewSubmitted,
			AggregateType: enums.AggregateReview,
			AggregateID:   review.ID,
			Actor:         &outbox.ActorRef{UserID: input.GiverID, Role: reviewerType.String()},
			Data: reviewEvent{
				ReviewID:   review.ID,
				BookingID:  booking.ID,
				ReceiverID: receiverID,
				Visible:    false,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		if counterpart == nil {
			return nil
		}
		return s.revealPair(ctx, tx, []*models.Review{review, counterpart})
	})
	if err != nil {
		return nil, err
	}
	return NewReviewResponse(review), nil
}

// revealPair makes the given reviews visible, refreshes the receivers'
// aggregates, and emits a reveal event per review. Callers hold row locks.
func (s *service) revealPair(ctx context.Context, tx *gorm.DB, pair []*models.Review) error {
	now := time.Now()
	ids := make([]uuid.UUID, 0, len(pair))
	for _, r := range pair {
		if !r.IsVisible {
			ids = append(ids, r.ID)
		}
	}
	txRepo := s.repo.WithTx(tx)
	if _, err := txRepo.Reveal(ctx, ids, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revealing reviews")
	}
	for _, r := range pair {
		if r.IsVisible {
			continue
		}
		r.IsVisible = true
		r.RevealedAt = &now
		if err := s.ratings.Recalculate(ctx, tx, r.ReceiverID); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReviewRevealed,
			AggregateType: enums.AggregateReview,
			AggregateID:   r.ID,
			Data: reviewEvent{
				ReviewID:   r.ID,
				BookingID:  r.BookingID,
				ReceiverID: r.ReceiverID,
				Visible:    true,
			},
			Version: 1,
		}); err != nil {
			return err
		}
	}
	return nil
}

// SweepDisclosures reveals lone reviews whose disclosure window has elapsed.
// Each booking is handled in its own transaction, re-checking under lock that
// the counterpart still has not arrived.
func (s *service) SweepDisclosures(ctx context.Context, batchSize int) (*SweepResult, error) {
	window, err := s.settings.ReviewDisclosureWindow(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-window)

	candidates, err := s.repo.ListHiddenOlderThan(ctx, cutoff, batchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing expired hidden reviews")
	}

	result := &SweepResult{Examined: len(candidates)}
	seen := make(map[uuid.UUID]bool, len(candidates))
	for i := range candidates {
		bookingID := candidates[i].BookingID
		if seen[bookingID] {
			continue
		}
		seen[bookingID] = true

		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			rows, err := s.repo.WithTx(tx).FindByBookingForUpdate(ctx, bookingID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking booking reviews")
			}
			pair := make([]*models.Review, 0, len(rows))
			expired := false
			for j := range rows {
				if !rows[j].IsVisible {
					pair = append(pair, &rows[j])
					if !rows[j].CreatedAt.After(cutoff) {
						expired = true
					}
				}
			}
			// A counterpart may have arrived since the scan; reveal-on-pair
			// already handled that booking, nothing hidden remains.
			if len(pair) == 0 || !expired {
				return nil
			}
			if err := s.revealPair(ctx, tx, pair); err != nil {
				return err
			}
			result.Revealed += len(pair)
			return nil
		})
		if err != nil {
			logCtx := s.logg.WithBookingID(ctx, bookingID.String())
			s.logg.Error(logCtx, "disclosure sweep failed for booking", err)
		}
	}
	return result, nil
}

func (s *service) ListForUser(ctx context.Context, receiverID uuid.UUID, limit int) ([]ReviewResponse, error) {
	if receiverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	rows, err := s.repo.ListVisibleForReceiver(ctx, receiverID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing reviews")
	}
	out := make([]ReviewResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *NewReviewResponse(&rows[i]))
	}
	return out, nil
}

// GetOwn returns a review to its giver regardless of visibility.
func (s *service) GetOwn(ctx context.Context, reviewID, giverID uuid.UUID) (*ReviewResponse, error) {
	review, err := s.repo.FindByID(ctx, reviewID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading review")
	}
	if review.GiverID != giverID && !review.IsVisible {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
	}
	return NewReviewResponse(review), nil
}
