package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/ledger"
	"github.com/stagepasshq/stagepass-backend/internal/users"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/money"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
	"github.com/stagepasshq/stagepass-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type feeRateSource interface {
	FeeRate(ctx context.Context) (decimal.Decimal, error)
}

// AvailabilityChecker asks the scheduling collaborator whether the talent is
// free for the requested window.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, talentID uuid.UUID, eventDate time.Time) (bool, error)
}

// PayoutTrigger releases escrowed funds once a booking completes.
type PayoutTrigger interface {
	SettlePayout(ctx context.Context, bookingID uuid.UUID) error
}

// Service defines the booking lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*BookingResponse, error)
	Respond(ctx context.Context, input RespondInput) (*BookingResponse, error)
	Cancel(ctx context.Context, bookingID, organizerID uuid.UUID) (*BookingResponse, error)
	MarkCompleted(ctx context.Context, bookingID uuid.UUID) error
	Get(ctx context.Context, bookingID, callerID uuid.UUID, callerRole enums.UserRole) (*BookingResponse, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]BookingResponse, error)
}

// ServiceParams bundles the dependencies for NewService.
type ServiceParams struct {
	Repo         Repository
	Users        users.Repository
	Ledger       ledger.Repository
	Tx           txRunner
	Outbox       outboxPublisher
	Settings     feeRateSource
	Availability AvailabilityChecker
	Payout       PayoutTrigger
}

type service struct {
	repo         Repository
	users        users.Repository
	ledger       ledger.Repository
	tx           txRunner
	outbox       outboxPublisher
	settings     feeRateSource
	availability AvailabilityChecker
	payout       PayoutTrigger
}

// NewService builds the booking service.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if p.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
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
	if p.Availability == nil {
		return nil, fmt.Errorf("availability checker required")
	}
	if p.Payout == nil {
		return nil, fmt.Errorf("payout trigger required")
	}
	return &service{
		repo:         p.Repo,
		users:        p.Users,
		ledger:       p.Ledger,
		tx:           p.Tx,
		outbox:       p.Outbox,
		settings:     p.Settings,
		availability: p.Availability,
		payout:       p.Payout,
	}, nil
}

// bookingEvent is the payload shared by lifecycle events.
type bookingEvent struct {
	BookingID   uuid.UUID           `json:"booking_id"`
	OrganizerID uuid.UUID           `json:"organizer_id"`
	TalentID    uuid.UUID           `json:"talent_id"`
	Status      enums.BookingStatus `json:"status"`
	GrossCents  int64               `json:"gross_amount_cents"`
}

func (s *service) Create(ctx context.Context, input CreateInput) (*BookingResponse, error) {
	if input.OrganizerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.GrossAmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be positive")
	}
	if input.EventName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event name required")
	}
	if input.EventDate.Before(time.Now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event date must be in the future")
	}

	if _, err := s.users.FindActiveByRole(ctx, input.OrganizerID, enums.UserRoleOrganizer); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organizer not found or inactive")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading organizer")
	}
	if _, err := s.users.FindActiveByRole(ctx, input.TalentID, enums.UserRoleTalent); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "talent not found or inactive")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading talent")
	}

	available, err := s.availability.IsAvailable(ctx, input.TalentID, input.EventDate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking talent availability")
	}
	if !available {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "talent is unavailable for the requested window")
	}

	feeRate, err := s.settings.FeeRate(ctx)
	if err != nil {
		return nil, err
	}
	split, err := money.ComputeSplit(input.GrossAmountCents, feeRate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "computing fee split")
	}

	booking := &models.Booking{
		OrganizerID:       input.OrganizerID,
		TalentID:          input.TalentID,
		EventName:         input.EventName,
		EventLocation:     input.EventLocation,
		EventDate:         input.EventDate,
		Status:            enums.BookingStatusPending,
		Currency:          enums.CurrencyUSD,
		GrossAmountCents:  split.GrossCents,
		PlatformFeeCents:  split.PlatformFeeCents,
		TalentAmountCents: split.TalentAmountCents,
		Notes:             input.Notes,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, booking); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating booking")
		}

		// Placeholder payment row; initiatePayment swaps in the gateway
		// reference before checkout.
		placeholder := &models.Transaction{
			BookingID:         booking.ID,
			UserID:            input.OrganizerID,
			Kind:              enums.TransactionKindBookingPayment,
			Status:            enums.TransactionStatusPending,
			AmountCents:       split.GrossCents,
			Currency:          enums.CurrencyUSD,
			ExternalReference: paymentReference(booking.ID),
		}
		if _, err := s.ledger.WithTx(tx).Create(ctx, placeholder); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating payment placeholder")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCreated,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         &outbox.ActorRef{UserID: input.OrganizerID, Role: enums.UserRoleOrganizer.String()},
			Data: bookingEvent{
				BookingID:   booking.ID,
				OrganizerID: booking.OrganizerID,
				TalentID:    booking.TalentID,
				Status:      booking.Status,
				GrossCents:  booking.GrossAmountCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return NewBookingResponse(booking), nil
}

func (s *service) Respond(ctx context.Context, input RespondInput) (*BookingResponse, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.TalentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var target enums.BookingStatus
	var eventType enums.OutboxEventType
	switch input.Decision {
	case DecisionAccept:
		target = enums.BookingStatusAccepted
		eventType = enums.EventBookingAccepted
	case DecisionDecline:
		target = enums.BookingStatusDeclined
		eventType = enums.EventBookingDeclined
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid decision %q", input.Decision))
	}

	var booking *models.Booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByIDForUpdate(ctx, input.BookingID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}
		if found.TalentID != input.TalentID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the booked talent may respond")
		}
		if found.Status != enums.BookingStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("booking is %s, only pending bookings accept a response", found.Status))
		}

		extra := map[string]any{}
		if target == enums.BookingStatusAccepted {
			extra["accepted_at"] = time.Now()
		}
		swapped, err := repo.TransitionStatus(ctx, found.ID, enums.BookingStatusPending, target, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transitioning booking")
		}
		if !swapped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking state changed concurrently")
		}
		found.Status = target
		booking = found

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateBooking,
			AggregateID:   found.ID,
			Actor:         &outbox.ActorRef{UserID: input.TalentID, Role: enums.UserRoleTalent.String()},
			Data: bookingEvent{
				BookingID:   found.ID,
				OrganizerID: found.OrganizerID,
				TalentID:    found.TalentID,
				Status:      target,
				GrossCents:  found.GrossAmountCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return NewBookingResponse(booking), nil
}

// Cancel withdraws a booking before any money has moved. Paid bookings can
// only be unwound through the dispute path.
func (s *service) Cancel(ctx context.Context, bookingID, organizerID uuid.UUID) (*BookingResponse, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}

	var booking *models.Booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}
		if found.OrganizerID != organizerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the organizer may cancel")
		}
		if found.Status != enums.BookingStatusPending && found.Status != enums.BookingStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("booking is %s, only pending or accepted bookings may be cancelled", found.Status))
		}

		swapped, err := repo.TransitionStatus(ctx, found.ID, found.Status, enums.BookingStatusCancelled, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling booking")
		}
		if !swapped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking state changed concurrently")
		}
		found.Status = enums.BookingStatusCancelled
		booking = found

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCancelled,
			AggregateType: enums.AggregateBooking,
			AggregateID:   found.ID,
			Actor:         &outbox.ActorRef{UserID: organizerID, Role: enums.UserRoleOrganizer.String()},
			Data: bookingEvent{
				BookingID:   found.ID,
				OrganizerID: found.OrganizerID,
				TalentID:    found.TalentID,
				Status:      enums.BookingStatusCancelled,
				GrossCents:  found.GrossAmountCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return NewBookingResponse(booking), nil
}

// MarkCompleted moves a paid booking to completed and triggers settlement.
// Invoked by both the scheduled sweep and the admin surface, so double
// invocation is a no-op rather than an error.
func (s *service) MarkCompleted(ctx context.Context, bookingID uuid.UUID) error {
	if bookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}

	var needsPayout bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}

		if found.Status == enums.BookingStatusCompleted {
			// Already completed; retry the payout if it never settled.
			needsPayout = !found.IsPaidOut
			return nil
		}
		if found.Status != enums.BookingStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("booking is %s, only paid bookings complete", found.Status))
		}
		if found.EventDate.After(time.Now()) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "event date has not elapsed")
		}

		swapped, err := repo.TransitionStatus(ctx, found.ID, enums.BookingStatusPaid, enums.BookingStatusCompleted,
			map[string]any{"completed_at": time.Now()})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "completing booking")
		}
		if !swapped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking state changed concurrently")
		}
		needsPayout = true

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCompleted,
			AggregateType: enums.AggregateBooking,
			AggregateID:   found.ID,
			Data: bookingEvent{
				BookingID:   found.ID,
				OrganizerID: found.OrganizerID,
				TalentID:    found.TalentID,
				Status:      enums.BookingStatusCompleted,
				GrossCents:  found.GrossAmountCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return err
	}

	if needsPayout {
		return s.payout.SettlePayout(ctx, bookingID)
	}
	return nil
}

func (s *service) Get(ctx context.Context, bookingID, callerID uuid.UUID, callerRole enums.UserRole) (*BookingResponse, error) {
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
	}
	if callerRole != enums.UserRoleAdmin && booking.OrganizerID != callerID && booking.TalentID != callerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this booking")
	}
	return NewBookingResponse(booking), nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]BookingResponse, error) {
	rows, err := s.repo.ListByParticipant(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing bookings")
	}
	out := make([]BookingResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *NewBookingResponse(&rows[i]))
	}
	return out, nil
}

func paymentReference(bookingID uuid.UUID) string {
	return "bkpay_" + bookingID.String()
}
