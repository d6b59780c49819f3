package disputes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	"github.com/stagepasshq/stagepass-backend/internal/escrow"
	"github.com/stagepasshq/stagepass-backend/internal/ledger"
	"github.com/stagepasshq/stagepass-backend/internal/users"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type filingWindowSource interface {
	DisputeFilingWindow(ctx context.Context) (time.Duration, error)
}

// Service freezes bookings and reallocates escrowed funds on resolution.
type Service interface {
	File(ctx context.Context, input FileInput) (*DisputeResponse, error)
	BeginReview(ctx context.Context, disputeID, adminID uuid.UUID) (*DisputeResponse, error)
	Resolve(ctx context.Context, input ResolveInput) (*DisputeResponse, error)
	Get(ctx context.Context, disputeID uuid.UUID) (*DisputeResponse, error)
	ListActive(ctx context.Context, limit int) ([]DisputeResponse, error)
}

// ServiceParams bundles the dependencies for NewService.
type ServiceParams struct {
	Repo     Repository
	Bookings bookings.Repository
	Ledger   ledger.Repository
	Users    users.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Payments escrow.PaymentGateway
	Payouts  escrow.PayoutGateway
	Settings filingWindowSource
}

type service struct {
	repo     Repository
	bookings bookings.Repository
	ledger   ledger.Repository
	users    users.Repository
	tx       txRunner
	outbox   outboxPublisher
	payments escrow.PaymentGateway
	payouts  escrow.PayoutGateway
	settings filingWindowSource
}

// NewService builds the dispute service.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("disputes repository required")
	}
	if p.Bookings == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if p.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Payments == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Payouts == nil {
		return nil, fmt.Errorf("payout gateway required")
	}
	if p.Settings == nil {
		return nil, fmt.Errorf("settings source required")
	}
	return &service{
		repo:     p.Repo,
		bookings: p.Bookings,
		ledger:   p.Ledger,
		users:    p.Users,
		tx:       p.Tx,
		outbox:   p.Outbox,
		payments: p.Payments,
		payouts:  p.Payouts,
		settings: p.Settings,
	}, nil
}

type disputeEvent struct {
	DisputeID   uuid.UUID           `json:"dispute_id"`
	BookingID   uuid.UUID           `json:"booking_id"`
	Status      enums.DisputeStatus `json:"status"`
	RefundCents int64               `json:"refund_amount_cents,omitempty"`
	PayoutCents int64               `json:"payout_amount_cents,omitempty"`
}

// File opens a dispute and freezes the booking's settlement.
func (s *service) File(ctx context.Context, input FileInput) (*DisputeResponse, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.FilerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Explanation == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "explanation required")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid dispute reason %q", input.Reason))
	}

	window, err := s.settings.DisputeFilingWindow(ctx)
	if err != nil {
		return nil, err
	}

	var dispute *models.Dispute
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bookings.WithTx(tx)
		booking, err := repo.FindByIDForUpdate(ctx, input.BookingID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}

		var filerRole enums.UserRole
		switch input.FilerID {
		case booking.OrganizerID:
			filerRole = enums.UserRoleOrganizer
		case booking.TalentID:
			filerRole = enums.UserRoleTalent
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "only booking participants may file a dispute")
		}
		if !input.Reason.AllowedForRole(filerRole) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("reason %s is not available to the %s role", input.Reason, filerRole))
		}

		now := time.Now()
		if booking.EventDate.After(now) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "disputes open only after the event date")
		}
		if now.After(booking.EventDate.Add(window)) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute filing window has closed")
		}
		if booking.IsPaidOut {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "funds already paid out, dispute window closed")
		}
		if !booking.Status.CanDispute() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("booking is %s, no escrowed funds to dispute", booking.Status))
		}

		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindActiveByBooking(ctx, booking.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "an active dispute already exists for this booking")
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking active disputes")
		}

		dispute = &models.Dispute{
			BookingID:      booking.ID,
			DisputedByID:   input.FilerID,
			DisputedByRole: filerRole,
			Reason:         input.Reason,
			Explanation:    input.Explanation,
			Status:         enums.DisputeStatusOpen,
		}
		if _, err := txRepo.Create(ctx, dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating dispute")
		}

		frozen, err := repo.TransitionStatus(ctx, booking.ID, booking.Status, enums.BookingStatusDisputed, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "freezing booking")
		}
		if !frozen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking state changed concurrently")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeFiled,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Actor:         &outbox.ActorRef{UserID: input.FilerID, Role: filerRole.String()},
			Data: disputeEvent{
				DisputeID: dispute.ID,
				BookingID: booking.ID,
				Status:    dispute.Status,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return NewDisputeResponse(dispute), nil
}

// BeginReview moves an open dispute into the admin's queue.
func (s *service) BeginReview(ctx context.Context, disputeID, adminID uuid.UUID) (*DisputeResponse, error) {
	if disputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}

	var dispute *models.Dispute
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		found, err := txRepo.FindByIDForUpdate(ctx, disputeID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading dispute")
		}
		if found.Status != enums.DisputeStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("dispute is %s, review starts from open", found.Status))
		}
		moved, err := txRepo.MarkUnderReview(ctx, found.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking dispute under review")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute state changed concurrently")
		}
		found.Status = enums.DisputeStatusUnderReview
		dispute = found

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeUnderReview,
			AggregateType: enums.AggregateDispute,
			AggregateID:   found.ID,
			Actor:         &outbox.ActorRef{UserID: adminID, Role: enums.UserRoleAdmin.String()},
			Data: disputeEvent{
				DisputeID: found.ID,
				BookingID: found.BookingID,
				Status:    found.Status,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return NewDisputeResponse(dispute), nil
}

// Resolve is the only path out of a frozen booking. It runs as one atomic
// unit: amount validation, sequential gateway calls (the second gated on the
// first), compensating transaction rows, dispute terminal state, and the
// booking's exit transition all commit or roll back together. Gateway
// idempotency keys derive from the dispute id, so a retry after a mid-failure
// rollback collapses into the same external effects.
func (s *service) Resolve(ctx context.Context, input ResolveInput) (*DisputeResponse, error) {
	if input.DisputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	terminal, ok := input.Resolution.TerminalStatus()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid resolution %q", input.Resolution))
	}

	var dispute *models.Dispute
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		found, err := txRepo.FindByIDForUpdate(ctx, input.DisputeID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading dispute")
		}
		if !found.Status.IsActive() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("dispute is already %s", found.Status))
		}

		bookingRepo := s.bookings.WithTx(tx)
		booking, err := bookingRepo.FindByIDForUpdate(ctx, found.BookingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}
		if booking.Status != enums.BookingStatusDisputed {
			return pkgerrors.New(pkgerrors.CodeIntegrity,
				fmt.Sprintf("active dispute but booking is %s", booking.Status))
		}

		refundCents, payoutCents, err := resolutionAmounts(input, terminal, booking)
		if err != nil {
			return err
		}

		txLedger := s.ledger.WithTx(tx)
		payment, err := txLedger.FindByBookingAndKind(ctx, booking.ID, enums.TransactionKindBookingPayment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment transaction")
		}
		if payment.Status != enums.TransactionStatusSuccess {
			return pkgerrors.New(pkgerrors.CodeIntegrity, "disputed booking has no settled payment")
		}

		if refundCents > 0 {
			if _, err := s.payments.Refund(ctx, payment.ExternalReference, refundCents); err != nil {
				return err
			}
			refundTxn := &models.Transaction{
				BookingID:         booking.ID,
				UserID:            booking.OrganizerID,
				Kind:              enums.TransactionKindRefund,
				Status:            enums.TransactionStatusSuccess,
				AmountCents:       refundCents,
				Currency:          booking.Currency,
				ExternalReference: refundReference(found.ID),
			}
			if _, err := txLedger.Create(ctx, refundTxn); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording refund")
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRefundIssued,
				AggregateType: enums.AggregateTransaction,
				AggregateID:   refundTxn.ID,
				Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: enums.UserRoleAdmin.String()},
				Data: disputeEvent{
					DisputeID:   found.ID,
					BookingID:   booking.ID,
					Status:      found.Status,
					RefundCents: refundCents,
				},
				Version: 1,
			}); err != nil {
				return err
			}
		}

		if payoutCents > 0 {
			talent, err := s.users.WithTx(tx).FindByID(ctx, booking.TalentID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading talent")
			}
			if talent.PayoutAccountHandle == nil || *talent.PayoutAccountHandle == "" {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "talent has no payout account on file")
			}
			recipient, err := s.payouts.ResolveRecipient(ctx, *talent.PayoutAccountHandle)
			if err != nil {
				return err
			}
			reference := disputePayoutReference(found.ID)
			if _, err := s.payouts.Transfer(ctx, recipient, payoutCents, booking.Currency.String(), reference); err != nil {
				return err
			}
			payoutTxn := &models.Transaction{
				BookingID:         booking.ID,
				UserID:            booking.TalentID,
				Kind:              enums.TransactionKindPayout,
				Status:            enums.TransactionStatusSuccess,
				AmountCents:       payoutCents,
				Currency:          booking.Currency,
				ExternalReference: reference,
			}
			if _, err := txLedger.Create(ctx, payoutTxn); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording dispute payout")
			}
		}

		resolved, err := txRepo.Resolve(ctx, found.ID, ResolutionRecord{
			Status:            terminal,
			ResolvedByID:      input.AdminID,
			Notes:             input.Notes,
			RefundAmountCents: refundCents,
			PayoutAmountCents: payoutCents,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving dispute")
		}
		if !resolved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute state changed concurrently")
		}

		// Full refund unwinds the booking; any payout settles it.
		exitStatus := enums.BookingStatusCompleted
		extra := map[string]any{"is_paid_out": payoutCents > 0}
		if terminal == enums.DisputeStatusResolvedOrganizerWins {
			exitStatus = enums.BookingStatusCancelled
		}
		moved, err := bookingRepo.TransitionStatus(ctx, booking.ID, enums.BookingStatusDisputed, exitStatus, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unfreezing booking")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeIntegrity, "booking left disputed state during resolution")
		}

		now := time.Now()
		found.Status = terminal
		found.ResolvedByID = &input.AdminID
		found.ResolutionNotes = input.Notes
		found.RefundAmountCents = &refundCents
		found.PayoutAmountCents = &payoutCents
		found.ResolvedAt = &now
		dispute = found

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeResolved,
			AggregateType: enums.AggregateDispute,
			AggregateID:   found.ID,
			Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: enums.UserRoleAdmin.String()},
			Data: disputeEvent{
				DisputeID:   found.ID,
				BookingID:   booking.ID,
				Status:      terminal,
				RefundCents: refundCents,
				PayoutCents: payoutCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return NewDisputeResponse(dispute), nil
}

func (s *service) Get(ctx context.Context, disputeID uuid.UUID) (*DisputeResponse, error) {
	dispute, err := s.repo.FindByID(ctx, disputeID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading dispute")
	}
	return NewDisputeResponse(dispute), nil
}

func (s *service) ListActive(ctx context.Context, limit int) ([]DisputeResponse, error) {
	rows, err := s.repo.ListActive(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing disputes")
	}
	out := make([]DisputeResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *NewDisputeResponse(&rows[i]))
	}
	return out, nil
}

// resolutionAmounts enforces the verdict-specific money invariants.
func resolutionAmounts(input ResolveInput, terminal enums.DisputeStatus, booking *models.Booking) (int64, int64, error) {
	switch terminal {
	case enums.DisputeStatusResolvedOrganizerWins:
		return booking.GrossAmountCents, 0, nil
	case enums.DisputeStatusResolvedTalentWins:
		return 0, booking.TalentAmountCents, nil
	case enums.DisputeStatusResolvedPartial:
		if input.RefundAmountCents == nil || input.PayoutAmountCents == nil {
			return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "partial resolution requires explicit refund and payout amounts")
		}
		refund, payout := *input.RefundAmountCents, *input.PayoutAmountCents
		if refund < 0 || payout < 0 {
			return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "amounts must be non-negative")
		}
		if refund+payout > booking.GrossAmountCents {
			return 0, 0, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("refund %d + payout %d exceeds gross %d", refund, payout, booking.GrossAmountCents))
		}
		return refund, payout, nil
	}
	return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "unsupported resolution")
}

func refundReference(disputeID uuid.UUID) string {
	return "dsprefund_" + disputeID.String()
}

func disputePayoutReference(disputeID uuid.UUID) string {
	return "dsppayout_" + disputeID.String()
}
