package escrow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	"github.com/stagepasshq/stagepass-backend/internal/ledger"
	"github.com/stagepasshq/stagepass-backend/internal/users"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
	"github.com/stagepasshq/stagepass-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentGateway collects funds from the organizer.
type PaymentGateway interface {
	InitiateCheckout(ctx context.Context, amountCents int64, currency, reference, description, callbackURL string) (*stripe.CheckoutHandle, error)
	VerifyTransaction(ctx context.Context, reference string) (*stripe.VerificationResult, error)
	Refund(ctx context.Context, reference string, amountCents int64) (string, error)
}

// PayoutGateway disburses escrowed funds to the talent.
type PayoutGateway interface {
	ResolveRecipient(ctx context.Context, payoutAccountHandle string) (string, error)
	Transfer(ctx context.Context, recipientID string, amountCents int64, currency, reference string) (string, error)
}

// Service moves a booking from payment requested to funds held to funds
// released, exactly once, regardless of how many external signals report
// success.
type Service interface {
	InitiatePayment(ctx context.Context, bookingID, organizerID uuid.UUID) (*PaymentSession, error)
	ConfirmPayment(ctx context.Context, reference string, source enums.ConfirmationSource) (*PaymentConfirmation, error)
	SettlePayout(ctx context.Context, bookingID uuid.UUID) error
}

// ServiceParams bundles the dependencies for NewService.
type ServiceParams struct {
	Bookings    bookings.Repository
	Ledger      ledger.Repository
	Users       users.Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Payments    PaymentGateway
	Payouts     PayoutGateway
	CallbackURL string
}

type service struct {
	bookings    bookings.Repository
	ledger      ledger.Repository
	users       users.Repository
	tx          txRunner
	outbox      outboxPublisher
	payments    PaymentGateway
	payouts     PayoutGateway
	callbackURL string
}

// NewService builds the escrow service.
func NewService(p ServiceParams) (Service, error) {
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
	if p.CallbackURL == "" {
		return nil, fmt.Errorf("payment callback url required")
	}
	return &service{
		bookings:    p.Bookings,
		ledger:      p.Ledger,
		users:       p.Users,
		tx:          p.Tx,
		outbox:      p.Outbox,
		payments:    p.Payments,
		payouts:     p.Payouts,
		callbackURL: p.CallbackURL,
	}, nil
}

type paymentEvent struct {
	BookingID     uuid.UUID                 `json:"booking_id"`
	TransactionID uuid.UUID                 `json:"transaction_id"`
	Reference     string                    `json:"reference"`
	AmountCents   int64                     `json:"amount_cents"`
	Source        *enums.ConfirmationSource `json:"source,omitempty"`
}

// InitiatePayment hands the accepted booking's payment placeholder to the
// gateway and returns the checkout handle.
func (s *service) InitiatePayment(ctx context.Context, bookingID, organizerID uuid.UUID) (*PaymentSession, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}

	var session *PaymentSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bookings.WithTx(tx)
		booking, err := repo.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}
		if booking.OrganizerID != organizerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the organizer may pay")
		}
		if booking.Status != enums.BookingStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("booking is %s, payment requires an accepted booking", booking.Status))
		}

		txLedger := s.ledger.WithTx(tx)
		payment, err := txLedger.FindByBookingAndKind(ctx, booking.ID, enums.TransactionKindBookingPayment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment transaction")
		}
		if payment.Status == enums.TransactionStatusSuccess {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is already paid")
		}
		if payment.Status == enums.TransactionStatusFailed {
			// Expired or failed checkout; reopen the placeholder.
			if err := txLedger.Requeue(ctx, payment.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reopening payment transaction")
			}
		}

		handle, err := s.payments.InitiateCheckout(ctx, booking.GrossAmountCents, booking.Currency.String(),
			payment.ExternalReference, booking.EventName, s.callbackURL)
		if err != nil {
			return err
		}

		session = &PaymentSession{
			BookingID:   booking.ID,
			Reference:   payment.ExternalReference,
			CheckoutURL: handle.CheckoutURL,
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: organizerID, Role: enums.UserRoleOrganizer.String()},
			Data: paymentEvent{
				BookingID:     booking.ID,
				TransactionID: payment.ID,
				Reference:     payment.ExternalReference,
				AmountCents:   payment.AmountCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ConfirmPayment reconciles a success signal from either inbound channel.
// The gateway callback and the user redirect race for the same reference;
// the booking and transaction row locks plus the pending->success CAS
// guarantee exactly one of them performs the transition, and the loser
// observes SUCCESS and returns the prior result unchanged. A payment the
// expiry sweep already failed is reopened when the gateway verifies the
// capture, so a checkout finishing at the TTL boundary still lands.
func (s *service) ConfirmPayment(ctx context.Context, reference string, source enums.ConfirmationSource) (*PaymentConfirmation, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if !source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid confirmation source %q", source))
	}

	var confirmation *PaymentConfirmation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txLedger := s.ledger.WithTx(tx)
		peek, err := txLedger.FindByReference(ctx, reference)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment reference")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment transaction")
		}

		// Booking lock before the transaction lock, same order as
		// InitiatePayment, so a callback racing a re-initiated checkout
		// cannot deadlock.
		repo := s.bookings.WithTx(tx)
		booking, err := repo.FindByIDForUpdate(ctx, peek.BookingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}

		payment, err := txLedger.FindByReferenceForUpdate(ctx, reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment transaction")
		}

		// Idempotent short-circuit: the primary defense against
		// double-processing when both channels report the same success.
		if payment.Status == enums.TransactionStatusSuccess {
			confirmation = buildConfirmation(payment, booking)
			return nil
		}

		verification, err := s.payments.VerifyTransaction(ctx, reference)
		if err != nil {
			return err
		}
		if !verification.Paid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "gateway has not recorded a successful payment")
		}
		if verification.AmountCents != booking.GrossAmountCents || verification.Currency != booking.Currency.String() {
			return pkgerrors.New(pkgerrors.CodeSecurity,
				fmt.Sprintf("gateway reports %d %s, booking expects %d %s",
					verification.AmountCents, verification.Currency, booking.GrossAmountCents, booking.Currency))
		}

		if payment.Status == enums.TransactionStatusFailed {
			// The expiry sweep failed this payment before the gateway's
			// signal arrived. The funds are captured, so reopen the row
			// and let the CAS below record the success.
			if err := txLedger.Requeue(ctx, payment.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reopening expired payment")
			}
		}

		swapped, err := txLedger.MarkSuccessIfPending(ctx, payment.ID, source)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirming payment transaction")
		}
		if !swapped {
			refreshed, err := txLedger.FindByReference(ctx, reference)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading payment transaction")
			}
			if refreshed.Status == enums.TransactionStatusSuccess {
				// Lost the race to the other channel; adopt its result.
				confirmation = buildConfirmation(refreshed, booking)
				return nil
			}
			// A verified capture must never end in a non-success row.
			return pkgerrors.New(pkgerrors.CodeIntegrity,
				fmt.Sprintf("payment %s is %s after a verified capture", reference, refreshed.Status))
		}

		moved, err := repo.TransitionStatus(ctx, booking.ID, enums.BookingStatusAccepted, enums.BookingStatusPaid, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transitioning booking to paid")
		}
		if !moved && booking.Status != enums.BookingStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("booking is %s, cannot record payment", booking.Status))
		}
		booking.Status = enums.BookingStatusPaid
		payment.Status = enums.TransactionStatusSuccess
		payment.ConfirmedVia = &source
		confirmation = buildConfirmation(payment, booking)

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentConfirmed,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   payment.ID,
			Data: paymentEvent{
				BookingID:     booking.ID,
				TransactionID: payment.ID,
				Reference:     reference,
				AmountCents:   payment.AmountCents,
				Source:        &source,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return confirmation, nil
}

// SettlePayout releases the talent's share once the booking completes. Safe
// to retry: the booking lock plus the is_paid_out flag make it exactly-once,
// and the transfer reference doubles as the gateway idempotency key.
func (s *service) SettlePayout(ctx context.Context, bookingID uuid.UUID) error {
	if bookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}

	var gatewayErr error
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bookings.WithTx(tx)
		booking, err := repo.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}
		if booking.IsPaidOut {
			return nil
		}
		if booking.Status == enums.BookingStatusDisputed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout frozen by an open dispute")
		}
		if booking.Status != enums.BookingStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("booking is %s, payouts require completion", booking.Status))
		}

		talent, err := s.users.WithTx(tx).FindByID(ctx, booking.TalentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading talent")
		}
		if talent.PayoutAccountHandle == nil || *talent.PayoutAccountHandle == "" {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "talent has no payout account on file")
		}

		txLedger := s.ledger.WithTx(tx)
		payout, err := txLedger.FindByBookingAndKind(ctx, booking.ID, enums.TransactionKindPayout)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payout transaction")
		}
		switch {
		case payout == nil || err == gorm.ErrRecordNotFound:
			payout, err = txLedger.Create(ctx, &models.Transaction{
				BookingID:         booking.ID,
				UserID:            booking.TalentID,
				Kind:              enums.TransactionKindPayout,
				Status:            enums.TransactionStatusPending,
				AmountCents:       booking.TalentAmountCents,
				Currency:          booking.Currency,
				ExternalReference: payoutReference(booking.ID),
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating payout transaction")
			}
		case payout.Status == enums.TransactionStatusSuccess:
			// Transfer already went through; just make sure the flag landed.
			if _, err := repo.SetPaidOutIfFalse(ctx, booking.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "setting paid out flag")
			}
			return nil
		case payout.Status == enums.TransactionStatusFailed:
			if err := txLedger.Requeue(ctx, payout.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeueing payout")
			}
		}

		recipient, err := s.payouts.ResolveRecipient(ctx, *talent.PayoutAccountHandle)
		if err == nil {
			_, err = s.payouts.Transfer(ctx, recipient, payout.AmountCents, booking.Currency.String(), payout.ExternalReference)
		}
		if err != nil {
			gatewayErr = err
			if markErr := txLedger.MarkFailed(ctx, payout.ID, err.Error()); markErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, markErr, "recording payout failure")
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutFailed,
				AggregateType: enums.AggregateTransaction,
				AggregateID:   payout.ID,
				Data: paymentEvent{
					BookingID:     booking.ID,
					TransactionID: payout.ID,
					Reference:     payout.ExternalReference,
					AmountCents:   payout.AmountCents,
				},
				Version: 1,
			})
		}

		if err := txLedger.MarkSuccess(ctx, payout.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalizing payout transaction")
		}
		flagged, err := repo.SetPaidOutIfFalse(ctx, booking.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "setting paid out flag")
		}
		if !flagged {
			return pkgerrors.New(pkgerrors.CodeIntegrity, "paid out flag already set during settlement")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutSettled,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   payout.ID,
			Data: paymentEvent{
				BookingID:     booking.ID,
				TransactionID: payout.ID,
				Reference:     payout.ExternalReference,
				AmountCents:   payout.AmountCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return err
	}
	if gatewayErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, gatewayErr, "payout transfer failed, safe to retry")
	}
	return nil
}

func buildConfirmation(txn *models.Transaction, booking *models.Booking) *PaymentConfirmation {
	return &PaymentConfirmation{
		BookingID:     booking.ID,
		TransactionID: txn.ID,
		Reference:     txn.ExternalReference,
		Status:        txn.Status,
		BookingStatus: booking.Status,
		AmountCents:   txn.AmountCents,
		Currency:      txn.Currency,
		ConfirmedVia:  txn.ConfirmedVia,
		ConfirmedAt:   txn.ConfirmedAt,
	}
}

func payoutReference(bookingID uuid.UUID) string {
	return "bkpayout_" + bookingID.String()
}
