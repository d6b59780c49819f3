package disputes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	"github.com/stagepasshq/stagepass-backend/internal/ledger"
	"github.com/stagepasshq/stagepass-backend/internal/users"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
	"github.com/stagepasshq/stagepass-backend/pkg/pagination"
	"github.com/stagepasshq/stagepass-backend/pkg/stripe"
)

type fakeDisputeRepo struct {
	createFn         func(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error)
	findByIDFn       func(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	findForUpdateFn  func(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	findActiveFn     func(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error)
	markUnderRevFn   func(ctx context.Context, id uuid.UUID) (bool, error)
	resolveFn        func(ctx context.Context, id uuid.UUID, outcome ResolutionRecord) (bool, error)
	listActiveFn     func(ctx context.Context, limit int) ([]models.Dispute, error)
	resolutionRecord *ResolutionRecord
}

func (f *fakeDisputeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeDisputeRepo) Create(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error) {
	if f.createFn != nil {
		return f.createFn(ctx, dispute)
	}
	dispute.ID = uuid.New()
	return dispute, nil
}

func (f *fakeDisputeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeDisputeRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	if f.findForUpdateFn != nil {
		return f.findForUpdateFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeDisputeRepo) FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
	if f.findActiveFn != nil {
		return f.findActiveFn(ctx, bookingID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeDisputeRepo) MarkUnderReview(ctx context.Context, id uuid.UUID) (bool, error) {
	if f.markUnderRevFn != nil {
		return f.markUnderRevFn(ctx, id)
	}
	return true, nil
}

func (f *fakeDisputeRepo) Resolve(ctx context.Context, id uuid.UUID, outcome ResolutionRecord) (bool, error) {
	f.resolutionRecord = &outcome
	if f.resolveFn != nil {
		return f.resolveFn(ctx, id, outcome)
	}
	return true, nil
}

func (f *fakeDisputeRepo) ListActive(ctx context.Context, limit int) ([]models.Dispute, error) {
	if f.listActiveFn != nil {
		return f.listActiveFn(ctx, limit)
	}
	return nil, nil
}

type fakeBookingRepo struct {
	findForUpdateFn func(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	transitionFn    func(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, extra map[string]any) (bool, error)
}

func (f *fakeBookingRepo) WithTx(tx *gorm.DB) bookings.Repository { return f }

func (f *fakeBookingRepo) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	return booking, nil
}

func (f *fakeBookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBookingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if f.findForUpdateFn != nil {
		return f.findForUpdateFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBookingRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, extra map[string]any) (bool, error) {
	if f.transitionFn != nil {
		return f.transitionFn(ctx, id, from, to, extra)
	}
	return true, nil
}

func (f *fakeBookingRepo) SetPaidOutIfFalse(ctx context.Context, id uuid.UUID) (bool, error) {
	return true, nil
}

func (f *fakeBookingRepo) ListByParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Booking, error) {
	return nil, nil
}

func (f *fakeBookingRepo) ListCompletable(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	return nil, nil
}

func (f *fakeBookingRepo) CountConfirmedOn(ctx context.Context, talentID uuid.UUID, from, until time.Time) (int64, error) {
	return 0, nil
}

type fakeLedgerRepo struct {
	createFn               func(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	findByBookingAndKindFn func(ctx context.Context, bookingID uuid.UUID, kind enums.TransactionKind) (*models.Transaction, error)
	created                []*models.Transaction
}

func (f *fakeLedgerRepo) WithTx(tx *gorm.DB) ledger.Repository { return f }

func (f *fakeLedgerRepo) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if f.createFn != nil {
		return f.createFn(ctx, txn)
	}
	txn.ID = uuid.New()
	f.created = append(f.created, txn)
	return txn, nil
}

func (f *fakeLedgerRepo) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedgerRepo) FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedgerRepo) FindByBookingAndKind(ctx context.Context, bookingID uuid.UUID, kind enums.TransactionKind) (*models.Transaction, error) {
	if f.findByBookingAndKindFn != nil {
		return f.findByBookingAndKindFn(ctx, bookingID, kind)
	}
	return &models.Transaction{
		ID:                uuid.New(),
		BookingID:         bookingID,
		Kind:              kind,
		Status:            enums.TransactionStatusSuccess,
		ExternalReference: "bkpay_" + bookingID.String(),
	}, nil
}

func (f *fakeLedgerRepo) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) ListStalePending(ctx context.Context, kind enums.TransactionKind, olderThan time.Time, limit int) ([]models.Transaction, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) MarkSuccessIfPending(ctx context.Context, id uuid.UUID, source enums.ConfirmationSource) (bool, error) {
	return true, nil
}

func (f *fakeLedgerRepo) MarkSuccess(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeLedgerRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return nil
}

func (f *fakeLedgerRepo) Requeue(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeLedgerRepo) UpdateReference(ctx context.Context, id uuid.UUID, reference string) error {
	return nil
}

type fakeUsersRepo struct {
	findByIDFn func(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
}

func (f *fakeUsersRepo) WithTx(tx *gorm.DB) users.Repository { return f }

func (f *fakeUsersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	handle := "acct_talent"
	return &models.UserProfile{ID: id, PayoutAccountHandle: &handle}, nil
}

func (f *fakeUsersRepo) FindActiveByRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*models.UserProfile, error) {
	return &models.UserProfile{ID: id, Role: role}, nil
}

func (f *fakeUsersRepo) UpdateRatingAggregate(ctx context.Context, id uuid.UUID, average float64, count int) error {
	return nil
}

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakePaymentGateway struct {
	refundFn func(ctx context.Context, reference string, amountCents int64) (string, error)
	refunds  []int64
}

func (f *fakePaymentGateway) InitiateCheckout(ctx context.Context, amountCents int64, currency, reference, description, callbackURL string) (*stripe.CheckoutHandle, error) {
	return nil, errors.New("not used")
}

func (f *fakePaymentGateway) VerifyTransaction(ctx context.Context, reference string) (*stripe.VerificationResult, error) {
	return nil, errors.New("not used")
}

func (f *fakePaymentGateway) Refund(ctx context.Context, reference string, amountCents int64) (string, error) {
	f.refunds = append(f.refunds, amountCents)
	if f.refundFn != nil {
		return f.refundFn(ctx, reference, amountCents)
	}
	return "re_test", nil
}

type fakePayoutGateway struct {
	transferFn func(ctx context.Context, recipientID string, amountCents int64, currency, reference string) (string, error)
	transfers  []int64
}

func (f *fakePayoutGateway) ResolveRecipient(ctx context.Context, payoutAccountHandle string) (string, error) {
	return "acct_resolved", nil
}

func (f *fakePayoutGateway) Transfer(ctx context.Context, recipientID string, amountCents int64, currency, reference string) (string, error) {
	f.transfers = append(f.transfers, amountCents)
	if f.transferFn != nil {
		return f.transferFn(ctx, recipientID, amountCents, currency, reference)
	}
	return "tr_test", nil
}

type fakeSettings struct {
	window time.Duration
}

func (f *fakeSettings) DisputeFilingWindow(ctx context.Context) (time.Duration, error) {
	if f.window == 0 {
		return 72 * time.Hour, nil
	}
	return f.window, nil
}

type disputeFixture struct {
	repo     *fakeDisputeRepo
	bookings *fakeBookingRepo
	ledger   *fakeLedgerRepo
	users    *fakeUsersRepo
	outbox   *fakeOutbox
	payments *fakePaymentGateway
	payouts  *fakePayoutGateway
	svc      Service
}

func newDisputeFixture(t *testing.T) *disputeFixture {
	t.Helper()
	f := &disputeFixture{
		repo:     &fakeDisputeRepo{},
		bookings: &fakeBookingRepo{},
		ledger:   &fakeLedgerRepo{},
		users:    &fakeUsersRepo{},
		outbox:   &fakeOutbox{},
		payments: &fakePaymentGateway{},
		payouts:  &fakePayoutGateway{},
	}
	svc, err := NewService(ServiceParams{
		Repo:     f.repo,
		Bookings: f.bookings,
		Ledger:   f.ledger,
		Users:    f.users,
		Tx:       &fakeTxRunner{},
		Outbox:   f.outbox,
		Payments: f.payments,
		Payouts:  f.payouts,
		Settings: &fakeSettings{},
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	f.svc = svc
	return f
}

func paidBooking() *models.Booking {
	return &models.Booking{
		ID:                uuid.New(),
		OrganizerID:       uuid.New(),
		TalentID:          uuid.New(),
		Status:            enums.BookingStatusPaid,
		Currency:          enums.CurrencyUSD,
		GrossAmountCents:  100_000,
		PlatformFeeCents:  10_000,
		TalentAmountCents: 90_000,
		EventDate:         time.Now().Add(-24 * time.Hour),
	}
}

func TestService_File(t *testing.T) {
	f := newDisputeFixture(t)
	booking := paidBooking()
	f.bookings.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return booking, nil
	}

	var frozenTo enums.BookingStatus
	f.bookings.transitionFn = func(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, extra map[string]any) (bool, error) {
		frozenTo = to
		return true, nil
	}

	got, err := f.svc.File(context.Background(), FileInput{
		BookingID:   booking.ID,
		FilerID:     booking.OrganizerID,
		Reason:      enums.DisputeReasonTalentNoShow,
		Explanation: "The performer never arrived at the venue.",
	})
	if err != nil {
		t.Fatalf("File error: %v", err)
	}
	if got.Status != enums.DisputeStatusOpen {
		t.Fatalf("expected open dispute, got %s", got.Status)
	}
	if got.DisputedByRole != enums.UserRoleOrganizer {
		t.Fatalf("expected organizer filer role, got %s", got.DisputedByRole)
	}
	if frozenTo != enums.BookingStatusDisputed {
		t.Fatalf("expected booking frozen to disputed, got %s", frozenTo)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventDisputeFiled {
		t.Fatalf("expected dispute.filed event, got %+v", f.outbox.events)
	}
}

func TestService_FileGuards(t *testing.T) {
	booking := paidBooking()

	tests := []struct {
		name   string
		mutate func(f *disputeFixture, b *models.Booking)
		filer  uuid.UUID
		reason enums.DisputeReason
		code   pkgerrors.Code
	}{
		{
			name:   "outsider",
			mutate: func(f *disputeFixture, b *models.Booking) {},
			filer:  uuid.New(),
			reason: enums.DisputeReasonOther,
			code:   pkgerrors.CodeForbidden,
		},
		{
			name:   "reason not allowed for role",
			mutate: func(f *disputeFixture, b *models.Booking) {},
			filer:  booking.OrganizerID,
			reason: enums.DisputeReasonOrganizerNoShow,
			code:   pkgerrors.CodeValidation,
		},
		{
			name: "event not elapsed",
			mutate: func(f *disputeFixture, b *models.Booking) {
				b.EventDate = time.Now().Add(24 * time.Hour)
			},
			filer:  booking.OrganizerID,
			reason: enums.DisputeReasonTalentNoShow,
			code:   pkgerrors.CodeStateConflict,
		},
		{
			name: "window closed",
			mutate: func(f *disputeFixture, b *models.Booking) {
				b.EventDate = time.Now().Add(-30 * 24 * time.Hour)
			},
			filer:  booking.OrganizerID,
			reason: enums.DisputeReasonTalentNoShow,
			code:   pkgerrors.CodeStateConflict,
		},
		{
			name: "already paid out",
			mutate: func(f *disputeFixture, b *models.Booking) {
				b.Status = enums.BookingStatusCompleted
				b.IsPaidOut = true
			},
			filer:  booking.OrganizerID,
			reason: enums.DisputeReasonTalentNoShow,
			code:   pkgerrors.CodeStateConflict,
		},
		{
			name: "no escrowed funds",
			mutate: func(f *disputeFixture, b *models.Booking) {
				b.Status = enums.BookingStatusAccepted
			},
			filer:  booking.OrganizerID,
			reason: enums.DisputeReasonTalentNoShow,
			code:   pkgerrors.CodeStateConflict,
		},
		{
			name: "duplicate dispute",
			mutate: func(f *disputeFixture, b *models.Booking) {
				f.repo.findActiveFn = func(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
					return &models.Dispute{ID: uuid.New(), Status: enums.DisputeStatusOpen}, nil
				}
			},
			filer:  booking.OrganizerID,
			reason: enums.DisputeReasonTalentNoShow,
			code:   pkgerrors.CodeConflict,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newDisputeFixture(t)
			b := paidBooking()
			b.ID = booking.ID
			b.OrganizerID = booking.OrganizerID
			b.TalentID = booking.TalentID
			tc.mutate(f, b)
			f.bookings.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
				return b, nil
			}

			_, err := f.svc.File(context.Background(), FileInput{
				BookingID:   b.ID,
				FilerID:     tc.filer,
				Reason:      tc.reason,
				Explanation: "Something went wrong at the event.",
			})
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestService_BeginReview(t *testing.T) {
	f := newDisputeFixture(t)
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
		return &models.Dispute{ID: id, BookingID: uuid.New(), Status: enums.DisputeStatusOpen}, nil
	}

	got, err := f.svc.BeginReview(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("BeginReview error: %v", err)
	}
	if got.Status != enums.DisputeStatusUnderReview {
		t.Fatalf("expected under review, got %s", got.Status)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventDisputeUnderReview {
		t.Fatalf("expected dispute.under_review event, got %+v", f.outbox.events)
	}
}

func TestService_BeginReviewNotOpen(t *testing.T) {
	f := newDisputeFixture(t)
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
		return &models.Dispute{ID: id, Status: enums.DisputeStatusUnderReview}, nil
	}

	_, err := f.svc.BeginReview(context.Background(), uuid.New(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func resolveFixture(t *testing.T) (*disputeFixture, *models.Booking, *models.Dispute) {
	t.Helper()
	f := newDisputeFixture(t)
	booking := paidBooking()
	booking.Status = enums.BookingStatusDisputed
	dispute := &models.Dispute{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Status:    enums.DisputeStatusUnderReview,
	}
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
		return dispute, nil
	}
	f.bookings.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return booking, nil
	}
	return f, booking, dispute
}

func TestService_ResolveOrganizerFavor(t *testing.T) {
	f, booking, dispute := resolveFixture(t)

	var exitStatus enums.BookingStatus
	f.bookings.transitionFn = func(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, extra map[string]any) (bool, error) {
		exitStatus = to
		return true, nil
	}

	got, err := f.svc.Resolve(context.Background(), ResolveInput{
		DisputeID:  dispute.ID,
		AdminID:    uuid.New(),
		Resolution: ResolutionOrganizerFavor,
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.Status != enums.DisputeStatusResolvedOrganizerWins {
		t.Fatalf("unexpected status %s", got.Status)
	}
	if len(f.payments.refunds) != 1 || f.payments.refunds[0] != booking.GrossAmountCents {
		t.Fatalf("expected full refund of %d, got %v", booking.GrossAmountCents, f.payments.refunds)
	}
	if len(f.payouts.transfers) != 0 {
		t.Fatalf("no payout expected, got %v", f.payouts.transfers)
	}
	if exitStatus != enums.BookingStatusCancelled {
		t.Fatalf("full refund must cancel the booking, got %s", exitStatus)
	}
}

func TestService_ResolveTalentFavor(t *testing.T) {
	f, booking, dispute := resolveFixture(t)

	var exitStatus enums.BookingStatus
	f.bookings.transitionFn = func(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, extra map[string]any) (bool, error) {
		exitStatus = to
		if v, ok := extra["is_paid_out"].(bool); !ok || !v {
			t.Fatalf("talent-favor resolution must set is_paid_out, extra=%v", extra)
		}
		return true, nil
	}

	got, err := f.svc.Resolve(context.Background(), ResolveInput{
		DisputeID:  dispute.ID,
		AdminID:    uuid.New(),
		Resolution: ResolutionTalentFavor,
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.Status != enums.DisputeStatusResolvedTalentWins {
		t.Fatalf("unexpected status %s", got.Status)
	}
	if len(f.payouts.transfers) != 1 || f.payouts.transfers[0] != booking.TalentAmountCents {
		t.Fatalf("expected talent share %d, got %v", booking.TalentAmountCents, f.payouts.transfers)
	}
	if len(f.ledger.created) != 1 || f.ledger.created[0].Kind != enums.TransactionKindPayout {
		t.Fatalf("disbursement must be recorded as a payout transaction, got %+v", f.ledger.created)
	}
	if f.ledger.created[0].Status != enums.TransactionStatusSuccess {
		t.Fatalf("payout transaction must record the settled transfer, got %s", f.ledger.created[0].Status)
	}
	if len(f.payments.refunds) != 0 {
		t.Fatalf("no refund expected, got %v", f.payments.refunds)
	}
	if exitStatus != enums.BookingStatusCompleted {
		t.Fatalf("talent payout must complete the booking, got %s", exitStatus)
	}
}

func TestService_ResolvePartial(t *testing.T) {
	f, _, dispute := resolveFixture(t)

	refund := int64(40_000)
	payout := int64(50_000)
	got, err := f.svc.Resolve(context.Background(), ResolveInput{
		DisputeID:         dispute.ID,
		AdminID:           uuid.New(),
		Resolution:        ResolutionPartial,
		RefundAmountCents: &refund,
		PayoutAmountCents: &payout,
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.Status != enums.DisputeStatusResolvedPartial {
		t.Fatalf("unexpected status %s", got.Status)
	}
	if len(f.payments.refunds) != 1 || f.payments.refunds[0] != refund {
		t.Fatalf("expected refund %d, got %v", refund, f.payments.refunds)
	}
	if len(f.payouts.transfers) != 1 || f.payouts.transfers[0] != payout {
		t.Fatalf("expected payout %d, got %v", payout, f.payouts.transfers)
	}
	if f.repo.resolutionRecord == nil ||
		f.repo.resolutionRecord.RefundAmountCents != refund ||
		f.repo.resolutionRecord.PayoutAmountCents != payout {
		t.Fatalf("resolution record mismatch: %+v", f.repo.resolutionRecord)
	}
}

func TestService_ResolvePartialValidation(t *testing.T) {
	refund := int64(80_000)
	payout := int64(50_000)
	missing := int64(10)

	tests := []struct {
		name  string
		input ResolveInput
	}{
		{
			name: "missing amounts",
			input: ResolveInput{
				Resolution: ResolutionPartial,
			},
		},
		{
			name: "payout only",
			input: ResolveInput{
				Resolution:        ResolutionPartial,
				PayoutAmountCents: &missing,
			},
		},
		{
			name: "sum exceeds gross",
			input: ResolveInput{
				Resolution:        ResolutionPartial,
				RefundAmountCents: &refund,
				PayoutAmountCents: &payout,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, _, dispute := resolveFixture(t)
			tc.input.DisputeID = dispute.ID
			tc.input.AdminID = uuid.New()

			_, err := f.svc.Resolve(context.Background(), tc.input)
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(f.payments.refunds) != 0 || len(f.payouts.transfers) != 0 {
				t.Fatal("no money must move on validation failure")
			}
		})
	}
}

func TestService_ResolveAlreadyResolved(t *testing.T) {
	f := newDisputeFixture(t)
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
		return &models.Dispute{ID: id, Status: enums.DisputeStatusResolvedPartial}, nil
	}

	_, err := f.svc.Resolve(context.Background(), ResolveInput{
		DisputeID:  uuid.New(),
		AdminID:    uuid.New(),
		Resolution: ResolutionPartial,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_ResolveRefundFailureAborts(t *testing.T) {
	f, _, dispute := resolveFixture(t)
	expected := errors.New("refund rejected")
	f.payments.refundFn = func(ctx context.Context, reference string, amountCents int64) (string, error) {
		return "", expected
	}

	_, err := f.svc.Resolve(context.Background(), ResolveInput{
		DisputeID:  dispute.ID,
		AdminID:    uuid.New(),
		Resolution: ResolutionOrganizerFavor,
	})
	if !errors.Is(err, expected) {
		t.Fatalf("expected gateway error to bubble up, got %v", err)
	}
	if f.repo.resolutionRecord != nil {
		t.Fatal("dispute must not resolve when the refund fails")
	}
}

func TestService_ListActive(t *testing.T) {
	f := newDisputeFixture(t)
	f.repo.listActiveFn = func(ctx context.Context, limit int) ([]models.Dispute, error) {
		return []models.Dispute{
			{ID: uuid.New(), Status: enums.DisputeStatusOpen},
			{ID: uuid.New(), Status: enums.DisputeStatusUnderReview},
		}, nil
	}

	got, err := f.svc.ListActive(context.Background(), 25)
	if err != nil {
		t.Fatalf("ListActive error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 disputes, got %d", len(got))
	}
}
