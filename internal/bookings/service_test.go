package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/ledger"
	"github.com/stagepasshq/stagepass-backend/internal/users"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
	"github.com/stagepasshq/stagepass-backend/pkg/pagination"
)

type fakeBookingRepo struct {
	createFn           func(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	findByIDFn         func(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	findForUpdateFn    func(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	transitionFn       func(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, extra map[string]any) (bool, error)
	setPaidOutFn       func(ctx context.Context, id uuid.UUID) (bool, error)
	listParticipantFn  func(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Booking, error)
	listCompletableFn  func(ctx context.Context, before time.Time, limit int) ([]models.Booking, error)
	countConfirmedOnFn func(ctx context.Context, talentID uuid.UUID, from, until time.Time) (int64, error)
}

func (f *fakeBookingRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeBookingRepo) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if f.createFn != nil {
		return f.createFn(ctx, booking)
	}
	booking.ID = uuid.New()
	return booking, nil
}

func (f *fakeBookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
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
	if f.setPaidOutFn != nil {
		return f.setPaidOutFn(ctx, id)
	}
	return true, nil
}

func (f *fakeBookingRepo) ListByParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Booking, error) {
	if f.listParticipantFn != nil {
		return f.listParticipantFn(ctx, userID, params)
	}
	return nil, nil
}

func (f *fakeBookingRepo) ListCompletable(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	if f.listCompletableFn != nil {
		return f.listCompletableFn(ctx, before, limit)
	}
	return nil, nil
}

func (f *fakeBookingRepo) CountConfirmedOn(ctx context.Context, talentID uuid.UUID, from, until time.Time) (int64, error) {
	if f.countConfirmedOnFn != nil {
		return f.countConfirmedOnFn(ctx, talentID, from, until)
	}
	return 0, nil
}

type fakeUsersRepo struct {
	findActiveByRoleFn func(ctx context.Context, id uuid.UUID, role enums.UserRole) (*models.UserProfile, error)
}

func (f *fakeUsersRepo) WithTx(tx *gorm.DB) users.Repository { return f }

func (f *fakeUsersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	return &models.UserProfile{ID: id}, nil
}

func (f *fakeUsersRepo) FindActiveByRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*models.UserProfile, error) {
	if f.findActiveByRoleFn != nil {
		return f.findActiveByRoleFn(ctx, id, role)
	}
	return &models.UserProfile{ID: id, Role: role}, nil
}

func (f *fakeUsersRepo) UpdateRatingAggregate(ctx context.Context, id uuid.UUID, average float64, count int) error {
	return nil
}

type fakeLedgerRepo struct {
	createFn func(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
}

func (f *fakeLedgerRepo) WithTx(tx *gorm.DB) ledger.Repository { return f }

func (f *fakeLedgerRepo) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if f.createFn != nil {
		return f.createFn(ctx, txn)
	}
	txn.ID = uuid.New()
	return txn, nil
}

func (f *fakeLedgerRepo) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedgerRepo) FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedgerRepo) FindByBookingAndKind(ctx context.Context, bookingID uuid.UUID, kind enums.TransactionKind) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
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

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutbox struct {
	events []outbox.DomainEvent
	emitFn func(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if f.emitFn != nil {
		return f.emitFn(ctx, tx, event)
	}
	f.events = append(f.events, event)
	return nil
}

type fakeSettings struct {
	rate decimal.Decimal
}

func (f *fakeSettings) FeeRate(ctx context.Context) (decimal.Decimal, error) {
	if f.rate.IsZero() {
		return decimal.NewFromFloat(0.10), nil
	}
	return f.rate, nil
}

type fakeAvailability struct {
	available bool
	err       error
}

func (f *fakeAvailability) IsAvailable(ctx context.Context, talentID uuid.UUID, eventDate time.Time) (bool, error) {
	return f.available, f.err
}

type fakePayout struct {
	calls []uuid.UUID
	err   error
}

func (f *fakePayout) SettlePayout(ctx context.Context, bookingID uuid.UUID) error {
	f.calls = append(f.calls, bookingID)
	return f.err
}

type bookingFixture struct {
	repo         *fakeBookingRepo
	users        *fakeUsersRepo
	ledger       *fakeLedgerRepo
	outbox       *fakeOutbox
	availability *fakeAvailability
	payout       *fakePayout
	svc          Service
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	f := &bookingFixture{
		repo:         &fakeBookingRepo{},
		users:        &fakeUsersRepo{},
		ledger:       &fakeLedgerRepo{},
		outbox:       &fakeOutbox{},
		availability: &fakeAvailability{available: true},
		payout:       &fakePayout{},
	}
	svc, err := NewService(ServiceParams{
		Repo:         f.repo,
		Users:        f.users,
		Ledger:       f.ledger,
		Tx:           &fakeTxRunner{},
		Outbox:       f.outbox,
		Settings:     &fakeSettings{},
		Availability: f.availability,
		Payout:       f.payout,
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	f.svc = svc
	return f
}

func validCreateInput() CreateInput {
	return CreateInput{
		OrganizerID:      uuid.New(),
		TalentID:         uuid.New(),
		EventName:        "Warehouse Session",
		EventDate:        time.Now().Add(14 * 24 * time.Hour),
		GrossAmountCents: 100_000,
	}
}

func TestService_Create(t *testing.T) {
	f := newBookingFixture(t)

	var createdTxn *models.Transaction
	f.ledger.createFn = func(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
		createdTxn = txn
		txn.ID = uuid.New()
		return txn, nil
	}

	input := validCreateInput()
	got, err := f.svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if got.Status != enums.BookingStatusPending {
		t.Fatalf("expected pending booking, got %s", got.Status)
	}
	if got.GrossAmountCents != 100_000 || got.PlatformFeeCents != 10_000 || got.TalentAmountCents != 90_000 {
		t.Fatalf("unexpected split: gross=%d fee=%d talent=%d",
			got.GrossAmountCents, got.PlatformFeeCents, got.TalentAmountCents)
	}

	if createdTxn == nil {
		t.Fatal("expected a placeholder payment transaction")
	}
	if createdTxn.Kind != enums.TransactionKindBookingPayment || createdTxn.Status != enums.TransactionStatusPending {
		t.Fatalf("unexpected placeholder: kind=%s status=%s", createdTxn.Kind, createdTxn.Status)
	}
	if createdTxn.AmountCents != 100_000 {
		t.Fatalf("placeholder amount = %d", createdTxn.AmountCents)
	}

	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventBookingCreated {
		t.Fatalf("expected one booking.created event, got %+v", f.outbox.events)
	}
}

func TestService_CreateValidation(t *testing.T) {
	f := newBookingFixture(t)

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		code   pkgerrors.Code
	}{
		{
			name:   "missing organizer",
			mutate: func(in *CreateInput) { in.OrganizerID = uuid.Nil },
			code:   pkgerrors.CodeUnauthorized,
		},
		{
			name:   "non-positive amount",
			mutate: func(in *CreateInput) { in.GrossAmountCents = 0 },
			code:   pkgerrors.CodeValidation,
		},
		{
			name:   "missing event name",
			mutate: func(in *CreateInput) { in.EventName = "" },
			code:   pkgerrors.CodeValidation,
		},
		{
			name:   "past event date",
			mutate: func(in *CreateInput) { in.EventDate = time.Now().Add(-time.Hour) },
			code:   pkgerrors.CodeValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := validCreateInput()
			tc.mutate(&input)
			_, err := f.svc.Create(context.Background(), input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestService_CreateUnknownTalent(t *testing.T) {
	f := newBookingFixture(t)
	f.users.findActiveByRoleFn = func(ctx context.Context, id uuid.UUID, role enums.UserRole) (*models.UserProfile, error) {
		if role == enums.UserRoleTalent {
			return nil, gorm.ErrRecordNotFound
		}
		return &models.UserProfile{ID: id, Role: role}, nil
	}

	_, err := f.svc.Create(context.Background(), validCreateInput())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_CreateTalentUnavailable(t *testing.T) {
	f := newBookingFixture(t)
	f.availability.available = false

	_, err := f.svc.Create(context.Background(), validCreateInput())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestService_RespondAccept(t *testing.T) {
	f := newBookingFixture(t)
	talentID := uuid.New()
	booking := &models.Booking{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		TalentID:    talentID,
		Status:      enums.BookingStatusPending,
	}
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return booking, nil
	}

	var gotExtra map[string]any
	f.repo.transitionFn = func(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, extra map[string]any) (bool, error) {
		if from != enums.BookingStatusPending || to != enums.BookingStatusAccepted {
			t.Fatalf("unexpected transition %s -> %s", from, to)
		}
		gotExtra = extra
		return true, nil
	}

	got, err := f.svc.Respond(context.Background(), RespondInput{
		BookingID: booking.ID,
		TalentID:  talentID,
		Decision:  DecisionAccept,
	})
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if got.Status != enums.BookingStatusAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
	if _, ok := gotExtra["accepted_at"]; !ok {
		t.Fatal("expected accepted_at to be stamped")
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventBookingAccepted {
		t.Fatalf("expected booking.accepted event, got %+v", f.outbox.events)
	}
}

func TestService_RespondDecline(t *testing.T) {
	f := newBookingFixture(t)
	talentID := uuid.New()
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{ID: id, TalentID: talentID, Status: enums.BookingStatusPending}, nil
	}

	got, err := f.svc.Respond(context.Background(), RespondInput{
		BookingID: uuid.New(),
		TalentID:  talentID,
		Decision:  DecisionDecline,
	})
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if got.Status != enums.BookingStatusDeclined {
		t.Fatalf("expected declined, got %s", got.Status)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventBookingDeclined {
		t.Fatalf("expected booking.declined event, got %+v", f.outbox.events)
	}
}

func TestService_RespondWrongTalent(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{ID: id, TalentID: uuid.New(), Status: enums.BookingStatusPending}, nil
	}

	_, err := f.svc.Respond(context.Background(), RespondInput{
		BookingID: uuid.New(),
		TalentID:  uuid.New(),
		Decision:  DecisionAccept,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestService_RespondNonPending(t *testing.T) {
	f := newBookingFixture(t)
	talentID := uuid.New()
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{ID: id, TalentID: talentID, Status: enums.BookingStatusAccepted}, nil
	}

	_, err := f.svc.Respond(context.Background(), RespondInput{
		BookingID: uuid.New(),
		TalentID:  talentID,
		Decision:  DecisionAccept,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_RespondInvalidDecision(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.svc.Respond(context.Background(), RespondInput{
		BookingID: uuid.New(),
		TalentID:  uuid.New(),
		Decision:  Decision("maybe"),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_Cancel(t *testing.T) {
	f := newBookingFixture(t)
	organizerID := uuid.New()
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{ID: id, OrganizerID: organizerID, Status: enums.BookingStatusAccepted}, nil
	}

	got, err := f.svc.Cancel(context.Background(), uuid.New(), organizerID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got.Status != enums.BookingStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventBookingCancelled {
		t.Fatalf("expected booking.cancelled event, got %+v", f.outbox.events)
	}
}

func TestService_CancelPaidBooking(t *testing.T) {
	f := newBookingFixture(t)
	organizerID := uuid.New()
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{ID: id, OrganizerID: organizerID, Status: enums.BookingStatusPaid}, nil
	}

	_, err := f.svc.Cancel(context.Background(), uuid.New(), organizerID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_CancelNotOrganizer(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{ID: id, OrganizerID: uuid.New(), Status: enums.BookingStatusPending}, nil
	}

	_, err := f.svc.Cancel(context.Background(), uuid.New(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestService_MarkCompleted(t *testing.T) {
	f := newBookingFixture(t)
	bookingID := uuid.New()
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{
			ID:        id,
			Status:    enums.BookingStatusPaid,
			EventDate: time.Now().Add(-24 * time.Hour),
		}, nil
	}

	if err := f.svc.MarkCompleted(context.Background(), bookingID); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	if len(f.payout.calls) != 1 || f.payout.calls[0] != bookingID {
		t.Fatalf("expected one payout call for %s, got %v", bookingID, f.payout.calls)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventBookingCompleted {
		t.Fatalf("expected booking.completed event, got %+v", f.outbox.events)
	}
}

func TestService_MarkCompletedRetriesPayout(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{ID: id, Status: enums.BookingStatusCompleted, IsPaidOut: false}, nil
	}

	if err := f.svc.MarkCompleted(context.Background(), uuid.New()); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	if len(f.payout.calls) != 1 {
		t.Fatalf("expected payout retry, got %v", f.payout.calls)
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("no event should be re-emitted for a completed booking, got %+v", f.outbox.events)
	}
}

func TestService_MarkCompletedAlreadySettled(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{ID: id, Status: enums.BookingStatusCompleted, IsPaidOut: true}, nil
	}

	if err := f.svc.MarkCompleted(context.Background(), uuid.New()); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	if len(f.payout.calls) != 0 {
		t.Fatalf("settled booking should not trigger payout, got %v", f.payout.calls)
	}
}

func TestService_MarkCompletedFutureEvent(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.findForUpdateFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{
			ID:        id,
			Status:    enums.BookingStatusPaid,
			EventDate: time.Now().Add(48 * time.Hour),
		}, nil
	}

	err := f.svc.MarkCompleted(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestService_GetAuthorization(t *testing.T) {
	f := newBookingFixture(t)
	organizerID := uuid.New()
	talentID := uuid.New()
	f.repo.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
		return &models.Booking{ID: id, OrganizerID: organizerID, TalentID: talentID}, nil
	}

	if _, err := f.svc.Get(context.Background(), uuid.New(), organizerID, enums.UserRoleOrganizer); err != nil {
		t.Fatalf("organizer should read own booking: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), uuid.New(), talentID, enums.UserRoleTalent); err != nil {
		t.Fatalf("talent should read own booking: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), uuid.New(), uuid.New(), enums.UserRoleAdmin); err != nil {
		t.Fatalf("admin should read any booking: %v", err)
	}

	_, err := f.svc.Get(context.Background(), uuid.New(), uuid.New(), enums.UserRoleOrganizer)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
}

func TestService_ListForUser(t *testing.T) {
	f := newBookingFixture(t)
	userID := uuid.New()
	f.repo.listParticipantFn = func(ctx context.Context, id uuid.UUID, params pagination.Params) ([]models.Booking, error) {
		if id != userID {
			t.Fatalf("unexpected user id %s", id)
		}
		return []models.Booking{{ID: uuid.New()}, {ID: uuid.New()}}, nil
	}

	got, err := f.svc.ListForUser(context.Background(), userID, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("ListForUser error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(got))
	}
}

func TestService_CreateOutboxFailureRollsUp(t *testing.T) {
	f := newBookingFixture(t)
	expected := errors.New("emit failed")
	f.outbox.emitFn = func(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
		return expected
	}

	_, err := f.svc.Create(context.Background(), validCreateInput())
	if !errors.Is(err, expected) {
		t.Fatalf("expected emit error to bubble up, got %v", err)
	}
}
