package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/ledger"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutboxService struct {
	events []outbox.DomainEvent
}

func (f *fakeOutboxService) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeExpiryLedger struct {
	stale    []models.Transaction
	current  map[string]*models.Transaction
	failed   []uuid.UUID
	listKind enums.TransactionKind
}

func (f *fakeExpiryLedger) WithTx(tx *gorm.DB) ledger.Repository { return f }

func (f *fakeExpiryLedger) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	return txn, nil
}

func (f *fakeExpiryLedger) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return f.FindByReferenceForUpdate(ctx, reference)
}

func (f *fakeExpiryLedger) FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error) {
	if txn, ok := f.current[reference]; ok {
		return txn, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeExpiryLedger) FindByBookingAndKind(ctx context.Context, bookingID uuid.UUID, kind enums.TransactionKind) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeExpiryLedger) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error) {
	return nil, nil
}

func (f *fakeExpiryLedger) ListStalePending(ctx context.Context, kind enums.TransactionKind, olderThan time.Time, limit int) ([]models.Transaction, error) {
	f.listKind = kind
	return f.stale, nil
}

func (f *fakeExpiryLedger) MarkSuccessIfPending(ctx context.Context, id uuid.UUID, source enums.ConfirmationSource) (bool, error) {
	return false, nil
}

func (f *fakeExpiryLedger) MarkSuccess(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeExpiryLedger) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeExpiryLedger) Requeue(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeExpiryLedger) UpdateReference(ctx context.Context, id uuid.UUID, reference string) error {
	return nil
}

type fakeTTLSource struct {
	ttl time.Duration
}

func (f *fakeTTLSource) PaymentPendingTTL(ctx context.Context) (time.Duration, error) {
	return f.ttl, nil
}

func newPaymentExpiryJobTest(t *testing.T, repo *fakeExpiryLedger) (*paymentExpiryJob, *fakeOutboxService) {
	t.Helper()
	pub := &fakeOutboxService{}
	jobIface, err := NewPaymentExpiryJob(PaymentExpiryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		DB:       fakeTxRunner{},
		Ledger:   repo,
		Outbox:   pub,
		Settings: &fakeTTLSource{ttl: 24 * time.Hour},
	})
	if err != nil {
		t.Fatalf("NewPaymentExpiryJob: %v", err)
	}
	job, ok := jobIface.(*paymentExpiryJob)
	if !ok {
		t.Fatalf("expected paymentExpiryJob, got %T", jobIface)
	}
	return job, pub
}

func TestPaymentExpiryJob_failsStalePending(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	stale := models.Transaction{
		ID:                uuid.New(),
		BookingID:         uuid.New(),
		Kind:              enums.TransactionKindBookingPayment,
		Status:            enums.TransactionStatusPending,
		AmountCents:       50_000,
		ExternalReference: "bkpay_" + uuid.NewString(),
		CreatedAt:         now.Add(-48 * time.Hour),
	}
	repo := &fakeExpiryLedger{
		stale:   []models.Transaction{stale},
		current: map[string]*models.Transaction{stale.ExternalReference: &stale},
	}
	job, pub := newPaymentExpiryJobTest(t, repo)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.listKind != enums.TransactionKindBookingPayment {
		t.Fatalf("expiry must only scan booking payments, scanned %s", repo.listKind)
	}
	if len(repo.failed) != 1 || repo.failed[0] != stale.ID {
		t.Fatalf("expected the stale payment to fail, got %v", repo.failed)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	if pub.events[0].EventType != enums.EventPaymentExpired {
		t.Fatalf("unexpected event type %s", pub.events[0].EventType)
	}
}

func TestPaymentExpiryJob_skipsConfirmedRace(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	scanned := models.Transaction{
		ID:                uuid.New(),
		BookingID:         uuid.New(),
		Kind:              enums.TransactionKindBookingPayment,
		Status:            enums.TransactionStatusPending,
		ExternalReference: "bkpay_" + uuid.NewString(),
		CreatedAt:         now.Add(-48 * time.Hour),
	}
	// The confirmation landed between the scan and the per-row lock.
	confirmed := scanned
	confirmed.Status = enums.TransactionStatusSuccess
	repo := &fakeExpiryLedger{
		stale:   []models.Transaction{scanned},
		current: map[string]*models.Transaction{scanned.ExternalReference: &confirmed},
	}
	job, pub := newPaymentExpiryJobTest(t, repo)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("settled payments must never expire, failed %v", repo.failed)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected, got %d", len(pub.events))
	}
}
