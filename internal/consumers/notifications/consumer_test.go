package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	appnotifications "github.com/stagepasshq/stagepass-backend/internal/notifications"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox/payloads"
	"github.com/stagepasshq/stagepass-backend/pkg/pagination"
)

type fakeNotificationsService struct {
	recorded []appnotifications.RecordInput
	recordFn func(ctx context.Context, tx *gorm.DB, input appnotifications.RecordInput) error
}

func (f *fakeNotificationsService) Record(ctx context.Context, tx *gorm.DB, input appnotifications.RecordInput) error {
	if f.recordFn != nil {
		return f.recordFn(ctx, tx, input)
	}
	f.recorded = append(f.recorded, input)
	return nil
}

func (f *fakeNotificationsService) List(ctx context.Context, params appnotifications.ListParams) (*appnotifications.ListResult, error) {
	return &appnotifications.ListResult{}, nil
}

func (f *fakeNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return nil
}

func (f *fakeNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

type fakeBookingRepo struct {
	booking *models.Booking
}

func (f *fakeBookingRepo) WithTx(tx *gorm.DB) bookings.Repository { return f }

func (f *fakeBookingRepo) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	return booking, nil
}

func (f *fakeBookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if f.booking != nil {
		return f.booking, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBookingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeBookingRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, extra map[string]any) (bool, error) {
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

type fakeIdempotency struct {
	processed map[uuid.UUID]bool
	deleted   []uuid.UUID
}

func (f *fakeIdempotency) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if f.processed == nil {
		f.processed = make(map[uuid.UUID]bool)
	}
	if f.processed[eventID] {
		return true, nil
	}
	f.processed[eventID] = true
	return false, nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	f.deleted = append(f.deleted, eventID)
	delete(f.processed, eventID)
	return nil
}

func newConsumerTest(t *testing.T, booking *models.Booking) (*Consumer, *fakeNotificationsService, *fakeIdempotency) {
	t.Helper()
	svc := &fakeNotificationsService{}
	manager := &fakeIdempotency{}
	consumer, err := NewConsumer(svc, &fakeBookingRepo{booking: booking}, manager, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return consumer, svc, manager
}

func envelopeFor(t *testing.T, payload any) outbox.PayloadEnvelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	}
}

func TestConsumer_BookingCreatedNotifiesTalent(t *testing.T) {
	consumer, svc, _ := newConsumerTest(t, nil)
	payload := payloads.BookingEvent{
		BookingID:   uuid.New(),
		OrganizerID: uuid.New(),
		TalentID:    uuid.New(),
		Status:      enums.BookingStatusPending,
	}

	err := consumer.Process(context.Background(), enums.EventBookingCreated, envelopeFor(t, payload))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(svc.recorded) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(svc.recorded))
	}
	record := svc.recorded[0]
	if record.UserID != payload.TalentID {
		t.Fatalf("booking request must notify the talent, got %s", record.UserID)
	}
	if record.Type != enums.NotificationTypeBookingRequested {
		t.Fatalf("unexpected type %s", record.Type)
	}
}

func TestConsumer_PaymentConfirmedNotifiesBothParties(t *testing.T) {
	booking := &models.Booking{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		TalentID:    uuid.New(),
	}
	consumer, svc, _ := newConsumerTest(t, booking)
	payload := payloads.PaymentEvent{BookingID: booking.ID, AmountCents: 100_000}

	err := consumer.Process(context.Background(), enums.EventPaymentConfirmed, envelopeFor(t, payload))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(svc.recorded) != 2 {
		t.Fatalf("expected both parties notified, got %d", len(svc.recorded))
	}
	if svc.recorded[0].UserID != booking.OrganizerID || svc.recorded[1].UserID != booking.TalentID {
		t.Fatalf("unexpected recipients %s/%s", svc.recorded[0].UserID, svc.recorded[1].UserID)
	}
}

func TestConsumer_DisputeFiledNotifiesBothParties(t *testing.T) {
	booking := &models.Booking{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		TalentID:    uuid.New(),
	}
	consumer, svc, _ := newConsumerTest(t, booking)
	payload := payloads.DisputeEvent{DisputeID: uuid.New(), BookingID: booking.ID, Status: enums.DisputeStatusOpen}

	err := consumer.Process(context.Background(), enums.EventDisputeFiled, envelopeFor(t, payload))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(svc.recorded) != 2 {
		t.Fatalf("expected both parties notified, got %d", len(svc.recorded))
	}
	for _, record := range svc.recorded {
		if record.Type != enums.NotificationTypeDisputeFiled {
			t.Fatalf("unexpected type %s", record.Type)
		}
	}
}

func TestConsumer_RedeliveredEventWritesOnce(t *testing.T) {
	consumer, svc, _ := newConsumerTest(t, nil)
	payload := payloads.BookingEvent{BookingID: uuid.New(), OrganizerID: uuid.New(), TalentID: uuid.New()}
	envelope := envelopeFor(t, payload)

	if err := consumer.Process(context.Background(), enums.EventBookingCreated, envelope); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := consumer.Process(context.Background(), enums.EventBookingCreated, envelope); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(svc.recorded) != 1 {
		t.Fatalf("redelivery must not duplicate notifications, got %d", len(svc.recorded))
	}
}

func TestConsumer_FailureReleasesIdempotencyMarker(t *testing.T) {
	consumer, svc, manager := newConsumerTest(t, nil)
	svc.recordFn = func(ctx context.Context, tx *gorm.DB, input appnotifications.RecordInput) error {
		return errors.New("db unavailable")
	}
	payload := payloads.BookingEvent{BookingID: uuid.New(), OrganizerID: uuid.New(), TalentID: uuid.New()}
	envelope := envelopeFor(t, payload)

	if err := consumer.Process(context.Background(), enums.EventBookingCreated, envelope); err == nil {
		t.Fatal("expected record failure to surface")
	}
	if len(manager.deleted) != 1 {
		t.Fatalf("failed event must clear its marker for redelivery, deletes=%d", len(manager.deleted))
	}

	// Redelivery after the failure reprocesses the event.
	svc.recordFn = nil
	if err := consumer.Process(context.Background(), enums.EventBookingCreated, envelope); err != nil {
		t.Fatalf("redelivery after failure: %v", err)
	}
	if len(svc.recorded) != 1 {
		t.Fatalf("expected one notification after retry, got %d", len(svc.recorded))
	}
}

func TestConsumer_IgnoresUnhandledEvents(t *testing.T) {
	consumer, svc, manager := newConsumerTest(t, nil)
	envelope := envelopeFor(t, payloads.RatingEvent{UserID: uuid.New()})

	if err := consumer.Process(context.Background(), enums.EventRatingRecalculated, envelope); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(svc.recorded) != 0 {
		t.Fatalf("unhandled events must not notify, got %d", len(svc.recorded))
	}
	if len(manager.processed) != 0 {
		t.Fatal("unhandled events must not consume idempotency slots")
	}
}

func TestConsumer_NotificationRequestedPassthrough(t *testing.T) {
	consumer, svc, _ := newConsumerTest(t, nil)
	link := "/bookings/123"
	payload := payloads.NotificationRequestedEvent{
		UserID:  uuid.New(),
		Type:    enums.NotificationTypeSystem,
		Title:   "Maintenance window",
		Message: "Payouts pause Saturday 02:00-04:00 UTC.",
		Link:    &link,
	}

	err := consumer.Process(context.Background(), enums.EventNotificationRequested, envelopeFor(t, payload))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(svc.recorded) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(svc.recorded))
	}
	record := svc.recorded[0]
	if record.UserID != payload.UserID || record.Title != payload.Title || record.Link == nil || *record.Link != link {
		t.Fatalf("payload not passed through: %+v", record)
	}
}
