package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
)

type fakeCompletableReader struct {
	bookings []models.Booking
	cutoff   time.Time
}

func (f *fakeCompletableReader) ListCompletable(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	f.cutoff = before
	return f.bookings, nil
}

type fakeCompleter struct {
	completed []uuid.UUID
	failFor   map[uuid.UUID]error
}

func (f *fakeCompleter) MarkCompleted(ctx context.Context, bookingID uuid.UUID) error {
	if err, ok := f.failFor[bookingID]; ok {
		return err
	}
	f.completed = append(f.completed, bookingID)
	return nil
}

func TestCompletionSweepJob_completesElapsedBookings(t *testing.T) {
	first := models.Booking{ID: uuid.New()}
	second := models.Booking{ID: uuid.New()}
	reader := &fakeCompletableReader{bookings: []models.Booking{first, second}}
	completer := &fakeCompleter{}

	job, err := NewCompletionSweepJob(CompletionSweepJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Reader:   reader,
		Bookings: completer,
	})
	if err != nil {
		t.Fatalf("NewCompletionSweepJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(completer.completed) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(completer.completed))
	}
	if reader.cutoff.IsZero() {
		t.Fatal("expected cutoff passed to the reader")
	}
}

func TestCompletionSweepJob_continuesPastFailures(t *testing.T) {
	broken := models.Booking{ID: uuid.New()}
	healthy := models.Booking{ID: uuid.New()}
	reader := &fakeCompletableReader{bookings: []models.Booking{broken, healthy}}
	completer := &fakeCompleter{
		failFor: map[uuid.UUID]error{broken.ID: errors.New("payout gateway down")},
	}

	job, err := NewCompletionSweepJob(CompletionSweepJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Reader:   reader,
		Bookings: completer,
	})
	if err != nil {
		t.Fatalf("NewCompletionSweepJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected combined error for the failed booking")
	}
	if len(completer.completed) != 1 || completer.completed[0] != healthy.ID {
		t.Fatalf("one failure must not stop the sweep, got %v", completer.completed)
	}
}
