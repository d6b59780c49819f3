package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
)

const completionSweepBatchSize = 100

type completableReader interface {
	ListCompletable(ctx context.Context, before time.Time, limit int) ([]models.Booking, error)
}

type bookingCompleter interface {
	MarkCompleted(ctx context.Context, bookingID uuid.UUID) error
}

// CompletionSweepJobParams configure the booking completion sweep.
type CompletionSweepJobParams struct {
	Logger   *logger.Logger
	Reader   completableReader
	Bookings bookingCompleter
}

// NewCompletionSweepJob builds the job that completes paid bookings whose
// event date has elapsed and triggers their payouts.
func NewCompletionSweepJob(params CompletionSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("bookings reader required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking completer required")
	}
	return &completionSweepJob{
		logg:     params.Logger,
		reader:   params.Reader,
		bookings: params.Bookings,
		now:      time.Now,
	}, nil
}

type completionSweepJob struct {
	logg     *logger.Logger
	reader   completableReader
	bookings bookingCompleter
	now      func() time.Time
}

func (j *completionSweepJob) Name() string { return "booking-completion-sweep" }

func (j *completionSweepJob) Run(ctx context.Context) error {
	candidates, err := j.reader.ListCompletable(ctx, j.now().UTC(), completionSweepBatchSize)
	if err != nil {
		return fmt.Errorf("query completable bookings: %w", err)
	}

	var errs []error
	completed := 0
	for _, booking := range candidates {
		if err := j.bookings.MarkCompleted(ctx, booking.ID); err != nil {
			logCtx := j.logg.WithBookingID(ctx, booking.ID.String())
			j.logg.Error(logCtx, "completion sweep failed for booking", err)
			errs = append(errs, fmt.Errorf("complete booking %s: %w", booking.ID, err))
			continue
		}
		completed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"completed":  completed,
	})
	j.logg.Info(logCtx, "booking completion sweep done")
	return multierr.Combine(errs...)
}
