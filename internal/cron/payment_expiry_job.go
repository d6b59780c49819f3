package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/stagepasshq/stagepass-backend/internal/ledger"
	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
)

const (
	paymentExpiryBatchSize = 100
	paymentExpiredReason   = "payment window expired"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type pendingTTLSource interface {
	PaymentPendingTTL(ctx context.Context) (time.Duration, error)
}

// PaymentExpiryJobParams configure the stale payment janitor.
type PaymentExpiryJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Ledger   ledger.Repository
	Outbox   outboxEmitter
	Settings pendingTTLSource
}

// NewPaymentExpiryJob builds the job that fails payment transactions stuck
// pending past the configured TTL. The booking stays accepted, so the
// organizer can start a fresh checkout.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings source required")
	}
	return &paymentExpiryJob{
		logg:     params.Logger,
		db:       params.DB,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		settings: params.Settings,
		now:      time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	db       txRunner
	ledger   ledger.Repository
	outbox   outboxEmitter
	settings pendingTTLSource
	now      func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	ttl, err := j.settings.PaymentPendingTTL(ctx)
	if err != nil {
		return fmt.Errorf("load payment pending ttl: %w", err)
	}
	cutoff := j.now().UTC().Add(-ttl)

	stale, err := j.ledger.ListStalePending(ctx, enums.TransactionKindBookingPayment, cutoff, paymentExpiryBatchSize)
	if err != nil {
		return fmt.Errorf("query stale pending payments: %w", err)
	}

	var errs []error
	expired := 0
	for _, payment := range stale {
		if err := j.expirePayment(ctx, payment, cutoff); err != nil {
			errs = append(errs, fmt.Errorf("expire payment %s: %w", payment.ID, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(stale),
		"expired":    expired,
	})
	j.logg.Info(logCtx, "payment expiry loop complete")
	return multierr.Combine(errs...)
}

func (j *paymentExpiryJob) expirePayment(ctx context.Context, payment models.Transaction, cutoff time.Time) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		txLedger := j.ledger.WithTx(tx)
		current, err := txLedger.FindByReferenceForUpdate(ctx, payment.ExternalReference)
		if err != nil {
			return err
		}
		// A confirmation may have raced the sweep; only still-stale
		// pending rows expire.
		if current.Status != enums.TransactionStatusPending || current.CreatedAt.After(cutoff) {
			return nil
		}
		if err := txLedger.MarkFailed(ctx, current.ID, paymentExpiredReason); err != nil {
			return err
		}
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentExpired,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   current.ID,
			Version:       1,
			OccurredAt:    j.now().UTC(),
			Data: paymentExpiredEvent{
				BookingID:     current.BookingID.String(),
				TransactionID: current.ID.String(),
				Reference:     current.ExternalReference,
				AmountCents:   current.AmountCents,
			},
		})
	})
}

type paymentExpiredEvent struct {
	BookingID     string `json:"booking_id"`
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	AmountCents   int64  `json:"amount_cents"`
}
