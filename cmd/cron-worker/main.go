package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	"github.com/stagepasshq/stagepass-backend/internal/cron"
	"github.com/stagepasshq/stagepass-backend/internal/escrow"
	"github.com/stagepasshq/stagepass-backend/internal/ledger"
	"github.com/stagepasshq/stagepass-backend/internal/ratings"
	"github.com/stagepasshq/stagepass-backend/internal/reviews"
	"github.com/stagepasshq/stagepass-backend/internal/settings"
	"github.com/stagepasshq/stagepass-backend/internal/users"
	"github.com/stagepasshq/stagepass-backend/pkg/config"
	"github.com/stagepasshq/stagepass-backend/pkg/db"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	"github.com/stagepasshq/stagepass-backend/pkg/metrics"
	"github.com/stagepasshq/stagepass-backend/pkg/migrate"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
	"github.com/stagepasshq/stagepass-backend/pkg/redis"
	"github.com/stagepasshq/stagepass-backend/pkg/stripe"
)

const lockKeyFormat = "sp:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	gateway, err := stripe.NewGateway(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build payment gateway", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	outboxRepo := outbox.NewRepository(dbClient.DB())

	bookingsRepo := bookings.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	usersRepo := users.NewRepository(dbClient.DB())
	reviewsRepo := reviews.NewRepository(dbClient.DB())
	settingsRepo := settings.NewRepository(dbClient.DB())

	settingsSvc, err := settings.NewService(settingsRepo, cfg.Platform)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	availability, err := bookings.NewDBAvailabilityChecker(bookingsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create availability checker", err)
		os.Exit(1)
	}

	escrowSvc, err := escrow.NewService(escrow.ServiceParams{
		Bookings:    bookingsRepo,
		Ledger:      ledgerRepo,
		Users:       usersRepo,
		Tx:          dbClient,
		Outbox:      outboxSvc,
		Payments:    gateway,
		Payouts:     gateway,
		CallbackURL: cfg.App.BaseURL + "/api/v1/payments/confirm",
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	bookingsSvc, err := bookings.NewService(bookings.ServiceParams{
		Repo:         bookingsRepo,
		Users:        usersRepo,
		Ledger:       ledgerRepo,
		Tx:           dbClient,
		Outbox:       outboxSvc,
		Settings:     settingsSvc,
		Availability: availability,
		Payout:       escrowSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bookings service", err)
		os.Exit(1)
	}

	ratingsSvc, err := ratings.NewService(reviewsRepo, usersRepo, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create ratings service", err)
		os.Exit(1)
	}

	reviewsSvc, err := reviews.NewService(reviews.ServiceParams{
		Repo:     reviewsRepo,
		Bookings: bookingsRepo,
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Settings: settingsSvc,
		Ratings:  ratingsSvc,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reviews service", err)
		os.Exit(1)
	}

	completionJob, err := cron.NewCompletionSweepJob(cron.CompletionSweepJobParams{
		Logger:   logg,
		Reader:   bookingsRepo,
		Bookings: bookingsSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create completion sweep job", err)
		os.Exit(1)
	}
	disclosureJob, err := cron.NewReviewDisclosureJob(cron.ReviewDisclosureJobParams{
		Logger:  logg,
		Reviews: reviewsSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create review disclosure job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:   logg,
		DB:       dbClient,
		Ledger:   ledgerRepo,
		Outbox:   outboxSvc,
		Settings: settingsSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment expiry job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(completionJob, disclosureJob, expiryJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
