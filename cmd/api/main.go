package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/stagepasshq/stagepass-backend/api/routes"
	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	"github.com/stagepasshq/stagepass-backend/internal/disputes"
	"github.com/stagepasshq/stagepass-backend/internal/escrow"
	"github.com/stagepasshq/stagepass-backend/internal/ledger"
	"github.com/stagepasshq/stagepass-backend/internal/notifications"
	"github.com/stagepasshq/stagepass-backend/internal/ratings"
	"github.com/stagepasshq/stagepass-backend/internal/reviews"
	"github.com/stagepasshq/stagepass-backend/internal/settings"
	"github.com/stagepasshq/stagepass-backend/internal/users"
	"github.com/stagepasshq/stagepass-backend/pkg/config"
	"github.com/stagepasshq/stagepass-backend/pkg/db"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	"github.com/stagepasshq/stagepass-backend/pkg/migrate"
	"github.com/stagepasshq/stagepass-backend/pkg/outbox"
	"github.com/stagepasshq/stagepass-backend/pkg/redis"
	"github.com/stagepasshq/stagepass-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	bookingsRepo := bookings.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	usersRepo := users.NewRepository(dbClient.DB())
	disputesRepo := disputes.NewRepository(dbClient.DB())
	reviewsRepo := reviews.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())
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

	disputesSvc, err := disputes.NewService(disputes.ServiceParams{
		Repo:     disputesRepo,
		Bookings: bookingsRepo,
		Ledger:   ledgerRepo,
		Users:    usersRepo,
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Payments: gateway,
		Payouts:  gateway,
		Settings: settingsSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create disputes service", err)
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

	notificationsSvc, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, stripeClient,
			bookingsSvc, escrowSvc, disputesSvc, reviewsSvc, notificationsSvc, settingsSvc),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
