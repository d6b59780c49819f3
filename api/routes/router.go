package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stagepasshq/stagepass-backend/api/controllers"
	"github.com/stagepasshq/stagepass-backend/api/middleware"
	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	"github.com/stagepasshq/stagepass-backend/internal/disputes"
	"github.com/stagepasshq/stagepass-backend/internal/escrow"
	"github.com/stagepasshq/stagepass-backend/internal/notifications"
	"github.com/stagepasshq/stagepass-backend/internal/reviews"
	"github.com/stagepasshq/stagepass-backend/internal/settings"
	"github.com/stagepasshq/stagepass-backend/pkg/config"
	"github.com/stagepasshq/stagepass-backend/pkg/db"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	pkgredis "github.com/stagepasshq/stagepass-backend/pkg/redis"
	"github.com/stagepasshq/stagepass-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	stripeClient *stripe.Client,
	bookingsSvc bookings.Service,
	escrowSvc escrow.Service,
	disputesSvc disputes.Service,
	reviewsSvc reviews.Service,
	notificationsSvc notifications.Service,
	settingsSvc settings.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.CORS(),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", controllers.PaymentWebhook(escrowSvc, stripeClient, redisClient, logg))
	})

	// The redirect channel carries no credentials; gateway verification inside
	// ConfirmPayment is what decides whether anything happens.
	r.Get("/api/v1/payments/confirm", controllers.ConfirmPaymentRedirect(escrowSvc, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Use(middleware.RateLimit(redisClient, logg))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", controllers.CreateBooking(bookingsSvc, logg))
			r.Get("/", controllers.ListBookings(bookingsSvc, logg))
			r.Get("/{bookingId}", controllers.GetBooking(bookingsSvc, logg))
			r.Post("/{bookingId}/respond", controllers.RespondBooking(bookingsSvc, logg))
			r.Post("/{bookingId}/cancel", controllers.CancelBooking(bookingsSvc, logg))
			r.With(middleware.RequireRole("admin", logg)).
				Post("/{bookingId}/complete", controllers.CompleteBooking(bookingsSvc, logg))
			r.Post("/{bookingId}/payment", controllers.InitiatePayment(escrowSvc, logg))
			r.Post("/{bookingId}/disputes", controllers.FileDispute(disputesSvc, logg))
			r.Post("/{bookingId}/reviews", controllers.SubmitReview(reviewsSvc, logg))
		})

		r.Get("/disputes/{disputeId}", controllers.GetDispute(disputesSvc, bookingsSvc, logg))
		r.Get("/reviews/{reviewId}", controllers.GetOwnReview(reviewsSvc, logg))
		r.Get("/users/{userId}/reviews", controllers.ListUserReviews(reviewsSvc, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsSvc, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsSvc, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsSvc, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Use(middleware.RateLimit(redisClient, logg))

		r.Route("/disputes", func(r chi.Router) {
			r.Get("/", controllers.ListActiveDisputes(disputesSvc, logg))
			r.Post("/{disputeId}/claim", controllers.ClaimDispute(disputesSvc, logg))
			r.Post("/{disputeId}/resolve", controllers.ResolveDispute(disputesSvc, logg))
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", controllers.ListSettings(settingsSvc, logg))
			r.Put("/", controllers.UpdateSetting(settingsSvc, logg))
		})
	})

	return r
}
