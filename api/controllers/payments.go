package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v81"

	"github.com/stagepasshq/stagepass-backend/api/responses"
	"github.com/stagepasshq/stagepass-backend/api/validators"
	"github.com/stagepasshq/stagepass-backend/internal/escrow"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
)

const webhookReplayTTL = 7 * 24 * time.Hour

type webhookVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error)
}

type webhookReplayGuard interface {
	MarkWebhookSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	WebhookReplayKey(eventID string) string
	Del(ctx context.Context, keys ...string) error
}

// InitiatePayment starts the checkout flow for an accepted booking.
func InitiatePayment(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		organizerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.InitiatePayment(r.Context(), bookingID, organizerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// ConfirmPaymentRedirect handles the organizer's return from checkout. The
// gateway webhook races this call for the same reference; whichever arrives
// second gets the already-confirmed result.
func ConfirmPaymentRedirect(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference := strings.TrimSpace(r.URL.Query().Get("reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference query parameter required"))
			return
		}

		confirmation, err := svc.ConfirmPayment(r.Context(), reference, enums.ConfirmationSourceUserRedirect)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmation)
	}
}

// PaymentWebhook is the gateway's server-to-server confirmation channel.
// Signature verification runs before anything else; replayed deliveries are
// acknowledged without reprocessing.
func PaymentWebhook(svc escrow.Service, verifier webhookVerifier, guard webhookReplayGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSecurity, "gateway signature missing"))
			return
		}

		event, err := verifier.VerifyWebhook(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if event.Type != "checkout.session.completed" {
			responses.WriteSuccess(w, nil)
			return
		}

		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session"))
			return
		}
		reference := strings.TrimSpace(session.ClientReferenceID)
		if reference == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no reference"))
			return
		}

		fresh, err := guard.MarkWebhookSeen(ctx, event.ID, webhookReplayTTL)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook replay"))
			return
		}
		if !fresh {
			responses.WriteSuccess(w, nil)
			return
		}

		if _, err := svc.ConfirmPayment(ctx, reference, enums.ConfirmationSourceGatewayCallback); err != nil {
			// Release the replay marker so the gateway's retry can land.
			_ = guard.Del(ctx, guard.WebhookReplayKey(event.ID))
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "event_id", event.ID), "gateway payment event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
