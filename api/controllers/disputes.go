package controllers

import (
	"net/http"
	"strings"

	"github.com/stagepasshq/stagepass-backend/api/responses"
	"github.com/stagepasshq/stagepass-backend/api/validators"
	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	"github.com/stagepasshq/stagepass-backend/internal/disputes"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
)

type fileDisputeRequest struct {
	Reason      string `json:"reason" validate:"required"`
	Explanation string `json:"explanation" validate:"required,min=10,max=2000"`
}

type resolveDisputeRequest struct {
	Resolution        string  `json:"resolution" validate:"required,oneof=organizer_favor talent_favor partial"`
	RefundAmountCents *int64  `json:"refundAmountCents,omitempty" validate:"omitempty,gte=0"`
	PayoutAmountCents *int64  `json:"payoutAmountCents,omitempty" validate:"omitempty,gte=0"`
	Notes             *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// FileDispute freezes a booking's settlement pending arbitration.
func FileDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req fileDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason, err := enums.ParseDisputeReason(req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute reason"))
			return
		}

		dispute, err := svc.File(r.Context(), disputes.FileInput{
			BookingID:   bookingID,
			FilerID:     filerID,
			Reason:      reason,
			Explanation: strings.TrimSpace(req.Explanation),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dispute)
	}
}

// GetDispute returns a dispute to the booking's participants or an admin.
// Participation is checked through the booking read path so the access rules
// stay in one place.
func GetDispute(svc disputes.Service, bookingsSvc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		disputeID, err := validators.ParseUUIDParam(r, "disputeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := callerRole(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Get(r.Context(), disputeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := bookingsSvc.Get(r.Context(), dispute.BookingID, userID, role); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dispute)
	}
}

// ListActiveDisputes is the admin work queue.
func ListActiveDisputes(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 25, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListActive(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// ClaimDispute moves an open dispute under review by the calling admin.
func ClaimDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		disputeID, err := validators.ParseUUIDParam(r, "disputeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adminID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.BeginReview(r.Context(), disputeID, adminID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dispute)
	}
}

// ResolveDispute records the verdict and reallocates the escrowed funds.
func ResolveDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		disputeID, err := validators.ParseUUIDParam(r, "disputeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adminID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Resolve(r.Context(), disputes.ResolveInput{
			DisputeID:         disputeID,
			AdminID:           adminID,
			Resolution:        disputes.Resolution(req.Resolution),
			RefundAmountCents: req.RefundAmountCents,
			PayoutAmountCents: req.PayoutAmountCents,
			Notes:             req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dispute)
	}
}
