package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/api/middleware"
	"github.com/stagepasshq/stagepass-backend/api/responses"
	"github.com/stagepasshq/stagepass-backend/api/validators"
	"github.com/stagepasshq/stagepass-backend/internal/bookings"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
	"github.com/stagepasshq/stagepass-backend/pkg/pagination"
)

type createBookingRequest struct {
	TalentID         string    `json:"talentId" validate:"required,uuid"`
	EventName        string    `json:"eventName" validate:"required,min=3,max=200"`
	EventLocation    *string   `json:"eventLocation,omitempty" validate:"omitempty,max=300"`
	EventDate        time.Time `json:"eventDate" validate:"required"`
	GrossAmountCents int64     `json:"grossAmountCents" validate:"required,gt=0"`
	Notes            *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type respondBookingRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accept decline"`
}

// CreateBooking opens a booking request against a talent.
func CreateBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		organizerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createBookingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		talentID, err := uuid.Parse(req.TalentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid talent id"))
			return
		}

		booking, err := svc.Create(r.Context(), bookings.CreateInput{
			OrganizerID:      organizerID,
			TalentID:         talentID,
			EventName:        strings.TrimSpace(req.EventName),
			EventLocation:    req.EventLocation,
			EventDate:        req.EventDate,
			GrossAmountCents: req.GrossAmountCents,
			Notes:            req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

// ListBookings returns the caller's bookings, newest first.
func ListBookings(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		rows, err := svc.ListForUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// GetBooking returns one booking to a participant or an admin.
func GetBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
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

		booking, err := svc.Get(r.Context(), bookingID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// RespondBooking records the talent's accept/decline decision.
func RespondBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		talentID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req respondBookingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Respond(r.Context(), bookings.RespondInput{
			BookingID: bookingID,
			TalentID:  talentID,
			Decision:  bookings.Decision(req.Decision),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// CancelBooking withdraws a booking the organizer no longer wants.
func CancelBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
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

		booking, err := svc.Cancel(r.Context(), bookingID, organizerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// CompleteBooking is the manual completion trigger; the sweep job runs the
// same path on schedule.
func CompleteBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkCompleted(r.Context(), bookingID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"bookingId": bookingID, "status": enums.BookingStatusCompleted})
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity")
	}
	return id, nil
}

func callerRole(r *http.Request) (enums.UserRole, error) {
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "unknown actor role")
	}
	return role, nil
}
