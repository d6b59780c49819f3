package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// CreateInput carries everything needed to open a booking request.
type CreateInput struct {
	OrganizerID      uuid.UUID
	TalentID         uuid.UUID
	EventName        string
	EventLocation    *string
	EventDate        time.Time
	GrossAmountCents int64
	Notes            *string
}

// RespondInput is the talent's accept/decline decision.
type RespondInput struct {
	BookingID uuid.UUID
	TalentID  uuid.UUID
	Decision  Decision
}

// Decision is the talent's answer to a pending booking.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// BookingResponse is the API-facing shape of a booking.
type BookingResponse struct {
	ID                uuid.UUID           `json:"id"`
	OrganizerID       uuid.UUID           `json:"organizerId"`
	TalentID          uuid.UUID           `json:"talentId"`
	EventName         string              `json:"eventName"`
	EventLocation     *string             `json:"eventLocation,omitempty"`
	EventDate         time.Time           `json:"eventDate"`
	Status            enums.BookingStatus `json:"status"`
	Currency          enums.Currency      `json:"currency"`
	GrossAmountCents  int64               `json:"grossAmountCents"`
	PlatformFeeCents  int64               `json:"platformFeeCents"`
	TalentAmountCents int64               `json:"talentAmountCents"`
	IsPaidOut         bool                `json:"isPaidOut"`
	Notes             *string             `json:"notes,omitempty"`
	AcceptedAt        *time.Time          `json:"acceptedAt,omitempty"`
	CompletedAt       *time.Time          `json:"completedAt,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
}

// NewBookingResponse maps the model to its API shape.
func NewBookingResponse(m *models.Booking) *BookingResponse {
	if m == nil {
		return nil
	}
	return &BookingResponse{
		ID:                m.ID,
		OrganizerID:       m.OrganizerID,
		TalentID:          m.TalentID,
		EventName:         m.EventName,
		EventLocation:     m.EventLocation,
		EventDate:         m.EventDate,
		Status:            m.Status,
		Currency:          m.Currency,
		GrossAmountCents:  m.GrossAmountCents,
		PlatformFeeCents:  m.PlatformFeeCents,
		TalentAmountCents: m.TalentAmountCents,
		IsPaidOut:         m.IsPaidOut,
		Notes:             m.Notes,
		AcceptedAt:        m.AcceptedAt,
		CompletedAt:       m.CompletedAt,
		CreatedAt:         m.CreatedAt,
	}
}
