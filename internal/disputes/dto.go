package disputes

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// FileInput carries a party's request to freeze a booking.
type FileInput struct {
	BookingID   uuid.UUID
	FilerID     uuid.UUID
	Reason      enums.DisputeReason
	Explanation string
}

// Resolution is the admin's verdict.
type Resolution string

const (
	ResolutionOrganizerFavor Resolution = "organizer_favor"
	ResolutionTalentFavor    Resolution = "talent_favor"
	ResolutionPartial        Resolution = "partial"
)

// TerminalStatus maps the verdict to the dispute's terminal status.
func (r Resolution) TerminalStatus() (enums.DisputeStatus, bool) {
	switch r {
	case ResolutionOrganizerFavor:
		return enums.DisputeStatusResolvedOrganizerWins, true
	case ResolutionTalentFavor:
		return enums.DisputeStatusResolvedTalentWins, true
	case ResolutionPartial:
		return enums.DisputeStatusResolvedPartial, true
	}
	return "", false
}

// ResolveInput carries the admin resolution parameters. Amounts are required
// for partial resolutions and derived for the one-sided verdicts.
type ResolveInput struct {
	DisputeID         uuid.UUID
	AdminID           uuid.UUID
	Resolution        Resolution
	RefundAmountCents *int64
	PayoutAmountCents *int64
	Notes             *string
}

// DisputeResponse is the API-facing shape of a dispute.
type DisputeResponse struct {
	ID                uuid.UUID           `json:"id"`
	BookingID         uuid.UUID           `json:"bookingId"`
	DisputedByID      uuid.UUID           `json:"disputedById"`
	DisputedByRole    enums.UserRole      `json:"disputedByRole"`
	Reason            enums.DisputeReason `json:"reason"`
	Explanation       string              `json:"explanation"`
	Status            enums.DisputeStatus `json:"status"`
	ResolutionNotes   *string             `json:"resolutionNotes,omitempty"`
	RefundAmountCents *int64              `json:"refundAmountCents,omitempty"`
	PayoutAmountCents *int64              `json:"payoutAmountCents,omitempty"`
	ResolvedAt        *time.Time          `json:"resolvedAt,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
}

// NewDisputeResponse maps the model to its API shape.
func NewDisputeResponse(m *models.Dispute) *DisputeResponse {
	if m == nil {
		return nil
	}
	return &DisputeResponse{
		ID:                m.ID,
		BookingID:         m.BookingID,
		DisputedByID:      m.DisputedByID,
		DisputedByRole:    m.DisputedByRole,
		Reason:            m.Reason,
		Explanation:       m.Explanation,
		Status:            m.Status,
		ResolutionNotes:   m.ResolutionNotes,
		RefundAmountCents: m.RefundAmountCents,
		PayoutAmountCents: m.PayoutAmountCents,
		ResolvedAt:        m.ResolvedAt,
		CreatedAt:         m.CreatedAt,
	}
}
