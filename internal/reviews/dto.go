package reviews

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagepasshq/stagepass-backend/pkg/db/models"
	"github.com/stagepasshq/stagepass-backend/pkg/enums"
)

// SubmitInput carries one side's review of a completed booking.
type SubmitInput struct {
	BookingID uuid.UUID
	GiverID   uuid.UUID
	Rating    int
	Comment   *string
}

// ReviewResponse is the API-facing shape of a review. Hidden reviews only
// ever surface to their own giver.
type ReviewResponse struct {
	ID           uuid.UUID          `json:"id"`
	BookingID    uuid.UUID          `json:"bookingId"`
	ReviewerType enums.ReviewerType `json:"reviewerType"`
	GiverID      uuid.UUID          `json:"giverId"`
	ReceiverID   uuid.UUID          `json:"receiverId"`
	Rating       int                `json:"rating"`
	Comment      *string            `json:"comment,omitempty"`
	IsVisible    bool               `json:"isVisible"`
	RevealedAt   *time.Time         `json:"revealedAt,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// NewReviewResponse maps the model to its API shape.
func NewReviewResponse(m *models.Review) *ReviewResponse {
	if m == nil {
		return nil
	}
	return &ReviewResponse{
		ID:           m.ID,
		BookingID:    m.BookingID,
		ReviewerType: m.ReviewerType,
		GiverID:      m.GiverID,
		ReceiverID:   m.ReceiverID,
		Rating:       m.Rating,
		Comment:      m.Comment,
		IsVisible:    m.IsVisible,
		RevealedAt:   m.RevealedAt,
		CreatedAt:    m.CreatedAt,
	}
}

// SweepResult summarizes one disclosure sweep run.
type SweepResult struct {
	Examined int
	Revealed int
}
