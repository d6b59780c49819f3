package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// dbAvailabilityChecker is the default scheduling collaborator: a talent is
// available unless they already hold a confirmed booking that calendar day.
// An external scheduling service can replace it behind AvailabilityChecker.
type dbAvailabilityChecker struct {
	repo Repository
}

// NewDBAvailabilityChecker builds the booking-table-backed availability check.
func NewDBAvailabilityChecker(repo Repository) (AvailabilityChecker, error) {
	if repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	return &dbAvailabilityChecker{repo: repo}, nil
}

func (c *dbAvailabilityChecker) IsAvailable(ctx context.Context, talentID uuid.UUID, eventDate time.Time) (bool, error) {
	day := eventDate.UTC().Truncate(24 * time.Hour)
	count, err := c.repo.CountConfirmedOn(ctx, talentID, day, day.Add(24*time.Hour))
	if err != nil {
		return false, err
	}
	return count == 0, nil
}
