package enums

import "fmt"

// BookingStatus tracks the lifecycle of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusAccepted  BookingStatus = "accepted"
	BookingStatusDeclined  BookingStatus = "declined"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusDisputed  BookingStatus = "disputed"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusAccepted,
	BookingStatusDeclined,
	BookingStatusPaid,
	BookingStatusCompleted,
	BookingStatusCancelled,
	BookingStatusDisputed,
}

// String implements fmt.Stringer.
func (b BookingStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BookingStatus.
func (b BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed out of the status.
func (b BookingStatus) IsTerminal() bool {
	switch b {
	case BookingStatusDeclined, BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// CanDispute reports whether a dispute may freeze a booking in this status.
// Declined bookings never held funds, and terminal states are settled.
func (b BookingStatus) CanDispute() bool {
	switch b {
	case BookingStatusPaid, BookingStatusCompleted:
		return true
	}
	return false
}

// ParseBookingStatus converts raw input into a BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}
