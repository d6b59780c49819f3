package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeBookingRequested NotificationType = "booking_requested"
	NotificationTypeBookingDecided   NotificationType = "booking_decided"
	NotificationTypePaymentConfirmed NotificationType = "payment_confirmed"
	NotificationTypePayoutSettled    NotificationType = "payout_settled"
	NotificationTypeDisputeFiled     NotificationType = "dispute_filed"
	NotificationTypeDisputeResolved  NotificationType = "dispute_resolved"
	NotificationTypeReviewRevealed   NotificationType = "review_revealed"
	NotificationTypeSystem           NotificationType = "system_announcement"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeBookingRequested,
	NotificationTypeBookingDecided,
	NotificationTypePaymentConfirmed,
	NotificationTypePayoutSettled,
	NotificationTypeDisputeFiled,
	NotificationTypeDisputeResolved,
	NotificationTypeReviewRevealed,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
