package enums

import "fmt"

// TransactionKind maps to the transaction_kind enum in Postgres.
type TransactionKind string

const (
	TransactionKindBookingPayment TransactionKind = "booking_payment"
	TransactionKindRefund         TransactionKind = "refund"
	TransactionKindPayout         TransactionKind = "payout"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindBookingPayment,
	TransactionKindRefund,
	TransactionKindPayout,
}

// String implements fmt.Stringer.
func (t TransactionKind) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionKind.
func (t TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionKind converts raw input into a TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}

// TransactionStatus tracks settlement of a single money movement.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusSuccess,
	TransactionStatusFailed,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
