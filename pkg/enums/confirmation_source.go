package enums

import "fmt"

// ConfirmationSource identifies which channel reported a payment result.
// The gateway callback and the user browser redirect race for the same
// reference, so both funnel through the same confirmation path.
type ConfirmationSource string

const (
	ConfirmationSourceGatewayCallback ConfirmationSource = "gateway_callback"
	ConfirmationSourceUserRedirect    ConfirmationSource = "user_redirect"
)

var validConfirmationSources = []ConfirmationSource{
	ConfirmationSourceGatewayCallback,
	ConfirmationSourceUserRedirect,
}

// String implements fmt.Stringer.
func (c ConfirmationSource) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ConfirmationSource.
func (c ConfirmationSource) IsValid() bool {
	for _, candidate := range validConfirmationSources {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConfirmationSource converts raw input into a ConfirmationSource.
func ParseConfirmationSource(value string) (ConfirmationSource, error) {
	for _, candidate := range validConfirmationSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid confirmation source %q", value)
}
