package enums

import "fmt"

// DisputeStatus maps to the dispute_status enum in Postgres.
type DisputeStatus string

const (
	DisputeStatusOpen                  DisputeStatus = "open"
	DisputeStatusUnderReview           DisputeStatus = "under_review"
	DisputeStatusResolvedOrganizerWins DisputeStatus = "resolved_organizer_favor"
	DisputeStatusResolvedTalentWins    DisputeStatus = "resolved_talent_favor"
	DisputeStatusResolvedPartial       DisputeStatus = "resolved_partial"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusUnderReview,
	DisputeStatusResolvedOrganizerWins,
	DisputeStatusResolvedTalentWins,
	DisputeStatusResolvedPartial,
}

// String implements fmt.Stringer.
func (d DisputeStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DisputeStatus.
func (d DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsActive reports whether the dispute still blocks settlement.
func (d DisputeStatus) IsActive() bool {
	return d == DisputeStatusOpen || d == DisputeStatusUnderReview
}

// IsResolved reports whether the dispute reached a terminal outcome.
func (d DisputeStatus) IsResolved() bool {
	switch d {
	case DisputeStatusResolvedOrganizerWins, DisputeStatusResolvedTalentWins, DisputeStatusResolvedPartial:
		return true
	}
	return false
}

// ParseDisputeStatus converts raw input into a DisputeStatus.
func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}

// DisputeReason maps to the dispute_reason enum in Postgres. Each role may
// only file with reasons from its own set.
type DisputeReason string

const (
	DisputeReasonTalentNoShow      DisputeReason = "talent_no_show"
	DisputeReasonPoorPerformance   DisputeReason = "poor_performance"
	DisputeReasonLateArrival       DisputeReason = "late_arrival"
	DisputeReasonOrganizerNoShow   DisputeReason = "organizer_no_show"
	DisputeReasonUnsafeConditions  DisputeReason = "unsafe_conditions"
	DisputeReasonScopeMisrepresent DisputeReason = "scope_misrepresented"
	DisputeReasonOther             DisputeReason = "other"
)

var validDisputeReasons = []DisputeReason{
	DisputeReasonTalentNoShow,
	DisputeReasonPoorPerformance,
	DisputeReasonLateArrival,
	DisputeReasonOrganizerNoShow,
	DisputeReasonUnsafeConditions,
	DisputeReasonScopeMisrepresent,
	DisputeReasonOther,
}

var organizerDisputeReasons = []DisputeReason{
	DisputeReasonTalentNoShow,
	DisputeReasonPoorPerformance,
	DisputeReasonLateArrival,
	DisputeReasonOther,
}

var talentDisputeReasons = []DisputeReason{
	DisputeReasonOrganizerNoShow,
	DisputeReasonUnsafeConditions,
	DisputeReasonScopeMisrepresent,
	DisputeReasonOther,
}

// String implements fmt.Stringer.
func (d DisputeReason) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DisputeReason.
func (d DisputeReason) IsValid() bool {
	for _, candidate := range validDisputeReasons {
		if candidate == d {
			return true
		}
	}
	return false
}

// AllowedForRole reports whether the filer's role may use this reason.
func (d DisputeReason) AllowedForRole(role UserRole) bool {
	var allowed []DisputeReason
	switch role {
	case UserRoleOrganizer:
		allowed = organizerDisputeReasons
	case UserRoleTalent:
		allowed = talentDisputeReasons
	default:
		return false
	}
	for _, candidate := range allowed {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeReason converts raw input into a DisputeReason.
func ParseDisputeReason(value string) (DisputeReason, error) {
	for _, candidate := range validDisputeReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute reason %q", value)
}
