package enums

import "fmt"

// ReviewerType identifies which side of a booking wrote a review.
type ReviewerType string

const (
	ReviewerTypeOrganizer ReviewerType = "organizer"
	ReviewerTypeTalent    ReviewerType = "talent"
)

var validReviewerTypes = []ReviewerType{
	ReviewerTypeOrganizer,
	ReviewerTypeTalent,
}

// String implements fmt.Stringer.
func (r ReviewerType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReviewerType.
func (r ReviewerType) IsValid() bool {
	for _, candidate := range validReviewerTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// Counterpart returns the opposite side of the review pair.
func (r ReviewerType) Counterpart() ReviewerType {
	if r == ReviewerTypeOrganizer {
		return ReviewerTypeTalent
	}
	return ReviewerTypeOrganizer
}

// ParseReviewerType converts raw input into a ReviewerType.
func ParseReviewerType(value string) (ReviewerType, error) {
	for _, candidate := range validReviewerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reviewer type %q", value)
}
