package enums

import "fmt"

// ResolutionType records the moderator decision on a complaint ticket.
type ResolutionType string

const (
	ResolutionTypeReject        ResolutionType = "reject"
	ResolutionTypeFullRefund    ResolutionType = "full_refund"
	ResolutionTypePartialRefund ResolutionType = "partial_refund"
)

var validResolutionTypes = []ResolutionType{
	ResolutionTypeReject,
	ResolutionTypeFullRefund,
	ResolutionTypePartialRefund,
}

// String implements fmt.Stringer.
func (r ResolutionType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ResolutionType.
func (r ResolutionType) IsValid() bool {
	for _, candidate := range validResolutionTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// RequiresRefundAmount reports whether the decision must carry an amount.
func (r ResolutionType) RequiresRefundAmount() bool {
	return r == ResolutionTypePartialRefund
}

// ParseResolutionType converts raw input into a ResolutionType.
func ParseResolutionType(value string) (ResolutionType, error) {
	for _, candidate := range validResolutionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid resolution type %q", value)
}
