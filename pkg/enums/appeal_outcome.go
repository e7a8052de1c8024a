package enums

import "fmt"

// AppealOutcome records the administrative ruling on an appeal.
type AppealOutcome string

const (
	AppealOutcomeUpheld   AppealOutcome = "upheld"
	AppealOutcomeReversed AppealOutcome = "reversed"
)

var validAppealOutcomes = []AppealOutcome{
	AppealOutcomeUpheld,
	AppealOutcomeReversed,
}

// IsValid reports whether the value is a known AppealOutcome.
func (a AppealOutcome) IsValid() bool {
	for _, candidate := range validAppealOutcomes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAppealOutcome converts raw input into an AppealOutcome.
func ParseAppealOutcome(value string) (AppealOutcome, error) {
	for _, candidate := range validAppealOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid appeal outcome %q", value)
}
