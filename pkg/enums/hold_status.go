package enums

import "fmt"

// HoldStatus maps to the hold_status enum in Postgres. Transitions are
// monotonic: holding is the only non-terminal state.
type HoldStatus string

const (
	HoldStatusHolding  HoldStatus = "holding"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusRefunded HoldStatus = "refunded"
)

var validHoldStatuses = []HoldStatus{
	HoldStatusHolding,
	HoldStatusReleased,
	HoldStatusRefunded,
}

// String implements fmt.Stringer.
func (h HoldStatus) String() string {
	return string(h)
}

// IsValid reports whether the value is a known HoldStatus.
func (h HoldStatus) IsValid() bool {
	for _, candidate := range validHoldStatuses {
		if candidate == h {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further hold transitions are allowed.
func (h HoldStatus) IsTerminal() bool {
	return h == HoldStatusReleased || h == HoldStatusRefunded
}

// ParseHoldStatus converts raw input into a HoldStatus.
func ParseHoldStatus(value string) (HoldStatus, error) {
	for _, candidate := range validHoldStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid hold status %q", value)
}
