package enums

import "fmt"

// ReleaseTrigger records what caused escrowed funds to leave the hold.
type ReleaseTrigger string

const (
	ReleaseTriggerConfirmation ReleaseTrigger = "confirmation"
	ReleaseTriggerWindowLapse  ReleaseTrigger = "window_lapse"
	ReleaseTriggerDecision     ReleaseTrigger = "decision"
	ReleaseTriggerAdmin        ReleaseTrigger = "admin"
)

var validReleaseTriggers = []ReleaseTrigger{
	ReleaseTriggerConfirmation,
	ReleaseTriggerWindowLapse,
	ReleaseTriggerDecision,
	ReleaseTriggerAdmin,
}

func (t ReleaseTrigger) IsValid() bool {
	for _, candidate := range validReleaseTriggers {
		if t == candidate {
			return true
		}
	}
	return false
}

// ParseReleaseTrigger converts raw input into a ReleaseTrigger.
func ParseReleaseTrigger(value string) (ReleaseTrigger, error) {
	for _, candidate := range validReleaseTriggers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid release trigger %q", value)
}
