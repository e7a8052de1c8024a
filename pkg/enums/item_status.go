package enums

import "fmt"

// ItemStatus maps to the order_item_status enum in Postgres.
type ItemStatus string

const (
	ItemStatusWaitingDelivery ItemStatus = "waiting_delivery"
	ItemStatusDelivered       ItemStatus = "delivered"
	ItemStatusCompleted       ItemStatus = "completed"
	ItemStatusDisputed        ItemStatus = "disputed"
	ItemStatusRefunded        ItemStatus = "refunded"
)

var validItemStatuses = []ItemStatus{
	ItemStatusWaitingDelivery,
	ItemStatusDelivered,
	ItemStatusCompleted,
	ItemStatusDisputed,
	ItemStatusRefunded,
}

// String implements fmt.Stringer.
func (i ItemStatus) String() string {
	return string(i)
}

// IsValid reports whether the value is a known ItemStatus.
func (i ItemStatus) IsValid() bool {
	for _, candidate := range validItemStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// CanFileComplaint reports whether a buyer may open a ticket against an item
// in this state.
func (i ItemStatus) CanFileComplaint() bool {
	return i == ItemStatusDelivered || i == ItemStatusCompleted
}

// ParseItemStatus converts raw input into an ItemStatus.
func ParseItemStatus(value string) (ItemStatus, error) {
	for _, candidate := range validItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item status %q", value)
}
