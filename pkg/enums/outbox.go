package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrderItem       OutboxAggregateType = "order_item"
	AggregateWallet          OutboxAggregateType = "wallet"
	AggregateComplaintTicket OutboxAggregateType = "complaint_ticket"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrderItem,
	AggregateWallet,
	AggregateComplaintTicket,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum enum in Postgres.
type OutboxEventType string

const (
	EventEscrowHoldCreated OutboxEventType = "escrow_hold_created"
	EventEscrowReleased    OutboxEventType = "escrow_released"
	EventEscrowRefunded    OutboxEventType = "escrow_refunded"
	EventDeliveryConfirmed OutboxEventType = "delivery_confirmed"
	EventComplaintFiled    OutboxEventType = "complaint_filed"
	EventTicketAssigned    OutboxEventType = "ticket_assigned"
	EventComplaintDecided  OutboxEventType = "complaint_decided"
	EventAppealFiled       OutboxEventType = "appeal_filed"
	EventAppealDecided     OutboxEventType = "appeal_decided"
	EventWalletToppedUp    OutboxEventType = "wallet_topped_up"
)

var validOutboxEventTypes = []OutboxEventType{
	EventEscrowHoldCreated,
	EventEscrowReleased,
	EventEscrowRefunded,
	EventDeliveryConfirmed,
	EventComplaintFiled,
	EventTicketAssigned,
	EventComplaintDecided,
	EventAppealFiled,
	EventAppealDecided,
	EventWalletToppedUp,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
