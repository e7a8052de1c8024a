package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digimart-backend/pkg/enums"
)

// EscrowHoldCreatedEvent signals buyer funds were captured into escrow.
type EscrowHoldCreatedEvent struct {
	OrderItemID     uuid.UUID `json:"order_item_id"`
	OrderID         uuid.UUID `json:"order_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	SellerUserID    uuid.UUID `json:"seller_user_id"`
	HoldAmountCents int       `json:"hold_amount_cents"`
	ReleaseAt       time.Time `json:"release_at"`
}

// DeliveryConfirmedEvent is emitted when the buyer confirms receipt.
type DeliveryConfirmedEvent struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// EscrowReleasedEvent surfaces a seller payout leaving escrow.
type EscrowReleasedEvent struct {
	OrderItemID  uuid.UUID            `json:"order_item_id"`
	SellerUserID uuid.UUID            `json:"seller_user_id"`
	AmountCents  int                  `json:"amount_cents"`
	FeeCents     int                  `json:"fee_cents"`
	Trigger      enums.ReleaseTrigger `json:"trigger"`
}

// EscrowRefundedEvent surfaces escrowed funds returning to the buyer. For a
// partial refund the remainder released to the seller is reported alongside.
type EscrowRefundedEvent struct {
	OrderItemID           uuid.UUID  `json:"order_item_id"`
	BuyerID               uuid.UUID  `json:"buyer_id"`
	RefundAmountCents     int        `json:"refund_amount_cents"`
	ReleasedToSellerCents int        `json:"released_to_seller_cents"`
	TicketID              *uuid.UUID `json:"ticket_id,omitempty"`
}

// ComplaintFiledEvent signals a new ticket entered the moderator queue.
type ComplaintFiledEvent struct {
	TicketID    uuid.UUID               `json:"ticket_id"`
	Code        string                  `json:"code"`
	OrderItemID uuid.UUID               `json:"order_item_id"`
	BuyerID     uuid.UUID               `json:"buyer_id"`
	Category    enums.ComplaintCategory `json:"category"`
	IsHighValue bool                    `json:"is_high_value"`
}

// TicketAssignedEvent is emitted when a moderator claims a ticket.
type TicketAssignedEvent struct {
	TicketID    uuid.UUID `json:"ticket_id"`
	ModeratorID uuid.UUID `json:"moderator_id"`
}

// ComplaintDecidedEvent carries the moderator decision and appeal deadline.
type ComplaintDecidedEvent struct {
	TicketID          uuid.UUID            `json:"ticket_id"`
	Resolution        enums.ResolutionType `json:"resolution"`
	RefundAmountCents *int                 `json:"refund_amount_cents,omitempty"`
	AppealDeadline    time.Time            `json:"appeal_deadline"`
}

// AppealFiledEvent is emitted when a party appeals before the deadline.
type AppealFiledEvent struct {
	TicketID uuid.UUID `json:"ticket_id"`
	FiledBy  uuid.UUID `json:"filed_by"`
	FiledAt  time.Time `json:"filed_at"`
}

// AppealDecidedEvent carries the administrative appeal outcome.
type AppealDecidedEvent struct {
	TicketID uuid.UUID           `json:"ticket_id"`
	Outcome  enums.AppealOutcome `json:"outcome"`
}

// WalletToppedUpEvent signals an external payment credited a wallet.
type WalletToppedUpEvent struct {
	WalletID    uuid.UUID `json:"wallet_id"`
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int       `json:"amount_cents"`
}
