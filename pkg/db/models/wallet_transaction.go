package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digimart-backend/pkg/enums"
)

// WalletTransaction is an immutable ledger row. Rows are only ever inserted,
// in the same transaction as the balance mutation they describe.
type WalletTransaction struct {
	ID          uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID    uuid.UUID                  `gorm:"column:wallet_id;type:uuid;not null;index:ix_wallet_transactions_wallet"`
	Type        enums.TransactionType      `gorm:"column:type;type:wallet_transaction_type;not null"`
	Direction   enums.TransactionDirection `gorm:"column:direction;type:transaction_direction;not null"`
	AmountCents int                        `gorm:"column:amount_cents;not null"`
	OrderItemID *uuid.UUID                 `gorm:"column:order_item_id;type:uuid"`
	Note        *string                    `gorm:"column:note"`
	CreatedAt   time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

// SignedAmountCents returns the amount with the direction's sign applied,
// so summing rows reconstructs the balance delta exactly.
func (t WalletTransaction) SignedAmountCents() int {
	return t.Direction.Signed(t.AmountCents)
}
