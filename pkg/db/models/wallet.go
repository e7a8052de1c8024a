package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet tracks a user's spendable and escrowed funds in minor currency units.
// Both balances are mutated only through the wallet ledger, which appends a
// WalletTransaction for every change.
type Wallet struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_wallets_user"`
	BalanceCents     int       `gorm:"column:balance_cents;not null;default:0"`
	HoldBalanceCents int       `gorm:"column:hold_balance_cents;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TotalCents is the wallet's combined spendable and escrowed funds.
func (w Wallet) TotalCents() int {
	return w.BalanceCents + w.HoldBalanceCents
}
