package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digimart-backend/pkg/enums"
)

// OrderItem is the escrow record for one purchased unit. It is created at
// payment capture and never deleted; hold_amount_cents is fixed at hold time.
type OrderItem struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index:ix_order_items_order"`
	ShopID          uuid.UUID        `gorm:"column:shop_id;type:uuid;not null;index:ix_order_items_shop"`
	BuyerID         uuid.UUID        `gorm:"column:buyer_id;type:uuid;not null;index:ix_order_items_buyer"`
	SellerUserID    uuid.UUID        `gorm:"column:seller_user_id;type:uuid;not null"`
	ProductTitle    string           `gorm:"column:product_title;not null"`
	SubtotalCents   int              `gorm:"column:subtotal_cents;not null"`
	HoldAmountCents int              `gorm:"column:hold_amount_cents;not null"`
	HoldStatus      enums.HoldStatus `gorm:"column:hold_status;type:hold_status;not null;default:'holding'"`
	ItemStatus      enums.ItemStatus `gorm:"column:item_status;type:order_item_status;not null;default:'waiting_delivery'"`
	HoldAt          time.Time        `gorm:"column:hold_at;not null"`
	DeliveredAt     *time.Time       `gorm:"column:delivered_at"`
	ReleaseAt       *time.Time       `gorm:"column:release_at"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
