package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digimart-backend/pkg/db/models"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
	"github.com/angelmondragon/digimart-backend/pkg/pagination"
)

// Repository manages persistence for escrow order items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.OrderItem) error
	FindByID(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	// MarkDelivered flips waiting_delivery to delivered. Returns false when
	// the item was not in waiting_delivery.
	MarkDelivered(ctx context.Context, itemID uuid.UUID, at time.Time) (bool, error)
	// ConfirmDelivery flips delivered to completed. Returns false when the
	// item was not in delivered.
	ConfirmDelivery(ctx context.Context, itemID uuid.UUID) (bool, error)
	// FinalizeHold moves a holding item into a terminal hold status. The
	// conditional WHERE on hold_status makes concurrent finalizers lose
	// cleanly: exactly one caller sees true.
	FinalizeHold(ctx context.Context, itemID uuid.UUID, to enums.HoldStatus, itemStatus enums.ItemStatus, releaseAt time.Time) (bool, error)
	// FinalizeRelease is the release-path flip. On top of FinalizeHold's
	// hold_status guard it refuses items flagged disputed: a complaint that
	// commits between the open-ticket check and this update keeps the hold.
	FinalizeRelease(ctx context.Context, itemID uuid.UUID, releaseAt time.Time) (bool, error)
	// SetDisputed marks a holding item as disputed without touching the hold.
	SetDisputed(ctx context.Context, itemID uuid.UUID) (bool, error)
	// ListHoldingDue returns holding items whose hold clock started at or
	// before the cutoff, oldest first.
	ListHoldingDue(ctx context.Context, cutoff time.Time, limit int) ([]models.OrderItem, error)
	ListByHoldStatus(ctx context.Context, status enums.HoldStatus, params pagination.Params) ([]models.OrderItem, error)
	ListByItemStatus(ctx context.Context, status enums.ItemStatus, params pagination.Params) ([]models.OrderItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindByID(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("id = ?", itemID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) MarkDelivered(ctx context.Context, itemID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND item_status = ?", itemID, enums.ItemStatusWaitingDelivery).
		Updates(map[string]interface{}{
			"item_status":  enums.ItemStatusDelivered,
			"delivered_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ConfirmDelivery(ctx context.Context, itemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND item_status = ?", itemID, enums.ItemStatusDelivered).
		Update("item_status", enums.ItemStatusCompleted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FinalizeHold(ctx context.Context, itemID uuid.UUID, to enums.HoldStatus, itemStatus enums.ItemStatus, releaseAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND hold_status = ?", itemID, enums.HoldStatusHolding).
		Updates(map[string]interface{}{
			"hold_status": to,
			"item_status": itemStatus,
			"release_at":  releaseAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FinalizeRelease(ctx context.Context, itemID uuid.UUID, releaseAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND hold_status = ? AND item_status <> ?",
			itemID, enums.HoldStatusHolding, enums.ItemStatusDisputed).
		Updates(map[string]interface{}{
			"hold_status": enums.HoldStatusReleased,
			"item_status": enums.ItemStatusCompleted,
			"release_at":  releaseAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetDisputed(ctx context.Context, itemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND hold_status = ?", itemID, enums.HoldStatusHolding).
		Update("item_status", enums.ItemStatusDisputed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListHoldingDue(ctx context.Context, cutoff time.Time, limit int) ([]models.OrderItem, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("hold_status = ? AND hold_at <= ?", enums.HoldStatusHolding, cutoff).
		Order("hold_at ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListByHoldStatus(ctx context.Context, status enums.HoldStatus, params pagination.Params) ([]models.OrderItem, error) {
	return r.listPage(ctx, "hold_status = ?", string(status), params)
}

func (r *repository) ListByItemStatus(ctx context.Context, status enums.ItemStatus, params pagination.Params) ([]models.OrderItem, error) {
	return r.listPage(ctx, "item_status = ?", string(status), params)
}

func (r *repository) listPage(ctx context.Context, cond, value string, params pagination.Params) ([]models.OrderItem, error) {
	query := r.db.WithContext(ctx).
		Where(cond, value).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var items []models.OrderItem
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
