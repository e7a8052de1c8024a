package complaints

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digimart-backend/pkg/db/models"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
)

// QueueRepository manages the moderator queue pointers. Queue rows are
// ranking hints only; claims are still decided by the conditional update on
// the ticket row.
type QueueRepository interface {
	WithTx(tx *gorm.DB) QueueRepository
	Create(ctx context.Context, item *models.QueueItem) error
	DeleteByTicketID(ctx context.Context, ticketID uuid.UUID) error
	MarkEscalated(ctx context.Context, ticketID uuid.UUID) (bool, error)
	// NextTicketIDs returns claim candidates ranked high-value first, then
	// escalated, then oldest.
	NextTicketIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type queueRepository struct {
	db *gorm.DB
}

// NewQueueRepository returns a queue repository bound to the provided database.
func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) WithTx(tx *gorm.DB) QueueRepository {
	if tx == nil {
		return r
	}
	return &queueRepository{db: tx}
}

func (r *queueRepository) Create(ctx context.Context, item *models.QueueItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *queueRepository) DeleteByTicketID(ctx context.Context, ticketID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Delete(&models.QueueItem{}).Error
}

func (r *queueRepository) MarkEscalated(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("ticket_id = ?", ticketID).
		Update("is_escalated", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *queueRepository) NextTicketIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 5
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Table("queue_items").
		Select("queue_items.ticket_id").
		Joins("JOIN complaint_tickets ON complaint_tickets.id = queue_items.ticket_id").
		Where("complaint_tickets.status = ?", enums.TicketStatusInQueue).
		Order("queue_items.is_high_value DESC").
		Order("queue_items.is_escalated DESC").
		Order("queue_items.created_at ASC").
		Limit(limit).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
