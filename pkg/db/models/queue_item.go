package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueItem is a lightweight pointer into the moderator queue, linked 1:1 to a
// complaint ticket while it is claimable. The denormalized priority flags rank
// the queue; the ticket row stays authoritative for state.
type QueueItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TicketID    uuid.UUID `gorm:"column:ticket_id;type:uuid;not null;uniqueIndex:ux_queue_items_ticket"`
	IsHighValue bool      `gorm:"column:is_high_value;not null;default:false"`
	IsEscalated bool      `gorm:"column:is_escalated;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
