package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digimart-backend/pkg/enums"
)

// ComplaintTicket is the dispute record for one order item. At most one
// non-closed ticket may exist per item (partial unique index in Postgres).
// OrderSnapshot is an immutable copy of the item's display data taken at
// filing time so later catalog edits cannot corrupt dispute evidence.
type ComplaintTicket struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code                string                  `gorm:"column:code;not null;uniqueIndex:ux_complaint_tickets_code"`
	OrderItemID         uuid.UUID               `gorm:"column:order_item_id;type:uuid;not null;index:ix_complaint_tickets_item"`
	BuyerID             uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	ShopID              uuid.UUID               `gorm:"column:shop_id;type:uuid;not null"`
	Category            enums.ComplaintCategory `gorm:"column:category;type:complaint_category;not null"`
	Status              enums.TicketStatus      `gorm:"column:status;type:complaint_ticket_status;not null;default:'in_queue'"`
	Description         string                  `gorm:"column:description;not null"`
	OrderSnapshot       json.RawMessage         `gorm:"column:order_snapshot;type:jsonb"`
	EscalationLevel     int                     `gorm:"column:escalation_level;not null;default:0"`
	AssignedModeratorID *uuid.UUID              `gorm:"column:assigned_moderator_id;type:uuid"`
	Resolution          *enums.ResolutionType   `gorm:"column:resolution;type:complaint_resolution_type"`
	ResolutionNote      *string                 `gorm:"column:resolution_note"`
	RefundAmountCents   *int                    `gorm:"column:refund_amount_cents"`
	ResolvedAt          *time.Time              `gorm:"column:resolved_at"`
	AppealDeadline      *time.Time              `gorm:"column:appeal_deadline"`
	AppealReason        *string                 `gorm:"column:appeal_reason"`
	AppealedAt          *time.Time              `gorm:"column:appealed_at"`
	AppealOutcome       *enums.AppealOutcome    `gorm:"column:appeal_outcome;type:appeal_outcome"`
	AppealNote          *string                 `gorm:"column:appeal_note"`
	SLABreached         bool                    `gorm:"column:sla_breached;not null;default:false"`
	ClosedAt            *time.Time              `gorm:"column:closed_at"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// TicketEvidence is an append-only attachment to a ticket: buyer evidence,
// moderator info requests and the buyer's responses.
type TicketEvidence struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TicketID  uuid.UUID `gorm:"column:ticket_id;type:uuid;not null;index:ix_ticket_evidence_ticket"`
	AuthorID  uuid.UUID `gorm:"column:author_id;type:uuid;not null"`
	Kind      string    `gorm:"column:kind;not null"`
	Body      string    `gorm:"column:body;not null"`
	FileURL   *string   `gorm:"column:file_url"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides gorm's pluralization.
func (TicketEvidence) TableName() string { return "ticket_evidence" }
