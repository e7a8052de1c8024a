package complaints

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digimart-backend/pkg/db/models"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
	"github.com/angelmondragon/digimart-backend/pkg/pagination"
)

// openStatuses are every status that still blocks escrow release.
var openStatuses = []enums.TicketStatus{
	enums.TicketStatusInQueue,
	enums.TicketStatusAssigned,
	enums.TicketStatusInReview,
	enums.TicketStatusNeedMoreInfo,
	enums.TicketStatusResolved,
	enums.TicketStatusAppealable,
	enums.TicketStatusAppealInReview,
}

// workableStatuses are the statuses a moderator may decide from.
var workableStatuses = []enums.TicketStatus{
	enums.TicketStatusAssigned,
	enums.TicketStatusInReview,
	enums.TicketStatusNeedMoreInfo,
}

// Repository manages persistence for complaint tickets and their evidence.
// The conditional-update methods return false when the row was not in the
// expected state, which is how concurrent writers lose cleanly.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, ticket *models.ComplaintTicket) error
	FindByID(ctx context.Context, ticketID uuid.UUID) (*models.ComplaintTicket, error)
	FindByCode(ctx context.Context, code string) (*models.ComplaintTicket, error)
	FindOpenByOrderItem(ctx context.Context, orderItemID uuid.UUID) (*models.ComplaintTicket, error)
	HasOpenTicket(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (bool, error)

	Claim(ctx context.Context, ticketID, moderatorID uuid.UUID) (bool, error)
	UpdateStatusFrom(ctx context.Context, ticketID uuid.UUID, from, to enums.TicketStatus) (bool, error)
	Resolve(ctx context.Context, ticketID, moderatorID uuid.UUID, resolution enums.ResolutionType, note string, refundCents *int, resolvedAt, appealDeadline time.Time) (bool, error)
	FileAppeal(ctx context.Context, ticketID uuid.UUID, reason string, now time.Time) (bool, error)
	CloseAppeal(ctx context.Context, ticketID uuid.UUID, outcome enums.AppealOutcome, note string, closedAt time.Time) (bool, error)
	CloseLapsed(ctx context.Context, now time.Time) (int64, error)
	Escalate(ctx context.Context, ticketID uuid.UUID) (bool, error)
	MarkSLABreached(ctx context.Context, cutoff time.Time) (int64, error)

	CreateEvidence(ctx context.Context, evidence *models.TicketEvidence) error
	ListEvidence(ctx context.Context, ticketID uuid.UUID) ([]models.TicketEvidence, error)

	ListByStatus(ctx context.Context, status enums.TicketStatus, params pagination.Params) ([]models.ComplaintTicket, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.ComplaintTicket, error)
	ListByModerator(ctx context.Context, moderatorID uuid.UUID, params pagination.Params) ([]models.ComplaintTicket, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a complaints repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, ticket *models.ComplaintTicket) error {
	return r.db.WithContext(ctx).Create(ticket).Error
}

func (r *repository) FindByID(ctx context.Context, ticketID uuid.UUID) (*models.ComplaintTicket, error) {
	var ticket models.ComplaintTicket
	if err := r.db.WithContext(ctx).
		Where("id = ?", ticketID).
		First(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.ComplaintTicket, error) {
	var ticket models.ComplaintTicket
	if err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) FindOpenByOrderItem(ctx context.Context, orderItemID uuid.UUID) (*models.ComplaintTicket, error) {
	var ticket models.ComplaintTicket
	if err := r.db.WithContext(ctx).
		Where("order_item_id = ? AND status != ?", orderItemID, enums.TicketStatusClosed).
		First(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) HasOpenTicket(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.ComplaintTicket{}).
		Where("order_item_id = ? AND status != ?", orderItemID, enums.TicketStatusClosed).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Claim(ctx context.Context, ticketID, moderatorID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ComplaintTicket{}).
		Where("id = ? AND status = ?", ticketID, enums.TicketStatusInQueue).
		Updates(map[string]interface{}{
			"status":                enums.TicketStatusAssigned,
			"assigned_moderator_id": moderatorID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateStatusFrom(ctx context.Context, ticketID uuid.UUID, from, to enums.TicketStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ComplaintTicket{}).
		Where("id = ? AND status = ?", ticketID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Resolve(ctx context.Context, ticketID, moderatorID uuid.UUID, resolution enums.ResolutionType, note string, refundCents *int, resolvedAt, appealDeadline time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ComplaintTicket{}).
		Where("id = ? AND status IN ? AND assigned_moderator_id = ?", ticketID, workableStatuses, moderatorID).
		Updates(map[string]interface{}{
			"status":              enums.TicketStatusAppealable,
			"resolution":          resolution,
			"resolution_note":     note,
			"refund_amount_cents": refundCents,
			"resolved_at":         resolvedAt,
			"appeal_deadline":     appealDeadline,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FileAppeal(ctx context.Context, ticketID uuid.UUID, reason string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ComplaintTicket{}).
		Where("id = ? AND status = ? AND appeal_deadline > ?", ticketID, enums.TicketStatusAppealable, now).
		Updates(map[string]interface{}{
			"status":        enums.TicketStatusAppealInReview,
			"appeal_reason": reason,
			"appealed_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CloseAppeal(ctx context.Context, ticketID uuid.UUID, outcome enums.AppealOutcome, note string, closedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ComplaintTicket{}).
		Where("id = ? AND status = ?", ticketID, enums.TicketStatusAppealInReview).
		Updates(map[string]interface{}{
			"status":         enums.TicketStatusClosed,
			"appeal_outcome": outcome,
			"appeal_note":    note,
			"closed_at":      closedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CloseLapsed(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ComplaintTicket{}).
		Where("status = ? AND appeal_deadline <= ?", enums.TicketStatusAppealable, now).
		Updates(map[string]interface{}{
			"status":    enums.TicketStatusClosed,
			"closed_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) Escalate(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ComplaintTicket{}).
		Where("id = ? AND status IN ?", ticketID, openStatuses).
		Update("escalation_level", gorm.Expr("escalation_level + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkSLABreached(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ComplaintTicket{}).
		Where("status IN ? AND created_at <= ? AND sla_breached = ?", workableOrQueued(), cutoff, false).
		Update("sla_breached", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) CreateEvidence(ctx context.Context, evidence *models.TicketEvidence) error {
	return r.db.WithContext(ctx).Create(evidence).Error
}

func (r *repository) ListEvidence(ctx context.Context, ticketID uuid.UUID) ([]models.TicketEvidence, error) {
	var rows []models.TicketEvidence
	if err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByStatus(ctx context.Context, status enums.TicketStatus, params pagination.Params) ([]models.ComplaintTicket, error) {
	return r.listPage(ctx, r.db.WithContext(ctx).Where("status = ?", status), params)
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.ComplaintTicket, error) {
	return r.listPage(ctx, r.db.WithContext(ctx).Where("buyer_id = ?", buyerID), params)
}

func (r *repository) ListByModerator(ctx context.Context, moderatorID uuid.UUID, params pagination.Params) ([]models.ComplaintTicket, error) {
	return r.listPage(ctx, r.db.WithContext(ctx).Where("assigned_moderator_id = ?", moderatorID), params)
}

func (r *repository) listPage(ctx context.Context, query *gorm.DB, params pagination.Params) ([]models.ComplaintTicket, error) {
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

	var tickets []models.ComplaintTicket
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&tickets).Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

// workableOrQueued is the SLA-tracked status set: filed but not yet resolved.
func workableOrQueued() []enums.TicketStatus {
	return []enums.TicketStatus{
		enums.TicketStatusInQueue,
		enums.TicketStatusAssigned,
		enums.TicketStatusInReview,
		enums.TicketStatusNeedMoreInfo,
	}
}
