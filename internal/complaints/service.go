package complaints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digimart-backend/internal/escrow"
	"github.com/angelmondragon/digimart-backend/pkg/config"
	"github.com/angelmondragon/digimart-backend/pkg/db/models"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digimart-backend/pkg/errors"
	"github.com/angelmondragon/digimart-backend/pkg/outbox"
	"github.com/angelmondragon/digimart-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/digimart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// escrowManager is the slice of the escrow service the workflow needs to
// settle or reverse holds.
type escrowManager interface {
	GetItem(ctx context.Context, orderItemID uuid.UUID) (*models.OrderItem, error)
	MarkDisputed(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) error
	ForceRefund(ctx context.Context, tx *gorm.DB, input escrow.ForceRefundInput) error
	ReverseDecision(ctx context.Context, tx *gorm.DB, input escrow.ReverseDecisionInput) error
}

const (
	evidenceKindEvidence     = "evidence"
	evidenceKindInfoRequest  = "info_request"
	evidenceKindInfoResponse = "info_response"

	// claimCandidates bounds how many ranked tickets one pick attempt will
	// race for before reporting an empty queue.
	claimCandidates = 5
)

// Service runs the complaint ticket workflow from filing to closure.
type Service interface {
	Create(ctx context.Context, input CreateComplaintInput) (*models.ComplaintTicket, error)
	AddEvidence(ctx context.Context, input AddEvidenceInput) (*models.TicketEvidence, error)
	StartReview(ctx context.Context, ticketID, moderatorID uuid.UUID) error
	RequestMoreInfo(ctx context.Context, input RequestMoreInfoInput) error
	SubmitInfo(ctx context.Context, input SubmitInfoInput) error
	MakeDecision(ctx context.Context, input MakeDecisionInput) error
	FileAppeal(ctx context.Context, input FileAppealInput) error
	DecideAppeal(ctx context.Context, input DecideAppealInput) error
	Escalate(ctx context.Context, ticketID uuid.UUID) error

	// AssignToModerator claims one specific ticket. A lost race reports
	// claimed=false, not an error.
	AssignToModerator(ctx context.Context, ticketID, moderatorID uuid.UUID) (bool, error)
	// PickFromQueue claims the highest-priority queued ticket. A nil ticket
	// means the queue is empty.
	PickFromQueue(ctx context.Context, moderatorID uuid.UUID) (*models.ComplaintTicket, error)

	GetTicket(ctx context.Context, ticketID uuid.UUID) (*models.ComplaintTicket, error)
	GetTicketByCode(ctx context.Context, code string) (*models.ComplaintTicket, error)
	ListEvidence(ctx context.Context, ticketID uuid.UUID) ([]models.TicketEvidence, error)
	ListByStatus(ctx context.Context, status enums.TicketStatus, params pagination.Params) ([]models.ComplaintTicket, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.ComplaintTicket, error)
	ListByModerator(ctx context.Context, moderatorID uuid.UUID, params pagination.Params) ([]models.ComplaintTicket, error)
}

type service struct {
	repo      Repository
	queue     QueueRepository
	tx        txRunner
	outbox    outboxPublisher
	escrow    escrowManager
	cfg       config.ComplaintConfig
	highValue int
}

// CreateComplaintInput files a new ticket against an order item.
type CreateComplaintInput struct {
	OrderItemID uuid.UUID
	BuyerID     uuid.UUID
	Category    enums.ComplaintCategory
	Description string
}

// AddEvidenceInput appends evidence to an open ticket.
type AddEvidenceInput struct {
	TicketID uuid.UUID
	AuthorID uuid.UUID
	Body     string
	FileURL  *string
}

// RequestMoreInfoInput asks the buyer for clarification.
type RequestMoreInfoInput struct {
	TicketID    uuid.UUID
	ModeratorID uuid.UUID
	Message     string
}

// SubmitInfoInput is the buyer's response to an info request.
type SubmitInfoInput struct {
	TicketID uuid.UUID
	BuyerID  uuid.UUID
	Body     string
}

// MakeDecisionInput records the moderator ruling.
type MakeDecisionInput struct {
	TicketID          uuid.UUID
	ModeratorID       uuid.UUID
	Resolution        enums.ResolutionType
	Note              string
	RefundAmountCents *int
}

// FileAppealInput contests a decision before the appeal deadline.
type FileAppealInput struct {
	TicketID uuid.UUID
	ActorID  uuid.UUID
	Reason   string
}

// DecideAppealInput is the administrative ruling on an appeal.
type DecideAppealInput struct {
	TicketID uuid.UUID
	AdminID  uuid.UUID
	Outcome  enums.AppealOutcome
	Note     string
}

// orderSnapshot is the display data frozen into the ticket at filing time.
type orderSnapshot struct {
	OrderID       uuid.UUID `json:"order_id"`
	ShopID        uuid.UUID `json:"shop_id"`
	ProductTitle  string    `json:"product_title"`
	SubtotalCents int       `json:"subtotal_cents"`
}

// NewService wires the complaint workflow with its dependencies.
func NewService(repo Repository, queue QueueRepository, tx txRunner, outboxSvc outboxPublisher, escrowSvc escrowManager, cfg config.ComplaintConfig, escrowCfg config.EscrowConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("complaints repository required")
	}
	if queue == nil {
		return nil, fmt.Errorf("queue repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if escrowSvc == nil {
		return nil, fmt.Errorf("escrow manager required")
	}
	if cfg.AppealWindow <= 0 {
		return nil, fmt.Errorf("appeal window must be positive")
	}
	return &service{
		repo:      repo,
		queue:     queue,
		tx:        tx,
		outbox:    outboxSvc,
		escrow:    escrowSvc,
		cfg:       cfg,
		highValue: escrowCfg.HighValueThresholdCents,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateComplaintInput) (*models.ComplaintTicket, error) {
	if input.OrderItemID == uuid.Nil || input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id and buyer id are required")
	}
	if !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid complaint category %q", input.Category))
	}
	if len(strings.TrimSpace(input.Description)) < s.cfg.MinDescriptionLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("description must be at least %d characters", s.cfg.MinDescriptionLen))
	}

	item, err := s.escrow.GetItem(ctx, input.OrderItemID)
	if err != nil {
		return nil, err
	}
	if item.BuyerID != input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may file a complaint")
	}
	if !item.ItemStatus.CanFileComplaint() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("complaints cannot be filed while the item is %s", item.ItemStatus))
	}

	if existing, err := s.repo.FindOpenByOrderItem(ctx, input.OrderItemID); err == nil {
		return nil, duplicateComplaint(existing.Code)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking for open ticket")
	}

	snapshot, err := json.Marshal(orderSnapshot{
		OrderID:       item.OrderID,
		ShopID:        item.ShopID,
		ProductTitle:  item.ProductTitle,
		SubtotalCents: item.SubtotalCents,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building order snapshot")
	}

	ticket := &models.ComplaintTicket{
		ID:            uuid.New(),
		Code:          generateTicketCode(),
		OrderItemID:   item.ID,
		BuyerID:       item.BuyerID,
		ShopID:        item.ShopID,
		Category:      input.Category,
		Status:        enums.TicketStatusInQueue,
		Description:   input.Description,
		OrderSnapshot: snapshot,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, ticket); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating ticket")
		}
		if err := s.queue.WithTx(tx).Create(ctx, &models.QueueItem{
			ID:          uuid.New(),
			TicketID:    ticket.ID,
			IsHighValue: item.HoldAmountCents >= s.highValue,
			IsEscalated: false,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "enqueueing ticket")
		}
		if item.HoldStatus == enums.HoldStatusHolding {
			if err := s.escrow.MarkDisputed(ctx, tx, item.ID); err != nil {
				// The hold may have settled between the eligibility read
				// and here; the ticket is still valid without the flag.
				if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
					return err
				}
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventComplaintFiled,
			AggregateType: enums.AggregateComplaintTicket,
			AggregateID:   ticket.ID,
			Data: payloads.ComplaintFiledEvent{
				TicketID:    ticket.ID,
				Code:        ticket.Code,
				OrderItemID: item.ID,
				BuyerID:     item.BuyerID,
				Category:    ticket.Category,
				IsHighValue: item.HoldAmountCents >= s.highValue,
			},
		})
	})
	if err != nil {
		// Concurrent filings race on the partial unique index; the loser
		// reports the winner's code so the client can redirect.
		if existing, findErr := s.repo.FindOpenByOrderItem(ctx, input.OrderItemID); findErr == nil {
			return nil, duplicateComplaint(existing.Code)
		}
		return nil, err
	}
	return ticket, nil
}

func (s *service) AddEvidence(ctx context.Context, input AddEvidenceInput) (*models.TicketEvidence, error) {
	if input.TicketID == uuid.Nil || input.AuthorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id and author id are required")
	}
	if strings.TrimSpace(input.Body) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "evidence body is required")
	}

	ticket, err := s.getTicket(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.IsOpen() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "ticket is closed")
	}
	if !s.isParty(ctx, ticket, input.AuthorID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only ticket parties may add evidence")
	}

	evidence := &models.TicketEvidence{
		ID:       uuid.New(),
		TicketID: ticket.ID,
		AuthorID: input.AuthorID,
		Kind:     evidenceKindEvidence,
		Body:     input.Body,
		FileURL:  input.FileURL,
	}
	if err := s.repo.CreateEvidence(ctx, evidence); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing evidence")
	}
	return evidence, nil
}

func (s *service) StartReview(ctx context.Context, ticketID, moderatorID uuid.UUID) error {
	ticket, err := s.requireAssignee(ctx, ticketID, moderatorID)
	if err != nil {
		return err
	}
	return s.transition(ctx, ticket, enums.TicketStatusInReview)
}

func (s *service) RequestMoreInfo(ctx context.Context, input RequestMoreInfoInput) error {
	if strings.TrimSpace(input.Message) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "message is required")
	}
	ticket, err := s.requireAssignee(ctx, input.TicketID, input.ModeratorID)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateStatusFrom(ctx, ticket.ID, ticket.Status, enums.TicketStatusNeedMoreInfo)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating ticket status")
		}
		if !ok {
			return staleTicket(ticket.Status, enums.TicketStatusNeedMoreInfo)
		}
		return repo.CreateEvidence(ctx, &models.TicketEvidence{
			ID:       uuid.New(),
			TicketID: ticket.ID,
			AuthorID: input.ModeratorID,
			Kind:     evidenceKindInfoRequest,
			Body:     input.Message,
		})
	})
}

func (s *service) SubmitInfo(ctx context.Context, input SubmitInfoInput) error {
	if strings.TrimSpace(input.Body) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "response body is required")
	}
	ticket, err := s.getTicket(ctx, input.TicketID)
	if err != nil {
		return err
	}
	if ticket.BuyerID != input.BuyerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may respond")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateStatusFrom(ctx, ticket.ID, enums.TicketStatusNeedMoreInfo, enums.TicketStatusInReview)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating ticket status")
		}
		if !ok {
			return staleTicket(ticket.Status, enums.TicketStatusInReview)
		}
		return repo.CreateEvidence(ctx, &models.TicketEvidence{
			ID:       uuid.New(),
			TicketID: ticket.ID,
			AuthorID: input.BuyerID,
			Kind:     evidenceKindInfoResponse,
			Body:     input.Body,
		})
	})
}

func (s *service) MakeDecision(ctx context.Context, input MakeDecisionInput) error {
	if !input.Resolution.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid resolution %q", input.Resolution))
	}
	if len(strings.TrimSpace(input.Note)) < s.cfg.MinDecisionNoteLen {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("decision note must be at least %d characters", s.cfg.MinDecisionNoteLen))
	}
	if input.Resolution.RequiresRefundAmount() && input.RefundAmountCents == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "partial refunds require a refund amount")
	}

	ticket, err := s.requireAssignee(ctx, input.TicketID, input.ModeratorID)
	if err != nil {
		return err
	}

	item, err := s.escrow.GetItem(ctx, ticket.OrderItemID)
	if err != nil {
		return err
	}

	var refundCents *int
	switch input.Resolution {
	case enums.ResolutionTypeFullRefund:
		amount := item.HoldAmountCents
		refundCents = &amount
	case enums.ResolutionTypePartialRefund:
		amount := *input.RefundAmountCents
		if amount <= 0 || amount > item.HoldAmountCents {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds the order item value").
				WithDetails(map[string]any{
					"refund_amount_cents": amount,
					"hold_amount_cents":   item.HoldAmountCents,
				})
		}
		refundCents = &amount
	}

	now := time.Now().UTC()
	deadline := now.Add(s.cfg.AppealWindow)

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Resolve(ctx, ticket.ID, input.ModeratorID, input.Resolution, input.Note, refundCents, now, deadline)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording decision")
		}
		if !ok {
			return staleTicket(ticket.Status, enums.TicketStatusResolved)
		}

		if err := s.escrow.ForceRefund(ctx, tx, escrow.ForceRefundInput{
			OrderItemID:       ticket.OrderItemID,
			Resolution:        input.Resolution,
			RefundAmountCents: derefOrZero(refundCents),
			TicketID:          &ticket.ID,
		}); err != nil {
			return err
		}

		if err := s.queue.WithTx(tx).DeleteByTicketID(ctx, ticket.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "dequeueing ticket")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventComplaintDecided,
			AggregateType: enums.AggregateComplaintTicket,
			AggregateID:   ticket.ID,
			Data: payloads.ComplaintDecidedEvent{
				TicketID:          ticket.ID,
				Resolution:        input.Resolution,
				RefundAmountCents: refundCents,
				AppealDeadline:    deadline,
			},
		})
	})
}

func (s *service) FileAppeal(ctx context.Context, input FileAppealInput) error {
	if len(strings.TrimSpace(input.Reason)) < s.cfg.MinAppealReasonLen {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("appeal reason must be at least %d characters", s.cfg.MinAppealReasonLen))
	}

	ticket, err := s.getTicket(ctx, input.TicketID)
	if err != nil {
		return err
	}
	if !s.isParty(ctx, ticket, input.ActorID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only ticket parties may appeal")
	}

	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).FileAppeal(ctx, ticket.ID, input.Reason, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "filing appeal")
		}
		if !ok {
			if ticket.Status != enums.TicketStatusAppealable {
				return staleTicket(ticket.Status, enums.TicketStatusAppealInReview)
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "the appeal window has closed")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAppealFiled,
			AggregateType: enums.AggregateComplaintTicket,
			AggregateID:   ticket.ID,
			Data: payloads.AppealFiledEvent{
				TicketID: ticket.ID,
				FiledBy:  input.ActorID,
				FiledAt:  now,
			},
		})
	})
}

func (s *service) DecideAppeal(ctx context.Context, input DecideAppealInput) error {
	if !input.Outcome.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid appeal outcome %q", input.Outcome))
	}
	if len(strings.TrimSpace(input.Note)) < s.cfg.MinDecisionNoteLen {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("appeal note must be at least %d characters", s.cfg.MinDecisionNoteLen))
	}

	ticket, err := s.getTicket(ctx, input.TicketID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).CloseAppeal(ctx, ticket.ID, input.Outcome, input.Note, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "closing appeal")
		}
		if !ok {
			return staleTicket(ticket.Status, enums.TicketStatusClosed)
		}

		if input.Outcome == enums.AppealOutcomeReversed {
			if err := s.reverse(ctx, tx, ticket); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAppealDecided,
			AggregateType: enums.AggregateComplaintTicket,
			AggregateID:   ticket.ID,
			Data: payloads.AppealDecidedEvent{
				TicketID: ticket.ID,
				Outcome:  input.Outcome,
			},
		})
	})
}

// reverse undoes the settled money movement of the original decision. A
// reversed refund claws the funds back from the buyer; a reversed rejection
// pays the buyer out of the seller's balance.
func (s *service) reverse(ctx context.Context, tx *gorm.DB, ticket *models.ComplaintTicket) error {
	item, err := s.escrow.GetItem(ctx, ticket.OrderItemID)
	if err != nil {
		return err
	}

	amount := item.HoldAmountCents
	towardBuyer := true
	if ticket.Resolution != nil && *ticket.Resolution != enums.ResolutionTypeReject {
		towardBuyer = false
		if ticket.RefundAmountCents != nil {
			amount = *ticket.RefundAmountCents
		}
	}

	return s.escrow.ReverseDecision(ctx, tx, escrow.ReverseDecisionInput{
		OrderItemID: ticket.OrderItemID,
		AmountCents: amount,
		TowardBuyer: towardBuyer,
		TicketID:    &ticket.ID,
	})
}

func (s *service) Escalate(ctx context.Context, ticketID uuid.UUID) error {
	if ticketID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ticket id is required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Escalate(ctx, ticketID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "escalating ticket")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "ticket is closed")
		}
		// Queue rows only exist while the ticket is claimable; a missing
		// row just means the ticket is already being worked.
		_, err = s.queue.WithTx(tx).MarkEscalated(ctx, ticketID)
		return err
	})
}

func (s *service) AssignToModerator(ctx context.Context, ticketID, moderatorID uuid.UUID) (bool, error) {
	if ticketID == uuid.Nil || moderatorID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "ticket id and moderator id are required")
	}

	claimed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Claim(ctx, ticketID, moderatorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming ticket")
		}
		if !ok {
			return nil
		}
		claimed = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketAssigned,
			AggregateType: enums.AggregateComplaintTicket,
			AggregateID:   ticketID,
			Data: payloads.TicketAssignedEvent{
				TicketID:    ticketID,
				ModeratorID: moderatorID,
			},
		})
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (s *service) PickFromQueue(ctx context.Context, moderatorID uuid.UUID) (*models.ComplaintTicket, error) {
	if moderatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "moderator id is required")
	}

	candidates, err := s.queue.NextTicketIDs(ctx, claimCandidates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ranking queue")
	}

	for _, ticketID := range candidates {
		claimed, err := s.AssignToModerator(ctx, ticketID, moderatorID)
		if err != nil {
			return nil, err
		}
		if claimed {
			return s.getTicket(ctx, ticketID)
		}
	}
	return nil, nil
}

func (s *service) GetTicket(ctx context.Context, ticketID uuid.UUID) (*models.ComplaintTicket, error) {
	if ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id is required")
	}
	return s.getTicket(ctx, ticketID)
}

func (s *service) GetTicketByCode(ctx context.Context, code string) (*models.ComplaintTicket, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket code is required")
	}
	ticket, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ticket")
	}
	return ticket, nil
}

func (s *service) ListEvidence(ctx context.Context, ticketID uuid.UUID) ([]models.TicketEvidence, error) {
	if ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id is required")
	}
	return s.repo.ListEvidence(ctx, ticketID)
}

func (s *service) ListByStatus(ctx context.Context, status enums.TicketStatus, params pagination.Params) ([]models.ComplaintTicket, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ticket status %q", status))
	}
	return s.repo.ListByStatus(ctx, status, params)
}

func (s *service) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.ComplaintTicket, error) {
	return s.repo.ListByBuyer(ctx, buyerID, params)
}

func (s *service) ListByModerator(ctx context.Context, moderatorID uuid.UUID, params pagination.Params) ([]models.ComplaintTicket, error) {
	return s.repo.ListByModerator(ctx, moderatorID, params)
}

func (s *service) getTicket(ctx context.Context, ticketID uuid.UUID) (*models.ComplaintTicket, error) {
	ticket, err := s.repo.FindByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ticket")
	}
	return ticket, nil
}

func (s *service) requireAssignee(ctx context.Context, ticketID, moderatorID uuid.UUID) (*models.ComplaintTicket, error) {
	if ticketID == uuid.Nil || moderatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id and moderator id are required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AssignedModeratorID == nil || *ticket.AssignedModeratorID != moderatorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "ticket is assigned to another moderator")
	}
	return ticket, nil
}

// isParty reports whether the actor is the buyer or the item's seller.
func (s *service) isParty(ctx context.Context, ticket *models.ComplaintTicket, actorID uuid.UUID) bool {
	if ticket.BuyerID == actorID {
		return true
	}
	item, err := s.escrow.GetItem(ctx, ticket.OrderItemID)
	if err != nil {
		return false
	}
	return item.SellerUserID == actorID
}

func (s *service) transition(ctx context.Context, ticket *models.ComplaintTicket, to enums.TicketStatus) error {
	if !ticket.Status.CanTransitionTo(to) {
		return staleTicket(ticket.Status, to)
	}
	ok, err := s.repo.UpdateStatusFrom(ctx, ticket.ID, ticket.Status, to)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating ticket status")
	}
	if !ok {
		return staleTicket(ticket.Status, to)
	}
	return nil
}

func duplicateComplaint(existingCode string) error {
	return pkgerrors.New(pkgerrors.CodeDuplicateComplaint, "an open complaint already exists for this item").
		WithDetails(map[string]any{"existing_ticket_code": existingCode})
}

func staleTicket(from, to enums.TicketStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("ticket cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func derefOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// generateTicketCode builds the human-facing code embedded in support
// conversations, e.g. CT-20260901-7F3A2B.
func generateTicketCode() string {
	id := uuid.New()
	return fmt.Sprintf("CT-%s-%X", time.Now().UTC().Format("20060102"), id[:3])
}
