package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/digimart-backend/internal/wallet"
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

// walletLedger is the slice of the wallet service escrow needs to move money.
type walletLedger interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Debit(ctx context.Context, tx *gorm.DB, input wallet.EntryInput) error
	Credit(ctx context.Context, tx *gorm.DB, input wallet.EntryInput) error
	MoveToHold(ctx context.Context, tx *gorm.DB, input wallet.HoldEntryInput) error
	ReleaseHold(ctx context.Context, tx *gorm.DB, input wallet.ReleaseHoldInput) error
	RefundHold(ctx context.Context, tx *gorm.DB, input wallet.RefundHoldInput) error
}

// TicketChecker answers whether a non-closed complaint ticket references an
// item. The check runs on the caller's transaction so a release and a filing
// cannot interleave.
type TicketChecker interface {
	HasOpenTicket(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) (bool, error)
}

// ReleaseOutcome is the result of a guarded release attempt. Blocked and
// NotReady are normal outcomes, not errors: the sweep retries them later.
type ReleaseOutcome string

const (
	ReleaseOutcomeReleased     ReleaseOutcome = "released"
	ReleaseOutcomeBlocked      ReleaseOutcome = "blocked"
	ReleaseOutcomeNotReady     ReleaseOutcome = "not_ready"
	ReleaseOutcomeAlreadyFinal ReleaseOutcome = "already_final"
)

// Service owns the per-item escrow hold state machine.
type Service interface {
	CreateHold(ctx context.Context, input CreateHoldInput) (*models.OrderItem, error)
	MarkDelivered(ctx context.Context, orderItemID uuid.UUID) error
	ConfirmDelivery(ctx context.Context, orderItemID, buyerID uuid.UUID) error
	AttemptRelease(ctx context.Context, orderItemID uuid.UUID, trigger enums.ReleaseTrigger) (ReleaseOutcome, error)
	ForceRefund(ctx context.Context, tx *gorm.DB, input ForceRefundInput) error
	ReverseDecision(ctx context.Context, tx *gorm.DB, input ReverseDecisionInput) error
	MarkDisputed(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) error

	GetItem(ctx context.Context, orderItemID uuid.UUID) (*models.OrderItem, error)
	ListHoldingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error)
	ListPendingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	wallet     walletLedger
	tickets    TicketChecker
	holdWindow time.Duration
	feePercent decimal.Decimal
}

// CreateHoldInput is the payment-capture snapshot that seeds an escrow hold.
// OrderItemID is caller-assigned so retried captures stay idempotent.
type CreateHoldInput struct {
	OrderItemID   uuid.UUID
	OrderID       uuid.UUID
	ShopID        uuid.UUID
	BuyerID       uuid.UUID
	SellerUserID  uuid.UUID
	ProductTitle  string
	SubtotalCents int
}

// ForceRefundInput applies a complaint decision to the hold.
type ForceRefundInput struct {
	OrderItemID       uuid.UUID
	Resolution        enums.ResolutionType
	RefundAmountCents int
	TicketID          *uuid.UUID
}

// ReverseDecisionInput claws back an already-settled decision after an
// appeal. The hold is terminal by then, so the correction moves spendable
// funds between the two wallets.
type ReverseDecisionInput struct {
	OrderItemID uuid.UUID
	AmountCents int
	// TowardBuyer is true when the original decision paid the seller and the
	// reversal owes the buyer, false for the opposite direction.
	TowardBuyer bool
	TicketID    *uuid.UUID
}

// NewService wires the escrow hold manager with its dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, walletSvc walletLedger, tickets TicketChecker, cfg config.EscrowConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if tickets == nil {
		return nil, fmt.Errorf("ticket checker required")
	}
	if cfg.HoldWindow <= 0 {
		return nil, fmt.Errorf("hold window must be positive")
	}
	feePercent, err := decimal.NewFromString(cfg.PlatformFeePercent)
	if err != nil {
		return nil, fmt.Errorf("parsing platform fee percent: %w", err)
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("platform fee percent out of range: %s", feePercent)
	}
	return &service{
		repo:       repo,
		tx:         tx,
		outbox:     outboxSvc,
		wallet:     walletSvc,
		tickets:    tickets,
		holdWindow: cfg.HoldWindow,
		feePercent: feePercent,
	}, nil
}

func (s *service) CreateHold(ctx context.Context, input CreateHoldInput) (*models.OrderItem, error) {
	if err := validateCreateHold(input); err != nil {
		return nil, err
	}

	// Retried captures land here: the hold either exists in some state
	// (terminal included) and is returned as-is, or is created below.
	existing, err := s.repo.FindByID(ctx, input.OrderItemID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up order item")
	}

	buyerWallet, err := s.wallet.EnsureWallet(ctx, input.BuyerID)
	if err != nil {
		return nil, err
	}
	sellerWallet, err := s.wallet.EnsureWallet(ctx, input.SellerUserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &models.OrderItem{
		ID:              input.OrderItemID,
		OrderID:         input.OrderID,
		ShopID:          input.ShopID,
		BuyerID:         input.BuyerID,
		SellerUserID:    input.SellerUserID,
		ProductTitle:    input.ProductTitle,
		SubtotalCents:   input.SubtotalCents,
		HoldAmountCents: input.SubtotalCents,
		HoldStatus:      enums.HoldStatusHolding,
		ItemStatus:      enums.ItemStatusWaitingDelivery,
		HoldAt:          now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order item")
		}
		if err := s.wallet.Debit(ctx, tx, wallet.EntryInput{
			WalletID:    buyerWallet.ID,
			Type:        enums.TransactionTypePurchase,
			AmountCents: input.SubtotalCents,
			OrderItemID: &item.ID,
		}); err != nil {
			return err
		}
		if err := s.wallet.MoveToHold(ctx, tx, wallet.HoldEntryInput{
			WalletID:    sellerWallet.ID,
			AmountCents: input.SubtotalCents,
			OrderItemID: &item.ID,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowHoldCreated,
			AggregateType: enums.AggregateOrderItem,
			AggregateID:   item.ID,
			Data: payloads.EscrowHoldCreatedEvent{
				OrderItemID:     item.ID,
				OrderID:         item.OrderID,
				BuyerID:         item.BuyerID,
				SellerUserID:    item.SellerUserID,
				HoldAmountCents: item.HoldAmountCents,
				ReleaseAt:       now.Add(s.holdWindow),
			},
		})
	})
	if err != nil {
		// A concurrent capture may have inserted the same item id first.
		if existing, findErr := s.repo.FindByID(ctx, input.OrderItemID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return item, nil
}

func (s *service) MarkDelivered(ctx context.Context, orderItemID uuid.UUID) error {
	if orderItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}

	item, err := s.getItem(ctx, orderItemID)
	if err != nil {
		return err
	}

	ok, err := s.repo.MarkDelivered(ctx, orderItemID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking delivered")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("item cannot be delivered from %s", item.ItemStatus))
	}
	return nil
}

func (s *service) ConfirmDelivery(ctx context.Context, orderItemID, buyerID uuid.UUID) error {
	if orderItemID == uuid.Nil || buyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order item id and buyer id are required")
	}

	item, err := s.getItem(ctx, orderItemID)
	if err != nil {
		return err
	}
	if item.BuyerID != buyerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may confirm delivery")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).ConfirmDelivery(ctx, orderItemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirming delivery")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("delivery cannot be confirmed from %s", item.ItemStatus))
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryConfirmed,
			AggregateType: enums.AggregateOrderItem,
			AggregateID:   orderItemID,
			Data: payloads.DeliveryConfirmedEvent{
				OrderItemID: orderItemID,
				BuyerID:     buyerID,
				ConfirmedAt: time.Now().UTC(),
			},
		})
	})
}

func (s *service) AttemptRelease(ctx context.Context, orderItemID uuid.UUID, trigger enums.ReleaseTrigger) (ReleaseOutcome, error) {
	if orderItemID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}
	if !trigger.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid release trigger %q", trigger))
	}

	var outcome ReleaseOutcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.FindByID(ctx, orderItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order item")
		}
		if item.HoldStatus.IsTerminal() {
			outcome = ReleaseOutcomeAlreadyFinal
			return nil
		}

		now := time.Now().UTC()
		confirmed := item.ItemStatus == enums.ItemStatusCompleted
		windowLapsed := now.Sub(item.HoldAt) >= s.holdWindow
		if trigger != enums.ReleaseTriggerAdmin && !confirmed && !windowLapsed {
			outcome = ReleaseOutcomeNotReady
			return nil
		}

		// The open-ticket check shares this transaction with the status
		// flip, so a complaint filed mid-release blocks it or loses.
		open, err := s.tickets.HasOpenTicket(ctx, tx, orderItemID)
		if err != nil {
			return err
		}
		if open {
			outcome = ReleaseOutcomeBlocked
			return nil
		}

		return s.releaseTx(ctx, tx, item, trigger, &outcome)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// releaseTx performs the terminal flip and payout. Callers hold the
// transaction and have already cleared the open-ticket guard.
func (s *service) releaseTx(ctx context.Context, tx *gorm.DB, item *models.OrderItem, trigger enums.ReleaseTrigger, outcome *ReleaseOutcome) error {
	repo := s.repo.WithTx(tx)
	now := time.Now().UTC()

	var ok bool
	var err error
	if trigger == enums.ReleaseTriggerDecision {
		// A decision release settles the ticket that flagged the item, so
		// the disputed guard does not apply.
		ok, err = repo.FinalizeHold(ctx, item.ID, enums.HoldStatusReleased, enums.ItemStatusCompleted, now)
	} else {
		// A complaint that commits between the open-ticket check and this
		// flip flags the item disputed; the guarded update then matches no
		// rows and the hold stays put for the ticket decision.
		ok, err = repo.FinalizeRelease(ctx, item.ID, now)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalizing release")
	}
	if !ok {
		if outcome != nil {
			current, err := repo.FindByID(ctx, item.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading order item")
			}
			if current.HoldStatus == enums.HoldStatusHolding {
				*outcome = ReleaseOutcomeBlocked
			} else {
				*outcome = ReleaseOutcomeAlreadyFinal
			}
		}
		return nil
	}

	sellerWallet, err := s.wallet.EnsureWallet(ctx, item.SellerUserID)
	if err != nil {
		return err
	}
	fee := s.platformFee(item.HoldAmountCents)
	if err := s.wallet.ReleaseHold(ctx, tx, wallet.ReleaseHoldInput{
		WalletID:    sellerWallet.ID,
		AmountCents: item.HoldAmountCents,
		FeeCents:    fee,
		OrderItemID: &item.ID,
	}); err != nil {
		return err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEscrowReleased,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   item.ID,
		Data: payloads.EscrowReleasedEvent{
			OrderItemID:  item.ID,
			SellerUserID: item.SellerUserID,
			AmountCents:  item.HoldAmountCents,
			FeeCents:     fee,
			Trigger:      trigger,
		},
	}); err != nil {
		return err
	}
	if outcome != nil {
		*outcome = ReleaseOutcomeReleased
	}
	return nil
}

func (s *service) ForceRefund(ctx context.Context, tx *gorm.DB, input ForceRefundInput) error {
	if input.OrderItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}
	if !input.Resolution.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid resolution %q", input.Resolution))
	}

	repo := s.repo.WithTx(tx)
	item, err := repo.FindByID(ctx, input.OrderItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order item")
	}
	if item.HoldStatus != enums.HoldStatusHolding {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("hold already %s", item.HoldStatus))
	}

	if input.Resolution == enums.ResolutionTypeReject {
		return s.releaseTx(ctx, tx, item, enums.ReleaseTriggerDecision, nil)
	}

	refund := input.RefundAmountCents
	if input.Resolution == enums.ResolutionTypeFullRefund {
		refund = item.HoldAmountCents
	}
	if refund <= 0 || refund > item.HoldAmountCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds the order item value").
			WithDetails(map[string]any{
				"refund_amount_cents": refund,
				"hold_amount_cents":   item.HoldAmountCents,
			})
	}

	ok, err := repo.FinalizeHold(ctx, item.ID, enums.HoldStatusRefunded, enums.ItemStatusRefunded, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalizing refund")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "hold is no longer refundable")
	}

	buyerWallet, err := s.wallet.EnsureWallet(ctx, item.BuyerID)
	if err != nil {
		return err
	}
	sellerWallet, err := s.wallet.EnsureWallet(ctx, item.SellerUserID)
	if err != nil {
		return err
	}

	if err := s.wallet.RefundHold(ctx, tx, wallet.RefundHoldInput{
		SellerWalletID: sellerWallet.ID,
		BuyerWalletID:  buyerWallet.ID,
		AmountCents:    refund,
		OrderItemID:    &item.ID,
	}); err != nil {
		return err
	}

	remainder := item.HoldAmountCents - refund
	fee := 0
	if remainder > 0 {
		fee = s.platformFee(remainder)
		if err := s.wallet.ReleaseHold(ctx, tx, wallet.ReleaseHoldInput{
			WalletID:    sellerWallet.ID,
			AmountCents: remainder,
			FeeCents:    fee,
			OrderItemID: &item.ID,
		}); err != nil {
			return err
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEscrowRefunded,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   item.ID,
		Data: payloads.EscrowRefundedEvent{
			OrderItemID:           item.ID,
			BuyerID:               item.BuyerID,
			RefundAmountCents:     refund,
			ReleasedToSellerCents: remainder - fee,
			TicketID:              input.TicketID,
		},
	})
}

func (s *service) ReverseDecision(ctx context.Context, tx *gorm.DB, input ReverseDecisionInput) error {
	if input.OrderItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reversal amount must be positive")
	}

	item, err := s.repo.WithTx(tx).FindByID(ctx, input.OrderItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order item")
	}
	if !item.HoldStatus.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot reverse an unsettled hold")
	}
	if input.AmountCents > item.HoldAmountCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "reversal amount exceeds the order item value")
	}

	buyerWallet, err := s.wallet.EnsureWallet(ctx, item.BuyerID)
	if err != nil {
		return err
	}
	sellerWallet, err := s.wallet.EnsureWallet(ctx, item.SellerUserID)
	if err != nil {
		return err
	}

	from, to := buyerWallet, sellerWallet
	if input.TowardBuyer {
		from, to = sellerWallet, buyerWallet
	}

	note := "appeal reversal"
	if err := s.wallet.Debit(ctx, tx, wallet.EntryInput{
		WalletID:    from.ID,
		Type:        enums.TransactionTypeAdjustment,
		AmountCents: input.AmountCents,
		OrderItemID: &item.ID,
		Note:        &note,
	}); err != nil {
		return err
	}
	return s.wallet.Credit(ctx, tx, wallet.EntryInput{
		WalletID:    to.ID,
		Type:        enums.TransactionTypeAdjustment,
		AmountCents: input.AmountCents,
		OrderItemID: &item.ID,
		Note:        &note,
	})
}

func (s *service) MarkDisputed(ctx context.Context, tx *gorm.DB, orderItemID uuid.UUID) error {
	ok, err := s.repo.WithTx(tx).SetDisputed(ctx, orderItemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking item disputed")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "item hold is already settled")
	}
	return nil
}

func (s *service) GetItem(ctx context.Context, orderItemID uuid.UUID) (*models.OrderItem, error) {
	if orderItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}
	return s.getItem(ctx, orderItemID)
}

func (s *service) ListHoldingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error) {
	return s.repo.ListByHoldStatus(ctx, enums.HoldStatusHolding, params)
}

func (s *service) ListPendingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error) {
	return s.repo.ListByItemStatus(ctx, enums.ItemStatusWaitingDelivery, params)
}

func (s *service) getItem(ctx context.Context, orderItemID uuid.UUID) (*models.OrderItem, error) {
	item, err := s.repo.FindByID(ctx, orderItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order item")
	}
	return item, nil
}

// platformFee floors the fee so rounding never overcharges the seller.
func (s *service) platformFee(amountCents int) int {
	fee := decimal.NewFromInt(int64(amountCents)).
		Mul(s.feePercent).
		Div(decimal.NewFromInt(100))
	return int(fee.Floor().IntPart())
}

func validateCreateHold(input CreateHoldInput) error {
	if input.OrderItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.ShopID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if input.SellerUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller user id is required")
	}
	if input.BuyerID == input.SellerUserID {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer and seller must differ")
	}
	if input.ProductTitle == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product title is required")
	}
	if input.SubtotalCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "subtotal must be positive")
	}
	return nil
}
