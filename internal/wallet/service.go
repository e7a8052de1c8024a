package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digimart-backend/pkg/db/models"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digimart-backend/pkg/errors"
	"github.com/angelmondragon/digimart-backend/pkg/outbox"
	"github.com/angelmondragon/digimart-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns all wallet balance mutations. Every mutation appends exactly
// one ledger row per bucket change, inside the caller's transaction, so the
// signed row sums always reconstruct the balances.
//
// The tx-scoped methods exist for other features (escrow, complaints) that
// move money as part of their own transactions; they never open transactions
// of their own.
type Service interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)
	TopUp(ctx context.Context, input TopUpInput) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error)

	Credit(ctx context.Context, tx *gorm.DB, input EntryInput) error
	Debit(ctx context.Context, tx *gorm.DB, input EntryInput) error
	MoveToHold(ctx context.Context, tx *gorm.DB, input HoldEntryInput) error
	ReleaseHold(ctx context.Context, tx *gorm.DB, input ReleaseHoldInput) error
	RefundHold(ctx context.Context, tx *gorm.DB, input RefundHoldInput) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// Balance is the read-model returned to wallet owners.
type Balance struct {
	WalletID         uuid.UUID `json:"wallet_id"`
	BalanceCents     int       `json:"balance_cents"`
	HoldBalanceCents int       `json:"hold_balance_cents"`
	TotalCents       int       `json:"total_cents"`
}

// TopUpInput credits spendable funds from an external payment source.
type TopUpInput struct {
	UserID      uuid.UUID
	AmountCents int
	Note        *string
}

// EntryInput describes a single spendable-balance mutation.
type EntryInput struct {
	WalletID    uuid.UUID
	Type        enums.TransactionType
	AmountCents int
	OrderItemID *uuid.UUID
	Note        *string
}

// HoldEntryInput moves funds into a wallet's hold bucket.
type HoldEntryInput struct {
	WalletID    uuid.UUID
	AmountCents int
	OrderItemID *uuid.UUID
}

// ReleaseHoldInput converts held funds into spendable funds, less the
// platform fee, which is ledgered as a separate adjustment row.
type ReleaseHoldInput struct {
	WalletID    uuid.UUID
	AmountCents int
	FeeCents    int
	OrderItemID *uuid.UUID
}

// RefundHoldInput drains a seller's hold and credits the buyer's spendable
// balance in a single transaction.
type RefundHoldInput struct {
	SellerWalletID uuid.UUID
	BuyerWalletID  uuid.UUID
	AmountCents    int
	OrderItemID    *uuid.UUID
}

// NewService wires the wallet service with its dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc}, nil
}

func (s *service) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up wallet")
	}

	wallet = &models.Wallet{ID: uuid.New(), UserID: userID}
	if err := s.repo.Create(ctx, wallet); err != nil {
		// Another request may have created it between the lookup and the
		// insert; the unique index on user_id makes the retry safe.
		existing, findErr := s.repo.FindByUserID(ctx, userID)
		if findErr == nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating wallet")
	}
	return wallet, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	wallet, err := s.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{
		WalletID:         wallet.ID,
		BalanceCents:     wallet.BalanceCents,
		HoldBalanceCents: wallet.HoldBalanceCents,
		TotalCents:       wallet.TotalCents(),
	}, nil
}

func (s *service) TopUp(ctx context.Context, input TopUpInput) (*models.Wallet, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "top-up amount must be positive")
	}

	wallet, err := s.EnsureWallet(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.Credit(ctx, tx, EntryInput{
			WalletID:    wallet.ID,
			Type:        enums.TransactionTypeTopup,
			AmountCents: input.AmountCents,
			Note:        input.Note,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletToppedUp,
			AggregateType: enums.AggregateWallet,
			AggregateID:   wallet.ID,
			Data: payloads.WalletToppedUpEvent{
				WalletID:    wallet.ID,
				UserID:      input.UserID,
				AmountCents: input.AmountCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.FindByID(ctx, wallet.ID)
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	wallet, err := s.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, wallet.ID, limit)
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, input EntryInput) error {
	if err := validateEntry(input); err != nil {
		return err
	}

	repo := s.repo.WithTx(tx)
	ok, err := repo.AdjustBalance(ctx, input.WalletID, input.AmountCents)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "crediting wallet")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}

	return appendEntry(ctx, repo, input, enums.TransactionDirectionIn)
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, input EntryInput) error {
	if err := validateEntry(input); err != nil {
		return err
	}

	repo := s.repo.WithTx(tx)
	ok, err := repo.AdjustBalance(ctx, input.WalletID, -input.AmountCents)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debiting wallet")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance is insufficient").
			WithDetails(map[string]any{
				"wallet_id":    input.WalletID,
				"amount_cents": input.AmountCents,
			})
	}

	return appendEntry(ctx, repo, input, enums.TransactionDirectionOut)
}

func (s *service) MoveToHold(ctx context.Context, tx *gorm.DB, input HoldEntryInput) error {
	if input.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "hold amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	ok, err := repo.AdjustHoldBalance(ctx, input.WalletID, input.AmountCents)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "funding hold")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}

	return appendEntry(ctx, repo, EntryInput{
		WalletID:    input.WalletID,
		Type:        enums.TransactionTypeHold,
		AmountCents: input.AmountCents,
		OrderItemID: input.OrderItemID,
	}, enums.TransactionDirectionIn)
}

func (s *service) ReleaseHold(ctx context.Context, tx *gorm.DB, input ReleaseHoldInput) error {
	if input.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "release amount must be positive")
	}
	if input.FeeCents < 0 || input.FeeCents > input.AmountCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "fee must be between zero and the release amount")
	}

	repo := s.repo.WithTx(tx)
	ok, err := repo.AdjustHoldBalance(ctx, input.WalletID, -input.AmountCents)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "draining hold")
	}
	if !ok {
		return holdUnderflow(input.WalletID, input.AmountCents)
	}

	net := input.AmountCents - input.FeeCents
	ok, err = repo.AdjustBalance(ctx, input.WalletID, net)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "crediting released funds")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	if err := appendEntry(ctx, repo, EntryInput{
		WalletID:    input.WalletID,
		Type:        enums.TransactionTypeRelease,
		AmountCents: input.AmountCents,
		OrderItemID: input.OrderItemID,
	}, enums.TransactionDirectionIn); err != nil {
		return err
	}
	if input.FeeCents > 0 {
		note := "platform fee"
		if err := appendEntry(ctx, repo, EntryInput{
			WalletID:    input.WalletID,
			Type:        enums.TransactionTypeAdjustment,
			AmountCents: input.FeeCents,
			OrderItemID: input.OrderItemID,
			Note:        &note,
		}, enums.TransactionDirectionOut); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) RefundHold(ctx context.Context, tx *gorm.DB, input RefundHoldInput) error {
	if input.SellerWalletID == uuid.Nil || input.BuyerWalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller and buyer wallet ids are required")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	ok, err := repo.AdjustHoldBalance(ctx, input.SellerWalletID, -input.AmountCents)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "draining hold for refund")
	}
	if !ok {
		return holdUnderflow(input.SellerWalletID, input.AmountCents)
	}

	ok, err = repo.AdjustBalance(ctx, input.BuyerWalletID, input.AmountCents)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "crediting refund")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "buyer wallet not found")
	}
	return appendEntry(ctx, repo, EntryInput{
		WalletID:    input.BuyerWalletID,
		Type:        enums.TransactionTypeRefund,
		AmountCents: input.AmountCents,
		OrderItemID: input.OrderItemID,
	}, enums.TransactionDirectionIn)
}

func validateEntry(input EntryInput) error {
	if input.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}

func appendEntry(ctx context.Context, repo Repository, input EntryInput, direction enums.TransactionDirection) error {
	txn := &models.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    input.WalletID,
		Type:        input.Type,
		Direction:   direction,
		AmountCents: input.AmountCents,
		OrderItemID: input.OrderItemID,
		Note:        input.Note,
	}
	if err := repo.AppendTransaction(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending ledger row")
	}
	return nil
}

func holdUnderflow(walletID uuid.UUID, amount int) error {
	return pkgerrors.New(pkgerrors.CodeHoldUnderflow, "hold balance is smaller than the requested amount").
		WithDetails(map[string]any{
			"wallet_id":    walletID,
			"amount_cents": amount,
		})
}
