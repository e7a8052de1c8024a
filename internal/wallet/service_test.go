package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/digimart-backend/pkg/db/models"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digimart-backend/pkg/errors"
	"github.com/angelmondragon/digimart-backend/pkg/outbox"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	wallets := `
CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  balance_cents INTEGER NOT NULL DEFAULT 0,
  hold_balance_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  type TEXT NOT NULL,
  direction TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  order_item_id TEXT,
  note TEXT,
  created_at DATETIME
);`
	for _, ddl := range []string{wallets, transactions} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type fakeTxRunner struct {
	db *gorm.DB
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(f.db)
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func newTestService(t *testing.T) (Service, *gorm.DB, *fakeOutbox) {
	t.Helper()
	db := setupWalletTestDB(t)
	emitted := &fakeOutbox{}
	svc, err := NewService(NewRepository(db), &fakeTxRunner{db: db}, emitted)
	require.NoError(t, err)
	return svc, db, emitted
}

func TestEnsureWalletIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.EnsureWallet(ctx, userID)
	require.NoError(t, err)
	second, err := svc.EnsureWallet(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0, second.BalanceCents)
	assert.Equal(t, 0, second.HoldBalanceCents)
}

func TestTopUpCreditsAndLedgers(t *testing.T) {
	svc, db, emitted := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	wallet, err := svc.TopUp(ctx, TopUpInput{UserID: userID, AmountCents: 5000})
	require.NoError(t, err)
	assert.Equal(t, 5000, wallet.BalanceCents)

	var rows []models.WalletTransaction
	require.NoError(t, db.Where("wallet_id = ?", wallet.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.TransactionTypeTopup, rows[0].Type)
	assert.Equal(t, enums.TransactionDirectionIn, rows[0].Direction)
	assert.Equal(t, 5000, rows[0].AmountCents)

	require.Len(t, emitted.events, 1)
	assert.Equal(t, enums.EventWalletToppedUp, emitted.events[0].EventType)
	assert.Equal(t, wallet.ID, emitted.events[0].AggregateID)
}

func TestTopUpRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.TopUp(context.Background(), TopUpInput{UserID: uuid.New(), AmountCents: 0})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestDebitInsufficientFunds(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	wallet, err := svc.TopUp(ctx, TopUpInput{UserID: uuid.New(), AmountCents: 1000})
	require.NoError(t, err)

	err = svc.Debit(ctx, db, EntryInput{
		WalletID:    wallet.ID,
		Type:        enums.TransactionTypePurchase,
		AmountCents: 1500,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientFunds, typed.Code())

	// The failed debit must leave no ledger row behind.
	var count int64
	require.NoError(t, db.Model(&models.WalletTransaction{}).
		Where("wallet_id = ? AND type = ?", wallet.ID, enums.TransactionTypePurchase).
		Count(&count).Error)
	assert.Zero(t, count)
}

func TestReleaseHoldPaysNetOfFee(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	itemID := uuid.New()

	seller, err := svc.EnsureWallet(ctx, uuid.New())
	require.NoError(t, err)

	require.NoError(t, svc.MoveToHold(ctx, db, HoldEntryInput{
		WalletID:    seller.ID,
		AmountCents: 100000,
		OrderItemID: &itemID,
	}))
	require.NoError(t, svc.ReleaseHold(ctx, db, ReleaseHoldInput{
		WalletID:    seller.ID,
		AmountCents: 100000,
		FeeCents:    5000,
		OrderItemID: &itemID,
	}))

	var reloaded models.Wallet
	require.NoError(t, db.Where("id = ?", seller.ID).First(&reloaded).Error)
	assert.Equal(t, 95000, reloaded.BalanceCents)
	assert.Equal(t, 0, reloaded.HoldBalanceCents)

	var rows []models.WalletTransaction
	require.NoError(t, db.Where("wallet_id = ?", seller.ID).Order("created_at ASC").Find(&rows).Error)
	require.Len(t, rows, 3)

	// Non-hold rows must reconstruct the spendable balance exactly.
	sum := 0
	for _, row := range rows {
		if row.Type == enums.TransactionTypeHold {
			continue
		}
		sum += row.SignedAmountCents()
	}
	assert.Equal(t, reloaded.BalanceCents, sum)
}

func TestReleaseHoldUnderflow(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	seller, err := svc.EnsureWallet(ctx, uuid.New())
	require.NoError(t, err)

	err = svc.ReleaseHold(ctx, db, ReleaseHoldInput{
		WalletID:    seller.ID,
		AmountCents: 500,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeHoldUnderflow, typed.Code())
}

func TestRefundHoldMovesAcrossWallets(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	itemID := uuid.New()

	seller, err := svc.EnsureWallet(ctx, uuid.New())
	require.NoError(t, err)
	buyer, err := svc.EnsureWallet(ctx, uuid.New())
	require.NoError(t, err)

	require.NoError(t, svc.MoveToHold(ctx, db, HoldEntryInput{
		WalletID:    seller.ID,
		AmountCents: 100000,
		OrderItemID: &itemID,
	}))
	require.NoError(t, svc.RefundHold(ctx, db, RefundHoldInput{
		SellerWalletID: seller.ID,
		BuyerWalletID:  buyer.ID,
		AmountCents:    100000,
		OrderItemID:    &itemID,
	}))

	var reloadedSeller, reloadedBuyer models.Wallet
	require.NoError(t, db.Where("id = ?", seller.ID).First(&reloadedSeller).Error)
	require.NoError(t, db.Where("id = ?", buyer.ID).First(&reloadedBuyer).Error)
	assert.Equal(t, 0, reloadedSeller.HoldBalanceCents)
	assert.Equal(t, 0, reloadedSeller.BalanceCents)
	assert.Equal(t, 100000, reloadedBuyer.BalanceCents)

	var refundRows []models.WalletTransaction
	require.NoError(t, db.Where("wallet_id = ? AND type = ?", buyer.ID, enums.TransactionTypeRefund).
		Find(&refundRows).Error)
	require.Len(t, refundRows, 1)
	assert.Equal(t, enums.TransactionDirectionIn, refundRows[0].Direction)
}

func TestListTransactionsOrdered(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	wallet, err := svc.TopUp(ctx, TopUpInput{UserID: userID, AmountCents: 2000})
	require.NoError(t, err)
	require.NoError(t, svc.Debit(ctx, db, EntryInput{
		WalletID:    wallet.ID,
		Type:        enums.TransactionTypePurchase,
		AmountCents: 500,
	}))

	rows, err := svc.ListTransactions(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.TransactionTypeTopup, rows[0].Type)
	assert.Equal(t, enums.TransactionTypePurchase, rows[1].Type)
}
