package complaints

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/digimart-backend/internal/escrow"
	"github.com/angelmondragon/digimart-backend/internal/wallet"
	"github.com/angelmondragon/digimart-backend/pkg/config"
	"github.com/angelmondragon/digimart-backend/pkg/db/models"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digimart-backend/pkg/errors"
	"github.com/angelmondragon/digimart-backend/pkg/outbox"
)

var testDBCounter atomic.Int64

func setupComplaintsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Each test gets its own named in-memory database: the queue ranking and
	// the bulk sweeps read across all rows, so tests cannot share state.
	dsn := fmt.Sprintf("file:complaints_test_%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  balance_cents INTEGER NOT NULL DEFAULT 0,
  hold_balance_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  type TEXT NOT NULL,
  direction TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  order_item_id TEXT,
  note TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  shop_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  seller_user_id TEXT NOT NULL,
  product_title TEXT NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  hold_amount_cents INTEGER NOT NULL,
  hold_status TEXT NOT NULL DEFAULT 'holding',
  item_status TEXT NOT NULL DEFAULT 'waiting_delivery',
  hold_at DATETIME NOT NULL,
  delivered_at DATETIME,
  release_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS complaint_tickets (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  order_item_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  shop_id TEXT NOT NULL,
  category TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'in_queue',
  description TEXT NOT NULL,
  order_snapshot TEXT,
  escalation_level INTEGER NOT NULL DEFAULT 0,
  assigned_moderator_id TEXT,
  resolution TEXT,
  resolution_note TEXT,
  refund_amount_cents INTEGER,
  resolved_at DATETIME,
  appeal_deadline DATETIME,
  appeal_reason TEXT,
  appealed_at DATETIME,
  appeal_outcome TEXT,
  appeal_note TEXT,
  sla_breached INTEGER NOT NULL DEFAULT 0,
  closed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS ticket_evidence (
  id TEXT PRIMARY KEY,
  ticket_id TEXT NOT NULL,
  author_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  body TEXT NOT NULL,
  file_url TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS queue_items (
  id TEXT PRIMARY KEY,
  ticket_id TEXT NOT NULL UNIQUE,
  is_high_value INTEGER NOT NULL DEFAULT 0,
  is_escalated INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
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

func (f *fakeOutbox) lastOfType(eventType enums.OutboxEventType) *outbox.DomainEvent {
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].EventType == eventType {
			return &f.events[i]
		}
	}
	return nil
}

type complaintsFixture struct {
	svc     Service
	escrow  escrow.Service
	wallets wallet.Service
	repo    Repository
	queue   QueueRepository
	db      *gorm.DB
	outbox  *fakeOutbox
}

func newComplaintsFixture(t *testing.T) *complaintsFixture {
	t.Helper()

	db := setupComplaintsTestDB(t)
	runner := &fakeTxRunner{db: db}
	emitted := &fakeOutbox{}
	repo := NewRepository(db)
	queue := NewQueueRepository(db)

	walletSvc, err := wallet.NewService(wallet.NewRepository(db), runner, emitted)
	require.NoError(t, err)

	escrowCfg := config.EscrowConfig{
		HoldWindow:              72 * time.Hour,
		PlatformFeePercent:      "5",
		HighValueThresholdCents: 50000,
	}
	escrowSvc, err := escrow.NewService(escrow.NewRepository(db), runner, emitted, walletSvc, repo, escrowCfg)
	require.NoError(t, err)

	svc, err := NewService(repo, queue, runner, emitted, escrowSvc, config.ComplaintConfig{
		AppealWindow:       72 * time.Hour,
		SLAThreshold:       48 * time.Hour,
		MinDecisionNoteLen: 20,
		MinAppealReasonLen: 20,
		MinDescriptionLen:  10,
	}, escrowCfg)
	require.NoError(t, err)

	return &complaintsFixture{
		svc:     svc,
		escrow:  escrowSvc,
		wallets: walletSvc,
		repo:    repo,
		queue:   queue,
		db:      db,
		outbox:  emitted,
	}
}

// deliveredItem funds the buyer, creates a hold and walks the item to
// delivered so a complaint can be filed against it.
func (f *complaintsFixture) deliveredItem(t *testing.T, buyerID, sellerID uuid.UUID, cents int) *models.OrderItem {
	t.Helper()
	ctx := context.Background()

	_, err := f.wallets.TopUp(ctx, wallet.TopUpInput{UserID: buyerID, AmountCents: cents})
	require.NoError(t, err)

	item, err := f.escrow.CreateHold(ctx, escrow.CreateHoldInput{
		OrderItemID:   uuid.New(),
		OrderID:       uuid.New(),
		ShopID:        uuid.New(),
		BuyerID:       buyerID,
		SellerUserID:  sellerID,
		ProductTitle:  "stem bundle",
		SubtotalCents: cents,
	})
	require.NoError(t, err)
	require.NoError(t, f.escrow.MarkDelivered(ctx, item.ID))
	return item
}

func (f *complaintsFixture) fileComplaint(t *testing.T, item *models.OrderItem) *models.ComplaintTicket {
	t.Helper()
	ticket, err := f.svc.Create(context.Background(), CreateComplaintInput{
		OrderItemID: item.ID,
		BuyerID:     item.BuyerID,
		Category:    enums.ComplaintCategoryNotAsDescribed,
		Description: "the pack is missing half the advertised stems",
	})
	require.NoError(t, err)
	return ticket
}

func (f *complaintsFixture) assignedTicket(t *testing.T, item *models.OrderItem, moderatorID uuid.UUID) *models.ComplaintTicket {
	t.Helper()
	ticket := f.fileComplaint(t, item)
	claimed, err := f.svc.AssignToModerator(context.Background(), ticket.ID, moderatorID)
	require.NoError(t, err)
	require.True(t, claimed)
	return ticket
}

func (f *complaintsFixture) walletOf(t *testing.T, userID uuid.UUID) *models.Wallet {
	t.Helper()
	w, err := f.wallets.EnsureWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func TestCreateComplaintEnqueuesTicket(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)

	ticket := f.fileComplaint(t, item)
	assert.Equal(t, enums.TicketStatusInQueue, ticket.Status)
	assert.True(t, strings.HasPrefix(ticket.Code, "CT-"))
	assert.NotEmpty(t, ticket.OrderSnapshot)

	var queueRow models.QueueItem
	require.NoError(t, f.db.Where("ticket_id = ?", ticket.ID).First(&queueRow).Error)
	assert.False(t, queueRow.IsHighValue)

	// Filing against a holding item flags it disputed.
	reloaded, err := f.escrow.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ItemStatusDisputed, reloaded.ItemStatus)

	event := f.outbox.lastOfType(enums.EventComplaintFiled)
	require.NotNil(t, event)
	assert.Equal(t, ticket.ID, event.AggregateID)
}

func TestCreateComplaintHighValueFlag(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 60000)

	ticket := f.fileComplaint(t, item)

	var queueRow models.QueueItem
	require.NoError(t, f.db.Where("ticket_id = ?", ticket.ID).First(&queueRow).Error)
	assert.True(t, queueRow.IsHighValue)
}

func TestCreateComplaintRejectsDuplicate(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	first := f.fileComplaint(t, item)

	_, err := f.svc.Create(context.Background(), CreateComplaintInput{
		OrderItemID: item.ID,
		BuyerID:     buyerID,
		Category:    enums.ComplaintCategoryDefective,
		Description: "filing this twice to be sure",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDuplicateComplaint, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, first.Code, details["existing_ticket_code"])
}

func TestCreateComplaintRequiresBuyer(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)

	_, err := f.svc.Create(context.Background(), CreateComplaintInput{
		OrderItemID: item.ID,
		BuyerID:     sellerID,
		Category:    enums.ComplaintCategoryFraud,
		Description: "the seller cannot complain about themselves",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestCreateComplaintRejectsUndeliveredItem(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	ctx := context.Background()

	_, err := f.wallets.TopUp(ctx, wallet.TopUpInput{UserID: buyerID, AmountCents: 10000})
	require.NoError(t, err)
	item, err := f.escrow.CreateHold(ctx, escrow.CreateHoldInput{
		OrderItemID:   uuid.New(),
		OrderID:       uuid.New(),
		ShopID:        uuid.New(),
		BuyerID:       buyerID,
		SellerUserID:  sellerID,
		ProductTitle:  "midi pack",
		SubtotalCents: 10000,
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, CreateComplaintInput{
		OrderItemID: item.ID,
		BuyerID:     buyerID,
		Category:    enums.ComplaintCategoryNotDelivered,
		Description: "nothing arrived in my library",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestAssignToModeratorLosesSecondClaim(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.fileComplaint(t, item)
	firstMod, secondMod := uuid.New(), uuid.New()

	claimed, err := f.svc.AssignToModerator(context.Background(), ticket.ID, firstMod)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = f.svc.AssignToModerator(context.Background(), ticket.ID, secondMod)
	require.NoError(t, err)
	assert.False(t, claimed)

	reloaded, err := f.svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.AssignedModeratorID)
	assert.Equal(t, firstMod, *reloaded.AssignedModeratorID)

	event := f.outbox.lastOfType(enums.EventTicketAssigned)
	require.NotNil(t, event)
}

func TestStartReviewRequiresAssignee(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.assignedTicket(t, item, moderatorID)

	err := f.svc.StartReview(context.Background(), ticket.ID, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	require.NoError(t, f.svc.StartReview(context.Background(), ticket.ID, moderatorID))
	reloaded, err := f.svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusInReview, reloaded.Status)
}

func TestInfoRequestRoundTrip(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.assignedTicket(t, item, moderatorID)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestMoreInfo(ctx, RequestMoreInfoInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Message:     "please attach the download receipt",
	}))
	reloaded, err := f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusNeedMoreInfo, reloaded.Status)

	require.NoError(t, f.svc.SubmitInfo(ctx, SubmitInfoInput{
		TicketID: ticket.ID,
		BuyerID:  buyerID,
		Body:     "receipt attached, order number 4417",
	}))
	reloaded, err = f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusInReview, reloaded.Status)

	evidence, err := f.svc.ListEvidence(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, evidence, 2)
	assert.Equal(t, evidenceKindInfoRequest, evidence[0].Kind)
	assert.Equal(t, evidenceKindInfoResponse, evidence[1].Kind)
}

func TestAddEvidenceRejectsOutsider(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.fileComplaint(t, item)

	_, err := f.svc.AddEvidence(context.Background(), AddEvidenceInput{
		TicketID: ticket.ID,
		AuthorID: uuid.New(),
		Body:     "unrelated bystander opinion",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	// The seller is a party and may respond.
	_, err = f.svc.AddEvidence(context.Background(), AddEvidenceInput{
		TicketID: ticket.ID,
		AuthorID: sellerID,
		Body:     "all stems are present in the zip",
	})
	require.NoError(t, err)
}

func TestMakeDecisionFullRefund(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 100000)
	ticket := f.assignedTicket(t, item, moderatorID)
	ctx := context.Background()

	require.NoError(t, f.svc.MakeDecision(ctx, MakeDecisionInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Resolution:  enums.ResolutionTypeFullRefund,
		Note:        "seller never uploaded the remaining stems",
	}))

	reloaded, err := f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusAppealable, reloaded.Status)
	require.NotNil(t, reloaded.Resolution)
	assert.Equal(t, enums.ResolutionTypeFullRefund, *reloaded.Resolution)
	require.NotNil(t, reloaded.RefundAmountCents)
	assert.Equal(t, 100000, *reloaded.RefundAmountCents)
	require.NotNil(t, reloaded.AppealDeadline)

	assert.Equal(t, 100000, f.walletOf(t, buyerID).BalanceCents)
	assert.Equal(t, 0, f.walletOf(t, sellerID).HoldBalanceCents)

	// The queue row is gone once the ticket is decided.
	var count int64
	require.NoError(t, f.db.Model(&models.QueueItem{}).
		Where("ticket_id = ?", ticket.ID).Count(&count).Error)
	assert.Zero(t, count)

	event := f.outbox.lastOfType(enums.EventComplaintDecided)
	require.NotNil(t, event)
}

func TestMakeDecisionPartialRefund(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 100000)
	ticket := f.assignedTicket(t, item, moderatorID)
	refund := 30000

	require.NoError(t, f.svc.MakeDecision(context.Background(), MakeDecisionInput{
		TicketID:          ticket.ID,
		ModeratorID:       moderatorID,
		Resolution:        enums.ResolutionTypePartialRefund,
		Note:              "two of five advertised kits are missing",
		RefundAmountCents: &refund,
	}))

	assert.Equal(t, 30000, f.walletOf(t, buyerID).BalanceCents)
	// Remainder 70000 less the 5% fee.
	assert.Equal(t, 66500, f.walletOf(t, sellerID).BalanceCents)
}

func TestMakeDecisionValidation(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.assignedTicket(t, item, moderatorID)

	err := f.svc.MakeDecision(context.Background(), MakeDecisionInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Resolution:  enums.ResolutionTypeReject,
		Note:        "too short",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	err = f.svc.MakeDecision(context.Background(), MakeDecisionInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Resolution:  enums.ResolutionTypePartialRefund,
		Note:        "partial refund without naming an amount",
	})
	require.Error(t, err)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestFileAppealBeforeDeadline(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.assignedTicket(t, item, moderatorID)
	ctx := context.Background()

	require.NoError(t, f.svc.MakeDecision(ctx, MakeDecisionInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Resolution:  enums.ResolutionTypeReject,
		Note:        "download logs show the full pack was fetched",
	}))

	require.NoError(t, f.svc.FileAppeal(ctx, FileAppealInput{
		TicketID: ticket.ID,
		ActorID:  buyerID,
		Reason:   "the logs are for a different order of mine",
	}))

	reloaded, err := f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusAppealInReview, reloaded.Status)
	require.NotNil(t, reloaded.AppealedAt)

	event := f.outbox.lastOfType(enums.EventAppealFiled)
	require.NotNil(t, event)
}

func TestFileAppealAfterDeadline(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.assignedTicket(t, item, moderatorID)
	ctx := context.Background()

	require.NoError(t, f.svc.MakeDecision(ctx, MakeDecisionInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Resolution:  enums.ResolutionTypeReject,
		Note:        "item matches the store listing exactly",
	}))

	// Push the deadline into the past.
	require.NoError(t, f.db.Model(&models.ComplaintTicket{}).
		Where("id = ?", ticket.ID).
		Update("appeal_deadline", time.Now().UTC().Add(-time.Minute)).Error)

	err := f.svc.FileAppeal(ctx, FileAppealInput{
		TicketID: ticket.ID,
		ActorID:  buyerID,
		Reason:   "this appeal arrives after the window closed",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestDecideAppealReversedPaysBuyer(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.assignedTicket(t, item, moderatorID)
	ctx := context.Background()

	// Reject pays the seller, the appeal reverses it. The seller has other
	// revenue in the wallet, so the full hold amount can be clawed back.
	_, err := f.wallets.TopUp(ctx, wallet.TopUpInput{UserID: sellerID, AmountCents: 5000})
	require.NoError(t, err)

	require.NoError(t, f.svc.MakeDecision(ctx, MakeDecisionInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Resolution:  enums.ResolutionTypeReject,
		Note:        "initial ruling goes to the seller here",
	}))
	require.NoError(t, f.svc.FileAppeal(ctx, FileAppealInput{
		TicketID: ticket.ID,
		ActorID:  buyerID,
		Reason:   "new evidence shows the files were corrupted",
	}))
	require.NoError(t, f.svc.DecideAppeal(ctx, DecideAppealInput{
		TicketID: ticket.ID,
		AdminID:  uuid.New(),
		Outcome:  enums.AppealOutcomeReversed,
		Note:     "checksum mismatch confirmed on the uploaded archive",
	}))

	reloaded, err := f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusClosed, reloaded.Status)
	require.NotNil(t, reloaded.AppealOutcome)
	assert.Equal(t, enums.AppealOutcomeReversed, *reloaded.AppealOutcome)
	require.NotNil(t, reloaded.ClosedAt)

	// Reject paid the seller 9500 net of the fee on top of the 5000 top-up;
	// the reversal moves the full 10000 hold amount back to the buyer.
	assert.Equal(t, 10000, f.walletOf(t, buyerID).BalanceCents)
	assert.Equal(t, 4500, f.walletOf(t, sellerID).BalanceCents)

	event := f.outbox.lastOfType(enums.EventAppealDecided)
	require.NotNil(t, event)
}

func TestDecideAppealReversedInsufficientSellerFunds(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.assignedTicket(t, item, moderatorID)
	ctx := context.Background()

	require.NoError(t, f.svc.MakeDecision(ctx, MakeDecisionInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Resolution:  enums.ResolutionTypeReject,
		Note:        "initial ruling goes to the seller here",
	}))
	require.NoError(t, f.svc.FileAppeal(ctx, FileAppealInput{
		TicketID: ticket.ID,
		ActorID:  buyerID,
		Reason:   "new evidence shows the files were corrupted",
	}))

	// The seller holds only the 9500 net payout, so clawing back the full
	// 10000 fails instead of driving the balance negative.
	err := f.svc.DecideAppeal(ctx, DecideAppealInput{
		TicketID: ticket.ID,
		AdminID:  uuid.New(),
		Outcome:  enums.AppealOutcomeReversed,
		Note:     "checksum mismatch confirmed on the uploaded archive",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientFunds, typed.Code())
	assert.Equal(t, 9500, f.walletOf(t, sellerID).BalanceCents)
}

func TestDecideAppealUpheldMovesNoMoney(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.assignedTicket(t, item, moderatorID)
	ctx := context.Background()

	require.NoError(t, f.svc.MakeDecision(ctx, MakeDecisionInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Resolution:  enums.ResolutionTypeFullRefund,
		Note:        "the delivered archive is empty on extraction",
	}))
	require.NoError(t, f.svc.FileAppeal(ctx, FileAppealInput{
		TicketID: ticket.ID,
		ActorID:  sellerID,
		Reason:   "the archive extracts fine with standard tooling",
	}))

	buyerBefore := f.walletOf(t, buyerID).BalanceCents
	require.NoError(t, f.svc.DecideAppeal(ctx, DecideAppealInput{
		TicketID: ticket.ID,
		AdminID:  uuid.New(),
		Outcome:  enums.AppealOutcomeUpheld,
		Note:     "extraction fails on two independent machines",
	}))

	assert.Equal(t, buyerBefore, f.walletOf(t, buyerID).BalanceCents)
}

func TestEscalateBumpsLevelAndQueueFlag(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.fileComplaint(t, item)

	require.NoError(t, f.svc.Escalate(context.Background(), ticket.ID))

	reloaded, err := f.svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.EscalationLevel)

	var queueRow models.QueueItem
	require.NoError(t, f.db.Where("ticket_id = ?", ticket.ID).First(&queueRow).Error)
	assert.True(t, queueRow.IsEscalated)
}

func TestPickFromQueueRanksHighValueFirst(t *testing.T) {
	f := newComplaintsFixture(t)
	sellerID := uuid.New()
	ctx := context.Background()

	normal := f.fileComplaint(t, f.deliveredItem(t, uuid.New(), sellerID, 10000))
	highValue := f.fileComplaint(t, f.deliveredItem(t, uuid.New(), sellerID, 60000))

	picked, err := f.svc.PickFromQueue(ctx, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, picked)
	assert.Equal(t, highValue.ID, picked.ID)

	picked, err = f.svc.PickFromQueue(ctx, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, picked)
	assert.Equal(t, normal.ID, picked.ID)

	picked, err = f.svc.PickFromQueue(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, picked)
}

func TestCloseLapsedSweepsExpiredAppeals(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	moderatorID := uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.assignedTicket(t, item, moderatorID)
	ctx := context.Background()

	require.NoError(t, f.svc.MakeDecision(ctx, MakeDecisionInput{
		TicketID:    ticket.ID,
		ModeratorID: moderatorID,
		Resolution:  enums.ResolutionTypeReject,
		Note:        "listing and delivery match, nothing to refund",
	}))
	require.NoError(t, f.db.Model(&models.ComplaintTicket{}).
		Where("id = ?", ticket.ID).
		Update("appeal_deadline", time.Now().UTC().Add(-time.Hour)).Error)

	closed, err := f.repo.CloseLapsed(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, closed)

	reloaded, err := f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusClosed, reloaded.Status)
	require.NotNil(t, reloaded.ClosedAt)
}

func TestMarkSLABreachedFlagsStaleTickets(t *testing.T) {
	f := newComplaintsFixture(t)
	buyerID, sellerID := uuid.New(), uuid.New()
	item := f.deliveredItem(t, buyerID, sellerID, 10000)
	ticket := f.fileComplaint(t, item)
	ctx := context.Background()

	require.NoError(t, f.db.Model(&models.ComplaintTicket{}).
		Where("id = ?", ticket.ID).
		Update("created_at", time.Now().UTC().Add(-72*time.Hour)).Error)

	flagged, err := f.repo.MarkSLABreached(ctx, time.Now().UTC().Add(-48*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, flagged)

	// A second sweep does not re-flag.
	flagged, err = f.repo.MarkSLABreached(ctx, time.Now().UTC().Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, flagged)
}
