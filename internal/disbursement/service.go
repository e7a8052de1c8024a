package disbursement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digimart-backend/internal/escrow"
	"github.com/angelmondragon/digimart-backend/pkg/config"
	"github.com/angelmondragon/digimart-backend/pkg/db/models"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digimart-backend/pkg/errors"
	"github.com/angelmondragon/digimart-backend/pkg/logger"
	"github.com/angelmondragon/digimart-backend/pkg/pagination"
)

// escrowManager is the slice of the escrow service the sweep drives.
type escrowManager interface {
	AttemptRelease(ctx context.Context, orderItemID uuid.UUID, trigger enums.ReleaseTrigger) (escrow.ReleaseOutcome, error)
	GetItem(ctx context.Context, orderItemID uuid.UUID) (*models.OrderItem, error)
	ListHoldingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error)
	ListPendingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error)
}

// holdSource finds holds whose clock has run out.
type holdSource interface {
	ListHoldingDue(ctx context.Context, cutoff time.Time, limit int) ([]models.OrderItem, error)
}

// SweepReport aggregates one sweep run. Failed items stay holding and are
// retried by the next run.
type SweepReport struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	Blocked  int `json:"blocked"`
	NotReady int `json:"not_ready"`
	Failed   int `json:"failed"`
}

// TriggerResult is the outcome of a manual early release.
type TriggerResult struct {
	Released bool   `json:"released"`
	Message  string `json:"message"`
}

// Service owns the periodic release sweep and its manual override.
type Service interface {
	Sweep(ctx context.Context) (*SweepReport, error)
	Trigger(ctx context.Context, orderItemID uuid.UUID) (*TriggerResult, error)
	GetHoldingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error)
	GetPendingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error)
}

type service struct {
	escrow     escrowManager
	holds      holdSource
	logg       *logger.Logger
	batchSize  int
	holdWindow time.Duration
}

// NewService wires the disbursement scheduler with its dependencies.
func NewService(escrowSvc escrowManager, holds holdSource, logg *logger.Logger, cfg config.DisbursementConfig, escrowCfg config.EscrowConfig) (Service, error) {
	if escrowSvc == nil {
		return nil, fmt.Errorf("escrow manager required")
	}
	if holds == nil {
		return nil, fmt.Errorf("hold source required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	if escrowCfg.HoldWindow <= 0 {
		return nil, fmt.Errorf("hold window must be positive")
	}
	return &service{
		escrow:     escrowSvc,
		holds:      holds,
		logg:       logg,
		batchSize:  cfg.BatchSize,
		holdWindow: escrowCfg.HoldWindow,
	}, nil
}

func (s *service) Sweep(ctx context.Context) (*SweepReport, error) {
	cutoff := time.Now().UTC().Add(-s.holdWindow)
	items, err := s.holds.ListHoldingDue(ctx, cutoff, s.batchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing due holds")
	}

	report := &SweepReport{Scanned: len(items)}
	for _, item := range items {
		outcome, err := s.escrow.AttemptRelease(ctx, item.ID, enums.ReleaseTriggerWindowLapse)
		if err != nil {
			// One bad item must not starve the rest of the sweep.
			report.Failed++
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_item_id": item.ID,
			})
			s.logg.Error(logCtx, "disbursement.item_failed", err)
			continue
		}
		switch outcome {
		case escrow.ReleaseOutcomeReleased:
			report.Released++
		case escrow.ReleaseOutcomeBlocked:
			report.Blocked++
		case escrow.ReleaseOutcomeNotReady:
			report.NotReady++
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"scanned":   report.Scanned,
		"released":  report.Released,
		"blocked":   report.Blocked,
		"not_ready": report.NotReady,
		"failed":    report.Failed,
	})
	s.logg.Info(logCtx, "disbursement.sweep_complete")
	return report, nil
}

func (s *service) Trigger(ctx context.Context, orderItemID uuid.UUID) (*TriggerResult, error) {
	if orderItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}

	outcome, err := s.escrow.AttemptRelease(ctx, orderItemID, enums.ReleaseTriggerAdmin)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case escrow.ReleaseOutcomeReleased:
		return &TriggerResult{Released: true, Message: "funds released to the seller"}, nil
	case escrow.ReleaseOutcomeBlocked:
		return &TriggerResult{Message: "release denied: an open complaint references this item"}, nil
	case escrow.ReleaseOutcomeAlreadyFinal:
		return &TriggerResult{Message: "hold is already settled"}, nil
	default:
		return &TriggerResult{Message: "item is not ready for release"}, nil
	}
}

func (s *service) GetHoldingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error) {
	return s.escrow.ListHoldingItems(ctx, params)
}

func (s *service) GetPendingItems(ctx context.Context, params pagination.Params) ([]models.OrderItem, error) {
	return s.escrow.ListPendingItems(ctx, params)
}
