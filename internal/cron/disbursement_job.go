package cron

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/digimart-backend/internal/disbursement"
	"github.com/angelmondragon/digimart-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type sweeper interface {
	Sweep(ctx context.Context) (*disbursement.SweepReport, error)
}

// DisbursementJobParams configure the escrow release sweep.
type DisbursementJobParams struct {
	Logger  *logger.Logger
	Sweeper sweeper
}

// NewDisbursementJob builds the cron job that releases lapsed escrow holds.
func NewDisbursementJob(params DisbursementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &disbursementJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
	}, nil
}

type disbursementJob struct {
	logg    *logger.Logger
	sweeper sweeper
}

func (j *disbursementJob) Name() string { return "disbursement-sweep" }

func (j *disbursementJob) Run(ctx context.Context) error {
	report, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("disbursement sweep: %w", err)
	}
	if report.Failed > 0 {
		// Failed items stay holding; surfacing the error makes the run
		// visible in the cron failure metrics.
		return fmt.Errorf("disbursement sweep: %d of %d items failed", report.Failed, report.Scanned)
	}
	return nil
}
