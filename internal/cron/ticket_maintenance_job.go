package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/digimart-backend/pkg/logger"
)

type ticketMaintainer interface {
	CloseLapsed(ctx context.Context, now time.Time) (int64, error)
	MarkSLABreached(ctx context.Context, cutoff time.Time) (int64, error)
}

// TicketMaintenanceJobParams configure the ticket upkeep job.
type TicketMaintenanceJobParams struct {
	Logger       *logger.Logger
	Tickets      ticketMaintainer
	SLAThreshold time.Duration
}

// NewTicketMaintenanceJob builds the cron job that closes tickets whose
// appeal window lapsed without an appeal and flags SLA breaches on tickets
// waiting too long for a decision.
func NewTicketMaintenanceJob(params TicketMaintenanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tickets == nil {
		return nil, fmt.Errorf("ticket maintainer required")
	}
	if params.SLAThreshold <= 0 {
		return nil, fmt.Errorf("sla threshold must be positive")
	}
	return &ticketMaintenanceJob{
		logg:         params.Logger,
		tickets:      params.Tickets,
		slaThreshold: params.SLAThreshold,
		now:          time.Now,
	}, nil
}

type ticketMaintenanceJob struct {
	logg         *logger.Logger
	tickets      ticketMaintainer
	slaThreshold time.Duration
	now          func() time.Time
}

func (j *ticketMaintenanceJob) Name() string { return "ticket-maintenance" }

func (j *ticketMaintenanceJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.closeLapsedAppeals(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.flagSLABreaches(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *ticketMaintenanceJob) closeLapsedAppeals(ctx context.Context) error {
	closed, err := j.tickets.CloseLapsed(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("close lapsed appeal windows: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"closed": closed})
	j.logg.Info(logCtx, "lapsed appeal window sweep complete")
	return nil
}

func (j *ticketMaintenanceJob) flagSLABreaches(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.slaThreshold)
	flagged, err := j.tickets.MarkSLABreached(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("flag sla breaches: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"flagged": flagged,
	})
	j.logg.Info(logCtx, "sla breach sweep complete")
	return nil
}
