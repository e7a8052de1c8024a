package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/digimart-backend/pkg/logger"
)

func TestTicketMaintenanceJobSweeps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	maintainer := &fakeTicketMaintainer{}
	job := newTicketMaintenanceJob(t, maintainer, 48*time.Hour)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !maintainer.closeNow.Equal(now) {
		t.Fatalf("expected close sweep at %s, got %s", now, maintainer.closeNow)
	}
	expectedCutoff := now.Add(-48 * time.Hour)
	if !maintainer.slaCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected sla cutoff %s, got %s", expectedCutoff, maintainer.slaCutoff)
	}
}

func TestTicketMaintenanceJobCombinesErrors(t *testing.T) {
	maintainer := &fakeTicketMaintainer{
		closeErr: errors.New("close failed"),
		slaErr:   errors.New("sla failed"),
	}
	job := newTicketMaintenanceJob(t, maintainer, 48*time.Hour)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	// Both sweeps must run even when the first fails.
	if maintainer.closeCalled != 1 || maintainer.slaCalled != 1 {
		t.Fatalf("expected both sweeps to run, got close=%d sla=%d", maintainer.closeCalled, maintainer.slaCalled)
	}
}

func newTicketMaintenanceJob(t *testing.T, maintainer *fakeTicketMaintainer, threshold time.Duration) *ticketMaintenanceJob {
	t.Helper()
	jobIface, err := NewTicketMaintenanceJob(TicketMaintenanceJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
		Tickets:      maintainer,
		SLAThreshold: threshold,
	})
	if err != nil {
		t.Fatalf("NewTicketMaintenanceJob: %v", err)
	}
	job, ok := jobIface.(*ticketMaintenanceJob)
	if !ok {
		t.Fatalf("expected ticketMaintenanceJob, got %T", jobIface)
	}
	return job
}

type fakeTicketMaintainer struct {
	closeNow    time.Time
	slaCutoff   time.Time
	closeCalled int
	slaCalled   int
	closeErr    error
	slaErr      error
}

func (f *fakeTicketMaintainer) CloseLapsed(ctx context.Context, now time.Time) (int64, error) {
	f.closeCalled++
	f.closeNow = now
	if f.closeErr != nil {
		return 0, f.closeErr
	}
	return 2, nil
}

func (f *fakeTicketMaintainer) MarkSLABreached(ctx context.Context, cutoff time.Time) (int64, error) {
	f.slaCalled++
	f.slaCutoff = cutoff
	if f.slaErr != nil {
		return 0, f.slaErr
	}
	return 1, nil
}
