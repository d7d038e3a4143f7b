package sla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
)

func TestSummary(t *testing.T) {
	now := t0
	e, _ := newTestEngine(now)
	agent := uuid.New()
	local := uuid.New()

	w := e.addThread(58*time.Minute, now) // critical warning
	w.AssigneeID = &agent
	w.LocalID = &local

	x := e.addThread(3*time.Hour, now) // urgent expired
	x.AssigneeID = &agent
	x.ChannelType = models.ChannelEmail

	e.addThread(2*time.Hour, now)   // critical expired
	e.addThread(50*time.Minute, now) // low warning

	summary, err := e.Stats.Summary(context.Background(), testTenant, models.ThreadFilter{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if summary.Total != 4 {
		t.Errorf("total = %d", summary.Total)
	}
	if summary.UrgentCount != 1 {
		t.Errorf("urgent = %d", summary.UrgentCount)
	}
	if summary.CriticalCount != 2 {
		t.Errorf("critical = %d, want one warning plus one expired", summary.CriticalCount)
	}
	if summary.Warnings.Total != 2 || summary.Expired.Total != 2 {
		t.Errorf("warnings %d expired %d", summary.Warnings.Total, summary.Expired.Total)
	}
	if got := summary.ByAgent[agent.String()]; got.Warnings != 1 || got.Expired != 1 {
		t.Errorf("by agent = %+v", got)
	}
	if got := summary.ByAgent[UnassignedKey]; got.Warnings != 1 || got.Expired != 1 {
		t.Errorf("unassigned = %+v", got)
	}
	if got := summary.ByLocal[local.String()]; got.Warnings != 1 || got.Expired != 0 {
		t.Errorf("by local = %+v", got)
	}
	if got := summary.ByChannel[models.ChannelEmail]; got.Expired != 1 {
		t.Errorf("by channel = %+v", got)
	}
	if !summary.GeneratedAt.Equal(now) {
		t.Errorf("generated at = %v", summary.GeneratedAt)
	}
	// one snapshot shared by both scans
	if e.policies.calls != 3 {
		t.Errorf("policy store calls = %d, want 3", e.policies.calls)
	}
}

func TestSummary_MisconfiguredCountedOnce(t *testing.T) {
	e, def := newTestEngine(t0)
	def.BusinessHours = &models.BusinessHoursSchedule{Timezone: "Nowhere/Imaginary", Days: weekdaySchedule().Days}
	e.addThread(time.Hour, t0)

	summary, err := e.Stats.Summary(context.Background(), testTenant, models.ThreadFilter{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Misconfigured != 1 {
		t.Errorf("misconfigured = %d, want 1", summary.Misconfigured)
	}
}

func TestCoverage(t *testing.T) {
	e, def := newTestEngine(t0)
	l1, l2, l3, l4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	e.coverage.locals = []uuid.UUID{l1, l2, l3, l4}
	e.coverage.channels = []models.ChannelType{models.ChannelWhatsApp, models.ChannelEmail, models.ChannelWebChat}

	inactive := newTestPolicy("retired", 15)
	inactive.IsActive = false
	e.policies.addPolicy(inactive)

	e.policies.assignLocal(l1, &def.ID)
	e.policies.assignLocal(l2, nil)
	e.policies.assignLocal(l3, &inactive.ID)
	e.policies.assignChannel(models.ChannelEmail, &def.ID)

	c, err := e.Stats.Coverage(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if c.TotalLocals != 4 || c.ConfiguredLocals != 1 || c.LocalCoverage != 25 {
		t.Errorf("locals = %d/%d %v", c.ConfiguredLocals, c.TotalLocals, c.LocalCoverage)
	}
	if c.TotalChannels != 3 || c.ConfiguredChannels != 1 || c.ChannelCoverage != 33.33 {
		t.Errorf("channels = %d/%d %v", c.ConfiguredChannels, c.TotalChannels, c.ChannelCoverage)
	}
	if !c.HasTenantDefault || c.TenantCoverage != 100 {
		t.Errorf("tenant = %v %v", c.HasTenantDefault, c.TenantCoverage)
	}
}

func TestCoverage_Errors(t *testing.T) {
	e, _ := newTestEngine(t0)
	e.coverage.err = errors.New("db down")

	if _, err := e.Stats.Coverage(context.Background(), testTenant); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCoveragePercent(t *testing.T) {
	if got := CoveragePercent(0, 0); got != 0 {
		t.Errorf("zero total = %v", got)
	}
	if got := CoveragePercent(3, 3); got != 100 {
		t.Errorf("full = %v", got)
	}
	if got := CoveragePercent(2, 3); got != 66.67 {
		t.Errorf("two thirds = %v", got)
	}
}

func TestSnapshot(t *testing.T) {
	e, _ := newTestEngine(t0)
	e.addThread(58*time.Minute, t0)
	e.addThread(90*time.Minute, t0)

	snap, err := e.Stats.SnapshotAt(context.Background(), testTenant, models.ThreadFilter{}, t0)
	if err != nil {
		t.Fatalf("SnapshotAt: %v", err)
	}
	if len(snap.Warnings.Warnings) != 1 || len(snap.Expired.Expired) != 1 {
		t.Errorf("warnings %d expired %d", len(snap.Warnings.Warnings), len(snap.Expired.Expired))
	}
	if snap.Summary.Total != 2 {
		t.Errorf("summary total = %d", snap.Summary.Total)
	}
	if snap.Partial {
		t.Error("expected complete snapshot")
	}
}

func TestSnapshot_Partial(t *testing.T) {
	e, _ := newTestEngine(t0)
	e.addThread(58*time.Minute, t0)

	ctx, cancel := context.WithCancel(context.Background())
	e.threads.onList = cancel

	snap, err := e.Stats.SnapshotAt(ctx, testTenant, models.ThreadFilter{}, t0, WithPartialResults())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if snap == nil || !snap.Partial {
		t.Fatalf("expected partial snapshot, got %+v", snap)
	}
	if snap.Expired == nil || len(snap.Expired.Expired) != 0 {
		t.Error("expected empty expired report when the warning scan was interrupted")
	}
}
