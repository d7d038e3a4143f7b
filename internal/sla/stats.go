package sla

import (
	"context"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Breakdown keys used when a thread has no agent or no local.
const (
	UnassignedKey = "unassigned"
	NoLocalKey    = "none"
)

// StatsAggregator folds detector output into dashboard summaries.
type StatsAggregator struct {
	resolver *Resolver
	warnings *WarningDetector
	expired  *ExpiredDetector
	coverage CoverageStore
	clock    Clock
	logger   zerolog.Logger
}

// NewStatsAggregator creates a new StatsAggregator.
func NewStatsAggregator(resolver *Resolver, warnings *WarningDetector, expired *ExpiredDetector, coverage CoverageStore, clock Clock, logger zerolog.Logger) *StatsAggregator {
	return &StatsAggregator{
		resolver: resolver,
		warnings: warnings,
		expired:  expired,
		coverage: coverage,
		clock:    clock,
		logger:   logger.With().Str("component", "sla_stats").Logger(),
	}
}

// Summary returns the combined warning and expired view of a tenant.
func (a *StatsAggregator) Summary(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter) (*models.SLASummary, error) {
	return a.SummaryAt(ctx, tenantID, filter, a.clock.Now())
}

// SummaryAt is Summary evaluated at a fixed instant.
func (a *StatsAggregator) SummaryAt(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter, now time.Time) (*models.SLASummary, error) {
	snap, err := a.SnapshotAt(ctx, tenantID, filter, now)
	if err != nil {
		return nil, err
	}
	return snap.Summary, nil
}

// Snapshot is one consistent view of a tenant: both reports and their summary.
type Snapshot struct {
	Warnings *WarningReport
	Expired  *ExpiredReport
	Summary  *models.SLASummary
	Partial  bool
}

// SnapshotAt runs the warning and expired scans at now over one policy
// snapshot. With WithPartialResults an interrupted scan returns the snapshot
// gathered so far together with the error.
func (a *StatsAggregator) SnapshotAt(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter, now time.Time, opts ...ScanOption) (*Snapshot, error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	set, err := a.resolver.LoadPolicySet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	o := applyScanOptions(opts)

	warnings, err := a.warnings.scan(ctx, set, filter, now, o)
	if err != nil {
		if warnings == nil {
			return nil, err
		}
		return newSnapshot(tenantID, now, warnings, nil), err
	}
	expired, err := a.expired.scan(ctx, set, filter, now, o)
	if err != nil {
		if expired == nil {
			return nil, err
		}
		return newSnapshot(tenantID, now, warnings, expired), err
	}
	return newSnapshot(tenantID, now, warnings, expired), nil
}

func newSnapshot(tenantID uuid.UUID, now time.Time, w *WarningReport, e *ExpiredReport) *Snapshot {
	if e == nil {
		e = &ExpiredReport{
			TenantID:      tenantID,
			ScannedAt:     now,
			Expired:       []models.ThreadExpired{},
			Misconfigured: []models.MisconfiguredThread{},
			Partial:       true,
		}
	}
	return &Snapshot{
		Warnings: w,
		Expired:  e,
		Summary:  Summarize(tenantID, now, w, e),
		Partial:  w.Partial || e.Partial,
	}
}

// Summarize merges a warning report and an expired report taken at now.
func Summarize(tenantID uuid.UUID, now time.Time, warnings *WarningReport, expired *ExpiredReport) *models.SLASummary {
	s := &models.SLASummary{
		TenantID:    tenantID,
		GeneratedAt: now,
		Warnings:    SummarizeWarnings(warnings.Warnings),
		Expired:     SummarizeExpired(expired.Expired),
		ByAgent:     make(map[string]models.SLABreakdown),
		ByLocal:     make(map[string]models.SLABreakdown),
		ByChannel:   make(map[models.ChannelType]models.SLABreakdown),
	}
	s.Total = s.Warnings.Total + s.Expired.Total
	s.UrgentCount = s.Expired.Urgent
	s.CriticalCount = s.Warnings.Critical + s.Expired.Critical

	for _, w := range warnings.Warnings {
		addBreakdown(s, w.ThreadRef, func(b *models.SLABreakdown) { b.Warnings++ })
	}
	for _, e := range expired.Expired {
		addBreakdown(s, e.ThreadRef, func(b *models.SLABreakdown) { b.Expired++ })
	}

	seen := make(map[uuid.UUID]struct{})
	for _, list := range [][]models.MisconfiguredThread{warnings.Misconfigured, expired.Misconfigured} {
		for _, m := range list {
			seen[m.ThreadID] = struct{}{}
		}
	}
	s.Misconfigured = len(seen)
	return s
}

func addBreakdown(s *models.SLASummary, ref models.ThreadRef, inc func(*models.SLABreakdown)) {
	agent := UnassignedKey
	if ref.AssigneeID != nil {
		agent = ref.AssigneeID.String()
	}
	local := NoLocalKey
	if ref.LocalID != nil {
		local = ref.LocalID.String()
	}

	b := s.ByAgent[agent]
	inc(&b)
	s.ByAgent[agent] = b

	b = s.ByLocal[local]
	inc(&b)
	s.ByLocal[local] = b

	b = s.ByChannel[ref.ChannelType]
	inc(&b)
	s.ByChannel[ref.ChannelType] = b
}

// Coverage reports the share of locals and channels with an explicit
// assignment to an active policy, and whether a tenant default exists.
func (a *StatsAggregator) Coverage(ctx context.Context, tenantID uuid.UUID) (*models.SLACoverage, error) {
	set, err := a.resolver.LoadPolicySet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	locals, err := a.coverage.ListLocalIDs(ctx, tenantID)
	if err != nil {
		return nil, storeError("list locals", err)
	}
	channels, err := a.coverage.ListChannelTypes(ctx, tenantID)
	if err != nil {
		return nil, storeError("list channel types", err)
	}

	c := &models.SLACoverage{
		TenantID:      tenantID,
		TotalLocals:   len(locals),
		TotalChannels: len(channels),
	}
	for _, id := range locals {
		if set.LocalConfigured(id) {
			c.ConfiguredLocals++
		}
	}
	for _, ch := range channels {
		if set.ChannelConfigured(ch) {
			c.ConfiguredChannels++
		}
	}
	def, err := set.TenantDefault()
	if err != nil {
		a.logger.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("coverage with ambiguous tenant default")
	}
	c.HasTenantDefault = err == nil && def != nil

	c.LocalCoverage = CoveragePercent(c.ConfiguredLocals, c.TotalLocals)
	c.ChannelCoverage = CoveragePercent(c.ConfiguredChannels, c.TotalChannels)
	if c.HasTenantDefault {
		c.TenantCoverage = 100
	}
	return c, nil
}

// CoveragePercent returns configured/total*100 rounded to two decimals, or 0
// when total is 0.
func CoveragePercent(configured, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(configured) * 100 / float64(total))
}
