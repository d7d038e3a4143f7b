package sla

import (
	"context"
	"sort"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WarningReport is the result of a warning scan.
type WarningReport struct {
	TenantID      uuid.UUID                    `json:"tenant_id"`
	ScannedAt     time.Time                    `json:"scanned_at"`
	Warnings      []models.ThreadWarning       `json:"warnings"`
	Misconfigured []models.MisconfiguredThread `json:"misconfigured"`
	Partial       bool                         `json:"partial,omitempty"`
}

// WarningDetector finds open threads approaching their response deadline.
type WarningDetector struct {
	resolver *Resolver
	threads  ThreadStore
	clock    Clock
	logger   zerolog.Logger
}

// NewWarningDetector creates a new WarningDetector.
func NewWarningDetector(resolver *Resolver, threads ThreadStore, clock Clock, logger zerolog.Logger) *WarningDetector {
	return &WarningDetector{
		resolver: resolver,
		threads:  threads,
		clock:    clock,
		logger:   logger.With().Str("component", "sla_warnings").Logger(),
	}
}

// Scan returns every thread of the tenant at or above the low warning
// threshold, sorted by time remaining.
func (d *WarningDetector) Scan(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter, opts ...ScanOption) (*WarningReport, error) {
	return d.ScanAt(ctx, tenantID, filter, d.clock.Now(), opts...)
}

// ScanAt is Scan evaluated at a fixed instant.
func (d *WarningDetector) ScanAt(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter, now time.Time, opts ...ScanOption) (*WarningReport, error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	set, err := d.resolver.LoadPolicySet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return d.scan(ctx, set, filter, now, applyScanOptions(opts))
}

func (d *WarningDetector) scan(ctx context.Context, set *PolicySet, filter models.ThreadFilter, now time.Time, opts ScanOptions) (*WarningReport, error) {
	query := filter
	query.ReferenceBefore = &now
	threads, err := d.threads.ListOpenThreadsLackingResponse(ctx, set.TenantID, query)
	if err != nil {
		return nil, storeError("list open threads lacking response", err)
	}

	report := &WarningReport{
		TenantID:      set.TenantID,
		ScannedAt:     now,
		Warnings:      []models.ThreadWarning{},
		Misconfigured: []models.MisconfiguredThread{},
	}

	err = evaluateThreads(ctx, set, threads, filter, now, func(e evaluation) {
		switch e.state.Status {
		case models.SLAHealthWarning:
			report.Warnings = append(report.Warnings, warningFrom(e.thread, e.state))
		case models.SLAHealthMisconfigured:
			report.Misconfigured = append(report.Misconfigured, misconfiguredFrom(e.thread, e.state.AppliedSLA, e.err))
		}
	})
	sortWarnings(report.Warnings)

	if err != nil {
		if opts.AllowPartial {
			report.Partial = true
			return report, err
		}
		return nil, err
	}

	if len(report.Misconfigured) > 0 {
		d.logger.Warn().
			Str("tenant_id", set.TenantID.String()).
			Int("count", len(report.Misconfigured)).
			Msg("threads with misconfigured sla")
	}
	d.logger.Debug().
		Str("tenant_id", set.TenantID.String()).
		Int("candidates", len(threads)).
		Int("warnings", len(report.Warnings)).
		Msg("warning scan complete")

	return report, nil
}

// Stats returns warning counts per level for the tenant.
func (d *WarningDetector) Stats(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter) (*models.WarningStats, error) {
	return d.StatsAt(ctx, tenantID, filter, d.clock.Now())
}

// StatsAt is Stats evaluated at a fixed instant.
func (d *WarningDetector) StatsAt(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter, now time.Time) (*models.WarningStats, error) {
	report, err := d.ScanAt(ctx, tenantID, filter, now)
	if err != nil {
		return nil, err
	}
	stats := SummarizeWarnings(report.Warnings)
	return &stats, nil
}

// SummarizeWarnings counts warnings per level.
func SummarizeWarnings(warnings []models.ThreadWarning) models.WarningStats {
	stats := models.WarningStats{
		Total:   len(warnings),
		ByLevel: make(map[models.WarningLevel]int),
	}
	for _, w := range warnings {
		stats.ByLevel[w.Level]++
		switch w.Level {
		case models.WarningLevelCritical:
			stats.Critical++
		case models.WarningLevelHigh:
			stats.High++
		case models.WarningLevelMedium:
			stats.Medium++
		case models.WarningLevelLow:
			stats.Low++
		}
	}
	return stats
}

// sortWarnings orders by least time remaining, ties broken by thread ID.
func sortWarnings(ws []models.ThreadWarning) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].TimeRemainingMinutes != ws[j].TimeRemainingMinutes {
			return ws[i].TimeRemainingMinutes < ws[j].TimeRemainingMinutes
		}
		if ws[i].PercentageUsed != ws[j].PercentageUsed {
			return ws[i].PercentageUsed > ws[j].PercentageUsed
		}
		return ws[i].ThreadID.String() < ws[j].ThreadID.String()
	})
}
