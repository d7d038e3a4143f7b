package sla

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExpiredReport is the result of an expired scan.
type ExpiredReport struct {
	TenantID      uuid.UUID                    `json:"tenant_id"`
	ScannedAt     time.Time                    `json:"scanned_at"`
	Expired       []models.ThreadExpired       `json:"expired"`
	Misconfigured []models.MisconfiguredThread `json:"misconfigured"`
	Partial       bool                         `json:"partial,omitempty"`
}

// ExpiredDetector finds open threads past their response deadline.
type ExpiredDetector struct {
	resolver *Resolver
	threads  ThreadStore
	clock    Clock
	logger   zerolog.Logger
}

// NewExpiredDetector creates a new ExpiredDetector.
func NewExpiredDetector(resolver *Resolver, threads ThreadStore, clock Clock, logger zerolog.Logger) *ExpiredDetector {
	return &ExpiredDetector{
		resolver: resolver,
		threads:  threads,
		clock:    clock,
		logger:   logger.With().Str("component", "sla_expired").Logger(),
	}
}

// Scan returns every expired thread of the tenant, most overdue first.
func (d *ExpiredDetector) Scan(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter, opts ...ScanOption) (*ExpiredReport, error) {
	return d.ScanAt(ctx, tenantID, filter, d.clock.Now(), opts...)
}

// ScanAt is Scan evaluated at a fixed instant.
func (d *ExpiredDetector) ScanAt(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter, now time.Time, opts ...ScanOption) (*ExpiredReport, error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	set, err := d.resolver.LoadPolicySet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return d.scan(ctx, set, filter, now, applyScanOptions(opts))
}

// ScanRange is Scan restricted to a creation or expiry window. At least one
// bound is required.
func (d *ExpiredDetector) ScanRange(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter, opts ...ScanOption) (*ExpiredReport, error) {
	if filter.CreatedFrom == nil && filter.CreatedTo == nil && filter.ExpiredFrom == nil && filter.ExpiredTo == nil {
		return nil, fmt.Errorf("%w: a date range bound is required", ErrInvalidFilter)
	}
	return d.Scan(ctx, tenantID, filter, opts...)
}

func (d *ExpiredDetector) scan(ctx context.Context, set *PolicySet, filter models.ThreadFilter, now time.Time, opts ScanOptions) (*ExpiredReport, error) {
	query := filter
	query.ReferenceBefore = &now
	threads, err := d.threads.ListOpenThreadsPastDeadline(ctx, set.TenantID, query)
	if err != nil {
		return nil, storeError("list open threads past deadline", err)
	}

	report := &ExpiredReport{
		TenantID:      set.TenantID,
		ScannedAt:     now,
		Expired:       []models.ThreadExpired{},
		Misconfigured: []models.MisconfiguredThread{},
	}

	err = evaluateThreads(ctx, set, threads, filter, now, func(e evaluation) {
		switch e.state.Status {
		case models.SLAHealthExpired:
			if withinExpiredRange(filter, *e.state.ResponseDeadline) {
				report.Expired = append(report.Expired, expiredFrom(e.thread, e.state))
			}
		case models.SLAHealthMisconfigured:
			report.Misconfigured = append(report.Misconfigured, misconfiguredFrom(e.thread, e.state.AppliedSLA, e.err))
		}
	})
	sortExpired(report.Expired)

	if err != nil {
		if opts.AllowPartial {
			report.Partial = true
			return report, err
		}
		return nil, err
	}

	d.logger.Debug().
		Str("tenant_id", set.TenantID.String()).
		Int("candidates", len(threads)).
		Int("expired", len(report.Expired)).
		Msg("expired scan complete")

	return report, nil
}

// GetThreadOverdue returns the expired record of one thread, or nil if the
// thread is within its SLA, answered, closed or has no SLA.
func (d *ExpiredDetector) GetThreadOverdue(ctx context.Context, tenantID, threadID uuid.UUID) (*models.ThreadExpired, error) {
	return d.GetThreadOverdueAt(ctx, tenantID, threadID, d.clock.Now())
}

// GetThreadOverdueAt is GetThreadOverdue evaluated at a fixed instant.
func (d *ExpiredDetector) GetThreadOverdueAt(ctx context.Context, tenantID, threadID uuid.UUID, now time.Time) (*models.ThreadExpired, error) {
	thread, err := d.threads.GetThread(ctx, tenantID, threadID)
	if err != nil {
		return nil, storeError("get thread", err)
	}
	if thread == nil || thread.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if !thread.IsOpen() || !thread.AwaitingResponse() {
		return nil, nil
	}

	eff, err := d.resolver.Resolve(ctx, tenantID, thread.LocalID, thread.ChannelType)
	if err != nil {
		return nil, err
	}
	state, err := evaluate(eff, thread, now)
	if err != nil {
		return nil, err
	}
	if state.Status != models.SLAHealthExpired {
		return nil, nil
	}
	expired := expiredFrom(thread, state)
	return &expired, nil
}

// CheckThreadExpired reports whether one thread is past its response deadline.
func (d *ExpiredDetector) CheckThreadExpired(ctx context.Context, tenantID, threadID uuid.UUID) (bool, error) {
	expired, err := d.GetThreadOverdue(ctx, tenantID, threadID)
	if err != nil {
		return false, err
	}
	return expired != nil, nil
}

// Stats returns expired counts per severity for the tenant.
func (d *ExpiredDetector) Stats(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter) (*models.ExpiredStats, error) {
	return d.StatsAt(ctx, tenantID, filter, d.clock.Now())
}

// StatsAt is Stats evaluated at a fixed instant.
func (d *ExpiredDetector) StatsAt(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter, now time.Time) (*models.ExpiredStats, error) {
	report, err := d.ScanAt(ctx, tenantID, filter, now)
	if err != nil {
		return nil, err
	}
	stats := SummarizeExpired(report.Expired)
	return &stats, nil
}

// SummarizeExpired counts expired threads per severity with overdue aggregates.
func SummarizeExpired(expired []models.ThreadExpired) models.ExpiredStats {
	stats := models.ExpiredStats{
		Total:      len(expired),
		BySeverity: make(map[models.ExpiredSeverity]int),
	}
	total := 0
	for _, e := range expired {
		stats.BySeverity[e.Severity]++
		switch e.Severity {
		case models.ExpiredSeverityUrgent:
			stats.Urgent++
		case models.ExpiredSeverityCritical:
			stats.Critical++
		case models.ExpiredSeverityOverdue:
			stats.Overdue++
		}
		total += e.TimeOverdueMinutes
		if e.TimeOverdueMinutes > stats.MaxOverdue {
			stats.MaxOverdue = e.TimeOverdueMinutes
		}
	}
	if len(expired) > 0 {
		stats.AverageOverdue = round2(float64(total) / float64(len(expired)))
	}
	return stats
}

// sortExpired orders by most time overdue, ties broken by thread ID.
func sortExpired(es []models.ThreadExpired) {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].TimeOverdueMinutes != es[j].TimeOverdueMinutes {
			return es[i].TimeOverdueMinutes > es[j].TimeOverdueMinutes
		}
		return es[i].ThreadID.String() < es[j].ThreadID.String()
	})
}
