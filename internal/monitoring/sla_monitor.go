// Package monitoring runs periodic SLA scans across all tenants, exports the
// results as metrics and notifies on state transitions.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MacJediWizard/slawatch/internal/config"
	"github.com/MacJediWizard/slawatch/internal/metrics"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/MacJediWizard/slawatch/internal/notifications"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TenantLister lists the tenants to scan.
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Config holds the configuration for the SLA monitor.
type Config struct {
	// Schedule is a cron spec parsed with config.ScheduleParser.
	Schedule string
	// ScanTimeout bounds a single tenant scan.
	ScanTimeout time.Duration
	// Concurrency is the number of tenants scanned at once.
	Concurrency int
	// AllowPartial keeps the results of a scan cut short by its timeout.
	AllowPartial bool
	// NotifyWarningLevel is the lowest warning level that is notified.
	NotifyWarningLevel models.WarningLevel
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:           config.DefaultScanSchedule,
		ScanTimeout:        config.DefaultScanTimeout,
		Concurrency:        config.DefaultScanConcurrency,
		NotifyWarningLevel: config.DefaultNotifyLevel,
	}
}

// ConfigFrom derives the monitor configuration from the process configuration.
func ConfigFrom(cfg config.MonitorConfig) Config {
	return Config{
		Schedule:           cfg.ScanSchedule,
		ScanTimeout:        cfg.ScanTimeout,
		Concurrency:        cfg.ScanConcurrency,
		AllowPartial:       cfg.AllowPartial,
		NotifyWarningLevel: cfg.NotifyWarningLevel,
	}
}

// RunResult summarizes one pass over all tenants.
type RunResult struct {
	Tenants       int
	Failed        int
	Partial       int
	Notifications int
}

// mark is the last notified state of a thread.
type mark struct {
	status models.SLAHealth
	rank   int
}

// SLAMonitor scans every tenant on a cron schedule.
type SLAMonitor struct {
	engine  *sla.Engine
	tenants TenantLister
	sink    notifications.Sink
	metrics *metrics.PrometheusMetrics
	config  Config
	cron    *cron.Cron
	logger  zerolog.Logger

	mu      sync.Mutex
	last    map[uuid.UUID]map[uuid.UUID]mark
	running bool
}

// NewSLAMonitor creates a new SLAMonitor. sink and m may be nil.
func NewSLAMonitor(engine *sla.Engine, tenants TenantLister, sink notifications.Sink, m *metrics.PrometheusMetrics, cfg Config, logger zerolog.Logger) *SLAMonitor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.NotifyWarningLevel.Rank() == 0 {
		cfg.NotifyWarningLevel = config.DefaultNotifyLevel
	}
	log := logger.With().Str("component", "sla_monitor").Logger()
	return &SLAMonitor{
		engine:  engine,
		tenants: tenants,
		sink:    sink,
		metrics: m,
		config:  cfg,
		cron: cron.New(
			cron.WithParser(config.ScheduleParser),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
		),
		logger: log,
		last:   make(map[uuid.UUID]map[uuid.UUID]mark),
	}
}

// Start schedules the scan and starts the cron runner.
func (m *SLAMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	if _, err := m.cron.AddFunc(m.config.Schedule, func() {
		if _, err := m.RunOnce(ctx); err != nil {
			m.logger.Error().Err(err).Msg("sla scan failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule sla scan %q: %w", m.config.Schedule, err)
	}
	m.cron.Start()
	m.running = true

	m.logger.Info().
		Str("schedule", m.config.Schedule).
		Dur("scan_timeout", m.config.ScanTimeout).
		Int("concurrency", m.config.Concurrency).
		Msg("sla monitor started")
	return nil
}

// Stop stops the scheduler. The returned context is done once running
// scans have finished.
func (m *SLAMonitor) Stop() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	m.running = false
	m.logger.Info().Msg("stopping sla monitor")
	return m.cron.Stop()
}

// RunOnce scans every tenant once. A failing tenant is logged and counted;
// only a failure to list tenants is returned.
func (m *SLAMonitor) RunOnce(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	ids, err := m.tenants.ListTenantIDs(ctx)
	if err != nil {
		m.recordScan(metrics.ScanError)
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	var failed, partial, sent atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(m.config.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			n, isPartial, err := m.scanTenant(ctx, id)
			sent.Add(int32(n))
			switch {
			case err != nil && !isPartial:
				failed.Add(1)
				m.recordScan(metrics.ScanError)
				m.logger.Error().Err(err).Str("tenant_id", id.String()).Msg("tenant sla scan failed")
			case isPartial:
				partial.Add(1)
				m.recordScan(metrics.ScanPartial)
				m.logger.Warn().Err(err).Str("tenant_id", id.String()).Msg("tenant sla scan incomplete")
			default:
				m.recordScan(metrics.ScanSuccess)
			}
			return nil
		})
	}
	_ = g.Wait()

	if m.metrics != nil {
		m.metrics.ObserveScanDuration("all_tenants", time.Since(start).Seconds())
	}
	result := &RunResult{
		Tenants:       len(ids),
		Failed:        int(failed.Load()),
		Partial:       int(partial.Load()),
		Notifications: int(sent.Load()),
	}
	m.logger.Debug().
		Int("tenants", result.Tenants).
		Int("failed", result.Failed).
		Int("notifications", result.Notifications).
		Dur("duration", time.Since(start)).
		Msg("sla scan complete")
	return result, nil
}

// scanTenant returns the number of notifications sent and whether the
// snapshot was partial.
func (m *SLAMonitor) scanTenant(ctx context.Context, tenantID uuid.UUID) (int, bool, error) {
	scanCtx := ctx
	if m.config.ScanTimeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, m.config.ScanTimeout)
		defer cancel()
	}

	var opts []sla.ScanOption
	if m.config.AllowPartial {
		opts = append(opts, sla.WithPartialResults())
	}

	start := time.Now()
	snap, err := m.engine.Stats.SnapshotAt(scanCtx, tenantID, models.ThreadFilter{}, m.engine.Now(), opts...)
	if m.metrics != nil {
		m.metrics.ObserveScanDuration("tenant", time.Since(start).Seconds())
	}
	if snap == nil {
		return 0, false, err
	}

	if m.metrics != nil {
		tid := tenantID.String()
		m.metrics.SetWarnings(tid, snap.Summary.Warnings)
		m.metrics.SetExpired(tid, snap.Summary.Expired)
		m.metrics.SetMisconfigured(tid, snap.Summary.Misconfigured)
	}

	// Delivery is not bounded by the scan timeout.
	return m.notifyTransitions(ctx, tenantID, snap), snap.Partial, err
}

// notifyTransitions notifies threads whose state got worse since the last
// scan. Threads that left every report are forgotten so a later breach is
// notified again. A partial snapshot never forgets.
func (m *SLAMonitor) notifyTransitions(ctx context.Context, tenantID uuid.UUID, snap *sla.Snapshot) int {
	m.mu.Lock()
	prev := m.last[tenantID]
	m.mu.Unlock()

	next := make(map[uuid.UUID]mark, len(prev))
	if snap.Partial {
		for id, mk := range prev {
			next[id] = mk
		}
	}
	defer func() {
		m.mu.Lock()
		m.last[tenantID] = next
		m.mu.Unlock()
	}()

	type pending struct {
		ref     models.ThreadRef
		event   notifications.EventType
		payload any
		prev    mark
		seen    bool
	}
	var queue []pending

	for _, w := range snap.Warnings.Warnings {
		cur := mark{status: models.SLAHealthWarning, rank: w.Level.Rank()}
		old, seen := prev[w.ThreadID]
		next[w.ThreadID] = cur
		if w.Level.Rank() < m.config.NotifyWarningLevel.Rank() {
			continue
		}
		if seen && old.status == cur.status && old.rank >= cur.rank {
			continue
		}
		queue = append(queue, pending{ref: w.ThreadRef, event: notifications.EventSLAWarning, payload: w, prev: old, seen: seen})
	}

	for _, e := range snap.Expired.Expired {
		cur := mark{status: models.SLAHealthExpired, rank: e.Severity.Rank()}
		old, seen := prev[e.ThreadID]
		next[e.ThreadID] = cur
		if seen && old.status == cur.status && old.rank >= cur.rank {
			continue
		}
		queue = append(queue, pending{ref: e.ThreadRef, event: notifications.EventSLAExpired, payload: e, prev: old, seen: seen})
	}

	for _, list := range [][]models.MisconfiguredThread{snap.Warnings.Misconfigured, snap.Expired.Misconfigured} {
		for _, mc := range list {
			if cur, ok := next[mc.ThreadID]; ok && cur.status == models.SLAHealthMisconfigured {
				continue
			}
			old, seen := prev[mc.ThreadID]
			next[mc.ThreadID] = mark{status: models.SLAHealthMisconfigured}
			if seen && old.status == models.SLAHealthMisconfigured {
				continue
			}
			queue = append(queue, pending{ref: mc.ThreadRef, event: notifications.EventSLAMisconfigured, payload: mc, prev: old, seen: seen})
		}
	}

	if m.sink == nil {
		return 0
	}
	sent := 0
	for _, p := range queue {
		var recipients []uuid.UUID
		if p.ref.AssigneeID != nil {
			recipients = []uuid.UUID{*p.ref.AssigneeID}
		}
		err := m.sink.Notify(ctx, recipients, p.event, p.payload)
		if m.metrics != nil {
			m.metrics.RecordNotification(string(p.event), err)
		}
		if err != nil {
			m.logger.Warn().Err(err).
				Str("tenant_id", tenantID.String()).
				Str("thread_id", p.ref.ThreadID.String()).
				Str("event_type", string(p.event)).
				Msg("failed to send sla notification")
			// retry on the next scan
			if p.seen {
				next[p.ref.ThreadID] = p.prev
			} else {
				delete(next, p.ref.ThreadID)
			}
			continue
		}
		sent++
	}
	return sent
}

func (m *SLAMonitor) recordScan(result string) {
	if m.metrics != nil {
		m.metrics.RecordScan(result)
	}
}

// tracked returns the number of threads whose last state is remembered for a tenant.
func (m *SLAMonitor) tracked(tenantID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last[tenantID])
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
