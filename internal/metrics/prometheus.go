// Package metrics exports SLA monitor state as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slawatch"

// Scan results recorded by RecordScan.
const (
	ScanSuccess = "success"
	ScanError   = "error"
	ScanPartial = "partial"
)

var (
	warningLevels     = []models.WarningLevel{models.WarningLevelLow, models.WarningLevelMedium, models.WarningLevelHigh, models.WarningLevelCritical}
	expiredSeverities = []models.ExpiredSeverity{models.ExpiredSeverityOverdue, models.ExpiredSeverityCritical, models.ExpiredSeverityUrgent}
)

// PrometheusMetrics holds the registered SLA collectors.
type PrometheusMetrics struct {
	WarningGauge       *prometheus.GaugeVec
	ExpiredGauge       *prometheus.GaugeVec
	MisconfiguredGauge *prometheus.GaugeVec
	ScanCounter        *prometheus.CounterVec
	ScanDuration       *prometheus.HistogramVec
	NotificationCount  *prometheus.CounterVec
}

// NewPrometheusMetrics creates the SLA collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		WarningGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sla_warnings",
			Help:      "Open threads approaching their response deadline, by warning level.",
		}, []string{"tenant_id", "level"}),
		ExpiredGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sla_expired",
			Help:      "Open threads past their response deadline, by severity.",
		}, []string{"tenant_id", "severity"}),
		MisconfiguredGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sla_misconfigured_threads",
			Help:      "Threads whose SLA could not be evaluated.",
		}, []string{"tenant_id"}),
		ScanCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sla_scans_total",
			Help:      "Tenant scans by result.",
		}, []string{"result"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sla_scan_duration_seconds",
			Help:      "Duration of tenant scans.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		NotificationCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sla_notifications_total",
			Help:      "Notifications sent by event type and result.",
		}, []string{"event", "result"}),
	}

	for _, c := range []prometheus.Collector{
		m.WarningGauge, m.ExpiredGauge, m.MisconfiguredGauge, m.ScanCounter, m.ScanDuration, m.NotificationCount,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// SetWarnings publishes per-level warning counts of a tenant. Levels absent
// from stats are reset to zero.
func (m *PrometheusMetrics) SetWarnings(tenantID string, stats models.WarningStats) {
	for _, level := range warningLevels {
		m.WarningGauge.WithLabelValues(tenantID, string(level)).Set(float64(stats.ByLevel[level]))
	}
}

// SetExpired publishes per-severity expired counts of a tenant.
func (m *PrometheusMetrics) SetExpired(tenantID string, stats models.ExpiredStats) {
	for _, sev := range expiredSeverities {
		m.ExpiredGauge.WithLabelValues(tenantID, string(sev)).Set(float64(stats.BySeverity[sev]))
	}
}

// SetMisconfigured publishes the misconfigured thread count of a tenant.
func (m *PrometheusMetrics) SetMisconfigured(tenantID string, n int) {
	m.MisconfiguredGauge.WithLabelValues(tenantID).Set(float64(n))
}

// RecordScan counts one tenant scan.
func (m *PrometheusMetrics) RecordScan(result string) {
	m.ScanCounter.WithLabelValues(result).Inc()
}

// ObserveScanDuration records how long a scan of the given kind took.
func (m *PrometheusMetrics) ObserveScanDuration(kind string, seconds float64) {
	m.ScanDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordNotification counts one notification attempt.
func (m *PrometheusMetrics) RecordNotification(event string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.NotificationCount.WithLabelValues(event, result).Inc()
}
