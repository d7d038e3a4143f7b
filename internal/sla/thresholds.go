package sla

import (
	"math"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
)

// Warning thresholds as a percentage of the response window consumed.
const (
	WarningLowPercent      = 75.0
	WarningMediumPercent   = 85.0
	WarningHighPercent     = 90.0
	WarningCriticalPercent = 95.0
)

// Expired thresholds in minutes past the response deadline.
const (
	ExpiredCriticalMinutes = 60
	ExpiredUrgentMinutes   = 120
)

// ClassifyWarning maps a consumed percentage to a warning level.
// Below WarningLowPercent it returns WarningLevelNone.
func ClassifyWarning(percentageUsed float64) models.WarningLevel {
	switch {
	case percentageUsed >= WarningCriticalPercent:
		return models.WarningLevelCritical
	case percentageUsed >= WarningHighPercent:
		return models.WarningLevelHigh
	case percentageUsed >= WarningMediumPercent:
		return models.WarningLevelMedium
	case percentageUsed >= WarningLowPercent:
		return models.WarningLevelLow
	default:
		return models.WarningLevelNone
	}
}

// ClassifyExpired maps minutes overdue to a severity. Any thread at or past
// its deadline is at least overdue.
func ClassifyExpired(overdueMinutes int) models.ExpiredSeverity {
	switch {
	case overdueMinutes >= ExpiredUrgentMinutes:
		return models.ExpiredSeverityUrgent
	case overdueMinutes >= ExpiredCriticalMinutes:
		return models.ExpiredSeverityCritical
	default:
		return models.ExpiredSeverityOverdue
	}
}

// PercentageUsed returns how much of window has been consumed when remaining
// is left, clamped to [0,100] and rounded to two decimals.
func PercentageUsed(remaining, window time.Duration) float64 {
	if window <= 0 {
		return 100
	}
	used := window - remaining
	return clampPercent(round2(float64(used) * 100 / float64(window)))
}

// PercentageOverdue returns overdue as a percentage of window, rounded to two decimals.
func PercentageOverdue(overdue, window time.Duration) float64 {
	if window <= 0 || overdue <= 0 {
		return 0
	}
	return round2(float64(overdue) * 100 / float64(window))
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
