package models

import (
	"time"

	"github.com/google/uuid"
)

// SLAHealth is the coarse SLA state of a thread.
type SLAHealth string

const (
	SLAHealthNoSLA         SLAHealth = "no_sla"
	SLAHealthOK            SLAHealth = "ok"
	SLAHealthWarning       SLAHealth = "warning"
	SLAHealthExpired       SLAHealth = "expired"
	SLAHealthMisconfigured SLAHealth = "misconfigured"
)

// WarningLevel is the pre-breach proximity tier.
type WarningLevel string

const (
	WarningLevelNone     WarningLevel = ""
	WarningLevelLow      WarningLevel = "low"
	WarningLevelMedium   WarningLevel = "medium"
	WarningLevelHigh     WarningLevel = "high"
	WarningLevelCritical WarningLevel = "critical"
)

// Rank orders warning levels, higher is closer to breach.
func (l WarningLevel) Rank() int {
	switch l {
	case WarningLevelLow:
		return 1
	case WarningLevelMedium:
		return 2
	case WarningLevelHigh:
		return 3
	case WarningLevelCritical:
		return 4
	}
	return 0
}

// ExpiredSeverity is the post-breach severity.
type ExpiredSeverity string

const (
	ExpiredSeverityNone     ExpiredSeverity = ""
	ExpiredSeverityOverdue  ExpiredSeverity = "overdue"
	ExpiredSeverityCritical ExpiredSeverity = "critical"
	ExpiredSeverityUrgent   ExpiredSeverity = "urgent"
)

// Rank orders severities, higher is worse.
func (s ExpiredSeverity) Rank() int {
	switch s {
	case ExpiredSeverityOverdue:
		return 1
	case ExpiredSeverityCritical:
		return 2
	case ExpiredSeverityUrgent:
		return 3
	}
	return 0
}

// ThreadSLAState is the derived SLA state of a single thread at one instant.
type ThreadSLAState struct {
	ThreadID           uuid.UUID       `json:"thread_id"`
	AppliedSLA         *EffectiveSLA   `json:"applied_sla"`
	ReferenceAt        time.Time       `json:"reference_at"`
	ResponseDeadline   *time.Time      `json:"response_deadline,omitempty"`
	ResolutionDeadline *time.Time      `json:"resolution_deadline,omitempty"`
	ElapsedMinutes     int             `json:"elapsed_minutes"`
	RemainingMinutes   int             `json:"remaining_minutes"`
	OverdueMinutes     int             `json:"overdue_minutes"`
	PercentageUsed     float64         `json:"percentage_used"`
	Status             SLAHealth       `json:"status"`
	WarningLevel       WarningLevel    `json:"warning_level,omitempty"`
	ExpiredSeverity    ExpiredSeverity `json:"expired_severity,omitempty"`
	Error              string          `json:"error,omitempty"`
}

// ThreadRef carries the identifying fields shown next to a thread on dashboards.
type ThreadRef struct {
	ThreadID    uuid.UUID   `json:"thread_id"`
	ContactID   uuid.UUID   `json:"contact_id"`
	ContactName string      `json:"contact_name,omitempty"`
	ChannelType ChannelType `json:"channel_type"`
	LocalID     *uuid.UUID  `json:"local_id,omitempty"`
	AssigneeID  *uuid.UUID  `json:"assignee_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewThreadRef copies the display fields of a thread.
func NewThreadRef(t *Thread) ThreadRef {
	return ThreadRef{
		ThreadID:    t.ID,
		ContactID:   t.ContactID,
		ContactName: t.ContactName,
		ChannelType: t.ChannelType,
		LocalID:     t.LocalID,
		AssigneeID:  t.AssigneeID,
		CreatedAt:   t.CreatedAt,
	}
}

// ThreadWarning is a thread approaching its response deadline.
type ThreadWarning struct {
	ThreadRef
	SLAID                uuid.UUID    `json:"sla_id"`
	SLAName              string       `json:"sla_name"`
	SLASource            SLASource    `json:"sla_source"`
	ResponseDeadline     time.Time    `json:"response_deadline"`
	TimeRemainingMinutes int          `json:"time_remaining_minutes"`
	PercentageUsed       float64      `json:"percentage_used"`
	Level                WarningLevel `json:"level"`
}

// ThreadExpired is a thread past its response deadline.
type ThreadExpired struct {
	ThreadRef
	SLAID              uuid.UUID       `json:"sla_id"`
	SLAName            string          `json:"sla_name"`
	SLASource          SLASource       `json:"sla_source"`
	ResponseDeadline   time.Time       `json:"response_deadline"`
	TimeOverdueMinutes int             `json:"time_overdue_minutes"`
	PercentageOverdue  float64         `json:"percentage_overdue"`
	Severity           ExpiredSeverity `json:"severity"`
}

// MisconfiguredThread is a thread whose SLA could not be evaluated because the
// governing configuration is invalid.
type MisconfiguredThread struct {
	ThreadRef
	SLAID     *uuid.UUID `json:"sla_id,omitempty"`
	SLAName   string     `json:"sla_name,omitempty"`
	SLASource SLASource  `json:"sla_source"`
	Reason    string     `json:"reason"`
}

// WarningStats counts warnings per level.
type WarningStats struct {
	Total    int                  `json:"total"`
	ByLevel  map[WarningLevel]int `json:"by_level"`
	Critical int                  `json:"critical"`
	High     int                  `json:"high"`
	Medium   int                  `json:"medium"`
	Low      int                  `json:"low"`
}

// ExpiredStats counts expired threads per severity.
type ExpiredStats struct {
	Total          int                     `json:"total"`
	BySeverity     map[ExpiredSeverity]int `json:"by_severity"`
	Urgent         int                     `json:"urgent"`
	Critical       int                     `json:"critical"`
	Overdue        int                     `json:"overdue"`
	AverageOverdue float64                 `json:"average_overdue_minutes"`
	MaxOverdue     int                     `json:"max_overdue_minutes"`
}

// SLABreakdown counts threads needing attention for one dimension value.
type SLABreakdown struct {
	Warnings int `json:"warnings"`
	Expired  int `json:"expired"`
}

// SLASummary is the combined dashboard view for a tenant.
type SLASummary struct {
	TenantID      uuid.UUID                    `json:"tenant_id"`
	GeneratedAt   time.Time                    `json:"generated_at"`
	Total         int                          `json:"total"`
	Warnings      WarningStats                 `json:"warnings"`
	Expired       ExpiredStats                 `json:"expired"`
	UrgentCount   int                          `json:"urgent_count"`
	CriticalCount int                          `json:"critical_count"`
	Misconfigured int                          `json:"misconfigured"`
	ByAgent       map[string]SLABreakdown      `json:"by_agent"`
	ByLocal       map[string]SLABreakdown      `json:"by_local"`
	ByChannel     map[ChannelType]SLABreakdown `json:"by_channel"`
}

// SLACoverage reports how much of a tenant is covered by explicit SLA assignments.
type SLACoverage struct {
	TenantID           uuid.UUID `json:"tenant_id"`
	TotalLocals        int       `json:"total_locals"`
	ConfiguredLocals   int       `json:"configured_locals"`
	LocalCoverage      float64   `json:"local_coverage"`
	TotalChannels      int       `json:"total_channels"`
	ConfiguredChannels int       `json:"configured_channels"`
	ChannelCoverage    float64   `json:"channel_coverage"`
	HasTenantDefault   bool      `json:"has_tenant_default"`
	TenantCoverage     float64   `json:"tenant_coverage"`
}
