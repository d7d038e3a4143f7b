package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SLAPriority is the priority label attached to an SLA policy.
type SLAPriority string

const (
	SLAPriorityLow    SLAPriority = "low"
	SLAPriorityMedium SLAPriority = "medium"
	SLAPriorityHigh   SLAPriority = "high"
	SLAPriorityUrgent SLAPriority = "urgent"
)

// IsValid reports whether p is one of the known priorities.
func (p SLAPriority) IsValid() bool {
	switch p {
	case SLAPriorityLow, SLAPriorityMedium, SLAPriorityHigh, SLAPriorityUrgent:
		return true
	}
	return false
}

// EscalationRules is an opaque blob configured by tenant admins. It is stored
// and forwarded as-is and never inspected by the SLA engine.
type EscalationRules map[string]any

// SLAPolicy defines response and resolution targets for a tenant.
type SLAPolicy struct {
	ID                  uuid.UUID              `json:"id"`
	TenantID            uuid.UUID              `json:"tenant_id"`
	Name                string                 `json:"name"`
	Description         string                 `json:"description,omitempty"`
	ResponseTimeMinutes int                    `json:"response_time_minutes"`
	ResolutionTimeHours int                    `json:"resolution_time_hours"`
	Priority            SLAPriority            `json:"priority"`
	IsActive            bool                   `json:"is_active"`
	IsDefault           bool                   `json:"is_default"`
	BusinessHours       *BusinessHoursSchedule `json:"business_hours,omitempty"` // nil means 24/7
	EscalationRules     EscalationRules        `json:"escalation_rules,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// NewSLAPolicy creates a new active SLAPolicy with the given targets.
func NewSLAPolicy(tenantID uuid.UUID, name string, responseMinutes, resolutionHours int) *SLAPolicy {
	now := time.Now()
	return &SLAPolicy{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		Name:                name,
		ResponseTimeMinutes: responseMinutes,
		ResolutionTimeHours: resolutionHours,
		Priority:            SLAPriorityMedium,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Validate checks the policy's scalar fields. Business hours are validated
// separately by the businesshours package.
func (p *SLAPolicy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if p.ResponseTimeMinutes <= 0 {
		return fmt.Errorf("response time must be positive, got %d minutes", p.ResponseTimeMinutes)
	}
	if p.ResolutionTimeHours <= 0 {
		return fmt.Errorf("resolution time must be positive, got %d hours", p.ResolutionTimeHours)
	}
	if !p.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", p.Priority)
	}
	return nil
}

// UsesBusinessHours returns true if deadlines must be computed against a schedule.
func (p *SLAPolicy) UsesBusinessHours() bool {
	return p.BusinessHours != nil && !p.BusinessHours.Is24x7
}

// ResponseWindow returns the response target as a duration.
func (p *SLAPolicy) ResponseWindow() time.Duration {
	return time.Duration(p.ResponseTimeMinutes) * time.Minute
}

// ResolutionWindow returns the resolution target as a duration.
func (p *SLAPolicy) ResolutionWindow() time.Duration {
	return time.Duration(p.ResolutionTimeHours) * time.Hour
}

// SetBusinessHours sets the business hours from JSON bytes.
func (p *SLAPolicy) SetBusinessHours(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		p.BusinessHours = nil
		return nil
	}
	var schedule BusinessHoursSchedule
	if err := json.Unmarshal(data, &schedule); err != nil {
		return err
	}
	p.BusinessHours = &schedule
	return nil
}

// BusinessHoursJSON returns the business hours as JSON bytes for database storage.
func (p *SLAPolicy) BusinessHoursJSON() ([]byte, error) {
	if p.BusinessHours == nil {
		return nil, nil
	}
	return json.Marshal(p.BusinessHours)
}

// SetEscalationRules sets the escalation rules from JSON bytes.
func (p *SLAPolicy) SetEscalationRules(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &p.EscalationRules)
}

// EscalationRulesJSON returns the escalation rules as JSON bytes for database storage.
func (p *SLAPolicy) EscalationRulesJSON() ([]byte, error) {
	if p.EscalationRules == nil {
		return nil, nil
	}
	return json.Marshal(p.EscalationRules)
}

// Clone returns a copy of the policy safe to hand out as a snapshot.
func (p *SLAPolicy) Clone() *SLAPolicy {
	if p == nil {
		return nil
	}
	cp := *p
	if p.BusinessHours != nil {
		bh := *p.BusinessHours
		bh.Days = append([]DaySchedule(nil), p.BusinessHours.Days...)
		cp.BusinessHours = &bh
	}
	return &cp
}
