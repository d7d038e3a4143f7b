package sla

import (
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/businesshours"
	"github.com/MacJediWizard/slawatch/internal/models"
)

// Deadlines holds the response and resolution deadlines of a thread.
// Both are nil when no SLA applies.
type Deadlines struct {
	Response   *time.Time `json:"response,omitempty"`
	Resolution *time.Time `json:"resolution,omitempty"`
}

// ComputeDeadlines derives deadlines from the effective SLA and the instant the
// response clock started. With business hours the clock starts at the next open
// instant and only open time is counted.
func ComputeDeadlines(eff *models.EffectiveSLA, reference time.Time) (Deadlines, error) {
	if !eff.Applies() {
		return Deadlines{}, nil
	}

	p := eff.Policy
	if !p.UsesBusinessHours() {
		response := reference.Add(p.ResponseWindow())
		resolution := reference.Add(p.ResolutionWindow())
		return Deadlines{Response: &response, Resolution: &resolution}, nil
	}

	start, err := businesshours.NextOpenInstant(p.BusinessHours, reference)
	if err != nil {
		return Deadlines{}, fmt.Errorf("policy %s: %w", p.ID, err)
	}
	response, err := businesshours.AddDuration(p.BusinessHours, start, p.ResponseWindow())
	if err != nil {
		return Deadlines{}, fmt.Errorf("policy %s response deadline: %w", p.ID, err)
	}
	resolution, err := businesshours.AddDuration(p.BusinessHours, start, p.ResolutionWindow())
	if err != nil {
		return Deadlines{}, fmt.Errorf("policy %s resolution deadline: %w", p.ID, err)
	}
	return Deadlines{Response: &response, Resolution: &resolution}, nil
}
