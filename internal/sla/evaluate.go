package sla

import (
	"time"

	"github.com/MacJediWizard/slawatch/internal/businesshours"
	"github.com/MacJediWizard/slawatch/internal/models"
)

// Evaluate derives the SLA state of a thread at now. Warning and expired
// detection both classify through this function so a thread is never
// reported as both.
func Evaluate(eff *models.EffectiveSLA, thread *models.Thread, now time.Time) models.ThreadSLAState {
	state, _ := evaluate(eff, thread, now)
	return state
}

func evaluate(eff *models.EffectiveSLA, thread *models.Thread, now time.Time) (models.ThreadSLAState, error) {
	if eff == nil {
		eff = models.NoSLA()
	}
	state := models.ThreadSLAState{
		ThreadID:    thread.ID,
		AppliedSLA:  eff,
		ReferenceAt: thread.ReferenceTime(),
		Status:      models.SLAHealthNoSLA,
	}
	if !eff.Applies() {
		return state, nil
	}

	deadlines, err := ComputeDeadlines(eff, state.ReferenceAt)
	if err != nil {
		state.Status = models.SLAHealthMisconfigured
		state.Error = err.Error()
		return state, err
	}
	state.ResponseDeadline = deadlines.Response
	state.ResolutionDeadline = deadlines.Resolution

	p := eff.Policy
	schedule := p.BusinessHours
	state.ElapsedMinutes = minutes(businesshours.DurationBetween(schedule, state.ReferenceAt, now))

	if !thread.IsOpen() || !thread.AwaitingResponse() {
		state.Status = models.SLAHealthOK
		return state, nil
	}

	deadline := *deadlines.Response
	if now.Before(deadline) {
		remaining := businesshours.DurationBetween(schedule, now, deadline)
		if remaining > 0 {
			state.RemainingMinutes = minutes(remaining)
			state.PercentageUsed = PercentageUsed(remaining, p.ResponseWindow())
			state.WarningLevel = ClassifyWarning(state.PercentageUsed)
			state.Status = models.SLAHealthOK
			if state.WarningLevel != models.WarningLevelNone {
				state.Status = models.SLAHealthWarning
			}
			return state, nil
		}
	}

	overdue := businesshours.DurationBetween(schedule, deadline, now)
	state.OverdueMinutes = minutes(overdue)
	state.PercentageUsed = 100
	state.ExpiredSeverity = ClassifyExpired(state.OverdueMinutes)
	state.Status = models.SLAHealthExpired
	return state, nil
}

// minutes floors a duration to whole minutes.
func minutes(d time.Duration) int {
	return int(d / time.Minute)
}

func warningFrom(thread *models.Thread, state models.ThreadSLAState) models.ThreadWarning {
	eff := state.AppliedSLA
	return models.ThreadWarning{
		ThreadRef:            models.NewThreadRef(thread),
		SLAID:                *eff.SLAID,
		SLAName:              eff.PolicyName(),
		SLASource:            eff.Source,
		ResponseDeadline:     *state.ResponseDeadline,
		TimeRemainingMinutes: state.RemainingMinutes,
		PercentageUsed:       state.PercentageUsed,
		Level:                state.WarningLevel,
	}
}

func expiredFrom(thread *models.Thread, state models.ThreadSLAState) models.ThreadExpired {
	eff := state.AppliedSLA
	overdue := time.Duration(state.OverdueMinutes) * time.Minute
	return models.ThreadExpired{
		ThreadRef:          models.NewThreadRef(thread),
		SLAID:              *eff.SLAID,
		SLAName:            eff.PolicyName(),
		SLASource:          eff.Source,
		ResponseDeadline:   *state.ResponseDeadline,
		TimeOverdueMinutes: state.OverdueMinutes,
		PercentageOverdue:  PercentageOverdue(overdue, eff.Policy.ResponseWindow()),
		Severity:           state.ExpiredSeverity,
	}
}

func misconfiguredFrom(thread *models.Thread, eff *models.EffectiveSLA, err error) models.MisconfiguredThread {
	m := models.MisconfiguredThread{
		ThreadRef: models.NewThreadRef(thread),
		SLASource: models.SLASourceNone,
		Reason:    err.Error(),
	}
	if eff.Applies() {
		m.SLAID = eff.SLAID
		m.SLAName = eff.PolicyName()
		m.SLASource = eff.Source
	}
	return m
}
