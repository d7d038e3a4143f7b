package sla

import (
	"errors"
	"testing"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
)

// 2025-01-13 is a Monday.
var t0 = time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)

func weekdaySchedule() *models.BusinessHoursSchedule {
	s := &models.BusinessHoursSchedule{Timezone: "UTC"}
	for d := 0; d < 7; d++ {
		s.Days = append(s.Days, models.DaySchedule{
			Day:       d,
			Enabled:   d >= 1 && d <= 5,
			StartTime: "09:00",
			EndTime:   "18:00",
			Timezone:  "UTC",
		})
	}
	return s
}

func effectiveFor(p *models.SLAPolicy) *models.EffectiveSLA {
	id := p.ID
	return &models.EffectiveSLA{SLAID: &id, Source: models.SLASourceTenant, Policy: p}
}

func newTestThread(created time.Time) *models.Thread {
	return &models.Thread{
		ID:          uuid.New(),
		TenantID:    testTenant,
		ContactID:   uuid.New(),
		ContactName: "Customer",
		ChannelType: models.ChannelWhatsApp,
		Status:      models.ThreadStatusOpen,
		CreatedAt:   created,
	}
}

func TestClassifyWarning(t *testing.T) {
	tests := []struct {
		pct  float64
		want models.WarningLevel
	}{
		{0, models.WarningLevelNone},
		{74.99, models.WarningLevelNone},
		{75, models.WarningLevelLow},
		{84.99, models.WarningLevelLow},
		{85, models.WarningLevelMedium},
		{90, models.WarningLevelHigh},
		{94.99, models.WarningLevelHigh},
		{95, models.WarningLevelCritical},
		{100, models.WarningLevelCritical},
	}
	for _, tt := range tests {
		if got := ClassifyWarning(tt.pct); got != tt.want {
			t.Errorf("ClassifyWarning(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestClassifyExpired(t *testing.T) {
	tests := []struct {
		minutes int
		want    models.ExpiredSeverity
	}{
		{0, models.ExpiredSeverityOverdue},
		{1, models.ExpiredSeverityOverdue},
		{59, models.ExpiredSeverityOverdue},
		{60, models.ExpiredSeverityCritical},
		{119, models.ExpiredSeverityCritical},
		{120, models.ExpiredSeverityUrgent},
		{10000, models.ExpiredSeverityUrgent},
	}
	for _, tt := range tests {
		if got := ClassifyExpired(tt.minutes); got != tt.want {
			t.Errorf("ClassifyExpired(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestPercentageUsed(t *testing.T) {
	window := time.Hour
	if got := PercentageUsed(0, window); got != 100 {
		t.Errorf("at deadline: got %v, want 100", got)
	}
	if got := PercentageUsed(window, window); got != 0 {
		t.Errorf("at start: got %v, want 0", got)
	}
	if got := PercentageUsed(3*time.Minute, window); got != 95 {
		t.Errorf("3m remaining: got %v, want 95", got)
	}
	if got := PercentageUsed(-time.Minute, window); got != 100 {
		t.Errorf("past deadline should clamp: got %v", got)
	}
	if got := PercentageUsed(2*window, window); got != 0 {
		t.Errorf("more remaining than window should clamp: got %v", got)
	}
}

func TestComputeDeadlines(t *testing.T) {
	t.Run("no sla", func(t *testing.T) {
		d, err := ComputeDeadlines(models.NoSLA(), t0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Response != nil || d.Resolution != nil {
			t.Errorf("expected nil deadlines, got %+v", d)
		}
	})

	t.Run("24x7 wall clock", func(t *testing.T) {
		p := newTestPolicy("p", 60)
		d, err := ComputeDeadlines(effectiveFor(p), t0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Response.Equal(t0.Add(time.Hour)) {
			t.Errorf("response = %v", d.Response)
		}
		if !d.Resolution.Equal(t0.Add(24 * time.Hour)) {
			t.Errorf("resolution = %v", d.Resolution)
		}
	})

	t.Run("explicit 24x7 flag ignores days", func(t *testing.T) {
		p := newTestPolicy("p", 60)
		p.BusinessHours = &models.BusinessHoursSchedule{Is24x7: true}
		d, _ := ComputeDeadlines(effectiveFor(p), t0)
		if !d.Response.Equal(t0.Add(time.Hour)) {
			t.Errorf("response = %v", d.Response)
		}
	})

	t.Run("business hours across weekend", func(t *testing.T) {
		p := newTestPolicy("p", 30)
		p.BusinessHours = weekdaySchedule()
		friday := time.Date(2025, 1, 10, 17, 40, 0, 0, time.UTC)

		d, err := ComputeDeadlines(effectiveFor(p), friday)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := time.Date(2025, 1, 13, 9, 10, 0, 0, time.UTC)
		if !d.Response.Equal(want) {
			t.Errorf("response = %v, want %v", d.Response, want)
		}
	})

	t.Run("business hours reference before open", func(t *testing.T) {
		p := newTestPolicy("p", 30)
		p.BusinessHours = weekdaySchedule()
		early := time.Date(2025, 1, 13, 7, 0, 0, 0, time.UTC)

		d, _ := ComputeDeadlines(effectiveFor(p), early)
		want := time.Date(2025, 1, 13, 9, 30, 0, 0, time.UTC)
		if !d.Response.Equal(want) {
			t.Errorf("response = %v, want %v", d.Response, want)
		}
	})

	t.Run("crossing window continues into the next day", func(t *testing.T) {
		p := newTestPolicy("p", 120)
		p.BusinessHours = &models.BusinessHoursSchedule{
			Timezone: "UTC",
			Days:     []models.DaySchedule{{Day: 5, Enabled: true, StartTime: "22:00", EndTime: "06:00"}},
		}
		friday := time.Date(2025, 1, 10, 23, 0, 0, 0, time.UTC)

		d, err := ComputeDeadlines(effectiveFor(p), friday)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := time.Date(2025, 1, 11, 1, 0, 0, 0, time.UTC)
		if !d.Response.Equal(want) {
			t.Errorf("response = %v, want %v", d.Response, want)
		}
	})

	t.Run("unschedulable", func(t *testing.T) {
		p := newTestPolicy("p", 30)
		p.BusinessHours = &models.BusinessHoursSchedule{
			Timezone: "UTC",
			Days:     []models.DaySchedule{{Day: 1, Enabled: false, StartTime: "09:00", EndTime: "18:00"}},
		}
		_, err := ComputeDeadlines(effectiveFor(p), t0)
		if !errors.Is(err, ErrUnschedulableBusinessHours) {
			t.Errorf("expected ErrUnschedulableBusinessHours, got %v", err)
		}
	})
}

func TestEvaluate_ResponseWindowProgression(t *testing.T) {
	p := newTestPolicy("hour", 60)
	eff := effectiveFor(p)
	thread := newTestThread(t0)

	tests := []struct {
		name      string
		at        time.Duration
		status    models.SLAHealth
		level     models.WarningLevel
		severity  models.ExpiredSeverity
		remaining int
		overdue   int
		pct       float64
	}{
		{"fresh", 0, models.SLAHealthOK, models.WarningLevelNone, "", 60, 0, 0},
		{"half", 30 * time.Minute, models.SLAHealthOK, models.WarningLevelNone, "", 30, 0, 50},
		{"low", 45 * time.Minute, models.SLAHealthWarning, models.WarningLevelLow, "", 15, 0, 75},
		{"medium", 51 * time.Minute, models.SLAHealthWarning, models.WarningLevelMedium, "", 9, 0, 85},
		{"high", 54 * time.Minute, models.SLAHealthWarning, models.WarningLevelHigh, "", 6, 0, 90},
		{"critical at 57", 57 * time.Minute, models.SLAHealthWarning, models.WarningLevelCritical, "", 3, 0, 95},
		{"deadline", 60 * time.Minute, models.SLAHealthExpired, "", models.ExpiredSeverityOverdue, 0, 0, 100},
		{"overdue at 61", 61 * time.Minute, models.SLAHealthExpired, "", models.ExpiredSeverityOverdue, 0, 1, 100},
		{"critical overdue", 2 * time.Hour, models.SLAHealthExpired, "", models.ExpiredSeverityCritical, 0, 60, 100},
		{"urgent", 3 * time.Hour, models.SLAHealthExpired, "", models.ExpiredSeverityUrgent, 0, 120, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := Evaluate(eff, thread, t0.Add(tt.at))
			if state.Status != tt.status {
				t.Errorf("status = %q, want %q", state.Status, tt.status)
			}
			if state.WarningLevel != tt.level {
				t.Errorf("level = %q, want %q", state.WarningLevel, tt.level)
			}
			if state.ExpiredSeverity != tt.severity {
				t.Errorf("severity = %q, want %q", state.ExpiredSeverity, tt.severity)
			}
			if state.RemainingMinutes != tt.remaining {
				t.Errorf("remaining = %d, want %d", state.RemainingMinutes, tt.remaining)
			}
			if state.OverdueMinutes != tt.overdue {
				t.Errorf("overdue = %d, want %d", state.OverdueMinutes, tt.overdue)
			}
			if state.PercentageUsed != tt.pct {
				t.Errorf("pct = %v, want %v", state.PercentageUsed, tt.pct)
			}
		})
	}
}

func TestEvaluate_DeadlineRoundTrip(t *testing.T) {
	p := newTestPolicy("p", 45)
	p.BusinessHours = weekdaySchedule()
	eff := effectiveFor(p)
	thread := newTestThread(time.Date(2025, 1, 10, 17, 30, 0, 0, time.UTC))

	d, err := ComputeDeadlines(eff, thread.ReferenceTime())
	if err != nil {
		t.Fatalf("ComputeDeadlines: %v", err)
	}
	state := Evaluate(eff, thread, *d.Response)
	if state.PercentageUsed != 100 {
		t.Errorf("percentage at deadline = %v, want 100", state.PercentageUsed)
	}
	if state.Status != models.SLAHealthExpired || state.OverdueMinutes != 0 {
		t.Errorf("at deadline: status %q overdue %d", state.Status, state.OverdueMinutes)
	}
}

func TestEvaluate_BusinessHoursPauseClock(t *testing.T) {
	p := newTestPolicy("p", 30)
	p.BusinessHours = weekdaySchedule()
	eff := effectiveFor(p)
	thread := newTestThread(time.Date(2025, 1, 10, 17, 40, 0, 0, time.UTC))

	// Friday evening: 20 of 30 in-schedule minutes used.
	state := Evaluate(eff, thread, time.Date(2025, 1, 10, 22, 0, 0, 0, time.UTC))
	if state.RemainingMinutes != 10 {
		t.Errorf("remaining = %d, want 10", state.RemainingMinutes)
	}
	if state.Status != models.SLAHealthOK {
		t.Errorf("status = %q, want ok", state.Status)
	}

	// Monday 09:05: 25 of 30 used.
	state = Evaluate(eff, thread, time.Date(2025, 1, 13, 9, 5, 0, 0, time.UTC))
	if state.WarningLevel != models.WarningLevelLow {
		t.Errorf("level = %q, want low (pct %v)", state.WarningLevel, state.PercentageUsed)
	}

	// Monday 09:40: 30 in-schedule minutes past the 09:10 deadline.
	state = Evaluate(eff, thread, time.Date(2025, 1, 13, 9, 40, 0, 0, time.UTC))
	if state.Status != models.SLAHealthExpired || state.OverdueMinutes != 30 {
		t.Errorf("status %q overdue %d, want expired 30", state.Status, state.OverdueMinutes)
	}
}

func TestEvaluate_AnsweredAndNoSLA(t *testing.T) {
	p := newTestPolicy("p", 60)

	answered := newTestThread(t0)
	replied := t0.Add(10 * time.Minute)
	answered.LastAgentReplyAt = &replied
	answered.LastInboundMessageAt = &t0

	state := Evaluate(effectiveFor(p), answered, t0.Add(5*time.Hour))
	if state.Status != models.SLAHealthOK {
		t.Errorf("answered thread status = %q, want ok", state.Status)
	}

	state = Evaluate(models.NoSLA(), newTestThread(t0), t0.Add(5*time.Hour))
	if state.Status != models.SLAHealthNoSLA || state.ResponseDeadline != nil {
		t.Errorf("no sla state = %+v", state)
	}
}

func TestEvaluate_FollowUpAfterReplyRestartsClock(t *testing.T) {
	p := newTestPolicy("p", 60)
	thread := newTestThread(t0)
	replied := t0.Add(10 * time.Minute)
	followUp := t0.Add(2 * time.Hour)
	thread.LastAgentReplyAt = &replied
	thread.LastInboundMessageAt = &followUp

	state := Evaluate(effectiveFor(p), thread, followUp.Add(30*time.Minute))
	if !state.ReferenceAt.Equal(followUp) {
		t.Errorf("reference = %v, want %v", state.ReferenceAt, followUp)
	}
	if state.RemainingMinutes != 30 {
		t.Errorf("remaining = %d, want 30", state.RemainingMinutes)
	}
}

func TestEvaluate_Misconfigured(t *testing.T) {
	p := newTestPolicy("p", 30)
	p.BusinessHours = &models.BusinessHoursSchedule{Timezone: "Nowhere/Imaginary", Days: weekdaySchedule().Days}

	state := Evaluate(effectiveFor(p), newTestThread(t0), t0)
	if state.Status != models.SLAHealthMisconfigured {
		t.Errorf("status = %q, want misconfigured", state.Status)
	}
	if state.Error == "" {
		t.Error("expected an error message")
	}
}
