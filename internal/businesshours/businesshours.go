// Package businesshours answers open/closed and elapsed-time questions against
// weekly recurring business-hours schedules.
//
// A day's window opens at its start time on that day. When the end time is at
// or before the start time the window closes at the end time on the following
// day, whether or not that day is enabled itself.
package businesshours

import (
	"errors"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // embedded zoneinfo

	"github.com/MacJediWizard/slawatch/internal/models"
)

var (
	// ErrUnschedulable is returned when a non-24/7 schedule has no open window.
	ErrUnschedulable = errors.New("business hours schedule has no open windows")
	// ErrInvalidSchedule is returned when a schedule cannot be parsed.
	ErrInvalidSchedule = errors.New("invalid business hours schedule")
)

// maxScanDays bounds every forward walk. A schedule with at least one open
// window consumes budget every week, so this is only reached for budgets
// longer than the bound itself.
const maxScanDays = 3660

var locations sync.Map // map[string]*time.Location

func loadLocation(name string) (*time.Location, error) {
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, name)
	}
	locations.Store(name, loc)
	return loc, nil
}

// AlwaysOpen returns true if the schedule imposes no restriction.
func AlwaysOpen(s *models.BusinessHoursSchedule) bool {
	return s == nil || s.Is24x7
}

func dayMinutes(d models.DaySchedule) (int, int, error) {
	start, end, err := d.Minutes()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: day %d times %q-%q are not HH:MM", ErrInvalidSchedule, d.Day, d.StartTime, d.EndTime)
	}
	return start, end, nil
}

// IsOpen reports whether t falls within the schedule's operating hours, at
// minute resolution. The end minute is inclusive.
func IsOpen(s *models.BusinessHoursSchedule, t time.Time) bool {
	if AlwaysOpen(s) {
		return true
	}

	c, err := newCursor(s, t)
	if err != nil {
		return false
	}

	local := t.In(c.loc)
	current := local.Hour()*60 + local.Minute()
	if rule, ok := c.rules[local.Weekday()]; ok {
		if current >= rule.start && (rule.crosses || current <= rule.end) {
			return true
		}
	}
	// Tail of a window opened the day before.
	if prev, ok := c.rules[(local.Weekday()+6)%7]; ok && prev.crosses && current <= prev.end {
		return true
	}
	return false
}

// NextOpenInstant returns the first instant at or after from that is inside an
// open window. It returns from unchanged when the schedule is 24/7 or IsOpen
// reports from as open.
func NextOpenInstant(s *models.BusinessHoursSchedule, from time.Time) (time.Time, error) {
	if AlwaysOpen(s) || IsOpen(s, from) {
		return from, nil
	}

	c, err := newCursor(s, from)
	if err != nil {
		return time.Time{}, err
	}

	// Yesterday's tail plus one full week covers every weekday entry.
	var next time.Time
	c.each(8, func(w window) bool {
		if !w.end.After(from) {
			return true
		}
		next = maxTime(w.start, from)
		return false
	})
	if next.IsZero() {
		return time.Time{}, ErrUnschedulable
	}
	return next, nil
}

// DurationBetween returns the open time between start and end.
func DurationBetween(s *models.BusinessHoursSchedule, start, end time.Time) time.Duration {
	if !end.After(start) {
		return 0
	}
	if AlwaysOpen(s) {
		return end.Sub(start)
	}

	c, err := newCursor(s, start)
	if err != nil {
		return 0
	}

	var total time.Duration
	c.each(maxScanDays, func(w window) bool {
		if !w.start.Before(end) {
			return false
		}
		lo := maxTime(w.start, start)
		hi := minTime(w.end, end)
		if hi.After(lo) {
			total += hi.Sub(lo)
		}
		return true
	})
	return total
}

// MinutesBetween returns the whole in-schedule minutes between start and end.
// It returns 0 when end is not after start.
func MinutesBetween(s *models.BusinessHoursSchedule, start, end time.Time) int {
	return int(DurationBetween(s, start, end) / time.Minute)
}

// AddMinutes advances from by the given number of in-schedule minutes.
func AddMinutes(s *models.BusinessHoursSchedule, from time.Time, minutes int) (time.Time, error) {
	return AddDuration(s, from, time.Duration(minutes)*time.Minute)
}

// AddDuration advances from by d of open time. Closed periods are skipped, so
// a start outside operating hours begins accruing at the next opening.
func AddDuration(s *models.BusinessHoursSchedule, from time.Time, d time.Duration) (time.Time, error) {
	if AlwaysOpen(s) {
		return from.Add(d), nil
	}

	c, err := newCursor(s, from)
	if err != nil {
		return time.Time{}, err
	}
	if d <= 0 {
		return from, nil
	}

	var deadline time.Time
	remaining := d
	c.each(maxScanDays, func(w window) bool {
		if !w.end.After(from) {
			return true
		}
		cur := maxTime(w.start, from)
		avail := w.end.Sub(cur)
		if remaining <= avail {
			deadline = cur.Add(remaining)
			return false
		}
		remaining -= avail
		return true
	})
	if deadline.IsZero() {
		return time.Time{}, ErrUnschedulable
	}
	return deadline, nil
}

// Validate checks that a schedule is well formed and, unless it is 24/7,
// has at least one open window.
func Validate(s *models.BusinessHoursSchedule) error {
	if s == nil {
		return nil
	}
	if _, err := loadLocation(s.TimezoneName()); err != nil {
		return err
	}

	seen := make(map[int]bool, len(s.Days))
	for _, d := range s.Days {
		if d.Day < 0 || d.Day > 6 {
			return fmt.Errorf("%w: day %d out of range 0-6", ErrInvalidSchedule, d.Day)
		}
		if seen[d.Day] {
			return fmt.Errorf("%w: day %d configured more than once", ErrInvalidSchedule, d.Day)
		}
		seen[d.Day] = true

		if d.Timezone != "" {
			if _, err := loadLocation(d.Timezone); err != nil {
				return err
			}
		}
		if !d.Enabled {
			continue
		}
		if _, _, err := dayMinutes(d); err != nil {
			return err
		}
	}

	if s.Is24x7 {
		return nil
	}
	if _, err := newCursor(s, time.Unix(0, 0)); err != nil {
		return err
	}
	return nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
