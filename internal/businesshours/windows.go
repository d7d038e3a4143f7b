package businesshours

import (
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
)

type window struct {
	start time.Time
	end   time.Time
}

// dayRule is a parsed, enabled day entry in minutes since midnight.
type dayRule struct {
	start   int
	end     int
	crosses bool
}

// cursor walks calendar days forward from an anchor date in the schedule's zone.
type cursor struct {
	loc   *time.Location
	year  int
	month time.Month
	day   int
	rules map[time.Weekday]dayRule
}

func newCursor(s *models.BusinessHoursSchedule, anchor time.Time) (*cursor, error) {
	loc, err := loadLocation(s.TimezoneName())
	if err != nil {
		return nil, err
	}

	rules := make(map[time.Weekday]dayRule, len(s.Days))
	for _, d := range s.Days {
		if !d.Enabled || d.Day < 0 || d.Day > 6 {
			continue
		}
		start, end, err := dayMinutes(d)
		if err != nil {
			return nil, err
		}
		rules[time.Weekday(d.Day)] = dayRule{start: start, end: end, crosses: d.CrossesMidnight()}
	}
	if len(rules) == 0 {
		return nil, ErrUnschedulable
	}

	y, m, d := anchor.In(loc).Date()
	return &cursor{loc: loc, year: y, month: m, day: d, rules: rules}, nil
}

// dayStart returns local midnight of the anchor date plus offset days.
func (c *cursor) dayStart(offset int) time.Time {
	return time.Date(c.year, c.month, c.day+offset, 0, 0, 0, 0, c.loc)
}

func (c *cursor) at(offset, minutes int) time.Time {
	return time.Date(c.year, c.month, c.day+offset, minutes/60, minutes%60, 0, 0, c.loc)
}

// window returns the window opening on the day at offset. A crossing rule
// closes on the following day.
func (c *cursor) window(offset int) (window, bool) {
	rule, ok := c.rules[c.dayStart(offset).Weekday()]
	if !ok {
		return window{}, false
	}
	closeDay := offset
	if rule.crosses {
		closeDay++
	}
	w := window{start: c.at(offset, rule.start), end: c.at(closeDay, rule.end)}
	// DST gaps can collapse a window.
	return w, w.end.After(w.start)
}

// each visits disjoint open windows in order, starting with the one opened the
// day before the anchor date, until fn returns false or days run out. A window
// overlapping the previous day's tail is clipped to where the tail ends.
func (c *cursor) each(days int, fn func(window) bool) {
	var covered time.Time
	for i := -1; i < days; i++ {
		w, ok := c.window(i)
		if !ok {
			continue
		}
		if w.start.Before(covered) {
			w.start = covered
		}
		if !w.end.After(w.start) {
			continue
		}
		covered = w.end
		if !fn(w) {
			return
		}
	}
}
