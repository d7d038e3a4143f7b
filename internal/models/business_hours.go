package models

import "time"

// DaySchedule is the opening window for a single weekday.
type DaySchedule struct {
	Day       int    `json:"day"` // 0=Sunday, 6=Saturday
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"` // HH:MM
	EndTime   string `json:"end_time"`   // HH:MM, at or before StartTime ends on the next day
	Timezone  string `json:"timezone,omitempty"`
}

// Minutes parses StartTime and EndTime into minutes since midnight.
func (d DaySchedule) Minutes() (start, end int, err error) {
	if start, err = clockMinutes(d.StartTime); err != nil {
		return 0, 0, err
	}
	if end, err = clockMinutes(d.EndTime); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// CrossesMidnight returns true if the window ends on the following day.
// Equal start and end times describe a full 24 hour window.
func (d DaySchedule) CrossesMidnight() bool {
	start, end, err := d.Minutes()
	return err == nil && end <= start
}

func clockMinutes(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// BusinessHoursSchedule is a weekly recurring set of opening windows.
// When Is24x7 is set the day entries are ignored.
type BusinessHoursSchedule struct {
	Is24x7   bool          `json:"is_24x7"`
	Timezone string        `json:"timezone,omitempty"`
	Days     []DaySchedule `json:"days"`
}

// TimezoneName returns the IANA zone the schedule is evaluated in. The
// schedule-level zone wins, then the first day that names one, then UTC.
func (s *BusinessHoursSchedule) TimezoneName() string {
	if s.Timezone != "" {
		return s.Timezone
	}
	for _, d := range s.Days {
		if d.Timezone != "" {
			return d.Timezone
		}
	}
	return "UTC"
}
