package domain

import (
	"fmt"
	"time"
)

// TimeWindow is an open-ended [Start, End) range of minutes from midnight in
// the business timezone.
type TimeWindow struct {
	Start int
	End   int
}

// Contains reports whether the minute-of-day falls inside the window.
func (w TimeWindow) Contains(minute int) bool {
	return minute >= w.Start && minute < w.End
}

// Label renders the window the way the storefront displays delivery slots,
// e.g. "9am - 10am" or "8pm - 8:30pm".
func (w TimeWindow) Label() string {
	return fmt.Sprintf("%s - %s", formatMinute(w.Start), formatMinute(w.End))
}

func formatMinute(minute int) string {
	hour := (minute / 60) % 24
	min := minute % 60
	suffix := "am"
	display := hour
	switch {
	case hour == 0:
		display = 12
	case hour == 12:
		suffix = "pm"
	case hour > 12:
		display = hour - 12
		suffix = "pm"
	}
	if min == 0 {
		return fmt.Sprintf("%d%s", display, suffix)
	}
	return fmt.Sprintf("%d:%02d%s", display, min, suffix)
}

// DeliverySlot is an externally configured open window recurring on a set of
// weekdays.
type DeliverySlot struct {
	Days   []time.Weekday
	Window TimeWindow
}

// AppliesOn reports whether the slot is scheduled for the weekday.
func (s DeliverySlot) AppliesOn(day time.Weekday) bool {
	for _, d := range s.Days {
		if d == day {
			return true
		}
	}
	return false
}

// CivilDate is a timezone-free calendar date used to key schedule exceptions.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// Next returns the following calendar day.
func (d CivilDate) Next() CivilDate {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return CivilDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Weekday returns the day-of-week for the date.
func (d CivilDate) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// ScheduleException replaces the regular weekday schedule for one exact
// calendar date. An empty Windows list means closed all day. Exceptions never
// merge with the weekday schedule and never recur.
type ScheduleException struct {
	Date    CivilDate
	Windows []TimeWindow
}

// BusinessTime is an instant projected into the store's timezone.
type BusinessTime struct {
	Weekday time.Weekday
	Date    CivilDate
	Minutes int
}
