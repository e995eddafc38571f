// Package calendar resolves venue opening hours for a date.
//
// Precedence is fixed: an explicit closed date wins over everything, a special
// event with custom hours wins over the weekly schedule.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tablebook/internal/model"
)

// DateLayout is the canonical date format used in keys and configuration.
const DateLayout = "2006-01-02"

// Decision is the answer to "is the venue open for this window".
type Decision struct {
	Open   bool
	Reason string
}

// DayPlan is the effective operating window of a date.
type DayPlan struct {
	Date        time.Time
	Closed      bool
	Reason      string
	OpenAt      time.Time
	CloseAt     time.Time
	MaxCapacity int
	Event       *model.SpecialEvent
}

// Window formats the operating window for messages.
func (p DayPlan) Window() string {
	return fmt.Sprintf("%s-%s", p.OpenAt.Format("15:04"), p.CloseAt.Format("15:04"))
}

// Resolve computes the effective plan of date under settings.
func Resolve(settings *model.VenueSettings, date time.Time) (DayPlan, error) {
	day := LocalDay(settings, date)
	key := day.Format(DateLayout)
	plan := DayPlan{Date: day, MaxCapacity: settings.MaxCapacity}

	for _, cd := range settings.Calendar.ClosedDates {
		if cd.Date == key {
			plan.Closed = true
			plan.Reason = closedDateReason(key, cd.Reason)
			return plan, nil
		}
	}

	openStr, closeStr := "", ""
	if ev := findEvent(settings, key); ev != nil {
		plan.Event = ev
		if ev.MaxCapacity > 0 {
			plan.MaxCapacity = ev.MaxCapacity
		}
		if ev.HasCustomHours() {
			openStr, closeStr = ev.Open, ev.Close
		}
	}

	if openStr == "" {
		sched, ok := settings.Calendar.Weekly[day.Weekday()]
		if !ok || sched.Closed {
			plan.Closed = true
			plan.Reason = fmt.Sprintf("venue is closed on %ss", day.Weekday())
			return plan, nil
		}
		openStr, closeStr = sched.Open, sched.Close
	}

	openAt, err := ParseClock(day, openStr)
	if err != nil {
		return plan, fmt.Errorf("parse open time for %s: %w", key, err)
	}
	closeAt, err := ParseClock(day, closeStr)
	if err != nil {
		return plan, fmt.Errorf("parse close time for %s: %w", key, err)
	}
	// Overnight operation: close boundary falls on the next calendar day.
	if closeAt.Before(openAt) {
		closeAt = ParseClockOn(day.AddDate(0, 0, 1), closeAt)
	}

	plan.OpenAt = openAt
	plan.CloseAt = closeAt
	return plan, nil
}

// IsOpenDuring reports whether [start, end) lies inside the operating window of date.
func IsOpenDuring(settings *model.VenueSettings, date, start, end time.Time) (Decision, error) {
	plan, err := Resolve(settings, date)
	if err != nil {
		return Decision{}, err
	}
	if plan.Closed {
		return Decision{Open: false, Reason: plan.Reason}, nil
	}
	if start.Before(plan.OpenAt) || end.After(plan.CloseAt) {
		return Decision{
			Open:   false,
			Reason: fmt.Sprintf("venue is open %s on %s", plan.Window(), plan.Date.Format(DateLayout)),
		}, nil
	}
	return Decision{Open: true}, nil
}

// LocalDay returns midnight of date's calendar day in the venue time zone.
func LocalDay(settings *model.VenueSettings, date time.Time) time.Time {
	loc := settings.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}

// ParseDate parses "YYYY-MM-DD" as a venue-local date.
func ParseDate(settings *model.VenueSettings, s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return LocalDay(settings, d), nil
}

// ParseClock places an "HH:MM" time of day on date.
func ParseClock(date time.Time, clock string) (time.Time, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid time format: %s", clock)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("invalid hour in %s", clock)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid minute in %s", clock)
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

// ParseClockOn moves the time of day of t onto date.
func ParseClockOn(date, t time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
}

func findEvent(settings *model.VenueSettings, key string) *model.SpecialEvent {
	for i := range settings.Calendar.SpecialEvents {
		if settings.Calendar.SpecialEvents[i].Date == key {
			return &settings.Calendar.SpecialEvents[i]
		}
	}
	return nil
}

func closedDateReason(key, reason string) string {
	if reason == "" {
		return fmt.Sprintf("venue is closed on %s", key)
	}
	return fmt.Sprintf("venue is closed on %s: %s", key, reason)
}
