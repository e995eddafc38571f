package model

import "time"

// DaySchedule is the weekly opening entry for one weekday.
type DaySchedule struct {
	Open   string // "18:00"
	Close  string // "23:45"; earlier than Open means past midnight
	Closed bool
}

// ClosedDate closes the venue for a whole date.
type ClosedDate struct {
	Date   string // "2026-12-31"
	Reason string
}

// SpecialEvent pins custom hours or capacity to a single date.
type SpecialEvent struct {
	Date           string
	Name           string
	Open           string // optional
	Close          string // optional
	MaxCapacity    int    // 0 keeps the venue value
	ReservedTables []string
}

// HasCustomHours reports whether the event overrides opening hours.
func (e *SpecialEvent) HasCustomHours() bool {
	return e.Open != "" && e.Close != ""
}

// CalendarRules describes when the venue is open.
type CalendarRules struct {
	Weekly        map[time.Weekday]DaySchedule
	ClosedDates   []ClosedDate
	SpecialEvents []SpecialEvent
}

// BookingRules constrains what can be booked.
type BookingRules struct {
	SlotMinutes              int
	MinAdvanceMinutes        int
	MaxAdvanceDays           int
	DefaultDurationMinutes   int
	MaxDurationMinutes       int
	BufferMinutes            int // declared, not applied to overlap checks
	OnlineMaxPartySize       int
	CapacityThresholdPercent int
	MinPartySize             int
	MaxPartySize             int
}

// VenueSettings is an immutable snapshot of venue configuration.
type VenueSettings struct {
	Name        string
	Location    *time.Location
	MaxCapacity int
	Calendar    CalendarRules
	Rules       BookingRules
	Tables      []Table
}

// MinDurationMinutes is the shortest booking accepted.
const MinDurationMinutes = 15
