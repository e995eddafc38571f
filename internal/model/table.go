package model

import "time"

// Section groups tables by floor area.
type Section string

const (
	SectionMain    Section = "main"
	SectionTerrace Section = "terrace"
	SectionBar     Section = "bar"
	SectionPrivate Section = "private"
	SectionWindow  Section = "window"
)

// ValidSection reports whether s is a known section.
func ValidSection(s Section) bool {
	switch s {
	case SectionMain, SectionTerrace, SectionBar, SectionPrivate, SectionWindow:
		return true
	}
	return false
}

// Table is a bookable physical resource.
type Table struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	Capacity     int       `json:"capacity"`
	Section      Section   `json:"section"`
	IsActive     bool      `json:"is_active"`     // physically exists
	IsReservable bool      `json:"is_reservable"` // bookable right now
	SortOrder    int       `json:"sort_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Bookable reports whether the table may be offered to a new booking.
func (t *Table) Bookable() bool {
	return t.IsActive && t.IsReservable
}
