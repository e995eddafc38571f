package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusSeated    BookingStatus = "seated"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
	StatusNoShow    BookingStatus = "no_show"
)

// HoldsTables reports whether a booking in this status occupies its tables.
func (s BookingStatus) HoldsTables() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusSeated
}

// ActiveStatuses lists the statuses that occupy tables.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusSeated}

// BookingSource records how a booking entered the system.
type BookingSource string

const (
	SourceOnline     BookingSource = "online"
	SourcePhone      BookingSource = "phone"
	SourceWalkIn     BookingSource = "walk_in"
	SourceManual     BookingSource = "manual"
	SourceThirdParty BookingSource = "third_party"
)

// ValidSource reports whether s is a known booking source.
func ValidSource(s BookingSource) bool {
	switch s {
	case SourceOnline, SourcePhone, SourceWalkIn, SourceManual, SourceThirdParty:
		return true
	}
	return false
}

// Customer identifies the guest a booking is made for.
type Customer struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	AccountID string `json:"account_id,omitempty"`
}

// Booking represents a table reservation.
type Booking struct {
	ID              string        `json:"id"`
	Customer        Customer      `json:"customer"`
	PartySize       int           `json:"party_size"`
	Date            time.Time     `json:"date"` // venue-local midnight of Start
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	DurationMinutes int           `json:"duration_minutes"`
	TableIDs        []string      `json:"table_ids"`
	Status          BookingStatus `json:"status"`
	Source          BookingSource `json:"source"`
	SpecialRequests string        `json:"special_requests,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	CreatedBy       string        `json:"created_by,omitempty"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// OverlapsWith checks if two bookings intersect in time.
// Uses half-open interval [start, end) semantics; touching endpoints do not overlap.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.Start.Before(other.End) && other.Start.Before(b.End)
}

// UsesTable reports whether tableID is assigned to the booking.
func (b *Booking) UsesTable(tableID string) bool {
	for _, id := range b.TableIDs {
		if id == tableID {
			return true
		}
	}
	return false
}

// SharesTable reports whether two bookings have at least one table in common.
func (b *Booking) SharesTable(other *Booking) bool {
	for _, id := range b.TableIDs {
		if other.UsesTable(id) {
			return true
		}
	}
	return false
}

// DayOf returns the local midnight of t.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
