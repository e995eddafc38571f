// Package overlap answers which bookings hold which tables during a window.
package overlap

import (
	"time"

	"tablebook/internal/model"
)

// Overlaps reports whether [start1, end1) and [start2, end2) intersect.
// Touching endpoints are not an overlap.
func Overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}

// Index is an in-memory view of bookings fetched for a window.
type Index struct {
	bookings []model.Booking
}

// NewIndex builds an index over bookings. Bookings that do not hold tables are ignored.
func NewIndex(bookings []model.Booking) *Index {
	held := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status.HoldsTables() {
			held = append(held, b)
		}
	}
	return &Index{bookings: held}
}

// Without returns a copy of the index that skips the booking with id.
func (ix *Index) Without(id string) *Index {
	if id == "" {
		return ix
	}
	rest := make([]model.Booking, 0, len(ix.bookings))
	for _, b := range ix.bookings {
		if b.ID != id {
			rest = append(rest, b)
		}
	}
	return &Index{bookings: rest}
}

// Overlapping returns bookings intersecting [start, end).
func (ix *Index) Overlapping(start, end time.Time) []model.Booking {
	var out []model.Booking
	for _, b := range ix.bookings {
		if Overlaps(b.Start, b.End, start, end) {
			out = append(out, b)
		}
	}
	return out
}

// CommittedTables returns the union of tables held by bookings intersecting [start, end).
func (ix *Index) CommittedTables(start, end time.Time) map[string]struct{} {
	committed := make(map[string]struct{})
	for _, b := range ix.Overlapping(start, end) {
		for _, id := range b.TableIDs {
			committed[id] = struct{}{}
		}
	}
	return committed
}

// PartySum returns the number of guests of bookings intersecting [start, end).
func (ix *Index) PartySum(start, end time.Time) int {
	sum := 0
	for _, b := range ix.Overlapping(start, end) {
		sum += b.PartySize
	}
	return sum
}

// Holder returns the booking holding tableID during [start, end), if any.
func (ix *Index) Holder(tableID string, start, end time.Time) (model.Booking, bool) {
	for _, b := range ix.Overlapping(start, end) {
		if b.UsesTable(tableID) {
			return b, true
		}
	}
	return model.Booking{}, false
}

// Candidates filters tables down to bookable ones not in committed, keeping catalog order.
func Candidates(tables []model.Table, committed map[string]struct{}) []model.Table {
	out := make([]model.Table, 0, len(tables))
	for _, t := range tables {
		if !t.Bookable() {
			continue
		}
		if _, taken := committed[t.ID]; taken {
			continue
		}
		out = append(out, t)
	}
	return out
}
