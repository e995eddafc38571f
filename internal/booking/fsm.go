// Package booking provides the reservation status state machine.
package booking

import (
	"fmt"

	"tablebook/internal/model"
)

// FSM manages status transitions of a booking.
type FSM struct {
	transitions map[model.BookingStatus][]model.BookingStatus
}

// NewFSM creates a new FSM with the lifecycle transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[model.BookingStatus][]model.BookingStatus{
			model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled, model.StatusNoShow},
			model.StatusConfirmed: {model.StatusSeated, model.StatusCancelled, model.StatusNoShow},
			model.StatusSeated:    {model.StatusCompleted},
			model.StatusCompleted: {},
			model.StatusCancelled: {},
			model.StatusNoShow:    {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to model.BookingStatus) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Validate returns an error describing a forbidden transition.
func (f *FSM) Validate(from, to model.BookingStatus) error {
	if _, ok := f.transitions[to]; !ok {
		return fmt.Errorf("unknown status %q", to)
	}
	if !f.CanTransition(from, to) {
		return fmt.Errorf("cannot move booking from %s to %s", from, to)
	}
	return nil
}

// IsTerminal reports whether no transition leaves s.
func (f *FSM) IsTerminal(s model.BookingStatus) bool {
	return len(f.transitions[s]) == 0
}

// Known reports whether s is a lifecycle status.
func (f *FSM) Known(s model.BookingStatus) bool {
	_, ok := f.transitions[s]
	return ok
}

// ReleasesTables reports whether moving into to frees the booking's tables,
// which requires the availability of its date to be rebuilt.
func ReleasesTables(to model.BookingStatus) bool {
	return to == model.StatusCancelled || to == model.StatusNoShow
}

// InitialStatus returns the status a new booking starts in.
// Staff-originated bookings may skip pending.
func InitialStatus(isStaff, confirm bool) model.BookingStatus {
	if isStaff && confirm {
		return model.StatusConfirmed
	}
	return model.StatusPending
}
