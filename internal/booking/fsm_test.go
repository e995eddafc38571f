package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tablebook/internal/model"
)

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        model.BookingStatus
		to          model.BookingStatus
		shouldAllow bool
	}{
		{"pending to confirmed", model.StatusPending, model.StatusConfirmed, true},
		{"confirmed to seated", model.StatusConfirmed, model.StatusSeated, true},
		{"seated to completed", model.StatusSeated, model.StatusCompleted, true},
		{"pending to cancelled", model.StatusPending, model.StatusCancelled, true},
		{"confirmed to cancelled", model.StatusConfirmed, model.StatusCancelled, true},
		{"pending to no-show", model.StatusPending, model.StatusNoShow, true},
		{"confirmed to no-show", model.StatusConfirmed, model.StatusNoShow, true},
		// Invalid transitions
		{"pending to seated", model.StatusPending, model.StatusSeated, false},
		{"pending to completed", model.StatusPending, model.StatusCompleted, false},
		{"seated to cancelled", model.StatusSeated, model.StatusCancelled, false},
		{"seated to no-show", model.StatusSeated, model.StatusNoShow, false},
		{"confirmed back to pending", model.StatusConfirmed, model.StatusPending, false},
		{"completed is terminal", model.StatusCompleted, model.StatusSeated, false},
		{"cancelled is terminal", model.StatusCancelled, model.StatusConfirmed, false},
		{"no-show is terminal", model.StatusNoShow, model.StatusPending, false},
		{"unknown source", model.BookingStatus("waitlisted"), model.StatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := fsm.CanTransition(tt.from, tt.to)
			if allowed != tt.shouldAllow {
				t.Errorf("transition %s -> %s: expected allowed=%v, got %v",
					tt.from, tt.to, tt.shouldAllow, allowed)
			}
		})
	}
}

func TestFSMValidate(t *testing.T) {
	fsm := NewFSM()

	assert.NoError(t, fsm.Validate(model.StatusPending, model.StatusConfirmed))
	assert.EqualError(t, fsm.Validate(model.StatusCompleted, model.StatusCancelled),
		"cannot move booking from completed to cancelled")
	assert.EqualError(t, fsm.Validate(model.StatusPending, "archived"), `unknown status "archived"`)
}

func TestFSMTerminal(t *testing.T) {
	fsm := NewFSM()
	assert.True(t, fsm.IsTerminal(model.StatusCompleted))
	assert.True(t, fsm.IsTerminal(model.StatusCancelled))
	assert.True(t, fsm.IsTerminal(model.StatusNoShow))
	assert.False(t, fsm.IsTerminal(model.StatusSeated))
}

func TestReleasesTables(t *testing.T) {
	assert.True(t, ReleasesTables(model.StatusCancelled))
	assert.True(t, ReleasesTables(model.StatusNoShow))
	assert.False(t, ReleasesTables(model.StatusCompleted))
	assert.False(t, ReleasesTables(model.StatusSeated))
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, model.StatusConfirmed, InitialStatus(true, true))
	assert.Equal(t, model.StatusPending, InitialStatus(true, false))
	assert.Equal(t, model.StatusPending, InitialStatus(false, true))
}
