package engine

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain failure wraps exactly one of them.
var (
	ErrVenueClosed             = errors.New("venue closed")
	ErrNoTablesAvailable       = errors.New("no tables available")
	ErrPartySizeRejected       = errors.New("party size rejected")
	ErrCapacityExceeded        = errors.New("capacity exceeded")
	ErrTableConflict           = errors.New("table conflict")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrNotFound                = errors.New("not found")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrOutsideBookingWindow    = errors.New("outside booking window")
)

// DomainError is an expected, recoverable failure with a human-readable reason.
// Storage faults are never DomainErrors.
type DomainError struct {
	Kind   error
	Reason string
}

func (e *DomainError) Error() string {
	return e.Reason
}

func (e *DomainError) Unwrap() error {
	return e.Kind
}

func domainErr(kind error, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// IsDomain reports whether err is an expected domain failure.
func IsDomain(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

var kindNames = []struct {
	kind error
	name string
}{
	{ErrVenueClosed, "venue_closed"},
	{ErrNoTablesAvailable, "no_tables_available"},
	{ErrPartySizeRejected, "party_size_rejected"},
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrTableConflict, "table_conflict"},
	{ErrInvalidStatusTransition, "invalid_status_transition"},
	{ErrNotFound, "not_found"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrOutsideBookingWindow, "outside_booking_window"},
}

// KindName returns a stable snake_case name of err's kind, "internal" for faults.
func KindName(err error) string {
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "internal"
}
