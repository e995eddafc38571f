package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"tablebook/internal/booking"
	"tablebook/internal/calendar"
	"tablebook/internal/database"
	"tablebook/internal/events"
	"tablebook/internal/metrics"
	"tablebook/internal/model"
)

// maxCommitRetries is how many times a commit that lost a table race is re-evaluated.
const maxCommitRetries = 1

// BookRequest is a seating request with the guest details needed to commit it.
type BookRequest struct {
	Request
	TableIDs        []string // optional, pins the assignment
	Customer        model.Customer
	Source          model.BookingSource
	SpecialRequests string
	Notes           string
	CreatedBy       string
	Confirm         bool // staff only: start in confirmed
}

// MoveRequest changes the time, party size or tables of a booking. Empty fields
// keep the current value.
type MoveRequest struct {
	Date            string
	Time            string
	PartySize       int
	DurationMinutes int
	TableIDs        []string
	Notes           *string
	IsStaff         bool
}

func newBookingID() string {
	return uuid.NewString()
}

func (r *BookRequest) normalize() error {
	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	if r.Customer.Name == "" {
		return domainErr(ErrInvalidRequest, "customer name is required")
	}
	if r.Source == "" {
		r.Source = model.SourceOnline
		if r.IsStaff {
			r.Source = model.SourceManual
		}
	}
	if !model.ValidSource(r.Source) {
		return domainErr(ErrInvalidRequest, "unknown booking source %q", r.Source)
	}
	return nil
}

// AssignAndBook picks tables for the request and commits the booking atomically.
func (s *Service) AssignAndBook(ctx context.Context, req BookRequest) (b *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "engine.AssignAndBook")
	span.SetAttributes(
		attribute.String("booking.date", req.Date),
		attribute.String("booking.time", req.Time),
		attribute.Int("booking.party_size", req.PartySize),
		attribute.Bool("booking.staff", req.IsStaff),
	)
	defer func() { endSpan(span, err) }()

	settings, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if err := req.normalize(); err != nil {
		metrics.IncBookingRejected(KindName(err))
		return nil, err
	}

	b, d, err := s.commitWithRetry(ctx, settings, s.now(), req)
	if err != nil {
		metrics.IncBookingRejected(KindName(err))
		if !IsDomain(err) {
			s.logger.Error().Err(err).Str("date", req.Date).Str("time", req.Time).Msg("booking commit failed")
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))

	metrics.IncBookingCreated(string(b.Status), string(d.strategy))
	s.logger.Info().
		Str("booking_id", b.ID).
		Strs("tables", b.TableIDs).
		Int("party_size", b.PartySize).
		Time("start", b.Start).
		Str("strategy", string(d.strategy)).
		Msg("booking created")

	s.rebuildBookings(ctx, settings, b)
	s.publish(events.TypeBookingCreated, b.ID, b)
	return b, nil
}

func (s *Service) commitWithRetry(ctx context.Context, settings *model.VenueSettings, now time.Time, req BookRequest) (*model.Booking, *decision, error) {
	var err error
	for attempt := 0; attempt <= maxCommitRetries; attempt++ {
		if attempt > 0 {
			metrics.IncCommitRetry()
			s.logger.Debug().Err(err).Msg("table taken during commit, re-evaluating")
		}

		var d *decision
		d, err = s.evaluate(ctx, settings, now, req.Request, req.TableIDs, "")
		if err != nil {
			return nil, nil, err
		}

		b := &model.Booking{
			ID:              s.newID(),
			Customer:        req.Customer,
			PartySize:       d.partySize,
			Date:            calendar.LocalDay(settings, d.start),
			Start:           d.start,
			End:             d.end,
			DurationMinutes: d.duration,
			TableIDs:        d.tableIDs(),
			Status:          booking.InitialStatus(req.IsStaff, req.Confirm),
			Source:          req.Source,
			SpecialRequests: req.SpecialRequests,
			Notes:           req.Notes,
			CreatedBy:       req.CreatedBy,
		}

		err = s.withTables(ctx, b.TableIDs, func() error {
			return s.store.CommitBooking(ctx, b, d.validator())
		})
		if err == nil {
			return b, d, nil
		}
		if !isConflict(err) {
			return nil, nil, storeErr("commit booking", err)
		}
	}
	return nil, nil, conflictErr(err)
}

// withTables runs fn while holding the in-process locks of ids.
func (s *Service) withTables(ctx context.Context, ids []string, fn func() error) error {
	release, err := s.locks.acquire(ctx, ids)
	if err != nil {
		return err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

func isConflict(err error) bool {
	return errors.Is(err, ErrTableConflict) ||
		errors.Is(err, database.ErrConflict) ||
		errors.Is(err, database.ErrConcurrentModification)
}

func conflictErr(err error) error {
	if IsDomain(err) {
		return err
	}
	return domainErr(ErrTableConflict, "the tables were taken by a concurrent booking, please try again")
}

// GetBooking returns a booking by id.
func (s *Service) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	settings, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, storeErr("booking "+id, err)
	}
	localize(settings, b)
	return b, nil
}

// ListBookings returns every booking of date in start order.
func (s *Service) ListBookings(ctx context.Context, date string) ([]model.Booking, error) {
	settings, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	day, err := s.parseDate(settings, date)
	if err != nil {
		return nil, err
	}
	bookings, err := s.store.BookingsOnDate(ctx, day)
	if err != nil {
		return nil, storeErr("list bookings", err)
	}
	out := make([]model.Booking, len(bookings))
	for i := range bookings {
		localize(settings, &bookings[i])
		out[i] = bookings[i]
	}
	return out, nil
}

// ChangeBookingStatus moves a booking through its lifecycle. Moving into a status
// that frees tables rebuilds the availability of the booking date.
func (s *Service) ChangeBookingStatus(ctx context.Context, id string, status model.BookingStatus) (b *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "engine.ChangeBookingStatus")
	span.SetAttributes(attribute.String("booking.id", id), attribute.String("booking.status", string(status)))
	defer func() { endSpan(span, err) }()

	settings, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if !s.fsm.Known(status) {
		return nil, domainErr(ErrInvalidRequest, "unknown status %q", status)
	}

	for attempt := 0; ; attempt++ {
		b, err = s.store.GetBooking(ctx, id)
		if err != nil {
			return nil, storeErr("booking "+id, err)
		}
		localize(settings, b)

		if err := s.fsm.Validate(b.Status, status); err != nil {
			return nil, domainErr(ErrInvalidStatusTransition, "%s", err.Error())
		}

		err = s.store.UpdateBookingStatus(ctx, id, b.Version, status)
		if err == nil {
			break
		}
		if !errors.Is(err, database.ErrConcurrentModification) || attempt >= maxCommitRetries {
			return nil, storeErr("update status of booking "+id, err)
		}
	}

	previous := b.Status
	b.Status = status
	b.Version++
	b.UpdatedAt = s.now()

	metrics.IncStatusChanged(string(status))
	s.logger.Info().
		Str("booking_id", id).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("booking status changed")

	if booking.ReleasesTables(status) {
		s.rebuildBookings(ctx, settings, b)
	}
	s.publish(events.TypeBookingStatusChanged, id, map[string]any{
		"booking": b,
		"from":    previous,
		"to":      status,
	})
	return b, nil
}

// MoveBooking re-seats a held booking through the same guarded commit as a new
// booking, with the booking itself left out of the overlap check. Without pinned
// tables the current tables are kept when they still fit.
func (s *Service) MoveBooking(ctx context.Context, id string, req MoveRequest) (b *model.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "engine.MoveBooking")
	span.SetAttributes(attribute.String("booking.id", id))
	defer func() { endSpan(span, err) }()

	settings, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	now := s.now()

	for attempt := 0; ; attempt++ {
		current, err := s.store.GetBooking(ctx, id)
		if err != nil {
			return nil, storeErr("booking "+id, err)
		}
		localize(settings, current)
		if !current.Status.HoldsTables() {
			return nil, domainErr(ErrInvalidStatusTransition, "booking %s is %s and cannot be moved", id, current.Status)
		}

		seating, err := s.moveRequest(settings, current, req)
		if err != nil {
			return nil, err
		}
		d, err := s.reseat(ctx, settings, now, seating, current, req.TableIDs)
		if err != nil {
			return nil, err
		}

		moved := *current
		moved.PartySize = d.partySize
		moved.Start, moved.End = d.start, d.end
		moved.Date = calendar.LocalDay(settings, d.start)
		moved.DurationMinutes = d.duration
		moved.TableIDs = d.tableIDs()
		if req.Notes != nil {
			moved.Notes = *req.Notes
		}

		err = s.withTables(ctx, moved.TableIDs, func() error {
			return s.store.MoveBooking(ctx, &moved, d.validator())
		})
		if err == nil {
			s.logger.Info().
				Str("booking_id", id).
				Time("from", current.Start).
				Time("to", moved.Start).
				Strs("tables", moved.TableIDs).
				Msg("booking moved")
			s.rebuildBookings(ctx, settings, current, &moved)
			s.publish(events.TypeBookingMoved, id, map[string]any{
				"booking":         moved,
				"previous_start":  current.Start,
				"previous_tables": current.TableIDs,
			})
			return &moved, nil
		}
		if !isConflict(err) {
			return nil, storeErr("move booking "+id, err)
		}
		if attempt >= maxCommitRetries {
			return nil, conflictErr(err)
		}
		metrics.IncCommitRetry()
	}
}

// reseat evaluates the move, trying the booking's own tables first.
func (s *Service) reseat(ctx context.Context, settings *model.VenueSettings, now time.Time, req Request, current *model.Booking, pinned []string) (*decision, error) {
	if len(pinned) > 0 {
		return s.evaluate(ctx, settings, now, req, pinned, current.ID)
	}
	d, err := s.evaluate(ctx, settings, now, req, current.TableIDs, current.ID)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrTableConflict) && !errors.Is(err, ErrNoTablesAvailable) && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.evaluate(ctx, settings, now, req, nil, current.ID)
}

// moveRequest fills the blanks of req from the current booking.
func (s *Service) moveRequest(settings *model.VenueSettings, current *model.Booking, req MoveRequest) (Request, error) {
	out := Request{
		Date:            req.Date,
		Time:            req.Time,
		PartySize:       req.PartySize,
		DurationMinutes: req.DurationMinutes,
		IsStaff:         req.IsStaff,
	}
	if out.Date == "" {
		day, err := serviceDay(settings, current)
		if err != nil {
			return out, err
		}
		out.Date = day.Format(calendar.DateLayout)
	}
	if out.Time == "" {
		out.Time = current.Start.Format("15:04")
	}
	if out.PartySize == 0 {
		out.PartySize = current.PartySize
	}
	if out.DurationMinutes == 0 {
		out.DurationMinutes = current.DurationMinutes
	}
	return out, nil
}

// serviceDay returns the operating date a booking belongs to. A booking in the
// early hours belongs to the previous date when that date runs past midnight.
func serviceDay(settings *model.VenueSettings, b *model.Booking) (time.Time, error) {
	plan, err := calendar.Resolve(settings, b.Date)
	if err != nil {
		return time.Time{}, err
	}
	if plan.Closed || b.Start.Before(plan.OpenAt) {
		prev, err := calendar.Resolve(settings, b.Date.AddDate(0, 0, -1))
		if err != nil {
			return time.Time{}, err
		}
		if !prev.Closed && b.Start.Before(prev.CloseAt) {
			return prev.Date, nil
		}
	}
	return plan.Date, nil
}
