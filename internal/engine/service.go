// Package engine exposes the availability and table-assignment operations.
//
// Every operation reads one venue settings snapshot and one clock value up front
// and passes them down explicitly. Booking writes go through a guarded commit:
// per-table locks plus a store transaction that re-validates overlap and capacity
// against freshly read bookings before inserting.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tablebook/internal/booking"
	"tablebook/internal/calendar"
	"tablebook/internal/database"
	"tablebook/internal/model"
)

// Store is the durable booking and table store.
type Store interface {
	ListTables(ctx context.Context) ([]model.Table, error)
	GetTable(ctx context.Context, id string) (*model.Table, error)
	CreateTable(ctx context.Context, t *model.Table) error
	DeactivateTable(ctx context.Context, id string) error

	BookingsBetween(ctx context.Context, start, end time.Time) ([]model.Booking, error)
	BookingsOnDate(ctx context.Context, date time.Time) ([]model.Booking, error)
	BookingsInRange(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	FutureBookingsOnTable(ctx context.Context, tableID string, from time.Time) ([]model.Booking, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)

	CommitBooking(ctx context.Context, b *model.Booking, validate database.ValidateFunc) error
	MoveBooking(ctx context.Context, b *model.Booking, validate database.ValidateFunc) error
	UpdateBookingStatus(ctx context.Context, id string, version int64, status model.BookingStatus) error
}

// Cache is the availability snapshot cache.
type Cache interface {
	Rebuild(ctx context.Context, settings *model.VenueSettings, date time.Time) ([]model.TableSnapshot, error)
	Cached(ctx context.Context, settings *model.VenueSettings, date time.Time) ([]model.TableSnapshot, error)
	RebuildCached(ctx context.Context, settings *model.VenueSettings, from time.Time) (int, error)
}

// SettingsSource yields the current venue settings snapshot.
type SettingsSource interface {
	Current() *model.VenueSettings
}

// Publisher receives domain events.
type Publisher interface {
	PublishJSON(eventType, key string, payload any) error
}

// Service implements the availability, booking and table catalog operations.
type Service struct {
	store     Store
	cache     Cache
	settings  SettingsSource
	publisher Publisher
	fsm       *booking.FSM
	locks     *tableLocks
	now       func() time.Time
	newID     func() string
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithIDGenerator replaces the booking id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a Service over store and cache, reading settings per operation.
func NewService(store Store, cache Cache, settings SettingsSource, logger *zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cache:    cache,
		settings: settings,
		fsm:      booking.NewFSM(),
		locks:    newTableLocks(),
		now:      time.Now,
		newID:    newBookingID,
		tracer:   otel.Tracer("tablebook/engine"),
		logger:   logger.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) snapshot() (*model.VenueSettings, error) {
	settings := s.settings.Current()
	if settings == nil {
		return nil, domainErr(ErrNotFound, "venue settings are not loaded")
	}
	return settings, nil
}

func (s *Service) parseDate(settings *model.VenueSettings, date string) (time.Time, error) {
	day, err := calendar.ParseDate(settings, date)
	if err != nil {
		return time.Time{}, domainErr(ErrInvalidRequest, "%s", err.Error())
	}
	return day, nil
}

// localize moves store times into the venue zone and derives Date from Start.
func localize(settings *model.VenueSettings, b *model.Booking) {
	loc := settings.Location
	if loc == nil {
		loc = time.UTC
	}
	b.Start = b.Start.In(loc)
	b.End = b.End.In(loc)
	b.Date = calendar.LocalDay(settings, b.Start)
}

// storeErr maps store sentinels to domain errors and wraps everything else.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case IsDomain(err):
		return err
	case errors.Is(err, database.ErrNotFound):
		return domainErr(ErrNotFound, "%s: not found", op)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// rebuildDates refreshes the cache for each distinct date. The cache is
// disposable, so failures are logged rather than returned; the work runs even if
// the caller's context was cancelled after its commit.
func (s *Service) rebuildDates(ctx context.Context, settings *model.VenueSettings, dates ...time.Time) {
	ctx = context.WithoutCancel(ctx)
	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		day := calendar.LocalDay(settings, d)
		key := day.Format(calendar.DateLayout)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if _, err := s.cache.Rebuild(ctx, settings, day); err != nil {
			s.logger.Error().Err(err).Str("date", key).Msg("availability rebuild failed")
		}
	}
}

// rebuildBookings refreshes the calendar day of each booking and the operating
// date it is drawn under, which differ for the early hours of an overnight service.
func (s *Service) rebuildBookings(ctx context.Context, settings *model.VenueSettings, bookings ...*model.Booking) {
	dates := make([]time.Time, 0, 2*len(bookings))
	for _, b := range bookings {
		dates = append(dates, b.Date)
		day, err := serviceDay(settings, b)
		if err != nil {
			s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("cannot resolve service day")
			continue
		}
		dates = append(dates, day)
	}
	s.rebuildDates(ctx, settings, dates...)
}

// rebuildCatalog refreshes every cached date from today on after a table change.
func (s *Service) rebuildCatalog(ctx context.Context, settings *model.VenueSettings) {
	n, err := s.cache.RebuildCached(context.WithoutCancel(ctx), settings, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("availability refresh failed")
	}
	s.logger.Debug().Int("dates", n).Msg("availability refreshed after catalog change")
}

func (s *Service) publish(eventType, key string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(eventType, key, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil && !IsDomain(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
