// Package availability builds and stores per-table availability snapshots.
//
// Snapshots are a disposable projection of tables, calendar rules and bookings.
// They are only written by Rebuild and are never consulted when deciding
// whether a booking may be committed.
package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tablebook/internal/calendar"
	"tablebook/internal/metrics"
	"tablebook/internal/model"
	"tablebook/internal/slots"
)

// BookingReader returns table-holding bookings intersecting a window.
type BookingReader interface {
	BookingsBetween(ctx context.Context, start, end time.Time) ([]model.Booking, error)
}

// TableReader lists the table catalog in catalog order.
type TableReader interface {
	ListTables(ctx context.Context) ([]model.Table, error)
}

// Builder recomputes snapshots for a date.
type Builder struct {
	bookings BookingReader
	tables   TableReader
	store    Store
	logger   zerolog.Logger
}

// NewBuilder creates a snapshot builder.
func NewBuilder(bookings BookingReader, tables TableReader, store Store, logger *zerolog.Logger) *Builder {
	return &Builder{
		bookings: bookings,
		tables:   tables,
		store:    store,
		logger:   logger.With().Str("component", "availability").Logger(),
	}
}

// Build computes the snapshots of date without storing them.
func (b *Builder) Build(ctx context.Context, settings *model.VenueSettings, date time.Time) ([]model.TableSnapshot, error) {
	plan, err := calendar.Resolve(settings, date)
	if err != nil {
		return nil, err
	}

	tables, err := b.tables.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	var bookings []model.Booking
	if !plan.Closed {
		bookings, err = b.bookings.BookingsBetween(ctx, plan.OpenAt, plan.CloseAt)
		if err != nil {
			return nil, fmt.Errorf("load bookings: %w", err)
		}
	}

	return Project(settings, plan, tables, bookings), nil
}

// Rebuild recomputes the snapshots of date and replaces the cached copy.
// Nothing is written when ctx is done before the store call.
func (b *Builder) Rebuild(ctx context.Context, settings *model.VenueSettings, date time.Time) ([]model.TableSnapshot, error) {
	started := time.Now()
	key := calendar.LocalDay(settings, date).Format(calendar.DateLayout)

	snaps, err := b.Build(ctx, settings, date)
	if err != nil {
		metrics.IncCacheRebuild("error")
		return nil, fmt.Errorf("rebuild %s: %w", key, err)
	}

	data, err := Encode(snaps)
	if err != nil {
		metrics.IncCacheRebuild("error")
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.store.Put(ctx, key, data); err != nil {
		metrics.IncCacheRebuild("error")
		return nil, fmt.Errorf("store %s: %w", key, err)
	}

	metrics.IncCacheRebuild("ok")
	metrics.ObserveRebuildDuration(time.Since(started))
	b.logger.Debug().Str("date", key).Int("tables", len(snaps)).Msg("availability rebuilt")
	return snaps, nil
}

// Cached returns the stored snapshots of date, rebuilding them on a miss.
func (b *Builder) Cached(ctx context.Context, settings *model.VenueSettings, date time.Time) ([]model.TableSnapshot, error) {
	key := calendar.LocalDay(settings, date).Format(calendar.DateLayout)

	data, err := b.store.Get(ctx, key)
	switch {
	case err == nil:
		snaps, decodeErr := Decode(data)
		if decodeErr == nil {
			return snaps, nil
		}
		b.logger.Warn().Err(decodeErr).Str("date", key).Msg("discarding unreadable snapshot")
	case err != ErrCacheMiss:
		b.logger.Warn().Err(err).Str("date", key).Msg("snapshot read failed; rebuilding")
	}

	return b.Rebuild(ctx, settings, date)
}

// RebuildCached refreshes every stored date on or after from and drops older ones.
// It is used when calendar rules or the table catalog change, since those touch
// dates no booking write would rebuild. It returns the number of dates rebuilt.
func (b *Builder) RebuildCached(ctx context.Context, settings *model.VenueSettings, from time.Time) (int, error) {
	dates, err := b.store.Dates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list cached dates: %w", err)
	}
	first := calendar.LocalDay(settings, from).Format(calendar.DateLayout)

	rebuilt := 0
	var errs []error
	for _, key := range dates {
		if key < first {
			if err := b.store.Delete(ctx, key); err != nil {
				errs = append(errs, fmt.Errorf("drop %s: %w", key, err))
			}
			continue
		}
		day, err := calendar.ParseDate(settings, key)
		if err != nil {
			b.logger.Warn().Str("date", key).Msg("dropping snapshot with unreadable date")
			_ = b.store.Delete(ctx, key)
			continue
		}
		if _, err := b.Rebuild(ctx, settings, day); err != nil {
			errs = append(errs, err)
			continue
		}
		rebuilt++
	}
	return rebuilt, errors.Join(errs...)
}

// Project is the pure snapshot computation.
func Project(settings *model.VenueSettings, plan calendar.DayPlan, tables []model.Table, bookings []model.Booking) []model.TableSnapshot {
	key := plan.Date.Format(calendar.DateLayout)
	out := make([]model.TableSnapshot, 0, len(tables))

	if plan.Closed {
		dayStart := plan.Date
		dayEnd := plan.Date.AddDate(0, 0, 1)
		for _, t := range tables {
			if !t.IsActive {
				continue
			}
			snap := newSnapshot(key, t)
			snap.Blocked = []model.BlockedInterval{blocked(dayStart, dayEnd, model.BlockClosed, "")}
			out = append(out, snap)
		}
		return out
	}

	width := time.Duration(settings.Rules.SlotMinutes) * time.Minute
	grid := slots.Partition(plan.OpenAt, plan.CloseAt, width)
	reserved := eventReserved(plan.Event)

	for _, t := range tables {
		if !t.IsActive {
			continue
		}
		snap := newSnapshot(key, t)

		var spans []span
		switch {
		case reserved[t.ID]:
			spans = []span{{iv: slots.Interval{Start: plan.OpenAt, End: plan.CloseAt}, reason: model.BlockEvent}}
		case !t.IsReservable:
			spans = []span{{iv: slots.Interval{Start: plan.OpenAt, End: plan.CloseAt}, reason: model.BlockMaintenance}}
		default:
			spans = bookingSpans(t.ID, bookings, plan.OpenAt, plan.CloseAt)
		}

		intervals := make([]slots.Interval, 0, len(spans))
		for _, sp := range spans {
			intervals = append(intervals, sp.iv)
			snap.Blocked = append(snap.Blocked, blocked(sp.iv.Start, sp.iv.End, sp.reason, sp.bookingID))
		}
		for _, s := range slots.GetAvailableSlots(slots.MarkBlocked(grid, intervals)) {
			snap.Free = append(snap.Free, model.SlotRange{
				Start: s.StartTime.Format(time.RFC3339),
				End:   s.EndTime.Format(time.RFC3339),
			})
		}
		out = append(out, snap)
	}
	return out
}

type span struct {
	iv        slots.Interval
	reason    model.BlockReason
	bookingID string
}

// bookingSpans clips every booking holding tableID to the operating window,
// ordered by start then booking ID.
func bookingSpans(tableID string, bookings []model.Booking, open, close time.Time) []span {
	var spans []span
	for _, bk := range bookings {
		if !bk.Status.HoldsTables() || !bk.UsesTable(tableID) {
			continue
		}
		loc := open.Location()
		iv, ok := slots.Clip(slots.Interval{Start: bk.Start.In(loc), End: bk.End.In(loc)}, open, close)
		if !ok {
			continue
		}
		spans = append(spans, span{iv: iv, reason: model.BlockBooking, bookingID: bk.ID})
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if !spans[i].iv.Start.Equal(spans[j].iv.Start) {
			return spans[i].iv.Start.Before(spans[j].iv.Start)
		}
		return spans[i].bookingID < spans[j].bookingID
	})
	return spans
}

func newSnapshot(date string, t model.Table) model.TableSnapshot {
	return model.TableSnapshot{
		Date:     date,
		TableID:  t.ID,
		Label:    t.Label,
		Capacity: t.Capacity,
		Section:  t.Section,
		Free:     []model.SlotRange{},
		Blocked:  []model.BlockedInterval{},
	}
}

func blocked(start, end time.Time, reason model.BlockReason, bookingID string) model.BlockedInterval {
	return model.BlockedInterval{
		Start:     start.Format(time.RFC3339),
		End:       end.Format(time.RFC3339),
		Reason:    reason,
		BookingID: bookingID,
	}
}

func eventReserved(ev *model.SpecialEvent) map[string]bool {
	out := make(map[string]bool)
	if ev == nil {
		return out
	}
	for _, id := range ev.ReservedTables {
		out[id] = true
	}
	return out
}

// Encode serializes snapshots deterministically.
func Encode(snaps []model.TableSnapshot) ([]byte, error) {
	return json.Marshal(snaps)
}

// Decode parses snapshots written by Encode.
func Decode(data []byte) ([]model.TableSnapshot, error) {
	var snaps []model.TableSnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}
