package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablebook/internal/availability"
	"tablebook/internal/database"
	"tablebook/internal/events"
	"tablebook/internal/model"
	"tablebook/internal/solver"
)

// Sunday morning; 2026-10-23 is a Friday and 2026-10-19 a Monday.
var testNow = time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)

const friday = "2026-10-23"

type staticSettings struct {
	settings *model.VenueSettings
}

func (s staticSettings) Current() *model.VenueSettings {
	return s.settings
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) PublishJSON(eventType, _ string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

func table(id string, capacity int) model.Table {
	return model.Table{
		ID:           id,
		Label:        "Table " + id,
		Capacity:     capacity,
		Section:      model.SectionMain,
		IsActive:     true,
		IsReservable: true,
	}
}

func venue(tables ...model.Table) *model.VenueSettings {
	evening := model.DaySchedule{Open: "18:00", Close: "23:45"}
	maxCapacity := 0
	for i := range tables {
		tables[i].SortOrder = i
		maxCapacity += tables[i].Capacity
	}
	return &model.VenueSettings{
		Name:        "Harbour Grill",
		Location:    time.UTC,
		MaxCapacity: maxCapacity,
		Calendar: model.CalendarRules{
			Weekly: map[time.Weekday]model.DaySchedule{
				time.Wednesday: evening,
				time.Thursday:  evening,
				time.Friday:    evening,
				time.Saturday:  evening,
			},
		},
		Rules: model.BookingRules{
			SlotMinutes:              30,
			MaxAdvanceDays:           60,
			DefaultDurationMinutes:   120,
			MaxDurationMinutes:       240,
			BufferMinutes:            15,
			OnlineMaxPartySize:       8,
			CapacityThresholdPercent: 100,
			MinPartySize:             1,
			MaxPartySize:             20,
		},
		Tables: tables,
	}
}

type harness struct {
	svc   *Service
	db    *database.DB
	cache *availability.MemoryStore
	bus   *recordingPublisher
}

func newHarness(t *testing.T, settings *model.VenueSettings) *harness {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "engine.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SyncTables(context.Background(), settings.Tables))

	cache := availability.NewMemoryStore()
	bus := &recordingPublisher{}
	svc := NewService(db, availability.NewBuilder(db, db, cache, &logger), staticSettings{settings}, &logger,
		WithClock(func() time.Time { return testNow }),
		WithPublisher(bus),
	)
	return &harness{svc: svc, db: db, cache: cache, bus: bus}
}

func book(date, clock string, party int) BookRequest {
	return BookRequest{
		Request:  Request{Date: date, Time: clock, PartySize: party},
		Customer: model.Customer{Name: "Ada Guest", Phone: "+49 30 1234"},
	}
}

func TestCheckAvailabilityScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("ExactFit", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2), table("A2", 2), table("A6", 6)))
		avail, err := h.svc.CheckAvailability(ctx, Request{Date: friday, Time: "19:00", PartySize: 6, DurationMinutes: 120})
		require.NoError(t, err)
		assert.True(t, avail.Available)
		require.Len(t, avail.Tables, 1)
		assert.Equal(t, "A6", avail.Tables[0].ID)
		assert.Equal(t, string(solver.StrategyExact), avail.Strategy)
		assert.True(t, avail.End.Equal(time.Date(2026, time.October, 23, 21, 0, 0, 0, time.UTC)))
		assert.Equal(t, 15, avail.BufferMinutes)
	})

	t.Run("PairOfTwos", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2), table("A2", 2)))
		avail, err := h.svc.CheckAvailability(ctx, Request{Date: friday, Time: "19:00", PartySize: 4})
		require.NoError(t, err)
		assert.True(t, avail.Available)
		require.Len(t, avail.Tables, 2)
		assert.Equal(t, "A1", avail.Tables[0].ID)
		assert.Equal(t, "A2", avail.Tables[1].ID)
	})

	t.Run("NoConfiguration", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2)))
		avail, err := h.svc.CheckAvailability(ctx, Request{Date: friday, Time: "19:00", PartySize: 4})
		require.NoError(t, err)
		assert.False(t, avail.Available)
		assert.Equal(t, solver.ReasonNoConfiguration, avail.Reason)
		assert.Equal(t, "no_tables_available", avail.Kind)
	})

	t.Run("ClosedWeekday", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2)))
		avail, err := h.svc.CheckAvailability(ctx, Request{Date: "2026-10-19", Time: "19:00", PartySize: 2})
		require.NoError(t, err)
		assert.False(t, avail.Available)
		assert.Equal(t, "venue_closed", avail.Kind)
		assert.Contains(t, avail.Reason, "Monday")
	})

	t.Run("OutsideOpeningHours", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2)))
		avail, err := h.svc.CheckAvailability(ctx, Request{Date: friday, Time: "22:30", PartySize: 2})
		require.NoError(t, err)
		assert.False(t, avail.Available)
		assert.Equal(t, "venue_closed", avail.Kind)
	})

	t.Run("MalformedRequestIsAnError", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2)))
		tests := []Request{
			{Date: "23/10/2026", Time: "19:00", PartySize: 2},
			{Date: friday, Time: "7pm", PartySize: 2},
			{Date: friday, Time: "19:00", PartySize: 0},
			{Date: friday, Time: "19:00", PartySize: 2, DurationMinutes: 10},
			{Date: friday, Time: "19:00", PartySize: 2, DurationMinutes: 300},
		}
		for _, req := range tests {
			_, err := h.svc.CheckAvailability(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
		}
	})
}

func TestClosedDateWinsOverEvent(t *testing.T) {
	settings := venue(table("A1", 2))
	settings.Calendar.ClosedDates = []model.ClosedDate{{Date: "2026-10-30", Reason: "staff outing"}}
	settings.Calendar.SpecialEvents = []model.SpecialEvent{{Date: "2026-10-30", Name: "Wine tasting", Open: "12:00", Close: "23:00"}}
	h := newHarness(t, settings)

	avail, err := h.svc.CheckAvailability(context.Background(), Request{Date: "2026-10-30", Time: "13:00", PartySize: 2})
	require.NoError(t, err)
	assert.False(t, avail.Available)
	assert.Equal(t, "venue_closed", avail.Kind)
	assert.Contains(t, avail.Reason, "staff outing")
}

func TestEventReservedTablesAreNotOffered(t *testing.T) {
	settings := venue(table("A1", 2), table("A2", 2))
	settings.Calendar.SpecialEvents = []model.SpecialEvent{{Date: friday, Name: "Jazz", ReservedTables: []string{"A1"}}}
	h := newHarness(t, settings)
	ctx := context.Background()

	avail, err := h.svc.CheckAvailability(ctx, Request{Date: friday, Time: "19:00", PartySize: 2})
	require.NoError(t, err)
	require.True(t, avail.Available)
	assert.Equal(t, "A2", avail.Tables[0].ID)

	req := book(friday, "19:00", 2)
	req.TableIDs = []string{"A1"}
	_, err = h.svc.AssignAndBook(ctx, req)
	assert.ErrorIs(t, err, ErrTableConflict)
}

func TestAssignAndBook(t *testing.T) {
	ctx := context.Background()

	t.Run("CommitsAndRebuildsCache", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2), table("A2", 2), table("A6", 6)))
		b, err := h.svc.AssignAndBook(ctx, book(friday, "19:00", 6))
		require.NoError(t, err)

		assert.NotEmpty(t, b.ID)
		assert.Equal(t, []string{"A6"}, b.TableIDs)
		assert.Equal(t, model.StatusPending, b.Status)
		assert.Equal(t, model.SourceOnline, b.Source)
		assert.Equal(t, int64(1), b.Version)
		assert.Equal(t, 120, b.DurationMinutes)

		stored, err := h.svc.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.TableIDs, stored.TableIDs)
		assert.True(t, stored.Start.Equal(b.Start))

		_, err = h.cache.Get(ctx, friday)
		require.NoError(t, err)
		snaps, err := h.svc.GetTableAvailability(ctx, friday)
		require.NoError(t, err)
		require.Len(t, snaps, 3)
		assert.Equal(t, "A6", snaps[2].TableID)
		require.Len(t, snaps[2].Blocked, 1)
		assert.Equal(t, b.ID, snaps[2].Blocked[0].BookingID)

		assert.Contains(t, h.bus.published(), events.TypeBookingCreated)
	})

	t.Run("StaffMayConfirmDirectly", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2)))
		req := book(friday, "19:00", 2)
		req.IsStaff = true
		req.Confirm = true
		b, err := h.svc.AssignAndBook(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, b.Status)
		assert.Equal(t, model.SourceManual, b.Source)
	})

	t.Run("ConfirmIgnoredForGuests", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2)))
		req := book(friday, "19:00", 2)
		req.Confirm = true
		b, err := h.svc.AssignAndBook(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, b.Status)
	})

	t.Run("TouchingBookingsShareTable", func(t *testing.T) {
		h := newHarness(t, venue(table("A6", 6)))
		first, err := h.svc.AssignAndBook(ctx, book(friday, "19:00", 6))
		require.NoError(t, err)
		second, err := h.svc.AssignAndBook(ctx, book(friday, "21:00", 6))
		require.NoError(t, err)
		assert.Equal(t, first.TableIDs, second.TableIDs)
		assert.True(t, first.End.Equal(second.Start))

		_, err = h.svc.AssignAndBook(ctx, book(friday, "20:30", 2))
		assert.ErrorIs(t, err, ErrNoTablesAvailable)
	})

	t.Run("RequestedTables", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2), table("A2", 2), table("A6", 6)))
		req := book(friday, "19:00", 4)
		req.TableIDs = []string{"A2", "A1"}
		b, err := h.svc.AssignAndBook(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, []string{"A2", "A1"}, b.TableIDs)

		tests := []struct {
			name   string
			tables []string
			party  int
			kind   error
		}{
			{"Held", []string{"A1"}, 2, ErrTableConflict},
			{"Unknown", []string{"Z9"}, 2, ErrNotFound},
			{"Duplicate", []string{"A6", "A6"}, 2, ErrInvalidRequest},
			{"TooSmall", []string{"A6"}, 7, ErrNoTablesAvailable},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := book(friday, "19:30", tt.party)
				req.TableIDs = tt.tables
				_, err := h.svc.AssignAndBook(ctx, req)
				assert.ErrorIs(t, err, tt.kind)
			})
		}
	})

	t.Run("CustomerNameRequired", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2)))
		req := book(friday, "19:00", 2)
		req.Customer.Name = "  "
		_, err := h.svc.AssignAndBook(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("CancelledContextWritesNothing", func(t *testing.T) {
		h := newHarness(t, venue(table("A1", 2)))
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := h.svc.AssignAndBook(cancelled, book(friday, "19:00", 2))
		require.Error(t, err)
		assert.False(t, IsDomain(err))

		bookings, err := h.svc.ListBookings(ctx, friday)
		require.NoError(t, err)
		assert.Empty(t, bookings)
		_, err = h.cache.Get(ctx, friday)
		assert.ErrorIs(t, err, availability.ErrCacheMiss)
	})
}

func TestStaffBypass(t *testing.T) {
	ctx := context.Background()
	settings := venue(table("A1", 2), table("A2", 2), table("A3", 4), table("A6", 6))
	settings.Rules.CapacityThresholdPercent = 50 // 7 of 14 guests
	h := newHarness(t, settings)

	_, err := h.svc.AssignAndBook(ctx, book(friday, "19:00", 6))
	require.NoError(t, err)

	t.Run("CapacityThreshold", func(t *testing.T) {
		_, err := h.svc.AssignAndBook(ctx, book(friday, "19:00", 2))
		assert.ErrorIs(t, err, ErrCapacityExceeded)

		staff := book(friday, "19:00", 2)
		staff.IsStaff = true
		_, err = h.svc.AssignAndBook(ctx, staff)
		assert.NoError(t, err)
	})

	t.Run("OnlinePartyLimit", func(t *testing.T) {
		avail, err := h.svc.CheckAvailability(ctx, Request{Date: "2026-10-24", Time: "19:00", PartySize: 9})
		require.NoError(t, err)
		assert.False(t, avail.Available)
		assert.Equal(t, "party_size_rejected", avail.Kind)

		avail, err = h.svc.CheckAvailability(ctx, Request{Date: "2026-10-24", Time: "19:00", PartySize: 9, IsStaff: true})
		require.NoError(t, err)
		assert.True(t, avail.Available)
	})

	t.Run("PartyRangeAppliesToStaff", func(t *testing.T) {
		avail, err := h.svc.CheckAvailability(ctx, Request{Date: "2026-10-24", Time: "19:00", PartySize: 21, IsStaff: true})
		require.NoError(t, err)
		assert.False(t, avail.Available)
		assert.Equal(t, "party_size_rejected", avail.Kind)
	})

	t.Run("AdvanceWindow", func(t *testing.T) {
		far := Request{Date: "2027-01-01", Time: "19:00", PartySize: 2}
		avail, err := h.svc.CheckAvailability(ctx, far)
		require.NoError(t, err)
		assert.False(t, avail.Available)
		assert.Equal(t, "outside_booking_window", avail.Kind)

		far.IsStaff = true
		avail, err = h.svc.CheckAvailability(ctx, far)
		require.NoError(t, err)
		assert.True(t, avail.Available)
	})

	t.Run("StaffNeverOverlap", func(t *testing.T) {
		staff := book(friday, "19:00", 4)
		staff.IsStaff = true
		staff.TableIDs = []string{"A6"}
		_, err := h.svc.AssignAndBook(ctx, staff)
		assert.ErrorIs(t, err, ErrTableConflict)
	})
}

func TestOvernightBooking(t *testing.T) {
	settings := venue(table("A1", 2))
	settings.Calendar.Weekly[time.Saturday] = model.DaySchedule{Open: "18:00", Close: "02:00"}
	h := newHarness(t, settings)
	ctx := context.Background()

	req := book("2026-10-24", "00:30", 2)
	req.DurationMinutes = 60
	b, err := h.svc.AssignAndBook(ctx, req)
	require.NoError(t, err)
	assert.True(t, b.Start.Equal(time.Date(2026, time.October, 25, 0, 30, 0, 0, time.UTC)))
	assert.Equal(t, "2026-10-25", b.Date.Format("2006-01-02"))

	late := book("2026-10-24", "23:45", 2)
	_, err = h.svc.AssignAndBook(ctx, late)
	assert.ErrorIs(t, err, ErrNoTablesAvailable)

	tooLate := book("2026-10-24", "01:30", 2)
	tooLate.DurationMinutes = 60
	_, err = h.svc.AssignAndBook(ctx, tooLate)
	assert.ErrorIs(t, err, ErrVenueClosed)
}

func TestOvernightBookingRefreshesServiceDay(t *testing.T) {
	settings := venue(table("A1", 2))
	settings.Calendar.Weekly[time.Saturday] = model.DaySchedule{Open: "18:00", Close: "02:00"}
	h := newHarness(t, settings)
	ctx := context.Background()
	const saturday = "2026-10-24"

	before, err := h.svc.GetTableAvailability(ctx, saturday)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Empty(t, before[0].Blocked)

	req := book(saturday, "00:30", 2)
	req.DurationMinutes = 60
	b, err := h.svc.AssignAndBook(ctx, req)
	require.NoError(t, err)

	cached, err := h.svc.GetTableAvailability(ctx, saturday)
	require.NoError(t, err)
	require.NoError(t, h.svc.RebuildAvailabilityCache(ctx, saturday))
	fresh, err := h.svc.GetTableAvailability(ctx, saturday)
	require.NoError(t, err)
	assert.Equal(t, fresh, cached)
	require.Len(t, cached[0].Blocked, 1)
	assert.Equal(t, b.ID, cached[0].Blocked[0].BookingID)

	_, err = h.svc.ChangeBookingStatus(ctx, b.ID, model.StatusCancelled)
	require.NoError(t, err)
	cached, err = h.svc.GetTableAvailability(ctx, saturday)
	require.NoError(t, err)
	assert.Empty(t, cached[0].Blocked)
}

func TestConcurrentBookingsForLastTable(t *testing.T) {
	h := newHarness(t, venue(table("A1", 2)))
	ctx := context.Background()

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  []*model.Booking
		failures []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clock := "19:00"
			if i%2 == 1 {
				clock = "19:30"
			}
			b, err := h.svc.AssignAndBook(ctx, book(friday, clock, 2))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			created = append(created, b)
		}(i)
	}
	wg.Wait()

	require.Len(t, created, 1)
	require.Len(t, failures, workers-1)
	for _, err := range failures {
		assert.True(t, errors.Is(err, ErrTableConflict) || errors.Is(err, ErrNoTablesAvailable), "unexpected error: %v", err)
	}
}

func TestNoDoubleBookingProperty(t *testing.T) {
	h := newHarness(t, venue(table("A1", 2), table("A2", 2), table("A3", 4), table("A4", 4), table("A6", 6)))
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var ids []string
	for i := 0; i < 120; i++ {
		minutes := 18*60 + 15*rng.Intn(16) // 18:00 .. 21:45
		req := book(friday, time.Date(0, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC).Format("15:04"), 1+rng.Intn(8))
		req.DurationMinutes = []int{60, 90, 120}[rng.Intn(3)]
		req.IsStaff = rng.Intn(4) == 0

		b, err := h.svc.AssignAndBook(ctx, req)
		if err != nil {
			require.True(t, IsDomain(err), "storage fault: %v", err)
			continue
		}
		ids = append(ids, b.ID)

		if rng.Intn(5) == 0 {
			victim := ids[rng.Intn(len(ids))]
			_, _ = h.svc.ChangeBookingStatus(ctx, victim, model.StatusCancelled)
		}
	}
	require.NotEmpty(t, ids)

	bookings, err := h.svc.ListBookings(ctx, friday)
	require.NoError(t, err)
	for i := range bookings {
		for j := i + 1; j < len(bookings); j++ {
			a, b := bookings[i], bookings[j]
			if !a.Status.HoldsTables() || !b.Status.HoldsTables() {
				continue
			}
			if a.OverlapsWith(&b) {
				assert.False(t, a.SharesTable(&b), "%s and %s share a table", a.ID, b.ID)
			}
		}
	}
}

func TestChangeBookingStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, venue(table("A1", 2)))

	b, err := h.svc.AssignAndBook(ctx, book(friday, "19:00", 2))
	require.NoError(t, err)

	confirmed, err := h.svc.ChangeBookingStatus(ctx, b.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)
	assert.Equal(t, int64(2), confirmed.Version)

	_, err = h.svc.ChangeBookingStatus(ctx, b.ID, model.StatusPending)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = h.svc.ChangeBookingStatus(ctx, b.ID, model.BookingStatus("lost"))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.ChangeBookingStatus(ctx, "missing", model.StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.AssignAndBook(ctx, book(friday, "19:00", 2))
	require.ErrorIs(t, err, ErrNoTablesAvailable)

	_, err = h.svc.ChangeBookingStatus(ctx, b.ID, model.StatusCancelled)
	require.NoError(t, err)

	snaps, err := h.svc.GetTableAvailability(ctx, friday)
	require.NoError(t, err)
	assert.Empty(t, snaps[0].Blocked)

	_, err = h.svc.AssignAndBook(ctx, book(friday, "19:00", 2))
	assert.NoError(t, err)

	_, err = h.svc.ChangeBookingStatus(ctx, b.ID, model.StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.Contains(t, h.bus.published(), events.TypeBookingStatusChanged)
}

func TestMoveBooking(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, venue(table("A1", 2), table("A2", 2), table("A6", 6)))

	b, err := h.svc.AssignAndBook(ctx, book(friday, "19:00", 2))
	require.NoError(t, err)
	require.Equal(t, []string{"A1"}, b.TableIDs)

	t.Run("KeepsTablesWhenFree", func(t *testing.T) {
		moved, err := h.svc.MoveBooking(ctx, b.ID, MoveRequest{Time: "19:30"})
		require.NoError(t, err)
		assert.Equal(t, []string{"A1"}, moved.TableIDs)
		assert.True(t, moved.Start.Equal(time.Date(2026, time.October, 23, 19, 30, 0, 0, time.UTC)))
		assert.Equal(t, int64(2), moved.Version)
	})

	t.Run("ReassignsWhenPartyGrows", func(t *testing.T) {
		moved, err := h.svc.MoveBooking(ctx, b.ID, MoveRequest{PartySize: 5})
		require.NoError(t, err)
		assert.Equal(t, []string{"A6"}, moved.TableIDs)
	})

	t.Run("ToAnotherDay", func(t *testing.T) {
		moved, err := h.svc.MoveBooking(ctx, b.ID, MoveRequest{Date: "2026-10-24", Time: "20:00"})
		require.NoError(t, err)
		assert.Equal(t, "2026-10-24", moved.Date.Format("2006-01-02"))

		left, err := h.svc.ListBookings(ctx, friday)
		require.NoError(t, err)
		assert.Empty(t, left)
	})

	t.Run("TerminalBookingCannotMove", func(t *testing.T) {
		_, err := h.svc.ChangeBookingStatus(ctx, b.ID, model.StatusCancelled)
		require.NoError(t, err)
		_, err = h.svc.MoveBooking(ctx, b.ID, MoveRequest{Time: "20:00"})
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})
}

func TestTableCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, venue(table("A1", 2), table("A6", 6)))

	created, err := h.svc.CreateTable(ctx, NewTable{ID: "T9", Capacity: 4, Section: model.SectionTerrace})
	require.NoError(t, err)
	assert.Equal(t, "T9", created.Label)
	assert.True(t, created.IsReservable)

	_, err = h.svc.CreateTable(ctx, NewTable{ID: "T9", Capacity: 4})
	assert.ErrorIs(t, err, ErrTableConflict)
	_, err = h.svc.CreateTable(ctx, NewTable{ID: "T10", Capacity: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.svc.CreateTable(ctx, NewTable{ID: "T10", Capacity: 2, Section: "roof"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	tables, err := h.svc.ListTables(ctx)
	require.NoError(t, err)
	assert.Len(t, tables, 3)

	b, err := h.svc.AssignAndBook(ctx, book(friday, "19:00", 6))
	require.NoError(t, err)
	require.Equal(t, []string{"A6"}, b.TableIDs)

	affected, err := h.svc.DeactivateTable(ctx, "A6")
	require.NoError(t, err)
	require.Len(t, affected, 1)
	assert.Equal(t, b.ID, affected[0].ID)

	avail, err := h.svc.CheckAvailability(ctx, Request{Date: "2026-10-24", Time: "19:00", PartySize: 6})
	require.NoError(t, err)
	assert.True(t, avail.Available)
	for _, tbl := range avail.Tables {
		assert.NotEqual(t, "A6", tbl.ID)
	}

	_, err = h.svc.DeactivateTable(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, h.bus.published(), events.TypeTableDeactivated)
}

func TestCatalogChangeRefreshesCachedDates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, venue(table("A1", 2), table("A6", 6)))
	const nextFriday = "2026-10-30"
	const lastFriday = "2026-10-16"

	for _, date := range []string{friday, nextFriday, lastFriday} {
		_, err := h.svc.GetTableAvailability(ctx, date)
		require.NoError(t, err)
	}

	tableIDs := func(date string) []string {
		snaps, err := h.svc.GetTableAvailability(ctx, date)
		require.NoError(t, err)
		ids := make([]string, 0, len(snaps))
		for _, snap := range snaps {
			ids = append(ids, snap.TableID)
		}
		return ids
	}

	_, err := h.svc.CreateTable(ctx, NewTable{ID: "T9", Capacity: 4})
	require.NoError(t, err)
	_, err = h.cache.Get(ctx, lastFriday)
	assert.ErrorIs(t, err, availability.ErrCacheMiss)
	assert.Contains(t, tableIDs(nextFriday), "T9")

	_, err = h.svc.DeactivateTable(ctx, "A1")
	require.NoError(t, err)
	assert.NotContains(t, tableIDs(friday), "A1")
	assert.NotContains(t, tableIDs(nextFriday), "A1")
}

func TestRebuildAndExport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, venue(table("A1", 2)))

	require.NoError(t, h.svc.RebuildAvailabilityCache(ctx, friday))
	first, err := h.cache.Get(ctx, friday)
	require.NoError(t, err)
	require.NoError(t, h.svc.RebuildAvailabilityCache(ctx, friday))
	second, err := h.cache.Get(ctx, friday)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.ErrorIs(t, h.svc.RebuildAvailabilityCache(ctx, "friday"), ErrInvalidRequest)

	_, err = h.svc.AssignAndBook(ctx, book(friday, "19:00", 2))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.svc.ExportBookings(ctx, friday, "2026-10-31", &buf))
	assert.NotZero(t, buf.Len())

	err = h.svc.ExportBookings(ctx, "2026-10-31", friday, &buf)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSettingsNotLoaded(t *testing.T) {
	logger := zerolog.New(io.Discard)
	svc := NewService(nil, nil, staticSettings{}, &logger)
	_, err := svc.CheckAvailability(context.Background(), Request{Date: friday, Time: "19:00", PartySize: 2})
	assert.ErrorIs(t, err, ErrNotFound)
}
