package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tablebook/internal/calendar"
	"tablebook/internal/capacity"
	"tablebook/internal/database"
	"tablebook/internal/model"
	"tablebook/internal/overlap"
	"tablebook/internal/solver"
)

// Request is a seating request.
type Request struct {
	Date            string // "YYYY-MM-DD", the service date
	Time            string // "HH:MM"
	PartySize       int
	DurationMinutes int // 0 uses the venue default
	IsStaff         bool
}

// StrategyRequested marks an assignment pinned by the caller.
const StrategyRequested solver.Strategy = "requested"

// decision is an accepted seating plan, ready to commit.
type decision struct {
	serviceDay time.Time
	plan       calendar.DayPlan
	start, end time.Time
	duration   int
	partySize  int
	tables     []model.Table
	strategy   solver.Strategy
	isStaff    bool
	threshold  int
	excludeID  string
}

func (d *decision) tableIDs() []string {
	ids := make([]string, len(d.tables))
	for i, t := range d.tables {
		ids[i] = t.ID
	}
	return ids
}

// window resolves the booking interval of req. A time of day before opening on a
// date whose window runs past midnight is read as the early hours of the next day.
func window(settings *model.VenueSettings, req Request) (time.Time, calendar.DayPlan, time.Time, time.Time, int, error) {
	var zero time.Time
	day, err := calendar.ParseDate(settings, req.Date)
	if err != nil {
		return zero, calendar.DayPlan{}, zero, zero, 0, domainErr(ErrInvalidRequest, "%s", err.Error())
	}
	start, err := calendar.ParseClock(day, req.Time)
	if err != nil {
		return zero, calendar.DayPlan{}, zero, zero, 0, domainErr(ErrInvalidRequest, "%s", err.Error())
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = settings.Rules.DefaultDurationMinutes
	}
	if duration < model.MinDurationMinutes {
		return zero, calendar.DayPlan{}, zero, zero, 0, domainErr(ErrInvalidRequest,
			"duration must be at least %d minutes", model.MinDurationMinutes)
	}
	if limit := settings.Rules.MaxDurationMinutes; limit > 0 && duration > limit {
		return zero, calendar.DayPlan{}, zero, zero, 0, domainErr(ErrInvalidRequest,
			"duration must not exceed %d minutes", limit)
	}

	plan, err := calendar.Resolve(settings, day)
	if err != nil {
		return zero, calendar.DayPlan{}, zero, zero, 0, err
	}
	if !plan.Closed && start.Before(plan.OpenAt) && !calendar.LocalDay(settings, plan.CloseAt).Equal(day) {
		start = calendar.ParseClockOn(day.AddDate(0, 0, 1), start)
	}

	return day, plan, start, start.Add(time.Duration(duration) * time.Minute), duration, nil
}

// evaluate runs the full decision pipeline for req: party size, booking window,
// calendar, overlap, solver and capacity. requested pins specific tables;
// excludeID leaves one booking out of the overlap view.
func (s *Service) evaluate(ctx context.Context, settings *model.VenueSettings, now time.Time, req Request, requested []string, excludeID string) (*decision, error) {
	if req.PartySize < 1 {
		return nil, domainErr(ErrInvalidRequest, "party size must be at least 1")
	}

	day, plan, start, end, duration, err := window(settings, req)
	if err != nil {
		return nil, err
	}

	rules := settings.Rules
	if req.PartySize < rules.MinPartySize || (rules.MaxPartySize > 0 && req.PartySize > rules.MaxPartySize) {
		return nil, domainErr(ErrPartySizeRejected, "party size must be between %d and %d", rules.MinPartySize, rules.MaxPartySize)
	}
	if !req.IsStaff {
		if rules.OnlineMaxPartySize > 0 && req.PartySize > rules.OnlineMaxPartySize {
			return nil, domainErr(ErrPartySizeRejected,
				"parties larger than %d must be booked by the venue", rules.OnlineMaxPartySize)
		}
		if err := checkAdvance(settings, now, start); err != nil {
			return nil, err
		}
	}

	open, err := calendar.IsOpenDuring(settings, day, start, end)
	if err != nil {
		return nil, err
	}
	if !open.Open {
		return nil, domainErr(ErrVenueClosed, "%s", open.Reason)
	}

	existing, err := s.store.BookingsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load overlapping bookings: %w", err)
	}
	index := overlap.NewIndex(existing).Without(excludeID)

	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	committed := index.CommittedTables(start, end)
	reserved := reservedTables(plan)

	d := &decision{
		serviceDay: day,
		plan:       plan,
		start:      start,
		end:        end,
		duration:   duration,
		partySize:  req.PartySize,
		isStaff:    req.IsStaff,
		threshold:  rules.CapacityThresholdPercent,
		excludeID:  excludeID,
	}

	if len(requested) > 0 {
		picked, err := pickRequested(tables, requested, committed, reserved, index, start, end, req.PartySize)
		if err != nil {
			return nil, err
		}
		d.tables = picked
		d.strategy = StrategyRequested
	} else {
		candidates := withoutReserved(overlap.Candidates(tables, committed), reserved)
		res := solver.Assign(candidates, req.PartySize)
		if !res.Found() {
			return nil, domainErr(ErrNoTablesAvailable, "%s", res.Reason)
		}
		d.tables = res.Tables
		d.strategy = res.Strategy
	}

	if err := d.checkCapacity(index.PartySum(start, end)); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *decision) checkCapacity(currentSum int) error {
	check := capacity.Evaluate(currentSum, d.partySize, d.plan.MaxCapacity, d.threshold, d.isStaff)
	if !check.Allowed {
		return domainErr(ErrCapacityExceeded,
			"party of %d would exceed venue capacity: %d of %d guests already seated in this window",
			d.partySize, check.Current, check.MaxAllowed)
	}
	return nil
}

// validator re-checks the decision inside the store transaction.
func (d *decision) validator() database.ValidateFunc {
	return func(overlapping []model.Booking) error {
		index := overlap.NewIndex(overlapping).Without(d.excludeID)
		for _, t := range d.tables {
			if holder, held := index.Holder(t.ID, d.start, d.end); held {
				return domainErr(ErrTableConflict, "table %s was taken by booking %s", t.ID, holder.ID)
			}
		}
		return d.checkCapacity(index.PartySum(d.start, d.end))
	}
}

func checkAdvance(settings *model.VenueSettings, now, start time.Time) error {
	rules := settings.Rules
	earliest := now.Add(time.Duration(rules.MinAdvanceMinutes) * time.Minute)
	if start.Before(earliest) {
		if rules.MinAdvanceMinutes == 0 {
			return domainErr(ErrOutsideBookingWindow, "requested time is in the past")
		}
		return domainErr(ErrOutsideBookingWindow, "bookings must be made at least %d minutes in advance", rules.MinAdvanceMinutes)
	}
	if rules.MaxAdvanceDays > 0 {
		last := calendar.LocalDay(settings, now.In(start.Location())).AddDate(0, 0, rules.MaxAdvanceDays+1)
		if !start.Before(last) {
			return domainErr(ErrOutsideBookingWindow, "bookings open at most %d days in advance", rules.MaxAdvanceDays)
		}
	}
	return nil
}

func pickRequested(tables []model.Table, requested []string, committed, reserved map[string]struct{},
	index *overlap.Index, start, end time.Time, partySize int) ([]model.Table, error) {
	byID := make(map[string]model.Table, len(tables))
	for _, t := range tables {
		byID[t.ID] = t
	}

	seen := make(map[string]struct{}, len(requested))
	picked := make([]model.Table, 0, len(requested))
	seats := 0
	for _, id := range requested {
		if _, dup := seen[id]; dup {
			return nil, domainErr(ErrInvalidRequest, "table %s requested twice", id)
		}
		seen[id] = struct{}{}

		t, ok := byID[id]
		if !ok {
			return nil, domainErr(ErrNotFound, "table %s does not exist", id)
		}
		if !t.Bookable() {
			return nil, domainErr(ErrTableConflict, "table %s is not reservable", id)
		}
		if _, ok := reserved[id]; ok {
			return nil, domainErr(ErrTableConflict, "table %s is reserved for an event", id)
		}
		if _, ok := committed[id]; ok {
			holder, _ := index.Holder(id, start, end)
			return nil, domainErr(ErrTableConflict, "table %s is held by booking %s", id, holder.ID)
		}
		picked = append(picked, t)
		seats += t.Capacity
	}

	if seats < partySize {
		return nil, domainErr(ErrNoTablesAvailable, "tables %s seat %d, party is %d",
			strings.Join(requested, ", "), seats, partySize)
	}
	return picked, nil
}

func reservedTables(plan calendar.DayPlan) map[string]struct{} {
	out := make(map[string]struct{})
	if plan.Event == nil {
		return out
	}
	for _, id := range plan.Event.ReservedTables {
		out[id] = struct{}{}
	}
	return out
}

func withoutReserved(tables []model.Table, reserved map[string]struct{}) []model.Table {
	if len(reserved) == 0 {
		return tables
	}
	out := tables[:0:0]
	for _, t := range tables {
		if _, ok := reserved[t.ID]; !ok {
			out = append(out, t)
		}
	}
	return out
}
