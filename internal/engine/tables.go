package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"tablebook/internal/database"
	"tablebook/internal/events"
	"tablebook/internal/export"
	"tablebook/internal/model"
)

// maxExportDays bounds the date range of one export.
const maxExportDays = 366

// NewTable describes a table added at runtime.
type NewTable struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Capacity   int           `json:"capacity"`
	Section    model.Section `json:"section"`
	Reservable *bool         `json:"is_reservable,omitempty"`
}

// ListTables returns the catalog, inactive tables included.
func (s *Service) ListTables(ctx context.Context) ([]model.Table, error) {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, storeErr("list tables", err)
	}
	if tables == nil {
		tables = []model.Table{}
	}
	return tables, nil
}

// CreateTable adds a table to the catalog and refreshes today's availability.
func (s *Service) CreateTable(ctx context.Context, in NewTable) (*model.Table, error) {
	settings, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	t := model.Table{
		ID:           strings.TrimSpace(in.ID),
		Label:        strings.TrimSpace(in.Label),
		Capacity:     in.Capacity,
		Section:      in.Section,
		IsActive:     true,
		IsReservable: in.Reservable == nil || *in.Reservable,
	}
	if t.ID == "" {
		return nil, domainErr(ErrInvalidRequest, "table id is required")
	}
	if t.Capacity < 1 {
		return nil, domainErr(ErrInvalidRequest, "table %s: capacity must be at least 1", t.ID)
	}
	if t.Label == "" {
		t.Label = t.ID
	}
	if t.Section == "" {
		t.Section = model.SectionMain
	}
	if !model.ValidSection(t.Section) {
		return nil, domainErr(ErrInvalidRequest, "table %s: unknown section %q", t.ID, t.Section)
	}

	existing, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, storeErr("list tables", err)
	}
	t.SortOrder = len(existing)

	if err := s.store.CreateTable(ctx, &t); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, domainErr(ErrTableConflict, "table %s already exists", t.ID)
		}
		return nil, storeErr("create table "+t.ID, err)
	}

	s.logger.Info().Str("table_id", t.ID).Int("capacity", t.Capacity).Msg("table created")
	s.rebuildCatalog(ctx, settings)
	return &t, nil
}

// DeactivateTable retires a table. Bookings already holding it keep it; the dates
// of those bookings are rebuilt and the bookings are returned so staff can move them.
func (s *Service) DeactivateTable(ctx context.Context, id string) ([]model.Booking, error) {
	settings, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	now := s.now()

	if err := s.store.DeactivateTable(ctx, id); err != nil {
		return nil, storeErr("table "+id, err)
	}

	affected, err := s.store.FutureBookingsOnTable(ctx, id, now)
	if err != nil {
		return nil, storeErr("bookings on table "+id, err)
	}

	held := make([]*model.Booking, len(affected))
	for i := range affected {
		localize(settings, &affected[i])
		held[i] = &affected[i]
	}
	if affected == nil {
		affected = []model.Booking{}
	}

	s.logger.Warn().Str("table_id", id).Int("future_bookings", len(affected)).Msg("table deactivated")
	s.rebuildCatalog(ctx, settings)
	s.rebuildBookings(ctx, settings, held...)
	s.publish(events.TypeTableDeactivated, id, map[string]any{
		"table_id":          id,
		"affected_bookings": len(affected),
	})
	return affected, nil
}

// ExportBookings writes the bookings dated from..to inclusive as an Excel workbook.
func (s *Service) ExportBookings(ctx context.Context, from, to string, w io.Writer) error {
	settings, err := s.snapshot()
	if err != nil {
		return err
	}
	start, err := s.parseDate(settings, from)
	if err != nil {
		return err
	}
	end, err := s.parseDate(settings, to)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return domainErr(ErrInvalidRequest, "export range ends before it starts")
	}
	if end.After(start.AddDate(0, 0, maxExportDays)) {
		return domainErr(ErrInvalidRequest, "export range is limited to %d days", maxExportDays)
	}

	bookings, err := s.store.BookingsInRange(ctx, start, end)
	if err != nil {
		return storeErr("export bookings", err)
	}
	for i := range bookings {
		localize(settings, &bookings[i])
	}
	if err := export.WriteBookings(w, bookings, settings.Location); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
