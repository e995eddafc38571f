package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tablebook/internal/events"
	"tablebook/internal/metrics"
	"tablebook/internal/model"
)

// TableInfo describes a table offered or assigned to a party.
type TableInfo struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Capacity int           `json:"capacity"`
	Section  model.Section `json:"section"`
}

// Availability is the answer to a seating request. When Available is false,
// Reason says why and Kind names the failure.
type Availability struct {
	Available     bool        `json:"available"`
	Reason        string      `json:"reason,omitempty"`
	Kind          string      `json:"kind,omitempty"`
	Tables        []TableInfo `json:"tables,omitempty"`
	Strategy      string      `json:"strategy,omitempty"`
	Start         time.Time   `json:"start,omitempty"`
	End           time.Time   `json:"end,omitempty"`
	BufferMinutes int         `json:"buffer_minutes"`
}

// TableAvailability is the cached free/blocked view of one table on one date.
type TableAvailability = model.TableSnapshot

// CheckAvailability runs the assignment decision for req without writing anything.
// Domain rejections come back as an unavailable answer; malformed requests and
// storage faults come back as errors.
func (s *Service) CheckAvailability(ctx context.Context, req Request) (avail *Availability, err error) {
	ctx, span := s.tracer.Start(ctx, "engine.CheckAvailability")
	span.SetAttributes(
		attribute.String("booking.date", req.Date),
		attribute.Int("booking.party_size", req.PartySize),
		attribute.Bool("booking.staff", req.IsStaff),
	)
	defer func() { endSpan(span, err) }()

	settings, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	d, err := s.evaluate(ctx, settings, s.now(), req, nil, "")
	if err != nil {
		var de *DomainError
		if !errors.As(err, &de) || errors.Is(err, ErrInvalidRequest) {
			metrics.IncAvailabilityCheck("error")
			return nil, err
		}
		metrics.IncAvailabilityCheck(KindName(err))
		return &Availability{
			Available:     false,
			Reason:        de.Reason,
			Kind:          KindName(err),
			BufferMinutes: settings.Rules.BufferMinutes,
		}, nil
	}

	metrics.IncAvailabilityCheck("available")
	return &Availability{
		Available:     true,
		Tables:        tableInfos(d.tables),
		Strategy:      string(d.strategy),
		Start:         d.start,
		End:           d.end,
		BufferMinutes: settings.Rules.BufferMinutes,
	}, nil
}

// GetTableAvailability returns the snapshots of date, rebuilding them on a cache miss.
func (s *Service) GetTableAvailability(ctx context.Context, date string) ([]TableAvailability, error) {
	settings, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	day, err := s.parseDate(settings, date)
	if err != nil {
		return nil, err
	}
	return s.cache.Cached(ctx, settings, day)
}

// RebuildAvailabilityCache recomputes and stores the snapshots of date.
func (s *Service) RebuildAvailabilityCache(ctx context.Context, date string) (err error) {
	ctx, span := s.tracer.Start(ctx, "engine.RebuildAvailabilityCache")
	span.SetAttributes(attribute.String("booking.date", date))
	defer func() { endSpan(span, err) }()

	settings, err := s.snapshot()
	if err != nil {
		return err
	}
	day, err := s.parseDate(settings, date)
	if err != nil {
		return err
	}
	if _, err := s.cache.Rebuild(ctx, settings, day); err != nil {
		return err
	}
	s.publish(events.TypeAvailabilityRebuilt, date, map[string]string{"date": date})
	return nil
}

func tableInfos(tables []model.Table) []TableInfo {
	out := make([]TableInfo, len(tables))
	for i, t := range tables {
		out[i] = TableInfo{ID: t.ID, Label: t.Label, Capacity: t.Capacity, Section: t.Section}
	}
	return out
}
