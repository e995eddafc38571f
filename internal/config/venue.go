package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"tablebook/internal/model"
)

// TableConfig represents a single table of the catalog.
type TableConfig struct {
	ID           string `yaml:"id"`
	Label        string `yaml:"label"`
	Capacity     int    `yaml:"capacity"`
	Section      string `yaml:"section"`
	IsActive     *bool  `yaml:"is_active,omitempty"`     // default true
	IsReservable *bool  `yaml:"is_reservable,omitempty"` // default true
}

// DayConfig represents one weekday of the weekly schedule.
type DayConfig struct {
	Open   string `yaml:"open"`  // "18:00"
	Close  string `yaml:"close"` // "23:45", earlier than open for overnight
	Closed bool   `yaml:"closed"`
}

// ClosedDateConfig closes the venue for a date.
type ClosedDateConfig struct {
	Date   string `yaml:"date"` // "2026-12-24"
	Reason string `yaml:"reason"`
}

// EventConfig pins custom hours, capacity or reserved tables to a date.
type EventConfig struct {
	Date           string   `yaml:"date"`
	Name           string   `yaml:"name"`
	Open           string   `yaml:"open,omitempty"`
	Close          string   `yaml:"close,omitempty"`
	MaxCapacity    int      `yaml:"max_capacity,omitempty"`
	ReservedTables []string `yaml:"reserved_tables,omitempty"`
}

// RulesConfig represents booking rules.
type RulesConfig struct {
	SlotMinutes              int `yaml:"slot_minutes"`
	MinAdvanceMinutes        int `yaml:"min_advance_minutes"`
	MaxAdvanceDays           int `yaml:"max_advance_days"`
	DefaultDurationMinutes   int `yaml:"default_duration_minutes"`
	MaxDurationMinutes       int `yaml:"max_duration_minutes"`
	BufferMinutes            int `yaml:"buffer_minutes"`
	OnlineMaxPartySize       int `yaml:"online_max_party_size"`
	CapacityThresholdPercent int `yaml:"capacity_threshold_percent"`
	MinPartySize             int `yaml:"min_party_size"`
	MaxPartySize             int `yaml:"max_party_size"`
}

// VenueConfig is the root configuration for venue.yaml.
type VenueConfig struct {
	Name        string               `yaml:"name"`
	Timezone    string               `yaml:"timezone"`
	MaxCapacity int                  `yaml:"max_capacity"`
	Weekly      map[string]DayConfig `yaml:"weekly"`
	ClosedDates []ClosedDateConfig   `yaml:"closed_dates"`
	Events      []EventConfig        `yaml:"events"`
	Rules       RulesConfig          `yaml:"rules"`
	Tables      []TableConfig        `yaml:"tables"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// LoadVenue loads and validates venue configuration from a YAML file.
func LoadVenue(path string) (*VenueConfig, error) {
	if path == "" {
		path = "configs/venue.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venue config: %w", err)
	}

	return ParseVenue(data)
}

// ParseVenue parses, validates and completes venue YAML.
func ParseVenue(data []byte) (*VenueConfig, error) {
	var cfg VenueConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse venue config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate venue config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *VenueConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: unknown zone '%s'", c.Timezone)
	}
	if c.MaxCapacity <= 0 {
		return fmt.Errorf("max_capacity must be positive")
	}

	if len(c.Tables) == 0 {
		return fmt.Errorf("no tables defined")
	}
	ids := make(map[string]bool)
	for i, t := range c.Tables {
		if t.ID == "" {
			return fmt.Errorf("table[%d]: id is required", i)
		}
		if ids[t.ID] {
			return fmt.Errorf("table[%d]: duplicate id '%s'", i, t.ID)
		}
		ids[t.ID] = true

		if t.Capacity <= 0 {
			return fmt.Errorf("table[%d]: capacity must be positive, got %d", i, t.Capacity)
		}
		if !model.ValidSection(model.Section(t.Section)) {
			return fmt.Errorf("table[%d]: unknown section '%s'", i, t.Section)
		}
	}

	for name, day := range c.Weekly {
		if _, ok := weekdays[strings.ToLower(name)]; !ok {
			return fmt.Errorf("weekly: unknown day '%s'", name)
		}
		if day.Closed {
			continue
		}
		if err := validateHours(day.Open, day.Close, "weekly."+name); err != nil {
			return err
		}
	}

	for i, cd := range c.ClosedDates {
		if _, err := time.Parse("2006-01-02", cd.Date); err != nil {
			return fmt.Errorf("closed_dates[%d]: invalid date format '%s', expected YYYY-MM-DD", i, cd.Date)
		}
	}

	for i, ev := range c.Events {
		prefix := fmt.Sprintf("events[%d]", i)
		if _, err := time.Parse("2006-01-02", ev.Date); err != nil {
			return fmt.Errorf("%s: invalid date format '%s', expected YYYY-MM-DD", prefix, ev.Date)
		}
		if (ev.Open == "") != (ev.Close == "") {
			return fmt.Errorf("%s: open and close must be set together", prefix)
		}
		if ev.Open != "" {
			if err := validateHours(ev.Open, ev.Close, prefix); err != nil {
				return err
			}
		}
		if ev.MaxCapacity < 0 {
			return fmt.Errorf("%s: max_capacity cannot be negative", prefix)
		}
		for _, id := range ev.ReservedTables {
			if !ids[id] {
				return fmt.Errorf("%s: reserved table '%s' is not in the catalog", prefix, id)
			}
		}
	}

	return c.Rules.validate()
}

func (r *RulesConfig) validate() error {
	if r.SlotMinutes <= 0 {
		return fmt.Errorf("rules.slot_minutes must be positive")
	}
	if r.MinAdvanceMinutes < 0 || r.MaxAdvanceDays < 0 || r.BufferMinutes < 0 {
		return fmt.Errorf("rules: advance windows and buffer cannot be negative")
	}
	if r.DefaultDurationMinutes < model.MinDurationMinutes {
		return fmt.Errorf("rules.default_duration_minutes must be at least %d", model.MinDurationMinutes)
	}
	if r.MaxDurationMinutes < r.DefaultDurationMinutes {
		return fmt.Errorf("rules.max_duration_minutes must not be below default_duration_minutes")
	}
	if r.CapacityThresholdPercent <= 0 || r.CapacityThresholdPercent > 100 {
		return fmt.Errorf("rules.capacity_threshold_percent must be within 1-100, got %d", r.CapacityThresholdPercent)
	}
	if r.MinPartySize < 1 || r.MaxPartySize < r.MinPartySize {
		return fmt.Errorf("rules: party size range %d-%d is invalid", r.MinPartySize, r.MaxPartySize)
	}
	if r.OnlineMaxPartySize <= 0 {
		return fmt.Errorf("rules.online_max_party_size must be positive")
	}
	return nil
}

// validateHours checks an "HH:MM" pair. close before open is allowed (overnight),
// equal times are not.
func validateHours(open, close, prefix string) error {
	o, err := time.Parse("15:04", open)
	if err != nil {
		return fmt.Errorf("%s.open: invalid format '%s', expected HH:MM", prefix, open)
	}
	cl, err := time.Parse("15:04", close)
	if err != nil {
		return fmt.Errorf("%s.close: invalid format '%s', expected HH:MM", prefix, close)
	}
	if o.Equal(cl) {
		return fmt.Errorf("%s: open and close must differ", prefix)
	}
	return nil
}

// applyDefaults fills unset values.
func (c *VenueConfig) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}

	for i := range c.Tables {
		if c.Tables[i].Label == "" {
			c.Tables[i].Label = c.Tables[i].ID
		}
		if c.Tables[i].Section == "" {
			c.Tables[i].Section = string(model.SectionMain)
		}
	}

	if c.MaxCapacity == 0 {
		for _, t := range c.Tables {
			c.MaxCapacity += t.Capacity
		}
	}

	r := &c.Rules
	if r.SlotMinutes == 0 {
		r.SlotMinutes = 30
	}
	if r.DefaultDurationMinutes == 0 {
		r.DefaultDurationMinutes = 120
	}
	if r.MaxDurationMinutes == 0 {
		r.MaxDurationMinutes = 240
	}
	if r.MaxAdvanceDays == 0 {
		r.MaxAdvanceDays = 60
	}
	if r.CapacityThresholdPercent == 0 {
		r.CapacityThresholdPercent = 100
	}
	if r.MinPartySize == 0 {
		r.MinPartySize = 1
	}
	if r.MaxPartySize == 0 {
		r.MaxPartySize = 20
	}
	if r.OnlineMaxPartySize == 0 {
		r.OnlineMaxPartySize = 8
	}
}

// ToSettings converts the validated config to an immutable settings snapshot.
// Tables are returned in catalog order: ascending ID, declared position second.
func (c *VenueConfig) ToSettings() (*model.VenueSettings, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	weekly := make(map[time.Weekday]model.DaySchedule, len(c.Weekly))
	for name, day := range c.Weekly {
		weekly[weekdays[strings.ToLower(name)]] = model.DaySchedule{
			Open:   day.Open,
			Close:  day.Close,
			Closed: day.Closed,
		}
	}

	closed := make([]model.ClosedDate, 0, len(c.ClosedDates))
	for _, cd := range c.ClosedDates {
		closed = append(closed, model.ClosedDate{Date: cd.Date, Reason: cd.Reason})
	}

	events := make([]model.SpecialEvent, 0, len(c.Events))
	for _, ev := range c.Events {
		events = append(events, model.SpecialEvent{
			Date:           ev.Date,
			Name:           ev.Name,
			Open:           ev.Open,
			Close:          ev.Close,
			MaxCapacity:    ev.MaxCapacity,
			ReservedTables: append([]string(nil), ev.ReservedTables...),
		})
	}

	tables := make([]model.Table, 0, len(c.Tables))
	for i, t := range c.Tables {
		tables = append(tables, model.Table{
			ID:           t.ID,
			Label:        t.Label,
			Capacity:     t.Capacity,
			Section:      model.Section(t.Section),
			IsActive:     boolOr(t.IsActive, true),
			IsReservable: boolOr(t.IsReservable, true),
			SortOrder:    i,
		})
	}
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].ID < tables[j].ID })

	r := c.Rules
	return &model.VenueSettings{
		Name:        c.Name,
		Location:    loc,
		MaxCapacity: c.MaxCapacity,
		Calendar: model.CalendarRules{
			Weekly:        weekly,
			ClosedDates:   closed,
			SpecialEvents: events,
		},
		Rules: model.BookingRules{
			SlotMinutes:              r.SlotMinutes,
			MinAdvanceMinutes:        r.MinAdvanceMinutes,
			MaxAdvanceDays:           r.MaxAdvanceDays,
			DefaultDurationMinutes:   r.DefaultDurationMinutes,
			MaxDurationMinutes:       r.MaxDurationMinutes,
			BufferMinutes:            r.BufferMinutes,
			OnlineMaxPartySize:       r.OnlineMaxPartySize,
			CapacityThresholdPercent: r.CapacityThresholdPercent,
			MinPartySize:             r.MinPartySize,
			MaxPartySize:             r.MaxPartySize,
		},
		Tables: tables,
	}, nil
}

// String returns a summary of the configuration.
func (c *VenueConfig) String() string {
	active := 0
	for _, t := range c.Tables {
		if boolOr(t.IsActive, true) {
			active++
		}
	}
	return fmt.Sprintf("VenueConfig %q: %d tables (%d active), %d closed dates, %d events",
		c.Name, len(c.Tables), active, len(c.ClosedDates), len(c.Events))
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// SettingsHolder publishes the current venue settings snapshot.
// Readers take one snapshot per operation; reloads swap it atomically.
type SettingsHolder struct {
	current atomic.Pointer[model.VenueSettings]
}

func NewSettingsHolder(initial *model.VenueSettings) *SettingsHolder {
	h := &SettingsHolder{}
	h.current.Store(initial)
	return h
}

// Current returns the active snapshot. Callers must not mutate it.
func (h *SettingsHolder) Current() *model.VenueSettings {
	return h.current.Load()
}

func (h *SettingsHolder) Store(s *model.VenueSettings) {
	h.current.Store(s)
}
