package model

// BlockReason explains why a table is unavailable during an interval.
type BlockReason string

const (
	BlockBooking     BlockReason = "booking"
	BlockClosed      BlockReason = "closed"
	BlockMaintenance BlockReason = "maintenance"
	BlockEvent       BlockReason = "event"
	BlockOther       BlockReason = "other"
)

// SlotRange is a free interval, formatted in venue-local RFC3339.
type SlotRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BlockedInterval is an unavailable interval of a table.
type BlockedInterval struct {
	Start     string      `json:"start"`
	End       string      `json:"end"`
	Reason    BlockReason `json:"reason"`
	BookingID string      `json:"booking_id,omitempty"`
}

// TableSnapshot is the cached availability of one table on one date.
type TableSnapshot struct {
	Date     string            `json:"date"`
	TableID  string            `json:"table_id"`
	Label    string            `json:"label"`
	Capacity int               `json:"capacity"`
	Section  Section           `json:"section"`
	Free     []SlotRange       `json:"free"`
	Blocked  []BlockedInterval `json:"blocked"`
}
