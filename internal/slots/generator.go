package slots

import "time"

// Slot represents a time slot.
type Slot struct {
	StartTime time.Time
	EndTime   time.Time
	Available bool
}

// Interval is a half-open [Start, End) span.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Partition cuts [open, close) into contiguous slots of width.
// The last partial slot is dropped rather than shortened.
func Partition(open, close time.Time, width time.Duration) []Slot {
	if width <= 0 || !open.Before(close) {
		return nil
	}

	var out []Slot
	for cursor := open; !cursor.Add(width).After(close); cursor = cursor.Add(width) {
		out = append(out, Slot{
			StartTime: cursor,
			EndTime:   cursor.Add(width),
			Available: true,
		})
	}
	return out
}

// MarkBlocked flags every slot intersecting one of blocked as unavailable.
func MarkBlocked(slots []Slot, blocked []Interval) []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	for i := range out {
		for _, b := range blocked {
			if isOverlapping(out[i].StartTime, out[i].EndTime, b.Start, b.End) {
				out[i].Available = false
				break
			}
		}
	}
	return out
}

// GetAvailableSlots returns only available slots.
func GetAvailableSlots(slots []Slot) []Slot {
	var available []Slot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

// Clip restricts iv to [lo, hi). ok is false when nothing is left.
func Clip(iv Interval, lo, hi time.Time) (Interval, bool) {
	if iv.Start.Before(lo) {
		iv.Start = lo
	}
	if iv.End.After(hi) {
		iv.End = hi
	}
	return iv, iv.Start.Before(iv.End)
}

func isOverlapping(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}
