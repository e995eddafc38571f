// Package capacity enforces the aggregate occupancy threshold of a venue.
package capacity

// MaxAllowed returns floor(venueMax * thresholdPercent / 100).
func MaxAllowed(venueMax, thresholdPercent int) int {
	if venueMax <= 0 || thresholdPercent <= 0 {
		return 0
	}
	return venueMax * thresholdPercent / 100
}

// Allows reports whether adding partySize guests to currentOverlapSum stays within the threshold.
func Allows(currentOverlapSum, partySize, venueMax, thresholdPercent int) bool {
	return currentOverlapSum+partySize <= MaxAllowed(venueMax, thresholdPercent)
}

// Check is a guard decision with the numbers behind it.
type Check struct {
	Allowed    bool
	Current    int
	Requested  int
	MaxAllowed int
	Bypassed   bool
}

// Evaluate runs the guard; staff requests bypass it.
func Evaluate(currentOverlapSum, partySize, venueMax, thresholdPercent int, isStaff bool) Check {
	c := Check{
		Current:    currentOverlapSum,
		Requested:  partySize,
		MaxAllowed: MaxAllowed(venueMax, thresholdPercent),
	}
	if isStaff {
		c.Allowed = true
		c.Bypassed = true
		return c
	}
	c.Allowed = currentOverlapSum+partySize <= c.MaxAllowed
	return c
}
