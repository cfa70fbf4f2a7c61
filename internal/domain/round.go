package domain

import "time"

// Round is one fixed-duration prediction window for a single symbol.
// A round is created when the symbol enters a new aligned interval and is
// mutated exactly once, at settlement.
type Round struct {
	ID          int64
	Symbol      string
	StartTime   time.Time // Aligned to the symbol's round duration.
	EndTime     time.Time // StartTime + duration.
	OpenPrice   float64
	ClosePrice  float64     // Zero until settled.
	PriceChange float64     // (close-open)/open, set at settlement.
	Result      RoundResult // Unset until settled.
	Status      RoundStatus
	BetCount    int
}

// Live reports whether the round still owns its symbol's current interval.
func (r *Round) Live() bool {
	return r.Status == RoundActive || r.Status == RoundSettling
}

// RemainingSeconds returns the whole seconds left until the round ends,
// clamped at zero.
func (r *Round) RemainingSeconds(now time.Time) int {
	rem := int(r.EndTime.Sub(now).Seconds())
	if rem < 0 {
		return 0
	}
	return rem
}
