// Package clock computes time-aligned round boundaries.
//
// Boundaries are derived from wall-clock time alone, floored onto the Unix
// epoch grid, so every process computes identical intervals and round timing
// survives restarts without any persisted "next round" state.
package clock

import "time"

// AlignedBoundaries floors now to the nearest multiple of duration relative to
// the Unix epoch and returns the half-open interval [start, start+duration).
// Durations that do not evenly divide an hour drift across hour boundaries;
// that is accepted and not corrected here.
func AlignedBoundaries(now time.Time, duration time.Duration) (start, end time.Time) {
	secs := int64(duration.Seconds())
	if secs <= 0 {
		secs = 1
	}
	aligned := (now.Unix() / secs) * secs
	start = time.Unix(aligned, 0).UTC()
	return start, start.Add(time.Duration(secs) * time.Second)
}

// NextBoundaries returns the successor interval of the one containing now.
func NextBoundaries(now time.Time, duration time.Duration) (start, end time.Time) {
	_, end = AlignedBoundaries(now, duration)
	return end, end.Add(duration)
}
