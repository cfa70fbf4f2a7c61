package domain

// Symbol is a tracked market with its per-symbol round settings.
// Only enabled symbols are driven by the scheduler.
type Symbol struct {
	Symbol        string
	DisplayName   string
	Category      string
	RoundDuration int // Seconds; falls back to the configured default when zero.
	DrawThreshold float64
	Enabled       bool
}
