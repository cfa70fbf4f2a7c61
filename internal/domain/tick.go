package domain

// PriceTick is a single second-level price sample for a round.
// Unique per (RoundID, TimestampMs); append-only and upsert-idempotent.
type PriceTick struct {
	RoundID     int64
	TimestampMs int64
	Price       float64
}
