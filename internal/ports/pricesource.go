package ports

import "context"

// HistoricalTick is one trade-level price point returned by a price source.
type HistoricalTick struct {
	TimestampMs int64
	Price       float64
}

// PriceSource defines the interface for fetching live and historical prices.
// This abstraction decouples the round lifecycle from any specific exchange.
type PriceSource interface {
	// GetPrice retrieves the current price for a symbol.
	// Failures should wrap ErrPriceUnavailable.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// GetHistoricalTicks retrieves trade-level prices in [startMs, endMs],
	// ordered by timestamp ascending. Sub-second resolution is allowed; the
	// caller is responsible for bucketing.
	GetHistoricalTicks(ctx context.Context, symbol string, startMs, endMs int64) ([]HistoricalTick, error)

	// Ping checks connectivity to the price source.
	Ping(ctx context.Context) error
}
