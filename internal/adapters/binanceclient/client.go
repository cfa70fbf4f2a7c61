// Package binanceclient implements ports.PriceSource against the Binance
// futures REST API using the go-binance library.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"priceArena/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Binance caps agg-trade pages at 1000 entries.
	aggTradePageLimit = 1000
)

// Client implements the ports.PriceSource interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	limiter       *rate.Limiter
	retryMin      time.Duration
	retryMax      time.Duration
	maxRetries    int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger

	// RequestsPerSecond bounds outbound REST calls; zero picks a safe default.
	RequestsPerSecond float64
	RetryMin          time.Duration
	RetryMax          time.Duration
	MaxRetries        int
}

// New creates a new Binance price source adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Mark price and agg trades are public endpoints, so empty keys are fine.
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	retryMin := cfg.RetryMin
	if retryMin <= 0 {
		retryMin = 500 * time.Millisecond
	}
	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = 5 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		limiter:       rate.NewLimiter(rate.Limit(rps), int(rps)),
		retryMin:      retryMin,
		retryMax:      retryMax,
		maxRetries:    maxRetries,
	}, nil
}

// handleError translates Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", operation, ports.ErrContextCanceled)
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		default:
			mappedErr = ports.ErrPriceUnavailable
		}
		c.logger.Warn(ctx, "Binance API error", fields)
		return fmt.Errorf("%s failed (code %d): %w", operation, apiErr.Code, mappedErr)
	}

	c.logger.Warn(ctx, "Binance request error", fields)
	return fmt.Errorf("%s failed: %v: %w", operation, err, ports.ErrPriceUnavailable)
}

// GetPrice retrieves the current mark price for a symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	const op = "GetPrice"
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", op, ports.ErrContextCanceled)
	}

	res, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("%s: no premium index data for %s: %w", op, symbol, ports.ErrPriceUnavailable)
	}

	price, err := strconv.ParseFloat(res[0].MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to parse mark price %q for %s: %w", op, res[0].MarkPrice, symbol, ports.ErrPriceUnavailable)
	}
	return price, nil
}

// GetHistoricalTicks retrieves aggregated trades in [startMs, endMs], ordered
// by timestamp ascending. Pages through the API and retries transient failures
// with exponential backoff.
func (c *Client) GetHistoricalTicks(ctx context.Context, symbol string, startMs, endMs int64) ([]ports.HistoricalTick, error) {
	const op = "GetHistoricalTicks"
	if endMs < startMs {
		return nil, fmt.Errorf("%s: end %d before start %d: %w", op, endMs, startMs, ports.ErrInvalidRequest)
	}

	ticks := make([]ports.HistoricalTick, 0)
	cursor := startMs

	for cursor <= endMs {
		trades, err := c.fetchAggTradePage(ctx, symbol, cursor, endMs)
		if err != nil {
			return nil, err
		}
		if len(trades) == 0 {
			break
		}

		last := int64(0)
		for _, tr := range trades {
			price, perr := strconv.ParseFloat(tr.Price, 64)
			if perr != nil {
				c.logger.Warn(ctx, "Skipping unparsable agg trade price", map[string]interface{}{
					"symbol": symbol, "price": tr.Price})
				continue
			}
			if tr.Timestamp > endMs {
				return sortTicks(ticks), nil
			}
			ticks = append(ticks, ports.HistoricalTick{TimestampMs: tr.Timestamp, Price: price})
			last = tr.Timestamp
		}

		if len(trades) < aggTradePageLimit {
			break
		}
		// Next page starts just past the last trade seen.
		cursor = last + 1
	}

	return sortTicks(ticks), nil
}

// fetchAggTradePage fetches one page of agg trades with retry on transient errors.
func (c *Client) fetchAggTradePage(ctx context.Context, symbol string, startMs, endMs int64) ([]*futures.AggTrade, error) {
	const op = "GetHistoricalTicks"

	b := &backoff.Backoff{
		Min:    c.retryMin,
		Max:    c.retryMax,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, ports.ErrContextCanceled)
		}

		trades, err := c.futuresClient.NewAggTradesService().
			Symbol(symbol).
			StartTime(startMs).
			EndTime(endMs).
			Limit(aggTradePageLimit).
			Do(ctx)
		if err == nil {
			return trades, nil
		}

		lastErr = c.handleError(ctx, err, op)
		if errors.Is(lastErr, ports.ErrContextCanceled) {
			return nil, lastErr
		}

		delay := b.Duration()
		c.logger.Warn(ctx, "Agg trade fetch failed, retrying", map[string]interface{}{
			"symbol": symbol, "attempt": attempt + 1, "delay": delay.String()})
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ports.ErrContextCanceled)
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// Ping checks connectivity to the Binance API.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("Ping: %w", ports.ErrContextCanceled)
	}
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Ping")
	}
	return nil
}

func sortTicks(ticks []ports.HistoricalTick) []ports.HistoricalTick {
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].TimestampMs < ticks[j].TimestampMs })
	return ticks
}
