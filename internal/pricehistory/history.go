// Package pricehistory maintains second-level price snapshots per round and
// backfills gaps from a historical-ticks provider.
package pricehistory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"priceArena/internal/domain"
	"priceArena/internal/ports"
)

// Service records live ticks and repairs coverage gaps per round.
type Service struct {
	ticks  ports.TickRepository
	source ports.PriceSource
	logger ports.Logger
	now    func() time.Time
}

// New creates a price history service.
func New(ticks ports.TickRepository, source ports.PriceSource, logger ports.Logger) (*Service, error) {
	if ticks == nil || source == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for price history service")
	}
	return &Service{
		ticks:  ticks,
		source: source,
		logger: logger,
		now:    time.Now,
	}, nil
}

// RecordTick stores one live price sample for a round. Callable repeatedly
// from the sampler; duplicate (round, timestamp) keys overwrite silently.
func (s *Service) RecordTick(ctx context.Context, roundID, timestampMs int64, price float64) error {
	return s.ticks.UpsertTick(ctx, &domain.PriceTick{
		RoundID:     roundID,
		TimestampMs: timestampMs,
		Price:       price,
	})
}

// EnsureCoverage checks a round's stored tick count against the seconds
// elapsed so far and backfills from the historical provider when coverage
// falls below minCoverage. Backfill failures are logged and swallowed; the
// full ordered tick list is always returned.
func (s *Service) EnsureCoverage(ctx context.Context, round *domain.Round, minCoverage float64) ([]*domain.PriceTick, error) {
	count, err := s.ticks.CountTicksByRound(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count ticks for round %d: %w", round.ID, err)
	}

	expected := s.expectedTicks(round)
	coverage := float64(count) / float64(expected)

	if coverage < minCoverage {
		added, err := s.backfill(ctx, round)
		if err != nil {
			// Best-effort: gaps may remain, the round keeps running.
			s.logger.Warn(ctx, "Price history backfill failed", map[string]interface{}{
				"roundID": round.ID, "symbol": round.Symbol, "error": err.Error()})
		} else if added > 0 {
			s.logger.Info(ctx, "Price history backfilled", map[string]interface{}{
				"roundID": round.ID, "added": added, "stored": count, "expected": expected})
		}
	}

	return s.ticks.FindTicksByRound(ctx, round.ID)
}

// expectedTicks returns the number of one-second samples the round should
// have accumulated by now, never less than one.
func (s *Service) expectedTicks(round *domain.Round) int {
	end := s.now().UTC()
	if round.EndTime.Before(end) {
		end = round.EndTime
	}
	elapsed := int(end.Sub(round.StartTime).Seconds())
	if elapsed < 1 {
		return 1
	}
	return elapsed
}

// backfill fetches historical trades over the round's elapsed window, buckets
// sub-second trades into one-second samples (last trade per bucket wins) and
// inserts any buckets not already stored. Returns the number added.
func (s *Service) backfill(ctx context.Context, round *domain.Round) (int, error) {
	startMs := round.StartTime.UnixMilli()
	endMs := round.EndTime.UnixMilli()
	if nowMs := s.now().UnixMilli(); nowMs < endMs {
		endMs = nowMs
	}

	existing, err := s.ticks.FindTicksByRound(ctx, round.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load existing ticks for round %d: %w", round.ID, err)
	}
	have := make(map[int64]struct{}, len(existing))
	for _, t := range existing {
		have[t.TimestampMs] = struct{}{}
	}

	trades, err := s.source.GetHistoricalTicks(ctx, round.Symbol, startMs, endMs)
	if err != nil {
		return 0, fmt.Errorf("historical ticks unavailable for %s: %w", round.Symbol, err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buckets := bucketBySecond(trades)

	added := 0
	for _, b := range buckets {
		if _, ok := have[b.TimestampMs]; ok {
			continue
		}
		if err := s.ticks.UpsertTick(ctx, &domain.PriceTick{
			RoundID:     round.ID,
			TimestampMs: b.TimestampMs,
			Price:       b.Price,
		}); err != nil {
			// Keep going; a partially repaired history is still better.
			s.logger.Warn(ctx, "Failed to insert backfilled tick", map[string]interface{}{
				"roundID": round.ID, "timestampMs": b.TimestampMs, "error": err.Error()})
			continue
		}
		added++
	}
	return added, nil
}

// bucketBySecond collapses trades into one-second buckets, keeping the last
// trade of each bucket, and returns them ordered by timestamp.
func bucketBySecond(trades []ports.HistoricalTick) []ports.HistoricalTick {
	byBucket := make(map[int64]float64, len(trades))
	for _, tr := range trades {
		bucket := tr.TimestampMs - tr.TimestampMs%1000
		byBucket[bucket] = tr.Price // Input is ordered, so the last write is the latest trade.
	}

	out := make([]ports.HistoricalTick, 0, len(byBucket))
	for ts, price := range byBucket {
		out = append(out, ports.HistoricalTick{TimestampMs: ts, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out
}
