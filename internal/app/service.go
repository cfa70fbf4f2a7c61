// Package app wires the round lifecycle, price feed and broadcast hub into the
// running arena service.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"priceArena/internal/domain"
	"priceArena/internal/hub"
	"priceArena/internal/ports"
	"priceArena/internal/pricehistory"
	"priceArena/internal/round"
	"priceArena/internal/scoring"

	"golang.org/x/sync/errgroup"
)

// Config holds the service-level parameters.
type Config struct {
	SchedulerInterval time.Duration // Round lifecycle sweep cadence.
	TickInterval      time.Duration // Price sampling cadence.
	BettingWindow     time.Duration // Mirrors the manager's window, for estimates.
	MinCoverage       float64       // Tick coverage ratio required before backfill kicks in.
}

// Service drives the arena: it owns the scheduler and price loops and pushes
// their events through the hub. All collaborators are injected.
type Service struct {
	cfg     Config
	logger  ports.Logger
	rounds  ports.RoundRepository
	symbols ports.SymbolRepository
	prices  ports.PriceSource
	manager *round.Manager
	history *pricehistory.Service
	engine  *scoring.Engine
	events  *hub.Hub

	now func() time.Time
}

// NewService creates the arena service.
func NewService(
	cfg Config,
	logger ports.Logger,
	rounds ports.RoundRepository,
	symbols ports.SymbolRepository,
	prices ports.PriceSource,
	manager *round.Manager,
	history *pricehistory.Service,
	engine *scoring.Engine,
	events *hub.Hub,
) (*Service, error) {
	if logger == nil || rounds == nil || symbols == nil || prices == nil ||
		manager == nil || history == nil || engine == nil || events == nil {
		return nil, fmt.Errorf("missing required dependencies for arena service")
	}
	if cfg.SchedulerInterval <= 0 || cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("scheduler and tick intervals must be positive")
	}
	if cfg.MinCoverage < 0 || cfg.MinCoverage > 1 {
		return nil, fmt.Errorf("MinCoverage must be within [0,1], got %f", cfg.MinCoverage)
	}
	return &Service{
		cfg:     cfg,
		logger:  logger,
		rounds:  rounds,
		symbols: symbols,
		prices:  prices,
		manager: manager,
		history: history,
		engine:  engine,
		events:  events,
		now:     time.Now,
	}, nil
}

// SetClock overrides the service's time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Start runs the scheduler and price loops until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Arena service starting", map[string]interface{}{
		"schedulerInterval": s.cfg.SchedulerInterval.String(),
		"tickInterval":      s.cfg.TickInterval.String()})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runScheduler(ctx) })
	g.Go(func() error { return s.runPriceLoop(ctx) })

	err := g.Wait()
	s.events.PublishAll(context.Background(), hub.NewErrorEvent("server shutting down"))
	s.logger.Info(context.Background(), "Arena service stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Service) runScheduler(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SchedulerInterval)
	defer ticker.Stop()

	s.sweepRounds(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepRounds(ctx)
		}
	}
}

// sweepRounds advances every enabled symbol's round lifecycle. A failure on
// one symbol never blocks the others.
func (s *Service) sweepRounds(ctx context.Context) {
	symbols, err := s.symbols.FindEnabledSymbols(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load enabled symbols")
		return
	}

	for _, sym := range symbols {
		if err := s.sweepSymbol(ctx, sym); err != nil {
			s.logger.Error(ctx, err, "Round sweep failed", map[string]interface{}{"symbol": sym.Symbol})
		}
	}
}

func (s *Service) sweepSymbol(ctx context.Context, sym *domain.Symbol) error {
	live, err := s.rounds.FindLiveRound(ctx, sym.Symbol)
	if err != nil {
		return fmt.Errorf("failed to look up live round: %w", err)
	}

	now := s.now().UTC()
	if live != nil && now.Before(live.EndTime) {
		return nil
	}

	if live != nil {
		if err := s.settleAndAnnounce(ctx, live); err != nil {
			return err
		}
	}

	rd, created, err := s.manager.EnsureRound(ctx, sym)
	if err != nil {
		return err
	}
	if created {
		s.events.Publish(ctx, sym.Symbol, s.roundStartEvent(rd))
	}
	return nil
}

// settleAndAnnounce finalizes an expired round and broadcasts the outcome.
// Price history is reconciled first so the settled round's chart is complete;
// that reconciliation is best-effort and never blocks settlement.
func (s *Service) settleAndAnnounce(ctx context.Context, live *domain.Round) error {
	if _, err := s.history.EnsureCoverage(ctx, live, s.cfg.MinCoverage); err != nil {
		s.logger.Warn(ctx, "Price history reconciliation failed", map[string]interface{}{
			"roundID": live.ID, "error": err.Error()})
	}

	outcome := s.manager.Settle(ctx, live.ID)
	switch outcome.Status {
	case round.OutcomeSettled:
		bets, err := s.manager.BetsForRound(ctx, outcome.Round.ID)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to load bets for round_end broadcast", map[string]interface{}{
				"roundID": outcome.Round.ID})
			bets = nil
		}
		s.events.Publish(ctx, outcome.Round.Symbol, hub.NewRoundEndEvent(outcome.Round, bets))
		return nil
	case round.OutcomeSkipped:
		s.logger.Debug(ctx, "Settlement skipped", map[string]interface{}{
			"roundID": live.ID, "reason": outcome.Reason})
		return nil
	default:
		return fmt.Errorf("settlement of round %d will retry (%s): %w", live.ID, outcome.Reason, outcome.Err)
	}
}

func (s *Service) runPriceLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sampleAll(ctx)
		}
	}
}

// sampleAll records one price sample per enabled symbol's active round and
// broadcasts it.
func (s *Service) sampleAll(ctx context.Context) {
	symbols, err := s.symbols.FindEnabledSymbols(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load enabled symbols")
		return
	}

	for _, sym := range symbols {
		if err := s.sampleSymbol(ctx, sym); err != nil {
			s.logger.Warn(ctx, "Price sample failed", map[string]interface{}{
				"symbol": sym.Symbol, "error": err.Error()})
		}
	}
}

func (s *Service) sampleSymbol(ctx context.Context, sym *domain.Symbol) error {
	live, err := s.rounds.FindLiveRound(ctx, sym.Symbol)
	if err != nil {
		return fmt.Errorf("failed to look up live round: %w", err)
	}
	if live == nil || live.Status != domain.RoundActive {
		return nil
	}

	price, err := s.prices.GetPrice(ctx, sym.Symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	now := s.now().UTC()
	tsMs := now.UnixMilli()
	if err := s.history.RecordTick(ctx, live.ID, tsMs, price); err != nil {
		s.logger.Warn(ctx, "Failed to persist price tick", map[string]interface{}{
			"roundID": live.ID, "error": err.Error()})
	}

	changePercent := 0.0
	if live.OpenPrice > 0 {
		changePercent = (price - live.OpenPrice) / live.OpenPrice * 100
	}
	s.events.Publish(ctx, sym.Symbol, &hub.Event{Type: hub.EventPriceTick, Data: hub.PriceTickPayload{
		Symbol:           sym.Symbol,
		RoundID:          live.ID,
		Price:            price,
		TimestampMs:      tsMs,
		RemainingSeconds: live.RemainingSeconds(now),
		ChangePercent:    changePercent,
	}})
	return nil
}

// roundStartEvent builds a round_start event. While the betting window is open
// the payload carries a live scoring estimate for a streak-less bet placed now.
func (s *Service) roundStartEvent(rd *domain.Round) *hub.Event {
	now := s.now().UTC()
	payload := hub.RoundStartPayload{
		RoundID:          rd.ID,
		Symbol:           rd.Symbol,
		StartTime:        rd.StartTime.Unix(),
		EndTime:          rd.EndTime.Unix(),
		OpenPrice:        rd.OpenPrice,
		Status:           string(rd.Status),
		RemainingSeconds: rd.RemainingSeconds(now),
		BettingOpen:      s.manager.BettingOpen(rd, now),
	}
	if payload.BettingOpen {
		t := scoring.TimeProgress(now, rd.StartTime, s.cfg.BettingWindow)
		win, lose := s.engine.Estimate(t, 0)
		payload.Scoring = &hub.ScoringEstimate{TimeProgress: t, WinScore: win, LoseScore: lose}
	}
	return &hub.Event{Type: hub.EventRoundStart, Data: payload}
}

// CurrentRoundEvent returns the snapshot event a fresh subscriber of the
// symbol should receive: round_start when a round is live, no_round otherwise.
func (s *Service) CurrentRoundEvent(ctx context.Context, symbol string) *hub.Event {
	live, err := s.rounds.FindLiveRound(ctx, symbol)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load round snapshot", map[string]interface{}{"symbol": symbol})
		return hub.NewErrorEvent("round snapshot unavailable")
	}
	if live == nil {
		return hub.NewNoRoundEvent(symbol)
	}
	return s.roundStartEvent(live)
}
