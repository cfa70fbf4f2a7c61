// Package round owns the round lifecycle: creation on aligned intervals, bet
// placement, and settlement with time-weighted, streak-amplified scoring.
package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"priceArena/internal/clock"
	"priceArena/internal/domain"
	"priceArena/internal/ports"
	"priceArena/internal/scoring"
)

// Config holds the lifecycle parameters.
type Config struct {
	DefaultRoundDuration time.Duration // Used when a symbol has no duration of its own.
	DefaultDrawThreshold float64
	BettingWindow        time.Duration // Bets accrue time progress over this window.
	BettingCutoff        time.Duration // Minimum remaining time for a bet to be accepted.
	StreakLookback       int           // Settled bets scanned when deriving a streak.
	SkipLookback         int           // Settled rounds scanned for the skip penalty.
	SkipGrace            int           // Consecutive skipped rounds tolerated before the streak resets.
}

// Manager drives round state transitions and settlement.
type Manager struct {
	cfg     Config
	logger  ports.Logger
	rounds  ports.RoundRepository
	bets    ports.BetRepository
	scores  ports.ScoreRepository
	symbols ports.SymbolRepository
	prices  ports.PriceSource
	engine  *scoring.Engine

	now func() time.Time
}

// NewManager creates a round lifecycle manager.
func NewManager(
	cfg Config,
	logger ports.Logger,
	rounds ports.RoundRepository,
	bets ports.BetRepository,
	scores ports.ScoreRepository,
	symbols ports.SymbolRepository,
	prices ports.PriceSource,
	engine *scoring.Engine,
) (*Manager, error) {
	if logger == nil || rounds == nil || bets == nil || scores == nil || symbols == nil || prices == nil || engine == nil {
		return nil, fmt.Errorf("missing required dependencies for round manager")
	}
	if cfg.DefaultRoundDuration <= 0 {
		return nil, fmt.Errorf("DefaultRoundDuration must be positive")
	}
	if cfg.BettingWindow <= 0 || cfg.BettingCutoff < 0 {
		return nil, fmt.Errorf("invalid betting window configuration")
	}
	if cfg.StreakLookback <= 0 || cfg.SkipLookback <= 0 || cfg.SkipGrace < 0 {
		return nil, fmt.Errorf("invalid streak configuration")
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		rounds:  rounds,
		bets:    bets,
		scores:  scores,
		symbols: symbols,
		prices:  prices,
		engine:  engine,
		now:     time.Now,
	}, nil
}

// SetClock overrides the manager's time source. Used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// roundDuration returns the symbol's configured duration or the default.
func (m *Manager) roundDuration(sym *domain.Symbol) time.Duration {
	if sym.RoundDuration > 0 {
		return time.Duration(sym.RoundDuration) * time.Second
	}
	return m.cfg.DefaultRoundDuration
}

func (m *Manager) drawThreshold(sym *domain.Symbol) float64 {
	if sym.DrawThreshold > 0 {
		return sym.DrawThreshold
	}
	return m.cfg.DefaultDrawThreshold
}

// EnsureRound guarantees the symbol has a round covering the current aligned
// interval. Returns the round and whether this call created it. A round that
// already exists for the interval, even settled, makes this a no-op. Price
// source failures wrap ports.ErrPriceUnavailable and are retried by the
// caller on its next tick.
func (m *Manager) EnsureRound(ctx context.Context, sym *domain.Symbol) (*domain.Round, bool, error) {
	live, err := m.rounds.FindLiveRound(ctx, sym.Symbol)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up live round for %s: %w", sym.Symbol, err)
	}
	if live != nil {
		return live, false, nil
	}

	start, end := clock.AlignedBoundaries(m.now(), m.roundDuration(sym))

	existing, err := m.rounds.FindRoundByStart(ctx, sym.Symbol, start)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up round for %s at %s: %w", sym.Symbol, start, err)
	}
	if existing != nil {
		// The interval is already owned, possibly by a settled round. Nothing
		// to do until the next interval begins.
		return existing, false, nil
	}

	openPrice, err := m.prices.GetPrice(ctx, sym.Symbol)
	if err != nil {
		if !errors.Is(err, ports.ErrPriceUnavailable) {
			err = fmt.Errorf("%v: %w", err, ports.ErrPriceUnavailable)
		}
		return nil, false, fmt.Errorf("failed to capture open price for %s: %w", sym.Symbol, err)
	}

	rd := &domain.Round{
		Symbol:    sym.Symbol,
		StartTime: start,
		EndTime:   end,
		OpenPrice: openPrice,
		Status:    domain.RoundActive,
	}
	if _, err := m.rounds.CreateRound(ctx, rd); err != nil {
		if errors.Is(err, ports.ErrDuplicateInterval) {
			// Lost a race with an overlapping tick; treat as success.
			winner, ferr := m.rounds.FindRoundByStart(ctx, sym.Symbol, start)
			if ferr == nil && winner != nil {
				return winner, false, nil
			}
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to create round for %s: %w", sym.Symbol, err)
	}

	m.logger.Info(ctx, "Round created", map[string]interface{}{
		"roundID": rd.ID, "symbol": sym.Symbol, "openPrice": openPrice,
		"start": start.Format(time.RFC3339), "end": end.Format(time.RFC3339)})
	return rd, true, nil
}

// PlaceBet records a bot's prediction on the symbol's active round, storing
// the bet's time progress within the betting window at placement.
func (m *Manager) PlaceBet(ctx context.Context, symbol, botID, botName string, direction domain.BetDirection) (*domain.Bet, error) {
	sym, err := m.symbols.FindSymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to look up symbol %s: %w", symbol, err)
	}
	if sym == nil {
		return nil, fmt.Errorf("symbol %s: %w", symbol, ports.ErrNotFound)
	}
	if !sym.Enabled {
		return nil, fmt.Errorf("symbol %s: %w", symbol, ports.ErrSymbolDisabled)
	}

	rd, err := m.rounds.FindLiveRound(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to look up live round for %s: %w", symbol, err)
	}
	if rd == nil || rd.Status != domain.RoundActive {
		return nil, fmt.Errorf("no active round for %s: %w", symbol, ports.ErrRoundNotActive)
	}

	now := m.now().UTC()
	if !m.BettingOpen(rd, now) {
		return nil, fmt.Errorf("round %d for %s: %w", rd.ID, symbol, ports.ErrBetWindowClosed)
	}

	bet := &domain.Bet{
		RoundID:      rd.ID,
		Symbol:       symbol,
		BotID:        botID,
		BotName:      botName,
		Direction:    direction,
		TimeProgress: scoring.TimeProgress(now, rd.StartTime, m.cfg.BettingWindow),
		CreatedAt:    now,
	}
	if _, err := m.bets.CreateBet(ctx, bet); err != nil {
		return nil, err
	}

	m.logger.Info(ctx, "Bet placed", map[string]interface{}{
		"betID": bet.ID, "roundID": rd.ID, "botID": botID,
		"direction": direction, "timeProgress": bet.TimeProgress})
	return bet, nil
}

// BetsForRound returns the round's bets, settled or pending.
func (m *Manager) BetsForRound(ctx context.Context, roundID int64) ([]*domain.Bet, error) {
	return m.bets.FindBetsByRound(ctx, roundID)
}

// BettingOpen reports whether the round still accepts bets at the given time.
func (m *Manager) BettingOpen(rd *domain.Round, now time.Time) bool {
	return rd.Status == domain.RoundActive &&
		time.Duration(rd.RemainingSeconds(now))*time.Second >= m.cfg.BettingCutoff
}

// OutcomeStatus tags the result of a settlement attempt.
type OutcomeStatus int

const (
	// OutcomeSettled means the round reached its terminal state this call.
	OutcomeSettled OutcomeStatus = iota
	// OutcomeSkipped means there was nothing to do (unknown round or already
	// settled); callers log and move on.
	OutcomeSkipped
	// OutcomeRetryable means settlement failed after the round entered
	// settling; it was reverted to active for the next tick to retry.
	OutcomeRetryable
)

// Outcome is the explicit settlement result the scheduler branches on.
type Outcome struct {
	Status OutcomeStatus
	Round  *domain.Round // Populated when Status is OutcomeSettled.
	Reason string
	Err    error
}

// Settle finalizes a round: captures the close price, classifies the result,
// scores every bet and applies aggregates, then marks the round settled.
//
// Settlement is not one atomic transaction: per-bet updates committed before a
// failure persist across the retry. The pending-only guard on bet settlement
// keeps those deltas from being applied twice when the retry reprocesses the
// round.
func (m *Manager) Settle(ctx context.Context, roundID int64) Outcome {
	rd, err := m.rounds.FindRoundByID(ctx, roundID)
	if err != nil {
		return Outcome{Status: OutcomeRetryable, Reason: "round lookup failed", Err: err}
	}
	if rd == nil {
		m.logger.Warn(ctx, "Settle called on unknown round", map[string]interface{}{"roundID": roundID})
		return Outcome{Status: OutcomeSkipped, Reason: "round not found"}
	}
	if !rd.Live() {
		// Terminal state reached by an earlier call; idempotent no-op.
		return Outcome{Status: OutcomeSkipped, Reason: fmt.Sprintf("round status is %s", rd.Status)}
	}

	sym, err := m.symbols.FindSymbol(ctx, rd.Symbol)
	if err != nil || sym == nil {
		return Outcome{Status: OutcomeRetryable, Reason: "symbol lookup failed", Err: err}
	}

	// Commit barrier: reduces, but does not eliminate, double-settlement races
	// between overlapping ticks.
	if rd.Status == domain.RoundActive {
		if err := m.rounds.UpdateRoundStatus(ctx, rd.ID, domain.RoundSettling); err != nil {
			return Outcome{Status: OutcomeRetryable, Reason: "failed to enter settling", Err: err}
		}
		rd.Status = domain.RoundSettling
	}

	closePrice, err := m.prices.GetPrice(ctx, rd.Symbol)
	if err != nil {
		m.revertToActive(ctx, rd.ID)
		return Outcome{Status: OutcomeRetryable, Reason: "close price unavailable", Err: err}
	}

	rd.ClosePrice = closePrice
	rd.PriceChange = (closePrice - rd.OpenPrice) / rd.OpenPrice
	rd.Result = classify(rd.PriceChange, m.drawThreshold(sym))

	bets, err := m.bets.FindBetsByRound(ctx, rd.ID)
	if err != nil {
		m.revertToActive(ctx, rd.ID)
		return Outcome{Status: OutcomeRetryable, Reason: "failed to load bets", Err: err}
	}

	for _, bet := range bets {
		if err := m.settleBet(ctx, rd, bet); err != nil {
			m.revertToActive(ctx, rd.ID)
			return Outcome{Status: OutcomeRetryable, Reason: "bet settlement failed", Err: err}
		}
	}

	if err := m.rounds.SettleRound(ctx, rd); err != nil {
		m.revertToActive(ctx, rd.ID)
		return Outcome{Status: OutcomeRetryable, Reason: "failed to finalize round", Err: err}
	}

	m.logger.Info(ctx, "Round settled", map[string]interface{}{
		"roundID": rd.ID, "symbol": rd.Symbol, "result": rd.Result,
		"priceChange": fmt.Sprintf("%.4f%%", rd.PriceChange*100), "bets": len(bets)})
	return Outcome{Status: OutcomeSettled, Round: rd}
}

// settleBet scores one bet and applies its aggregates. A bet already settled
// by a previous attempt is skipped entirely so its delta is not reapplied.
func (m *Manager) settleBet(ctx context.Context, rd *domain.Round, bet *domain.Bet) error {
	if bet.Result != domain.BetPending {
		return nil
	}

	streak, err := m.streakForBot(ctx, bet.BotID, rd.Symbol)
	if err != nil {
		return fmt.Errorf("failed to derive streak for bot %s: %w", bet.BotID, err)
	}

	var betResult domain.BetResult
	var scoreResult scoring.Result
	switch {
	case rd.Result == domain.ResultDraw:
		betResult, scoreResult = domain.BetDraw, scoring.Draw
	case bet.Direction.Wins(rd.Result):
		betResult, scoreResult = domain.BetWin, scoring.Win
	default:
		betResult, scoreResult = domain.BetLose, scoring.Lose
	}

	delta := m.engine.ScoreChange(bet.TimeProgress, scoreResult, streak)

	if err := m.bets.SettleBet(ctx, bet.ID, betResult, delta); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			// Settled by a racing attempt; aggregates were applied there.
			return nil
		}
		return err
	}
	if err := m.scores.ApplyScoreChange(ctx, bet.BotID, bet.BotName, delta, betResult); err != nil {
		return err
	}
	if err := m.scores.ApplySymbolScoreChange(ctx, bet.BotID, rd.Symbol, delta, betResult); err != nil {
		return err
	}

	m.logger.Debug(ctx, "Bet settled", map[string]interface{}{
		"betID": bet.ID, "botID": bet.BotID, "result": betResult,
		"scoreChange": delta, "streak": streak})
	return nil
}

// streakForBot derives the bot's signed streak on a symbol from its most
// recent settled bets. Draws are transparent: they neither extend nor break a
// run. Separately, a bot that sat out more than SkipGrace consecutive recent
// rounds forfeits the streak entirely, so runs cannot be protected by
// selectively skipping rounds.
func (m *Manager) streakForBot(ctx context.Context, botID, symbol string) (int, error) {
	recent, err := m.bets.FindRecentSettledBets(ctx, botID, symbol, m.cfg.StreakLookback)
	if err != nil {
		return 0, err
	}
	if len(recent) == 0 {
		return 0, nil
	}

	skipped, err := m.consecutiveSkips(ctx, botID, symbol)
	if err != nil {
		return 0, err
	}
	if skipped > m.cfg.SkipGrace {
		m.logger.Debug(ctx, "Streak forfeited by skipped rounds", map[string]interface{}{
			"botID": botID, "symbol": symbol, "skipped": skipped, "grace": m.cfg.SkipGrace})
		return 0, nil
	}

	streak := 0
	for _, bet := range recent { // newest first
		switch bet.Result {
		case domain.BetDraw:
			continue
		case domain.BetWin:
			if streak < 0 {
				return streak, nil
			}
			streak++
		case domain.BetLose:
			if streak > 0 {
				return streak, nil
			}
			streak--
		}
	}
	return streak, nil
}

// consecutiveSkips counts how many of the symbol's most recent settled rounds,
// newest first, the bot did not bet in, stopping at the first round it did.
func (m *Manager) consecutiveSkips(ctx context.Context, botID, symbol string) (int, error) {
	recentRounds, err := m.rounds.FindRecentSettledRounds(ctx, symbol, m.cfg.SkipLookback)
	if err != nil {
		return 0, err
	}
	if len(recentRounds) == 0 {
		return 0, nil
	}

	recentBets, err := m.bets.FindRecentSettledBets(ctx, botID, symbol, m.cfg.SkipLookback)
	if err != nil {
		return 0, err
	}
	betIn := make(map[int64]struct{}, len(recentBets))
	for _, b := range recentBets {
		betIn[b.RoundID] = struct{}{}
	}

	skips := 0
	for _, rd := range recentRounds {
		if _, ok := betIn[rd.ID]; ok {
			break
		}
		skips++
	}
	return skips, nil
}

// revertToActive undoes the settling transition so the next tick retries.
func (m *Manager) revertToActive(ctx context.Context, roundID int64) {
	if err := m.rounds.UpdateRoundStatus(ctx, roundID, domain.RoundActive); err != nil {
		// The round stays in settling; Settle accepts that state too.
		m.logger.Error(ctx, err, "Failed to revert round to active", map[string]interface{}{"roundID": roundID})
	}
}

// classify maps a relative price change to the round result.
func classify(priceChange, threshold float64) domain.RoundResult {
	abs := priceChange
	if abs < 0 {
		abs = -abs
	}
	if abs < threshold {
		return domain.ResultDraw
	}
	if priceChange > 0 {
		return domain.ResultUp
	}
	return domain.ResultDown
}
