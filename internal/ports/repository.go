package ports

import (
	"context"
	"time"

	"priceArena/internal/domain"
)

// RoundRepository defines the interface for storing and retrieving rounds.
type RoundRepository interface {
	// CreateRound saves a new round and returns its assigned ID.
	CreateRound(ctx context.Context, r *domain.Round) (int64, error)
	// FindRoundByID retrieves a round by its unique ID.
	// Returns nil, nil if not found.
	FindRoundByID(ctx context.Context, id int64) (*domain.Round, error)
	// FindLiveRound retrieves the most recent round with status active or
	// settling for a symbol. Returns nil, nil if no live round exists.
	FindLiveRound(ctx context.Context, symbol string) (*domain.Round, error)
	// FindRoundByStart retrieves the round for a symbol with the given aligned
	// start time, regardless of status. Returns nil, nil if not found.
	FindRoundByStart(ctx context.Context, symbol string, start time.Time) (*domain.Round, error)
	// FindRecentSettledRounds retrieves the most recent settled rounds for a
	// symbol, newest first, up to a limit.
	FindRecentSettledRounds(ctx context.Context, symbol string, limit int) ([]*domain.Round, error)
	// UpdateRoundStatus transitions a round's status.
	UpdateRoundStatus(ctx context.Context, id int64, status domain.RoundStatus) error
	// SettleRound writes the settlement fields and flips status to settled.
	SettleRound(ctx context.Context, r *domain.Round) error
}

// BetRepository defines the interface for storing and retrieving bets.
type BetRepository interface {
	// CreateBet saves a new pending bet and returns its assigned ID.
	// Returns ErrDuplicateBet if the bot already bet in the round.
	CreateBet(ctx context.Context, b *domain.Bet) (int64, error)
	// FindBetsByRound retrieves all bets for a round.
	FindBetsByRound(ctx context.Context, roundID int64) ([]*domain.Bet, error)
	// FindRecentSettledBets retrieves a bot's most recent non-pending bets for
	// a symbol, newest first, up to a limit.
	FindRecentSettledBets(ctx context.Context, botID, symbol string, limit int) ([]*domain.Bet, error)
	// SettleBet writes a bet's result and score change. A bet is settled at
	// most once; the update is atomic per bet.
	SettleBet(ctx context.Context, betID int64, result domain.BetResult, scoreChange int) error
}

// ScoreRepository defines the interface for bot score aggregates.
type ScoreRepository interface {
	// ApplyScoreChange applies a settled bet's delta to the bot's global
	// aggregate, creating the row with the initial score if missing.
	ApplyScoreChange(ctx context.Context, botID, botName string, delta int, result domain.BetResult) error
	// ApplySymbolScoreChange is the per-symbol variant of ApplyScoreChange.
	ApplySymbolScoreChange(ctx context.Context, botID, symbol string, delta int, result domain.BetResult) error
	// FindBotScore retrieves a bot's global aggregate. Returns nil, nil if the
	// bot has never been scored.
	FindBotScore(ctx context.Context, botID string) (*domain.BotScore, error)
}

// TickRepository defines the interface for per-round price snapshots.
type TickRepository interface {
	// UpsertTick records one price sample keyed by (roundID, timestampMs).
	// Duplicate keys are not an error; the last write wins.
	UpsertTick(ctx context.Context, t *domain.PriceTick) error
	// FindTicksByRound retrieves all samples for a round ordered by timestamp.
	FindTicksByRound(ctx context.Context, roundID int64) ([]*domain.PriceTick, error)
	// CountTicksByRound returns the number of stored samples for a round.
	CountTicksByRound(ctx context.Context, roundID int64) (int, error)
}

// SymbolRepository defines the interface for the symbol catalog.
type SymbolRepository interface {
	// FindEnabledSymbols retrieves all symbols the scheduler should drive.
	FindEnabledSymbols(ctx context.Context) ([]*domain.Symbol, error)
	// FindSymbol retrieves one symbol by name. Returns nil, nil if not found.
	FindSymbol(ctx context.Context, symbol string) (*domain.Symbol, error)
}
