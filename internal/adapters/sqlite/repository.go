package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"priceArena/internal/domain"
	"priceArena/internal/ports"

	"github.com/mattn/go-sqlite3"
)

// Repository implements the storage ports (rounds, bets, scores, ticks,
// symbols) using SQLite.
type Repository struct {
	db           *sql.DB
	logger       ports.Logger
	initialScore int
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath       string
	Logger       ports.Logger
	InitialScore int // Starting score for a bot's first settled bet.
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/arena.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the scheduler and readers
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, initialScore: cfg.InitialScore}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS symbols (
		symbol TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		category TEXT NOT NULL,
		round_duration INTEGER NOT NULL,
		draw_threshold REAL NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		open_price REAL NOT NULL,
		close_price REAL DEFAULT NULL,
		price_change REAL DEFAULT NULL,
		result TEXT DEFAULT NULL,
		status TEXT NOT NULL,
		bet_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE (symbol, start_time)
	);

	CREATE TABLE IF NOT EXISTS bets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		round_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		bot_id TEXT NOT NULL,
		bot_name TEXT NOT NULL,
		direction TEXT NOT NULL,
		time_progress REAL NOT NULL,
		result TEXT NOT NULL DEFAULT 'pending',
		score_change INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (round_id, bot_id)
	);

	CREATE TABLE IF NOT EXISTS bot_scores (
		bot_id TEXT PRIMARY KEY,
		bot_name TEXT NOT NULL,
		total_score INTEGER NOT NULL,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		draws INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS bot_symbol_stats (
		bot_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		score INTEGER NOT NULL,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		draws INTEGER NOT NULL DEFAULT 0,
		last_bet_at TIMESTAMP DEFAULT NULL,
		PRIMARY KEY (bot_id, symbol)
	);

	CREATE TABLE IF NOT EXISTS price_snapshots (
		round_id INTEGER NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		price REAL NOT NULL,
		PRIMARY KEY (round_id, timestamp_ms)
	);

	CREATE INDEX IF NOT EXISTS idx_rounds_symbol_status ON rounds (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_bets_round ON bets (round_id);
	CREATE INDEX IF NOT EXISTS idx_bets_bot_symbol ON bets (bot_id, symbol, created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- RoundRepository Implementation ---

// CreateRound saves a new round and returns its assigned ID.
func (r *Repository) CreateRound(ctx context.Context, round *domain.Round) (int64, error) {
	const query = `
	INSERT INTO rounds (symbol, start_time, end_time, open_price, status, bet_count)
	VALUES (?, ?, ?, ?, ?, 0)`

	result, err := r.db.ExecContext(ctx, query,
		round.Symbol, round.StartTime.UTC(), round.EndTime.UTC(), round.OpenPrice, round.Status)
	if err != nil {
		if isConstraintErr(err) {
			return 0, fmt.Errorf("round for %s at %s: %w",
				round.Symbol, round.StartTime.UTC().Format(time.RFC3339), ports.ErrDuplicateInterval)
		}
		return 0, fmt.Errorf("failed to insert round for symbol %s: %w", round.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for round %s: %w", round.Symbol, err)
	}
	round.ID = id
	r.logger.Debug(ctx, "Round created", map[string]interface{}{"roundID": id, "symbol": round.Symbol})
	return id, nil
}

// FindRoundByID retrieves a round by its unique ID.
func (r *Repository) FindRoundByID(ctx context.Context, id int64) (*domain.Round, error) {
	row := r.db.QueryRowContext(ctx, selectRound+` WHERE id = ?`, id)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query round by ID %d: %w", id, err)
	}
	return round, nil
}

// FindLiveRound retrieves the most recent active or settling round for a symbol.
func (r *Repository) FindLiveRound(ctx context.Context, symbol string) (*domain.Round, error) {
	row := r.db.QueryRowContext(ctx,
		selectRound+` WHERE symbol = ? AND status IN (?, ?) ORDER BY start_time DESC LIMIT 1`,
		symbol, domain.RoundActive, domain.RoundSettling)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query live round for symbol %s: %w", symbol, err)
	}
	return round, nil
}

// FindRoundByStart retrieves the round for a symbol with the given aligned start time.
func (r *Repository) FindRoundByStart(ctx context.Context, symbol string, start time.Time) (*domain.Round, error) {
	row := r.db.QueryRowContext(ctx,
		selectRound+` WHERE symbol = ? AND start_time = ?`, symbol, start.UTC())
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query round for symbol %s at %s: %w",
			symbol, start.UTC().Format(time.RFC3339), err)
	}
	return round, nil
}

// FindRecentSettledRounds retrieves the most recent settled rounds, newest first.
func (r *Repository) FindRecentSettledRounds(ctx context.Context, symbol string, limit int) ([]*domain.Round, error) {
	rows, err := r.db.QueryContext(ctx,
		selectRound+` WHERE symbol = ? AND status = ? ORDER BY start_time DESC LIMIT ?`,
		symbol, domain.RoundSettled, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query settled rounds for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	rounds := make([]*domain.Round, 0)
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round during FindRecentSettledRounds: %w", err)
		}
		rounds = append(rounds, round)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating round rows: %w", err)
	}
	return rounds, nil
}

// UpdateRoundStatus transitions a round's status.
func (r *Repository) UpdateRoundStatus(ctx context.Context, id int64, status domain.RoundStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE rounds SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status for round ID %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for round ID %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("round ID %d not found for status update: %w", id, ports.ErrRoundNotFound)
	}
	r.logger.Debug(ctx, "Round status updated", map[string]interface{}{"roundID": id, "status": status})
	return nil
}

// SettleRound writes the settlement fields and flips status to settled.
func (r *Repository) SettleRound(ctx context.Context, round *domain.Round) error {
	const query = `
	UPDATE rounds
	SET close_price = ?, price_change = ?, result = ?, status = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		round.ClosePrice, round.PriceChange, round.Result, domain.RoundSettled, round.ID)
	if err != nil {
		return fmt.Errorf("failed to settle round ID %d: %w", round.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for settle round ID %d: %w", round.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("round ID %d not found for settlement: %w", round.ID, ports.ErrRoundNotFound)
	}
	round.Status = domain.RoundSettled
	r.logger.Debug(ctx, "Round settled", map[string]interface{}{
		"roundID": round.ID, "result": round.Result, "closePrice": round.ClosePrice})
	return nil
}

// --- BetRepository Implementation ---

// CreateBet saves a new pending bet and bumps the round's bet count in one transaction.
func (r *Repository) CreateBet(ctx context.Context, b *domain.Bet) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for bet: %w", err)
	}
	defer tx.Rollback()

	const query = `
	INSERT INTO bets (round_id, symbol, bot_id, bot_name, direction, time_progress, result, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, query,
		b.RoundID, b.Symbol, b.BotID, b.BotName, b.Direction, b.TimeProgress, domain.BetPending, b.CreatedAt.UTC())
	if err != nil {
		if isConstraintErr(err) {
			return 0, fmt.Errorf("bot %s already bet in round %d: %w", b.BotID, b.RoundID, ports.ErrDuplicateBet)
		}
		return 0, fmt.Errorf("failed to insert bet for round %d: %w", b.RoundID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for bet in round %d: %w", b.RoundID, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE rounds SET bet_count = bet_count + 1 WHERE id = ?`, b.RoundID); err != nil {
		return 0, fmt.Errorf("failed to increment bet count for round %d: %w", b.RoundID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bet for round %d: %w", b.RoundID, err)
	}

	b.ID = id
	b.Result = domain.BetPending
	r.logger.Debug(ctx, "Bet created", map[string]interface{}{
		"betID": id, "roundID": b.RoundID, "botID": b.BotID, "direction": b.Direction})
	return id, nil
}

// FindBetsByRound retrieves all bets for a round.
func (r *Repository) FindBetsByRound(ctx context.Context, roundID int64) ([]*domain.Bet, error) {
	rows, err := r.db.QueryContext(ctx, selectBet+` WHERE round_id = ? ORDER BY created_at`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets for round %d: %w", roundID, err)
	}
	defer rows.Close()

	bets := make([]*domain.Bet, 0)
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet during FindBetsByRound: %w", err)
		}
		bets = append(bets, bet)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bet rows: %w", err)
	}
	return bets, nil
}

// FindRecentSettledBets retrieves a bot's most recent non-pending bets for a symbol, newest first.
func (r *Repository) FindRecentSettledBets(ctx context.Context, botID, symbol string, limit int) ([]*domain.Bet, error) {
	rows, err := r.db.QueryContext(ctx,
		selectBet+` WHERE bot_id = ? AND symbol = ? AND result != ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		botID, symbol, domain.BetPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query settled bets for bot %s on %s: %w", botID, symbol, err)
	}
	defer rows.Close()

	bets := make([]*domain.Bet, 0)
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet during FindRecentSettledBets: %w", err)
		}
		bets = append(bets, bet)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bet rows: %w", err)
	}
	return bets, nil
}

// SettleBet writes a bet's result and score change. The pending-only guard
// keeps retried settlements from applying a delta twice.
func (r *Repository) SettleBet(ctx context.Context, betID int64, result domain.BetResult, scoreChange int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bets SET result = ?, score_change = ? WHERE id = ? AND result = ?`,
		result, scoreChange, betID, domain.BetPending)
	if err != nil {
		return fmt.Errorf("failed to settle bet ID %d: %w", betID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for settle bet ID %d: %w", betID, err)
	}
	if affected == 0 {
		return fmt.Errorf("bet ID %d is not pending: %w", betID, ports.ErrNotFound)
	}
	return nil
}

// --- ScoreRepository Implementation ---

// ApplyScoreChange applies a settled bet's delta to the bot's global aggregate,
// creating the row with the initial score if missing.
func (r *Repository) ApplyScoreChange(ctx context.Context, botID, botName string, delta int, result domain.BetResult) error {
	wins, losses, draws := resultIncrements(result)

	const query = `
	INSERT INTO bot_scores (bot_id, bot_name, total_score, wins, losses, draws)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (bot_id) DO UPDATE SET
		total_score = total_score + ?,
		wins = wins + excluded.wins,
		losses = losses + excluded.losses,
		draws = draws + excluded.draws`

	_, err := r.db.ExecContext(ctx, query,
		botID, botName, r.initialScore+delta, wins, losses, draws, delta)
	if err != nil {
		return fmt.Errorf("failed to apply score change for bot %s: %w", botID, err)
	}
	return nil
}

// ApplySymbolScoreChange is the per-symbol variant of ApplyScoreChange.
func (r *Repository) ApplySymbolScoreChange(ctx context.Context, botID, symbol string, delta int, result domain.BetResult) error {
	wins, losses, draws := resultIncrements(result)

	const query = `
	INSERT INTO bot_symbol_stats (bot_id, symbol, score, wins, losses, draws, last_bet_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (bot_id, symbol) DO UPDATE SET
		score = score + ?,
		wins = wins + excluded.wins,
		losses = losses + excluded.losses,
		draws = draws + excluded.draws,
		last_bet_at = excluded.last_bet_at`

	_, err := r.db.ExecContext(ctx, query,
		botID, symbol, r.initialScore+delta, wins, losses, draws, time.Now().UTC(), delta)
	if err != nil {
		return fmt.Errorf("failed to apply symbol score change for bot %s on %s: %w", botID, symbol, err)
	}
	return nil
}

// FindBotScore retrieves a bot's global aggregate.
func (r *Repository) FindBotScore(ctx context.Context, botID string) (*domain.BotScore, error) {
	const query = `SELECT bot_id, bot_name, total_score, wins, losses, draws FROM bot_scores WHERE bot_id = ?`

	s := &domain.BotScore{}
	err := r.db.QueryRowContext(ctx, query, botID).Scan(
		&s.BotID, &s.BotName, &s.TotalScore, &s.Wins, &s.Losses, &s.Draws)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query score for bot %s: %w", botID, err)
	}
	return s, nil
}

// --- TickRepository Implementation ---

// UpsertTick records one price sample keyed by (roundID, timestampMs).
// Last write for a given key wins.
func (r *Repository) UpsertTick(ctx context.Context, t *domain.PriceTick) error {
	const query = `
	INSERT INTO price_snapshots (round_id, timestamp_ms, price)
	VALUES (?, ?, ?)
	ON CONFLICT (round_id, timestamp_ms) DO UPDATE SET price = excluded.price`

	_, err := r.db.ExecContext(ctx, query, t.RoundID, t.TimestampMs, t.Price)
	if err != nil {
		return fmt.Errorf("failed to upsert tick for round %d at %d: %w", t.RoundID, t.TimestampMs, err)
	}
	return nil
}

// FindTicksByRound retrieves all samples for a round ordered by timestamp.
func (r *Repository) FindTicksByRound(ctx context.Context, roundID int64) ([]*domain.PriceTick, error) {
	const query = `
	SELECT round_id, timestamp_ms, price FROM price_snapshots
	WHERE round_id = ? ORDER BY timestamp_ms`

	rows, err := r.db.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks for round %d: %w", roundID, err)
	}
	defer rows.Close()

	ticks := make([]*domain.PriceTick, 0)
	for rows.Next() {
		t := &domain.PriceTick{}
		if err := rows.Scan(&t.RoundID, &t.TimestampMs, &t.Price); err != nil {
			return nil, fmt.Errorf("failed to scan tick during FindTicksByRound: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tick rows: %w", err)
	}
	return ticks, nil
}

// CountTicksByRound returns the number of stored samples for a round.
func (r *Repository) CountTicksByRound(ctx context.Context, roundID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_snapshots WHERE round_id = ?`, roundID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ticks for round %d: %w", roundID, err)
	}
	return count, nil
}

// --- SymbolRepository Implementation ---

// FindEnabledSymbols retrieves all symbols the scheduler should drive.
func (r *Repository) FindEnabledSymbols(ctx context.Context) ([]*domain.Symbol, error) {
	rows, err := r.db.QueryContext(ctx, selectSymbol+` WHERE enabled = 1 ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled symbols: %w", err)
	}
	defer rows.Close()

	symbols := make([]*domain.Symbol, 0)
	for rows.Next() {
		s, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan symbol during FindEnabledSymbols: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbol rows: %w", err)
	}
	return symbols, nil
}

// FindSymbol retrieves one symbol by name.
func (r *Repository) FindSymbol(ctx context.Context, symbol string) (*domain.Symbol, error) {
	row := r.db.QueryRowContext(ctx, selectSymbol+` WHERE symbol = ?`, symbol)
	s, err := scanSymbol(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query symbol %s: %w", symbol, err)
	}
	return s, nil
}

// SeedSymbols inserts the given symbols if the catalog is empty.
func (r *Repository) SeedSymbols(ctx context.Context, symbols []*domain.Symbol) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count symbols: %w", err)
	}
	if count > 0 {
		r.logger.Debug(ctx, "Symbol catalog already seeded", map[string]interface{}{"count": count})
		return nil
	}

	const query = `
	INSERT INTO symbols (symbol, display_name, category, round_duration, draw_threshold, enabled)
	VALUES (?, ?, ?, ?, ?, ?)`

	for _, s := range symbols {
		if _, err := r.db.ExecContext(ctx, query,
			s.Symbol, s.DisplayName, s.Category, s.RoundDuration, s.DrawThreshold, s.Enabled); err != nil {
			return fmt.Errorf("failed to seed symbol %s: %w", s.Symbol, err)
		}
	}
	r.logger.Info(ctx, "Symbol catalog seeded", map[string]interface{}{"count": len(symbols)})
	return nil
}

// --- Helper Scan Functions ---

const selectRound = `
	SELECT id, symbol, start_time, end_time, open_price,
	       COALESCE(close_price, 0), COALESCE(price_change, 0),
	       COALESCE(result, ''), status, bet_count
	FROM rounds`

const selectBet = `
	SELECT id, round_id, symbol, bot_id, bot_name, direction,
	       time_progress, result, score_change, created_at
	FROM bets`

const selectSymbol = `
	SELECT symbol, display_name, category, round_duration, draw_threshold, enabled
	FROM symbols`

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRound scans a row into a domain.Round struct.
func scanRound(s scanner) (*domain.Round, error) {
	rd := &domain.Round{}
	var status, result string
	err := s.Scan(
		&rd.ID, &rd.Symbol, &rd.StartTime, &rd.EndTime, &rd.OpenPrice,
		&rd.ClosePrice, &rd.PriceChange, &result, &status, &rd.BetCount)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	rd.StartTime = rd.StartTime.UTC()
	rd.EndTime = rd.EndTime.UTC()
	rd.Status = domain.RoundStatus(status)
	rd.Result = domain.RoundResult(result)
	return rd, nil
}

// scanBet scans a row into a domain.Bet struct.
func scanBet(s scanner) (*domain.Bet, error) {
	b := &domain.Bet{}
	var direction, result string
	err := s.Scan(
		&b.ID, &b.RoundID, &b.Symbol, &b.BotID, &b.BotName, &direction,
		&b.TimeProgress, &result, &b.ScoreChange, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.Direction = domain.BetDirection(direction)
	b.Result = domain.BetResult(result)
	return b, nil
}

// scanSymbol scans a row into a domain.Symbol struct.
func scanSymbol(s scanner) (*domain.Symbol, error) {
	sym := &domain.Symbol{}
	err := s.Scan(&sym.Symbol, &sym.DisplayName, &sym.Category,
		&sym.RoundDuration, &sym.DrawThreshold, &sym.Enabled)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func resultIncrements(result domain.BetResult) (wins, losses, draws int) {
	switch result {
	case domain.BetWin:
		return 1, 0, 0
	case domain.BetLose:
		return 0, 1, 0
	default:
		return 0, 0, 1
	}
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
