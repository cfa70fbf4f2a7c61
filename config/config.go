package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"priceArena/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Round Parameters
	RoundDuration time.Duration // Length of one prediction round
	BettingWindow time.Duration // Time progress accrues over this window
	BettingCutoff time.Duration // Minimum remaining time for a bet to be accepted
	DrawThreshold float64       // Relative price change below which a round is a draw

	// Scoring Parameters
	WinScore     int
	LoseScore    int
	DrawScore    int
	InitialScore int     // Score a bot starts with on its first settled bet
	DecayK       float64 // Exponential time-weighting speed
	EarlyBonus   float64 // Max win bonus fraction at the window open
	LatePenalty  float64 // Max extra loss fraction at the window close

	// Streak Parameters
	StreakLookback int // Settled bets scanned when deriving a streak
	SkipLookback   int // Settled rounds scanned for the skip penalty
	SkipGrace      int // Consecutive skipped rounds tolerated before a streak resets

	// Scheduler
	SchedulerInterval time.Duration // Round lifecycle sweep cadence
	TickInterval      time.Duration // Price sampling cadence
	MinCoverage       float64       // Tick coverage ratio below which backfill runs

	// Server
	ListenAddr    string
	DefaultSymbol string
	HubFanout     int // Max concurrent broadcast writers

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Price source
	RequestsPerSecond float64 // Exchange REST rate limit
	RetryMinDelay     time.Duration
	RetryMaxDelay     time.Duration
	MaxRetries        int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Round Parameters
	roundDurationSeconds := getEnvAsInt("ROUND_DURATION_SECONDS", 600)
	if roundDurationSeconds <= 0 {
		errs = append(errs, "ROUND_DURATION_SECONDS must be positive")
	}
	cfg.RoundDuration = time.Duration(roundDurationSeconds) * time.Second

	bettingWindowSeconds := getEnvAsInt("BETTING_WINDOW_SECONDS", 420)
	if bettingWindowSeconds <= 0 {
		errs = append(errs, "BETTING_WINDOW_SECONDS must be positive")
	}
	cfg.BettingWindow = time.Duration(bettingWindowSeconds) * time.Second

	bettingCutoffSeconds := getEnvAsInt("BETTING_CUTOFF_SECONDS", 180)
	if bettingCutoffSeconds < 0 {
		errs = append(errs, "BETTING_CUTOFF_SECONDS cannot be negative")
	}
	cfg.BettingCutoff = time.Duration(bettingCutoffSeconds) * time.Second

	if bettingWindowSeconds+bettingCutoffSeconds > roundDurationSeconds {
		errs = append(errs, "BETTING_WINDOW_SECONDS + BETTING_CUTOFF_SECONDS must not exceed ROUND_DURATION_SECONDS")
	}

	cfg.DrawThreshold = getEnvAsFloat("DRAW_THRESHOLD", 0.0001)
	if cfg.DrawThreshold < 0 {
		errs = append(errs, "DRAW_THRESHOLD cannot be negative")
	}

	// Scoring Parameters
	cfg.WinScore = getEnvAsInt("WIN_SCORE", 10)
	if cfg.WinScore <= 0 {
		errs = append(errs, "WIN_SCORE must be positive")
	}
	cfg.LoseScore = getEnvAsInt("LOSE_SCORE", -5)
	if cfg.LoseScore >= 0 {
		errs = append(errs, "LOSE_SCORE must be negative")
	}
	cfg.DrawScore = getEnvAsInt("DRAW_SCORE", 0)
	cfg.InitialScore = getEnvAsInt("INITIAL_SCORE", 100)
	if cfg.InitialScore < 0 {
		errs = append(errs, "INITIAL_SCORE cannot be negative")
	}
	cfg.DecayK = getEnvAsFloat("DECAY_K", 3.0)
	if cfg.DecayK <= 0 {
		errs = append(errs, "DECAY_K must be positive")
	}
	cfg.EarlyBonus = getEnvAsFloat("EARLY_BONUS", 1.0)
	cfg.LatePenalty = getEnvAsFloat("LATE_PENALTY", 1.0)
	if cfg.EarlyBonus < 0 || cfg.LatePenalty < 0 {
		errs = append(errs, "EARLY_BONUS and LATE_PENALTY cannot be negative")
	}

	// Streak Parameters
	cfg.StreakLookback = getEnvAsInt("STREAK_LOOKBACK", 10)
	cfg.SkipLookback = getEnvAsInt("SKIP_LOOKBACK", 10)
	cfg.SkipGrace = getEnvAsInt("SKIP_GRACE", 2)
	if cfg.StreakLookback <= 0 || cfg.SkipLookback <= 0 {
		errs = append(errs, "STREAK_LOOKBACK and SKIP_LOOKBACK must be positive")
	}
	if cfg.SkipGrace < 0 {
		errs = append(errs, "SKIP_GRACE cannot be negative")
	}

	// Scheduler
	schedulerIntervalSeconds := getEnvAsInt("SCHEDULER_INTERVAL_SECONDS", 5)
	if schedulerIntervalSeconds <= 0 {
		errs = append(errs, "SCHEDULER_INTERVAL_SECONDS must be positive")
	}
	cfg.SchedulerInterval = time.Duration(schedulerIntervalSeconds) * time.Second

	tickIntervalSeconds := getEnvAsInt("TICK_INTERVAL_SECONDS", 1)
	if tickIntervalSeconds <= 0 {
		errs = append(errs, "TICK_INTERVAL_SECONDS must be positive")
	}
	cfg.TickInterval = time.Duration(tickIntervalSeconds) * time.Second

	cfg.MinCoverage = getEnvAsFloat("MIN_COVERAGE", 0.5)
	if cfg.MinCoverage < 0 || cfg.MinCoverage > 1 {
		errs = append(errs, "MIN_COVERAGE must be between 0.0 and 1.0")
	}

	// Server
	cfg.ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	if cfg.ListenAddr == "" {
		errs = append(errs, "LISTEN_ADDR must be set")
	}
	cfg.DefaultSymbol = getEnv("DEFAULT_SYMBOL", "BTCUSDT")
	if cfg.DefaultSymbol == "" {
		errs = append(errs, "DEFAULT_SYMBOL must be set")
	}
	cfg.HubFanout = getEnvAsInt("HUB_FANOUT", 32)
	if cfg.HubFanout <= 0 {
		errs = append(errs, "HUB_FANOUT must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/price_arena.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Price source
	cfg.RequestsPerSecond = getEnvAsFloat("BINANCE_REQUESTS_PER_SECOND", 8.0)
	if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "BINANCE_REQUESTS_PER_SECOND must be positive")
	}

	retryMinMs := getEnvAsInt("RETRY_MIN_DELAY_MS", 200)
	retryMaxMs := getEnvAsInt("RETRY_MAX_DELAY_MS", 5000)
	if retryMinMs <= 0 || retryMaxMs < retryMinMs {
		errs = append(errs, "invalid retry delays (RETRY_MIN_DELAY_MS must be positive and <= RETRY_MAX_DELAY_MS)")
	}
	cfg.RetryMinDelay = time.Duration(retryMinMs) * time.Millisecond
	cfg.RetryMaxDelay = time.Duration(retryMaxMs) * time.Millisecond

	cfg.MaxRetries = getEnvAsInt("MAX_RETRIES", 3)
	if cfg.MaxRetries < 0 {
		errs = append(errs, "MAX_RETRIES cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
