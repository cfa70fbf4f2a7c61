// Package scoring implements the time-weighted, streak-amplified score model.
//
// Early bets are rewarded more than late "sniped" ones, late losses cost more
// than early ones, and streaks amplify both directions symmetrically. The
// engine is pure: no I/O, deterministic for a given config.
package scoring

import (
	"fmt"
	"math"
	"time"
)

// Config holds the tunable scoring parameters.
type Config struct {
	WinScore    int     // Base score for a win (positive).
	LoseScore   int     // Base score for a loss (negative).
	DrawScore   int     // Fixed score for a draw.
	DecayK      float64 // Exponential decay speed over the betting window.
	EarlyBonus  float64 // Max win bonus fraction at t=0.
	LatePenalty float64 // Max extra loss fraction at t=1.

	// Multipliers maps a capped streak magnitude to its amplifier. Missing
	// buckets above the largest key fall back to MaxMultiplier.
	Multipliers   map[int]float64
	StreakCap     int
	MaxMultiplier float64
}

// DefaultConfig returns the production scoring parameters.
func DefaultConfig() Config {
	return Config{
		WinScore:    10,
		LoseScore:   -5,
		DrawScore:   0,
		DecayK:      3.0,
		EarlyBonus:  1.0,
		LatePenalty: 1.0,
		Multipliers: map[int]float64{
			0: 1.0,
			1: 1.1,
			2: 1.2,
			3: 1.3,
			4: 1.45,
			5: 1.6,
		},
		StreakCap:     5,
		MaxMultiplier: 1.6,
	}
}

// Engine computes score deltas for settled bets.
type Engine struct {
	cfg Config
}

// NewEngine validates the config and returns a scoring engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.WinScore <= 0 {
		return nil, fmt.Errorf("scoring: WinScore must be positive, got %d", cfg.WinScore)
	}
	if cfg.LoseScore >= 0 {
		return nil, fmt.Errorf("scoring: LoseScore must be negative, got %d", cfg.LoseScore)
	}
	if cfg.DecayK <= 0 {
		return nil, fmt.Errorf("scoring: DecayK must be positive, got %f", cfg.DecayK)
	}
	if len(cfg.Multipliers) == 0 || cfg.StreakCap <= 0 || cfg.MaxMultiplier < 1.0 {
		return nil, fmt.Errorf("scoring: multiplier table is incomplete")
	}
	return &Engine{cfg: cfg}, nil
}

// Result is the outcome of a bet from the scoring engine's point of view.
type Result string

const (
	Win  Result = "win"
	Lose Result = "lose"
	Draw Result = "draw"
)

// TimeProgress returns the fraction of the betting window elapsed when a bet
// was placed, clamped to [0,1].
func TimeProgress(betTime, roundStart time.Time, bettingWindow time.Duration) float64 {
	if bettingWindow <= 0 {
		return 1.0
	}
	p := betTime.Sub(roundStart).Seconds() / bettingWindow.Seconds()
	return math.Min(1.0, math.Max(0.0, p))
}

// Decay returns exp(-k*t): 1.0 at the window open, falling toward ~0 at the cutoff.
func (e *Engine) Decay(timeProgress float64) float64 {
	return math.Exp(-e.cfg.DecayK * timeProgress)
}

// Multiplier looks up the streak amplifier. Only the magnitude matters: a
// 5-loss run raises the stakes exactly as a 5-win run does.
func (e *Engine) Multiplier(streak int) float64 {
	mag := streak
	if mag < 0 {
		mag = -mag
	}
	if mag > e.cfg.StreakCap {
		mag = e.cfg.StreakCap
	}
	if m, ok := e.cfg.Multipliers[mag]; ok {
		return m
	}
	return e.cfg.MaxMultiplier
}

// ScoreChange computes the score delta for one settled bet.
func (e *Engine) ScoreChange(timeProgress float64, result Result, streak int) int {
	if result == Draw {
		return e.cfg.DrawScore
	}

	decay := e.Decay(timeProgress)
	mult := e.Multiplier(streak)

	var score float64
	if result == Win {
		score = float64(e.cfg.WinScore) * (1 + e.cfg.EarlyBonus*decay) * mult
	} else {
		score = float64(e.cfg.LoseScore) * (1 + e.cfg.LatePenalty*(1-decay)) * mult
	}
	return int(math.Round(score))
}

// Estimate returns the win and lose scores a bet placed at timeProgress would
// settle to, for live display while the betting window is open.
func (e *Engine) Estimate(timeProgress float64, streak int) (winScore, loseScore int) {
	return e.ScoreChange(timeProgress, Win, streak),
		e.ScoreChange(timeProgress, Lose, streak)
}
