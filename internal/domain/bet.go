package domain

import "time"

// Bet is a single bot's prediction on one round. Unique per (RoundID, BotID).
// Created pending at placement, settled exactly once, then immutable.
type Bet struct {
	ID           int64
	RoundID      int64
	Symbol       string
	BotID        string
	BotName      string
	Direction    BetDirection
	TimeProgress float64 // Fraction of the betting window elapsed at placement, in [0,1].
	Result       BetResult
	ScoreChange  int // Applied at settlement; zero while pending.
	CreatedAt    time.Time
}
