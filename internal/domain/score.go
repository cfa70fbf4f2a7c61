package domain

import "time"

// BotScore is a bot's global score aggregate. Mutated only by settlement,
// once per settled bet.
type BotScore struct {
	BotID      string
	BotName    string
	TotalScore int
	Wins       int
	Losses     int
	Draws      int
}

// BotSymbolStats is the per-symbol variant of BotScore.
type BotSymbolStats struct {
	BotID     string
	Symbol    string
	Score     int
	Wins      int
	Losses    int
	Draws     int
	LastBetAt time.Time
}
