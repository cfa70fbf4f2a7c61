package hub

import (
	"priceArena/internal/domain"
)

// Event is the wire envelope for every server-to-client message.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventRoundStart  = "round_start"
	EventPriceTick   = "price_tick"
	EventRoundEnd    = "round_end"
	EventNoRound     = "no_round"
	EventPong        = "pong"
	EventError       = "error"
	EventBetAccepted = "bet_accepted"
)

// ScoringEstimate previews what a bet placed right now would settle to.
type ScoringEstimate struct {
	TimeProgress float64 `json:"time_progress"`
	WinScore     int     `json:"win_score"`
	LoseScore    int     `json:"lose_score"`
}

// RoundStartPayload announces a live round to a symbol's subscribers. Scoring
// is present only while the betting window is open.
type RoundStartPayload struct {
	RoundID          int64            `json:"round_id"`
	Symbol           string           `json:"symbol"`
	StartTime        int64            `json:"start_time"`
	EndTime          int64            `json:"end_time"`
	OpenPrice        float64          `json:"open_price"`
	Status           string           `json:"status"`
	RemainingSeconds int              `json:"remaining_seconds"`
	BettingOpen      bool             `json:"betting_open"`
	Scoring          *ScoringEstimate `json:"scoring,omitempty"`
}

// PriceTickPayload carries one price sample for the symbol's live round.
type PriceTickPayload struct {
	Symbol           string  `json:"symbol"`
	RoundID          int64   `json:"round_id"`
	Price            float64 `json:"price"`
	TimestampMs      int64   `json:"timestamp_ms"`
	RemainingSeconds int     `json:"remaining_seconds"`
	ChangePercent    float64 `json:"change_percent"`
}

// BetOutcome is one bot's settled bet inside a round_end event.
type BetOutcome struct {
	BotID       string `json:"bot_id"`
	BotName     string `json:"bot_name"`
	Direction   string `json:"direction"`
	Result      string `json:"result"`
	ScoreChange int    `json:"score_change"`
}

// RoundEndPayload announces settlement with every bet's outcome.
type RoundEndPayload struct {
	RoundID            int64        `json:"round_id"`
	Symbol             string       `json:"symbol"`
	OpenPrice          float64      `json:"open_price"`
	ClosePrice         float64      `json:"close_price"`
	PriceChangePercent float64      `json:"price_change_percent"`
	Result             string       `json:"result"`
	Bets               []BetOutcome `json:"bets"`
}

// BetAcceptedPayload acknowledges a placed bet back to its own connection.
type BetAcceptedPayload struct {
	BetID        int64   `json:"bet_id"`
	RoundID      int64   `json:"round_id"`
	Symbol       string  `json:"symbol"`
	Direction    string  `json:"direction"`
	TimeProgress float64 `json:"time_progress"`
}

// NoRoundPayload tells a fresh subscriber the symbol has no live round yet.
type NoRoundPayload struct {
	Symbol string `json:"symbol"`
}

// ErrorPayload reports a rejected client action.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewRoundEndEvent builds a round_end event from a settled round and its bets.
func NewRoundEndEvent(rd *domain.Round, bets []*domain.Bet) *Event {
	outcomes := make([]BetOutcome, 0, len(bets))
	for _, b := range bets {
		outcomes = append(outcomes, BetOutcome{
			BotID:       b.BotID,
			BotName:     b.BotName,
			Direction:   string(b.Direction),
			Result:      string(b.Result),
			ScoreChange: b.ScoreChange,
		})
	}
	return &Event{Type: EventRoundEnd, Data: RoundEndPayload{
		RoundID:            rd.ID,
		Symbol:             rd.Symbol,
		OpenPrice:          rd.OpenPrice,
		ClosePrice:         rd.ClosePrice,
		PriceChangePercent: rd.PriceChange * 100,
		Result:             string(rd.Result),
		Bets:               outcomes,
	}}
}

// NewNoRoundEvent builds a no_round event for the symbol.
func NewNoRoundEvent(symbol string) *Event {
	return &Event{Type: EventNoRound, Data: NoRoundPayload{Symbol: symbol}}
}

// NewErrorEvent builds an error event with the given message.
func NewErrorEvent(msg string) *Event {
	return &Event{Type: EventError, Data: ErrorPayload{Message: msg}}
}
