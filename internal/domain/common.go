package domain

// RoundStatus represents the lifecycle state of a round.
type RoundStatus string

const (
	RoundPending  RoundStatus = "pending"
	RoundActive   RoundStatus = "active"
	RoundSettling RoundStatus = "settling"
	RoundSettled  RoundStatus = "settled"
)

// RoundResult is the settled direction of a round.
type RoundResult string

const (
	ResultUp   RoundResult = "up"
	ResultDown RoundResult = "down"
	ResultDraw RoundResult = "draw"
	ResultNone RoundResult = "" // Unset before settlement.
)

// BetDirection is the side a bot takes on a round.
type BetDirection string

const (
	DirectionLong  BetDirection = "long"
	DirectionShort BetDirection = "short"
)

// Wins reports whether a bet in this direction wins under the given round result.
func (d BetDirection) Wins(res RoundResult) bool {
	return (d == DirectionLong && res == ResultUp) ||
		(d == DirectionShort && res == ResultDown)
}

// BetResult is the settled outcome of a single bet.
type BetResult string

const (
	BetPending BetResult = "pending"
	BetWin     BetResult = "win"
	BetLose    BetResult = "lose"
	BetDraw    BetResult = "draw"
)
