package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Price Source Errors
	ErrPriceUnavailable = errors.New("price source is unavailable")
	ErrRateLimited      = errors.New("API rate limit exceeded")
	ErrConnectionFailed = errors.New("failed to connect to the price source")

	// Round Lifecycle Errors
	ErrRoundNotFound     = errors.New("round not found")
	ErrDuplicateInterval = errors.New("round already exists for the aligned interval")
	ErrRoundNotActive    = errors.New("round is not accepting bets")
	ErrBetWindowClosed   = errors.New("betting window has closed")
	ErrDuplicateBet      = errors.New("bot already bet in this round")
	ErrSymbolDisabled    = errors.New("symbol is not enabled")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
