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

	// Lifecycle Errors
	ErrContention         = errors.New("position already closed or held by a concurrent operation")
	ErrHoldTimeout        = errors.New("timed out waiting for exclusive hold")
	ErrInvariantViolation = errors.New("data invariant violation")
	ErrEvaluation         = errors.New("condition evaluation fault")
	ErrDataQuality        = errors.New("data quality fault")
	ErrRiskLimit          = errors.New("risk limit reached")

	// Market Data Errors
	ErrInvalidBar       = errors.New("invalid market data bar")
	ErrConnectionFailed = errors.New("failed to connect to the market data source")
	ErrRateLimited      = errors.New("API rate limit exceeded")

	// Database Specific Errors
	ErrStorage        = errors.New("persistent store unavailable")
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrAppendOnly     = errors.New("record is immutable")
)

// IsRetryable reports whether the failed cycle may be retried on the next tick.
// Only storage faults qualify; contention and invariant violations are terminal
// for the cycle that hit them.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsContended reports whether err is a contention outcome: the position was
// already closed by a competing attempt, or the hold could not be acquired in time.
func IsContended(err error) bool {
	return errors.Is(err, ErrContention)
}
