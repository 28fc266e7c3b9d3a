package ports

import (
	"context"
	"time"

	"paperTrader/internal/domain"
)

// BarSource provides historical and live bars for an instrument and timeframe.
type BarSource interface {
	// History retrieves the most recent closed bars, oldest first.
	History(ctx context.Context, instrument, timeframe string, limit int) ([]*domain.Bar, error)

	// HistoryRange retrieves bars between start and end, oldest first.
	HistoryRange(ctx context.Context, instrument, timeframe string, start, end time.Time) ([]*domain.Bar, error)

	// Stream starts a live bar stream.
	// Returns channels to control the stream (doneCh, stopCh) or an error if connection fails.
	Stream(ctx context.Context, instrument, timeframe string, handler func(bar *domain.Bar), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// Ping checks the connectivity to the source.
	Ping(ctx context.Context) error
}

// MarketDataGate validates bars before they reach evaluation and keeps the
// rolling window of validated bars per series.
type MarketDataGate interface {
	// Accept validates bar and appends it to its series.
	// Invalid bars are rejected with ErrInvalidBar and never stored.
	Accept(bar *domain.Bar) error
	// Window returns a copy of the validated bars of a series, oldest first.
	Window(instrument, timeframe string) []*domain.Bar
	// Last returns the most recent validated bar of a series.
	Last(instrument, timeframe string) (*domain.Bar, bool)
}
