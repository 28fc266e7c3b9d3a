// Package gate validates incoming bars before they are used for evaluation
// and keeps a bounded rolling window of accepted bars per series.
package gate

import (
	"fmt"
	"math"
	"sync"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"go.uber.org/multierr"
)

// DefaultMaxBars limits the rolling window kept per series.
const DefaultMaxBars = 500

// Gate implements ports.MarketDataGate.
type Gate struct {
	maxBars int

	mu     sync.RWMutex
	series map[string][]*domain.Bar
}

var _ ports.MarketDataGate = (*Gate)(nil)

// New creates a gate keeping at most maxBars per series.
func New(maxBars int) *Gate {
	if maxBars <= 0 {
		maxBars = DefaultMaxBars
	}
	return &Gate{
		maxBars: maxBars,
		series:  make(map[string][]*domain.Bar),
	}
}

// Validate checks a bar in isolation and returns every problem found.
func Validate(bar *domain.Bar) error {
	if bar == nil {
		return fmt.Errorf("%w: nil bar", ports.ErrInvalidBar)
	}
	var errs error
	if bar.Instrument == "" {
		errs = multierr.Append(errs, fmt.Errorf("instrument is required"))
	}
	if bar.Timeframe == "" {
		errs = multierr.Append(errs, fmt.Errorf("timeframe is required"))
	}
	if bar.OpenTime.IsZero() {
		errs = multierr.Append(errs, fmt.Errorf("open time is required"))
	}
	if !bar.IsFinal {
		errs = multierr.Append(errs, fmt.Errorf("bar is not final"))
	}
	prices := map[string]float64{"open": bar.Open, "high": bar.High, "low": bar.Low, "close": bar.Close}
	pricesOK := true
	for _, name := range []string{"open", "high", "low", "close"} {
		v := prices[name]
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s price must be a positive number, got %v", name, v))
			pricesOK = false
		}
	}
	if pricesOK {
		if bar.High < math.Max(bar.Open, bar.Close) || bar.High < bar.Low {
			errs = multierr.Append(errs, fmt.Errorf("high %v below open/close/low", bar.High))
		}
		if bar.Low > math.Min(bar.Open, bar.Close) {
			errs = multierr.Append(errs, fmt.Errorf("low %v above open/close", bar.Low))
		}
	}
	if math.IsNaN(bar.Volume) || bar.Volume < 0 {
		errs = multierr.Append(errs, fmt.Errorf("volume must be non-negative, got %v", bar.Volume))
	}
	if errs != nil {
		return fmt.Errorf("%w: %s %s: %w", ports.ErrInvalidBar, bar.Instrument, bar.OpenTime, errs)
	}
	return nil
}

// Accept validates bar and appends it to its series. Bars must arrive in
// strictly increasing open-time order per series.
func (g *Gate) Accept(bar *domain.Bar) error {
	if err := Validate(bar); err != nil {
		return err
	}

	key := bar.SeriesKey()
	g.mu.Lock()
	defer g.mu.Unlock()

	bars := g.series[key]
	if n := len(bars); n > 0 && !bar.OpenTime.After(bars[n-1].OpenTime) {
		return fmt.Errorf("%w: %s bar at %s does not advance past %s",
			ports.ErrInvalidBar, key, bar.OpenTime, bars[n-1].OpenTime)
	}

	bars = append(bars, bar)
	if len(bars) > g.maxBars {
		// Keep the most recent maxBars elements
		bars = bars[len(bars)-g.maxBars:]
	}
	g.series[key] = bars
	return nil
}

// Window returns a copy of the validated bars of a series, oldest first.
func (g *Gate) Window(instrument, timeframe string) []*domain.Bar {
	g.mu.RLock()
	defer g.mu.RUnlock()
	bars := g.series[domain.SeriesKey(instrument, timeframe)]
	out := make([]*domain.Bar, len(bars))
	copy(out, bars)
	return out
}

// Last returns the most recent validated bar of a series.
func (g *Gate) Last(instrument, timeframe string) (*domain.Bar, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	bars := g.series[domain.SeriesKey(instrument, timeframe)]
	if len(bars) == 0 {
		return nil, false
	}
	return bars[len(bars)-1], true
}
