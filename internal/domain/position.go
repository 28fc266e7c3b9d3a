package domain

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Position represents a simulated position opened by a strategy.
type Position struct {
	ID         int64          // Unique identifier (assigned by the store)
	StrategyID string         // Owning strategy
	Instrument string         // Trading symbol (e.g., "ETHUSDT")
	Direction  Direction      // long or short
	EntryPrice float64        // Price at which the position was entered
	Quantity   float64        // Size of the position
	EntryTime  time.Time      // Timestamp when the position was entered
	StopLoss   *float64       // Optional stop-loss level
	TakeProfit *float64       // Optional take-profit level
	Status     PositionStatus // open or closed

	// Filled by the closing transition only.
	ExitPrice  float64
	ExitTime   time.Time
	ExitReason ExitReason
	PNL        float64
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Validate checks the creation invariants of a position and returns every
// violation found.
func (p *Position) Validate() error {
	var errs error
	if p.StrategyID == "" {
		errs = multierr.Append(errs, fmt.Errorf("strategy id is required"))
	}
	if p.Instrument == "" {
		errs = multierr.Append(errs, fmt.Errorf("instrument is required"))
	}
	if !p.Direction.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("unknown direction %q", p.Direction))
	}
	if !(p.EntryPrice > 0) {
		errs = multierr.Append(errs, fmt.Errorf("entry price must be positive, got %v", p.EntryPrice))
	}
	if !(p.Quantity > 0) {
		errs = multierr.Append(errs, fmt.Errorf("quantity must be positive, got %v", p.Quantity))
	}
	if p.EntryTime.IsZero() {
		errs = multierr.Append(errs, fmt.Errorf("entry time is required"))
	}
	if p.StopLoss != nil && !(*p.StopLoss > 0) {
		errs = multierr.Append(errs, fmt.Errorf("stop-loss must be positive, got %v", *p.StopLoss))
	}
	if p.TakeProfit != nil && !(*p.TakeProfit > 0) {
		errs = multierr.Append(errs, fmt.Errorf("take-profit must be positive, got %v", *p.TakeProfit))
	}

	switch p.Direction {
	case Long:
		if p.StopLoss != nil && *p.StopLoss >= p.EntryPrice {
			errs = multierr.Append(errs, fmt.Errorf("long stop-loss %v must be below entry %v", *p.StopLoss, p.EntryPrice))
		}
		if p.TakeProfit != nil && *p.TakeProfit <= p.EntryPrice {
			errs = multierr.Append(errs, fmt.Errorf("long take-profit %v must be above entry %v", *p.TakeProfit, p.EntryPrice))
		}
	case Short:
		if p.StopLoss != nil && *p.StopLoss <= p.EntryPrice {
			errs = multierr.Append(errs, fmt.Errorf("short stop-loss %v must be above entry %v", *p.StopLoss, p.EntryPrice))
		}
		if p.TakeProfit != nil && *p.TakeProfit >= p.EntryPrice {
			errs = multierr.Append(errs, fmt.Errorf("short take-profit %v must be below entry %v", *p.TakeProfit, p.EntryPrice))
		}
	}
	return errs
}

// Float returns a pointer to v. Handy for the optional stop-loss/take-profit levels.
func Float(v float64) *float64 {
	return &v
}
