package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// PNLTolerance is the largest accepted difference between a stored P&L and
// the value recomputed from the trade's prices.
const PNLTolerance = 0.01

// PNLPrecision is the number of decimal places P&L values are rounded to.
const PNLPrecision = 8

// Trade represents the immutable record created when a position closes.
type Trade struct {
	ID         int64      // Unique identifier for the trade (assigned by the store)
	PositionID int64      // Identifier of the position this trade closed (unique)
	StrategyID string     // Strategy that owned the position
	Instrument string     // Trading symbol (e.g., "ETHUSDT")
	Direction  Direction  // Direction of the closed position
	EntryPrice float64    // Price at which the position was entered
	ExitPrice  float64    // Price at which the position was exited
	Quantity   float64    // Size of the position traded
	PNL        float64    // Realized profit and loss
	PNLPercent float64    // PNL relative to entry notional, in percent
	EntryTime  time.Time  // Timestamp when the position was entered
	ExitTime   time.Time  // Timestamp when the position was exited
	ExitReason ExitReason // Reason why the position was closed
}

// RealizedPNL returns the P&L of a round trip: (exit-entry)*qty for long and
// (entry-exit)*qty for short, rounded to PNLPrecision places.
func RealizedPNL(dir Direction, entry, exit, qty float64) decimal.Decimal {
	e := decimal.NewFromFloat(entry)
	x := decimal.NewFromFloat(exit)
	q := decimal.NewFromFloat(qty)

	diff := x.Sub(e)
	if dir == Short {
		diff = e.Sub(x)
	}
	return diff.Mul(q).Round(PNLPrecision)
}

// IsWin reports whether the trade realized a strictly positive P&L.
func (t *Trade) IsWin() bool {
	return t.PNL > 0
}

// Validate checks the invariants every stored trade must satisfy.
func (t *Trade) Validate() error {
	var errs error
	if t.PositionID <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("position id is required"))
	}
	if !t.Direction.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("unknown direction %q", t.Direction))
	}
	if !(t.EntryPrice > 0) {
		errs = multierr.Append(errs, fmt.Errorf("entry price must be positive, got %v", t.EntryPrice))
	}
	if !(t.ExitPrice > 0) {
		errs = multierr.Append(errs, fmt.Errorf("exit price must be positive, got %v", t.ExitPrice))
	}
	if !(t.Quantity > 0) {
		errs = multierr.Append(errs, fmt.Errorf("quantity must be positive, got %v", t.Quantity))
	}
	if !t.ExitTime.After(t.EntryTime) {
		errs = multierr.Append(errs, fmt.Errorf("exit time %s must be after entry time %s",
			t.ExitTime.Format(time.RFC3339Nano), t.EntryTime.Format(time.RFC3339Nano)))
	}
	if !t.ExitReason.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("unknown exit reason %q", t.ExitReason))
	}
	if t.Direction.Valid() {
		want, _ := RealizedPNL(t.Direction, t.EntryPrice, t.ExitPrice, t.Quantity).Float64()
		if math.IsNaN(t.PNL) || math.Abs(t.PNL-want) >= PNLTolerance {
			errs = multierr.Append(errs, fmt.Errorf("pnl %v does not match recomputed %v", t.PNL, want))
		}
	}
	return errs
}
