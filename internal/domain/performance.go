package domain

import (
	"fmt"
	"time"
)

// Window is a half-open time range [From, To) over trade exit times.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// SnapshotKey identifies a PerformanceSnapshot.
type SnapshotKey struct {
	StrategyID string
	Instrument string
	Window     Window
}

func (k SnapshotKey) String() string {
	return fmt.Sprintf("%s/%s[%s,%s)", k.StrategyID, k.Instrument,
		k.Window.From.UTC().Format(time.RFC3339), k.Window.To.UTC().Format(time.RFC3339))
}

// PerformanceSnapshot is a derived summary of the trades of one key.
// It is always recomputable from the trade history.
type PerformanceSnapshot struct {
	Key          SnapshotKey
	TradeCount   int
	Wins         int
	Losses       int
	WinRate      float64 // Wins / TradeCount, 0..1
	AverageWin   float64
	AverageLoss  float64 // Negative or zero
	ProfitFactor float64 // Gross wins / |gross losses|, 0 when there are no losses
	MaxDrawdown  float64 // Largest peak-to-trough decline of cumulative PNL
	SharpeRatio  float64 // Mean trade return / stdev of trade returns
	TotalPNL     float64
	ComputedAt   time.Time
}
