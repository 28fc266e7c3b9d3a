package analytics

import (
	"math"
	"sort"

	"paperTrader/internal/domain"

	"github.com/shopspring/decimal"
)

// Compute derives the performance snapshot of key from trades. Trades that do
// not belong to the key are ignored, so the result depends only on the trade
// set and never on the order it was passed in.
func Compute(key domain.SnapshotKey, trades []*domain.Trade) *domain.PerformanceSnapshot {
	snap := &domain.PerformanceSnapshot{Key: key}

	selected := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t == nil || !belongs(key, t) {
			continue
		}
		selected = append(selected, t)
	}
	if len(selected) == 0 {
		return snap
	}

	sort.Slice(selected, func(i, j int) bool {
		if !selected[i].ExitTime.Equal(selected[j].ExitTime) {
			return selected[i].ExitTime.Before(selected[j].ExitTime)
		}
		return selected[i].ID < selected[j].ID
	})

	var grossWin, grossLoss, equity, peak, maxDD decimal.Decimal
	returns := make([]float64, 0, len(selected))
	for _, t := range selected {
		pnl := decimal.NewFromFloat(t.PNL)
		if t.IsWin() {
			snap.Wins++
			grossWin = grossWin.Add(pnl)
		} else {
			snap.Losses++
			grossLoss = grossLoss.Add(pnl)
		}

		// Cumulative P&L starts from 0, so the initial peak is 0.
		equity = equity.Add(pnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
		returns = append(returns, t.PNLPercent)
	}

	snap.TradeCount = len(selected)
	snap.WinRate = float64(snap.Wins) / float64(snap.TradeCount)
	if snap.Wins > 0 {
		snap.AverageWin, _ = grossWin.Div(decimal.NewFromInt(int64(snap.Wins))).Round(domain.PNLPrecision).Float64()
	}
	if snap.Losses > 0 {
		snap.AverageLoss, _ = grossLoss.Div(decimal.NewFromInt(int64(snap.Losses))).Round(domain.PNLPrecision).Float64()
	}
	if grossLoss.IsNegative() {
		snap.ProfitFactor, _ = grossWin.Div(grossLoss.Abs()).Round(domain.PNLPrecision).Float64()
	}
	snap.MaxDrawdown, _ = maxDD.Round(domain.PNLPrecision).Float64()
	snap.TotalPNL, _ = equity.Round(domain.PNLPrecision).Float64()
	snap.SharpeRatio = sharpe(returns)
	return snap
}

// sharpe is the mean of the trade returns over their sample standard
// deviation. Fewer than two returns or a zero deviation give 0.
func sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	stdev := math.Sqrt(sq / float64(n-1))
	if stdev == 0 || math.IsNaN(stdev) {
		return 0
	}
	return mean / stdev
}

func belongs(key domain.SnapshotKey, t *domain.Trade) bool {
	if key.StrategyID != "" && t.StrategyID != key.StrategyID {
		return false
	}
	if key.Instrument != "" && t.Instrument != key.Instrument {
		return false
	}
	if !key.Window.From.IsZero() && t.ExitTime.Before(key.Window.From) {
		return false
	}
	if !key.Window.To.IsZero() && !t.ExitTime.Before(key.Window.To) {
		return false
	}
	return true
}
