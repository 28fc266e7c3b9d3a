// Package analytics derives performance figures from the trade history:
// persisted snapshots for the live engine and balance-based reports for backtests.
package analytics

import (
	"sort"
	"time"

	"paperTrader/internal/domain"
)

// PerformanceMetrics extends a snapshot with balance-based figures for backtest reports.
type PerformanceMetrics struct {
	domain.PerformanceSnapshot

	InitialBalance     float64
	FinalBalance       float64
	ReturnOnInvestment float64
	MaxDrawdownPct     float64 // Largest decline relative to the balance peak, 0..1

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	Expectancy           float64
	RecoveryFactor       float64
	ExitReasons          map[domain.ExitReason]int
	MonthlyReturns       map[string]float64
	EquityCurve          []EquityPoint
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// AnalyzePerformance reports on trades as if they were taken sequentially
// from an account holding initialBalance.
func AnalyzePerformance(trades []*domain.Trade, initialBalance float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		PerformanceSnapshot: *Compute(domain.SnapshotKey{}, trades),
		InitialBalance:      initialBalance,
		FinalBalance:        initialBalance,
		ExitReasons:         make(map[domain.ExitReason]int),
		MonthlyReturns:      make(map[string]float64),
		EquityCurve:         make([]EquityPoint, 0, len(trades)),
	}
	if metrics.TradeCount == 0 {
		return metrics
	}

	ordered := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t != nil {
			ordered = append(ordered, t)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].ExitTime.Equal(ordered[j].ExitTime) {
			return ordered[i].ExitTime.Before(ordered[j].ExitTime)
		}
		return ordered[i].ID < ordered[j].ID
	})

	balance, peak := initialBalance, initialBalance
	var wins, losses int
	var held time.Duration
	for _, t := range ordered {
		if t.IsWin() {
			wins++
			losses = 0
		} else {
			losses++
			wins = 0
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, wins)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, losses)

		balance += t.PNL
		if balance > peak {
			peak = balance
		}
		var dd float64
		if peak > 0 {
			dd = (peak - balance) / peak
		}
		metrics.MaxDrawdownPct = max(metrics.MaxDrawdownPct, dd)

		metrics.ExitReasons[t.ExitReason]++
		metrics.MonthlyReturns[t.ExitTime.UTC().Format("2006-01")] += t.PNL
		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{Time: t.ExitTime, Value: balance, Drawdown: dd})
		held += t.ExitTime.Sub(t.EntryTime)
	}

	metrics.FinalBalance = balance
	if initialBalance != 0 {
		metrics.ReturnOnInvestment = (balance - initialBalance) / initialBalance
	}
	metrics.AverageTradeDuration = held / time.Duration(len(ordered))
	metrics.Expectancy = metrics.WinRate*metrics.AverageWin + (1-metrics.WinRate)*metrics.AverageLoss
	if metrics.MaxDrawdown > 0 {
		metrics.RecoveryFactor = metrics.TotalPNL / metrics.MaxDrawdown
	}
	return metrics
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}
