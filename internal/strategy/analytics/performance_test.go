package analytics

import (
	"testing"
	"time"

	"paperTrader/internal/domain"
)

var day = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func trade(id int64, pnl, pct float64, exitAfter time.Duration, reason domain.ExitReason) *domain.Trade {
	return &domain.Trade{
		ID:         id,
		PositionID: id,
		StrategyID: "rsi",
		Instrument: "BTCUSDT",
		Direction:  domain.Long,
		EntryPrice: 50000,
		ExitPrice:  50000 + pnl*10,
		Quantity:   0.1,
		PNL:        pnl,
		PNLPercent: pct,
		EntryTime:  day,
		ExitTime:   day.Add(exitAfter),
		ExitReason: reason,
	}
}

func TestAnalyzePerformance(t *testing.T) {
	initialBalance := 10000.0
	trades := []*domain.Trade{
		trade(1, 1000, 20, 24*time.Hour, domain.ExitTakeProfit),
		trade(2, -1000, -20, 6*time.Hour, domain.ExitStopLoss),
	}

	metrics := AnalyzePerformance(trades, initialBalance)

	if metrics.TradeCount != 2 {
		t.Errorf("Expected 2 total trades, got %d", metrics.TradeCount)
	}
	if metrics.Wins != 1 {
		t.Errorf("Expected 1 winning trade, got %d", metrics.Wins)
	}
	if metrics.Losses != 1 {
		t.Errorf("Expected 1 losing trade, got %d", metrics.Losses)
	}
	if metrics.WinRate != 0.5 {
		t.Errorf("Expected 0.5 win rate, got %f", metrics.WinRate)
	}
	if metrics.TotalPNL != 0 {
		t.Errorf("Expected 0 total profit, got %f", metrics.TotalPNL)
	}
	if metrics.FinalBalance != initialBalance {
		t.Errorf("Expected final balance of %f, got %f", initialBalance, metrics.FinalBalance)
	}
	if metrics.MaxConsecutiveWins != 1 {
		t.Errorf("Expected 1 max consecutive wins, got %d", metrics.MaxConsecutiveWins)
	}
	if metrics.MaxConsecutiveLosses != 1 {
		t.Errorf("Expected 1 max consecutive losses, got %d", metrics.MaxConsecutiveLosses)
	}
	if metrics.AverageWin != 1000 {
		t.Errorf("Expected 1000 average win, got %f", metrics.AverageWin)
	}
	if metrics.AverageLoss != -1000 {
		t.Errorf("Expected -1000 average loss, got %f", metrics.AverageLoss)
	}
	if metrics.ProfitFactor != 1.0 {
		t.Errorf("Expected 1.0 profit factor, got %f", metrics.ProfitFactor)
	}
	if metrics.ExitReasons[domain.ExitTakeProfit] != 1 || metrics.ExitReasons[domain.ExitStopLoss] != 1 {
		t.Errorf("Unexpected exit reason counts %v", metrics.ExitReasons)
	}
	if len(metrics.EquityCurve) != 2 {
		t.Errorf("Expected 2 equity curve points, got %d", len(metrics.EquityCurve))
	}
	// The stop-loss trade exits first.
	if metrics.EquityCurve[0].Value != 9000 {
		t.Errorf("Expected first equity point 9000, got %f", metrics.EquityCurve[0].Value)
	}
	if metrics.AverageTradeDuration != 15*time.Hour {
		t.Errorf("Expected 15h average duration, got %s", metrics.AverageTradeDuration)
	}

	monthlyReturns := metrics.GetMonthlyReturns()
	if len(monthlyReturns) != 1 {
		t.Errorf("Expected 1 monthly return, got %d", len(monthlyReturns))
	}
}

func TestAnalyzePerformanceEmptyTrades(t *testing.T) {
	metrics := AnalyzePerformance([]*domain.Trade{}, 10000.0)
	if metrics.TradeCount != 0 {
		t.Errorf("Expected 0 total trades, got %d", metrics.TradeCount)
	}
	if metrics.FinalBalance != 10000.0 {
		t.Errorf("Expected final balance of 10000.0, got %f", metrics.FinalBalance)
	}
}

func TestAnalyzePerformanceDrawdown(t *testing.T) {
	trades := []*domain.Trade{
		trade(1, 1000, 20, 6*time.Hour, domain.ExitTakeProfit),
		trade(2, -2200, -44, 18*time.Hour, domain.ExitStopLoss),
	}

	metrics := AnalyzePerformance(trades, 10000.0)

	if metrics.MaxDrawdownPct != 0.2 {
		t.Errorf("Expected 0.2 max drawdown pct, got %f", metrics.MaxDrawdownPct)
	}
	if metrics.MaxDrawdown != 2200 {
		t.Errorf("Expected 2200 absolute max drawdown, got %f", metrics.MaxDrawdown)
	}
}

func TestAnalyzePerformanceConsecutiveTrades(t *testing.T) {
	trades := []*domain.Trade{
		trade(1, 1000, 20, 6*time.Hour, domain.ExitTakeProfit),
		trade(2, 1000, 20, 18*time.Hour, domain.ExitTakeProfit),
	}

	metrics := AnalyzePerformance(trades, 10000.0)

	if metrics.MaxConsecutiveWins != 2 {
		t.Errorf("Expected 2 max consecutive wins, got %d", metrics.MaxConsecutiveWins)
	}
	if metrics.MaxConsecutiveLosses != 0 {
		t.Errorf("Expected 0 max consecutive losses, got %d", metrics.MaxConsecutiveLosses)
	}
	if metrics.WinRate != 1.0 {
		t.Errorf("Expected 1.0 win rate, got %f", metrics.WinRate)
	}
	if metrics.ProfitFactor != 0 {
		t.Errorf("Expected 0 profit factor without losses, got %f", metrics.ProfitFactor)
	}
}
