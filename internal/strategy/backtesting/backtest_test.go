package backtesting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/risk"
)

var start = time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC)

func hourlyBars(closes ...float64) []*domain.Bar {
	bars := make([]*domain.Bar, len(closes))
	for i, c := range closes {
		open := start.Add(time.Duration(i) * time.Hour)
		bars[i] = &domain.Bar{
			Instrument: "ETHUSDT",
			Timeframe:  "1h",
			OpenTime:   open,
			CloseTime:  open.Add(time.Hour - time.Millisecond),
			Open:       c,
			High:       c,
			Low:        c,
			Close:      c,
			Volume:     10,
			IsFinal:    true,
		}
	}
	return bars
}

func bracketStrategy() *domain.Strategy {
	return &domain.Strategy{
		ID:          "bracket",
		Instruments: []string{"ETHUSDT"},
		Direction:   domain.Long,
		Entry:       &domain.Condition{ID: "dip", Indicator: "CLOSE", Op: domain.OpLessEqual, Value: 100},
		Risk:        domain.RiskParams{Quantity: 1, StopLossPct: 0.05, TakeProfitPct: 0.05},
		Enabled:     true,
	}
}

func testConfig() BacktestConfig {
	return BacktestConfig{
		InitialBalance: 1000,
		Risk:           risk.RiskConfig{MaxQuantity: 10},
		Logger:         logger.NewStdLogger(logger.LevelError),
	}
}

func TestBacktest(t *testing.T) {
	tests := []struct {
		name         string
		bars         []*domain.Bar
		wantTrades   int
		wantOpen     int
		wantPNL      float64
		wantReasons  map[domain.ExitReason]int
		wantRejected int64
	}{
		{
			name:        "take-profit then stop-loss",
			bars:        hourlyBars(105, 100, 106, 100, 94, 103),
			wantTrades:  2,
			wantPNL:     0,
			wantReasons: map[domain.ExitReason]int{domain.ExitTakeProfit: 1, domain.ExitStopLoss: 1},
		},
		{
			name:        "position left open",
			bars:        hourlyBars(105, 100, 101),
			wantTrades:  0,
			wantOpen:    1,
			wantReasons: map[domain.ExitReason]int{},
		},
		{
			name:         "duplicate bar rejected",
			bars:         append(hourlyBars(100, 106), hourlyBars(100)...),
			wantTrades:   1,
			wantPNL:      5,
			wantReasons:  map[domain.ExitReason]int{domain.ExitTakeProfit: 1},
			wantRejected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Backtest(context.Background(), []*domain.Strategy{bracketStrategy()}, tt.bars, testConfig())
			require.NoError(t, err)

			assert.Equal(t, len(tt.bars), result.Bars)
			assert.Len(t, result.Trades, tt.wantTrades)
			assert.Equal(t, tt.wantOpen, result.OpenPositions)
			assert.Equal(t, tt.wantRejected, result.Stats.Rejected)
			assert.Equal(t, int(result.Stats.Cycles), result.AuditEntries)
			assert.InDelta(t, tt.wantPNL, result.Metrics.TotalPNL, 1e-9)
			assert.InDelta(t, 1000+tt.wantPNL, result.Metrics.FinalBalance, 1e-9)
			assert.Equal(t, tt.wantReasons, result.Metrics.ExitReasons)
			if tt.wantTrades > 0 {
				assert.NotEmpty(t, result.Snapshots)
				require.Contains(t, result.ByStrategy, "bracket")
				assert.Equal(t, tt.wantTrades, result.ByStrategy["bracket"].TradeCount)
			}
		})
	}
}

func TestBacktest_TimestampsAreHistorical(t *testing.T) {
	bars := hourlyBars(105, 100, 106)
	result, err := Backtest(context.Background(), []*domain.Strategy{bracketStrategy()}, bars, testConfig())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.True(t, bars[1].CloseTime.Equal(trade.EntryTime), "entry time %s", trade.EntryTime)
	assert.True(t, bars[2].CloseTime.Equal(trade.ExitTime), "exit time %s", trade.ExitTime)
	assert.InDelta(t, 105.0, trade.ExitPrice, 1e-9)
	require.Len(t, result.Snapshots, 1)
	assert.True(t, bars[2].CloseTime.Equal(result.Snapshots[0].ComputedAt))
}

func TestBacktest_Errors(t *testing.T) {
	rsi := bracketStrategy()
	rsi.Entry = &domain.Condition{Indicator: "RSI_14", Op: domain.OpLess, Value: 30}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name       string
		ctx        context.Context
		strategies []*domain.Strategy
		bars       []*domain.Bar
		wantErr    error
	}{
		{name: "no bars", ctx: context.Background(), strategies: []*domain.Strategy{bracketStrategy()}, wantErr: ports.ErrInvalidRequest},
		{name: "insufficient data points", ctx: context.Background(), strategies: []*domain.Strategy{rsi}, bars: hourlyBars(100, 101, 102), wantErr: ports.ErrInvalidRequest},
		{name: "no strategies", ctx: context.Background(), bars: hourlyBars(100), wantErr: ports.ErrConfigurationError},
		{name: "canceled", ctx: ctx, strategies: []*domain.Strategy{bracketStrategy()}, bars: hourlyBars(100), wantErr: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Backtest(tt.ctx, tt.strategies, tt.bars, testConfig())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
