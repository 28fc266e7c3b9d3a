package optimization

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/strategy/analytics"
	"paperTrader/internal/strategy/backtesting"
)

func testBars(closes ...float64) []*domain.Bar {
	start := time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC)
	bars := make([]*domain.Bar, len(closes))
	for i, c := range closes {
		open := start.Add(time.Duration(i) * 15 * time.Minute)
		bars[i] = &domain.Bar{
			Instrument: "ETHUSDT",
			Timeframe:  "15m",
			OpenTime:   open,
			CloseTime:  open.Add(15*time.Minute - time.Millisecond),
			Open:       c,
			High:       c,
			Low:        c,
			Close:      c,
			Volume:     1,
			IsFinal:    true,
		}
	}
	return bars
}

func baseStrategy() *domain.Strategy {
	return &domain.Strategy{
		ID:          "dip",
		Instruments: []string{"ETHUSDT"},
		Direction:   domain.Long,
		Entry:       &domain.Condition{Indicator: "CLOSE", Op: domain.OpLessEqual, Value: 100},
		Risk:        domain.RiskParams{Quantity: 1, StopLossPct: 0.05},
		Enabled:     true,
	}
}

func TestOptimizer(t *testing.T) {
	opt, err := NewOptimizer(OptimizerConfig{
		ParameterRanges: []ParameterRange{
			{Name: ParamTakeProfitPct, Min: 0.02, Max: 0.08, Step: 0.02},
		},
		Backtest:    backtesting.BacktestConfig{InitialBalance: 1000, Logger: logger.NewStdLogger(logger.LevelError)},
		Parallelism: 2,
		ScoreFunction: func(m *analytics.PerformanceMetrics) float64 {
			return m.TotalPNL
		},
	})
	require.NoError(t, err)

	// Price climbs to 107 after the dip, so take-profit levels above 7% never fill.
	base := baseStrategy()
	results, err := opt.Optimize(context.Background(), base, testBars(103, 100, 102, 104, 107, 103))
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.InDelta(t, 0.06, results[0].Parameters[ParamTakeProfitPct], 1e-9)
	assert.InDelta(t, 6.0, results[0].Score, 1e-9)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	last := results[len(results)-1]
	assert.InDelta(t, 0.08, last.Parameters[ParamTakeProfitPct], 1e-9)
	assert.Zero(t, last.Metrics.TradeCount)

	// Every run works on a copy.
	assert.Zero(t, base.Risk.TakeProfitPct)
	assert.Empty(t, base.Timeframe)
}

func TestNewOptimizer(t *testing.T) {
	tests := []struct {
		name    string
		ranges  []ParameterRange
		wantErr bool
	}{
		{name: "valid", ranges: []ParameterRange{{Name: ParamQuantity, Min: 1, Max: 3, Step: 1, IsInt: true}}},
		{name: "empty", wantErr: true},
		{name: "unknown parameter", ranges: []ParameterRange{{Name: "leverage", Min: 1, Max: 3, Step: 1}}, wantErr: true},
		{name: "zero step", ranges: []ParameterRange{{Name: ParamStopLossPct, Min: 0.01, Max: 0.02}}, wantErr: true},
		{name: "inverted", ranges: []ParameterRange{{Name: ParamStopLossPct, Min: 0.05, Max: 0.01, Step: 0.01}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOptimizer(OptimizerConfig{ParameterRanges: tt.ranges})
			if tt.wantErr {
				assert.ErrorIs(t, err, ports.ErrConfigurationError)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGenerateParameterCombinations(t *testing.T) {
	opt, err := NewOptimizer(OptimizerConfig{ParameterRanges: []ParameterRange{
		{Name: ParamStopLossPct, Min: 0.01, Max: 0.03, Step: 0.01},
		{Name: ParamQuantity, Min: 1, Max: 2, Step: 0.5, IsInt: true},
	}})
	require.NoError(t, err)

	combinations := opt.generateParameterCombinations()
	require.Len(t, combinations, 9)
	for _, c := range combinations {
		assert.Len(t, c, 2)
		assert.Contains(t, []float64{1, 2}, c[ParamQuantity])
	}
	assert.InDelta(t, 0.03, combinations[8][ParamStopLossPct], 1e-9)
}

func TestOptimizer_PropagatesBacktestErrors(t *testing.T) {
	opt, err := NewOptimizer(OptimizerConfig{
		ParameterRanges: []ParameterRange{{Name: ParamStopLossPct, Min: 0.01, Max: 0.02, Step: 0.01}},
		Backtest:        backtesting.BacktestConfig{Logger: logger.NewStdLogger(logger.LevelError)},
	})
	require.NoError(t, err)

	_, err = opt.Optimize(context.Background(), baseStrategy(), nil)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}
