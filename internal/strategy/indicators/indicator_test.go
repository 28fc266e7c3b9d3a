package indicators

import (
	"context"
	"testing"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsFromCloses(closes ...float64) []*domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = &domain.Bar{
			Instrument: "ETHUSDT",
			Timeframe:  "1h",
			OpenTime:   start.Add(time.Duration(i) * time.Hour),
			Open:       c,
			High:       c + 1,
			Low:        c - 1,
			Close:      c,
			Volume:     100 + float64(i),
			IsFinal:    true,
		}
	}
	return bars
}

func TestRSI_Calculate(t *testing.T) {
	tests := []struct {
		name          string
		period        int
		bars          []*domain.Bar
		expectedValue float64
		expectError   bool
	}{
		{
			name:          "RSI with sufficient data",
			period:        3,
			bars:          barsFromCloses(100, 102, 101, 103, 102, 104),
			expectedValue: 77.272727, // Wilder's smoothing
		},
		{
			name:        "Insufficient data",
			period:      7,
			bars:        barsFromCloses(100, 102, 101, 103, 102, 104),
			expectError: true,
		},
		{
			name:          "All gains",
			period:        3,
			bars:          barsFromCloses(100, 102, 104, 106),
			expectedValue: 100.0,
		},
		{
			name:          "All losses",
			period:        3,
			bars:          barsFromCloses(106, 104, 102, 100),
			expectedValue: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI("RSI", RSIConfig{IndicatorConfig: IndicatorConfig{Period: tt.period}})
			value, err := rsi.Calculate(context.Background(), tt.bars)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expectedValue, value, 0.0001)
		})
	}
}

func TestMovingAverage_Calculate(t *testing.T) {
	bars := barsFromCloses(1, 2, 3, 4, 5)

	tests := []struct {
		name     string
		maType   MovingAverageType
		period   int
		expected float64
		wantErr  bool
	}{
		{name: "SMA", maType: SimpleMovingAverage, period: 3, expected: 4},
		{name: "EMA seeded with SMA", maType: ExponentialMovingAverage, period: 3, expected: 4},
		{name: "insufficient data", maType: SimpleMovingAverage, period: 10, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma := NewMovingAverage(string(tt.maType), MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: tt.period},
				Type:            tt.maType,
			})
			value, err := ma.Calculate(context.Background(), bars)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, value, 1e-9)
		})
	}
}

func TestATR_ConstantRange(t *testing.T) {
	atr := NewATR("ATR_3", ATRConfig{IndicatorConfig: IndicatorConfig{Period: 3}})
	value, err := atr.Calculate(context.Background(), barsFromCloses(100, 100, 100, 100, 100, 100))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, value, 1e-9)
}

func TestMACD_HistogramIsDifference(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i%7) + float64(i)/4
	}
	bars := barsFromCloses(closes...)
	ctx := context.Background()

	values, err := Snapshot(ctx, bars, []string{"MACD_12_26_9", "MACDSIGNAL_12_26_9", "MACDHIST_12_26_9"})
	require.NoError(t, err)
	assert.InDelta(t, values["MACD_12_26_9"]-values["MACDSIGNAL_12_26_9"], values["MACDHIST_12_26_9"], 1e-9)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		required int
		wantErr  bool
	}{
		{name: "RSI", required: DefaultRSIPeriod + 1},
		{name: "RSI_7", required: 8},
		{name: "SMA_50", required: 50},
		{name: "EMA_9", required: 9},
		{name: "ATR_14", required: 15},
		{name: "ADX_14", required: 29},
		{name: "MACD", required: DefaultMACDSlow + DefaultMACDSignal},
		{name: "MACDHIST_5_10_3", required: 13},
		{name: "CLOSE", required: 1},
		{name: "VOLUME", required: 1},
		{name: "RSI_x", wantErr: true},
		{name: "RSI_1", wantErr: true},
		{name: "SMA_5_6", wantErr: true},
		{name: "MACD_26_12_9", wantErr: true},
		{name: "CLOSE_1", wantErr: true},
		{name: "VWAP", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind, err := Parse(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, ind.Name())
			assert.Equal(t, tt.required, ind.RequiredDataPoints())
		})
	}
}

func TestSnapshot_PartialFailure(t *testing.T) {
	bars := barsFromCloses(100, 101, 102, 103, 104)

	values, err := Snapshot(context.Background(), bars, []string{"CLOSE", "SMA_3", "RSI_14", "BOGUS"})
	assert.ErrorIs(t, err, ports.ErrEvaluation)
	assert.Equal(t, 104.0, values["CLOSE"])
	assert.InDelta(t, 103.0, values["SMA_3"], 1e-9)
	assert.NotContains(t, values, "RSI_14")
	assert.NotContains(t, values, "BOGUS")

	assert.Equal(t, 15, RequiredDataPoints([]string{"CLOSE", "SMA_3", "RSI_14", "BOGUS"}))
}
