package indicators

import (
	"context"
	"fmt"

	"paperTrader/internal/domain"

	"github.com/markcheno/go-talib"
)

// MovingAverageType selects the smoothing applied to closes. The value doubles
// as the indicator name prefix, e.g. SMA_50.
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA" // Seeded with the SMA of the first period closes
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage is the last value of an SMA or EMA over the window closes.
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(name string, config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig, name: name},
		config:        config,
	}
}

func (m *MovingAverage) RequiredDataPoints() int {
	return m.Config.Period
}

// Calculate returns the average as of the newest bar.
func (m *MovingAverage) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	if err := checkData(m.Name(), bars, m.RequiredDataPoints()); err != nil {
		return 0, err
	}
	switch m.config.Type {
	case SimpleMovingAverage:
		return last(m.Name(), talib.Sma(closes(bars), m.Config.Period))
	case ExponentialMovingAverage:
		return last(m.Name(), talib.Ema(closes(bars), m.Config.Period))
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}
