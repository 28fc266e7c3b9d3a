package indicators

import (
	"context"

	"paperTrader/internal/domain"

	"github.com/markcheno/go-talib"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(name string, config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig, name: name}}
}

// RequiredDataPoints returns the minimum number of bars needed for calculation
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the Average True Range value for the given bars
func (a *ATR) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	if err := checkData(a.Name(), bars, a.RequiredDataPoints()); err != nil {
		return 0, err
	}
	highs, lows, closes := highsLowsCloses(bars)
	return last(a.Name(), talib.Atr(highs, lows, closes, a.Config.Period))
}

// ADXConfig holds configuration for the Average Directional Index indicator
type ADXConfig struct {
	IndicatorConfig
}

// ADX implements the Average Directional Index indicator
type ADX struct {
	BaseIndicator
}

// NewADX creates a new ADX indicator instance
func NewADX(name string, config ADXConfig) *ADX {
	return &ADX{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig, name: name}}
}

// RequiredDataPoints returns the minimum number of bars needed for calculation
func (a *ADX) RequiredDataPoints() int {
	return 2*a.Config.Period + 1
}

// Calculate computes the latest ADX value
func (a *ADX) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	if err := checkData(a.Name(), bars, a.RequiredDataPoints()); err != nil {
		return 0, err
	}
	highs, lows, closes := highsLowsCloses(bars)
	return last(a.Name(), talib.Adx(highs, lows, closes, a.Config.Period))
}
