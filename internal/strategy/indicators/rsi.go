package indicators

import (
	"context"

	"paperTrader/internal/domain"

	"github.com/markcheno/go-talib"
)

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
}

// RSI implements the Relative Strength Index indicator using Wilder's smoothing
type RSI struct {
	BaseIndicator
}

// NewRSI creates a new RSI indicator instance
func NewRSI(name string, config RSIConfig) *RSI {
	return &RSI{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig, name: name}}
}

// RequiredDataPoints returns the minimum number of bars needed for calculation
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate computes the latest RSI value
func (r *RSI) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	if err := checkData(r.Name(), bars, r.RequiredDataPoints()); err != nil {
		return 0, err
	}
	return last(r.Name(), talib.Rsi(closes(bars), r.Config.Period))
}
