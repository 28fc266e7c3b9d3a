package indicators

import (
	"context"

	"paperTrader/internal/domain"

	"github.com/markcheno/go-talib"
)

// MACDLine selects which MACD output an indicator reports.
type MACDLine string

const (
	MACDMain      MACDLine = "MACD"
	MACDSignal    MACDLine = "MACDSIGNAL"
	MACDHistogram MACDLine = "MACDHIST"
)

// MACDConfig holds configuration for the MACD indicator
type MACDConfig struct {
	Fast   int
	Slow   int
	Signal int
	Line   MACDLine
}

// MACD implements Moving Average Convergence Divergence
type MACD struct {
	name   string
	config MACDConfig
}

// NewMACD creates a new MACD indicator instance
func NewMACD(name string, config MACDConfig) *MACD {
	return &MACD{name: name, config: config}
}

// Name returns the name of the indicator
func (m *MACD) Name() string {
	return m.name
}

// RequiredDataPoints returns the minimum number of bars needed for calculation
func (m *MACD) RequiredDataPoints() int {
	return m.config.Slow + m.config.Signal
}

// Calculate computes the configured MACD line
func (m *MACD) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	if err := checkData(m.Name(), bars, m.RequiredDataPoints()); err != nil {
		return 0, err
	}
	macd, signal, hist := talib.Macd(closes(bars), m.config.Fast, m.config.Slow, m.config.Signal)
	switch m.config.Line {
	case MACDSignal:
		return last(m.Name(), signal)
	case MACDHistogram:
		return last(m.Name(), hist)
	default:
		return last(m.Name(), macd)
	}
}
