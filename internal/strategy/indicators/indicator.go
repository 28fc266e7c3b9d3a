package indicators

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"go.uber.org/multierr"
)

// Indicator represents a technical indicator that can be calculated from price data
type Indicator interface {
	// Calculate computes the latest indicator value for the given bars (oldest first)
	Calculate(ctx context.Context, bars []*domain.Bar) (float64, error)

	// RequiredDataPoints returns the minimum number of bars needed for calculation
	RequiredDataPoints() int

	// Name returns the name the indicator is referenced by in condition trees
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
	name   string
}

// Name returns the name of the indicator
func (b *BaseIndicator) Name() string {
	return b.name
}

// Default periods used when a name carries no parameters, e.g. "RSI".
const (
	DefaultRSIPeriod  = 14
	DefaultMAPeriod   = 20
	DefaultATRPeriod  = 14
	DefaultADXPeriod  = 14
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// Parse builds the indicator referenced by name. Names are an upper-case
// kind optionally followed by underscore-separated integer parameters:
// RSI_14, SMA_50, EMA_9, ATR_14, ADX_14, MACD_12_26_9, MACDSIGNAL_12_26_9,
// MACDHIST_12_26_9, and the raw fields OPEN, HIGH, LOW, CLOSE, VOLUME.
func Parse(name string) (Indicator, error) {
	parts := strings.Split(name, "_")
	kind := parts[0]
	params := make([]int, 0, len(parts)-1)
	for _, p := range parts[1:] {
		v, err := strconv.Atoi(p)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("indicator %q: invalid parameter %q", name, p)
		}
		params = append(params, v)
	}

	period := func(def int) (int, error) {
		switch len(params) {
		case 0:
			return def, nil
		case 1:
			return params[0], nil
		}
		return 0, fmt.Errorf("indicator %q: expected one period", name)
	}

	switch kind {
	case "RSI":
		p, err := period(DefaultRSIPeriod)
		if err != nil {
			return nil, err
		}
		if p < 2 {
			return nil, fmt.Errorf("indicator %q: period must be at least 2", name)
		}
		return NewRSI(name, RSIConfig{IndicatorConfig: IndicatorConfig{Period: p}}), nil
	case "SMA", "EMA":
		p, err := period(DefaultMAPeriod)
		if err != nil {
			return nil, err
		}
		return NewMovingAverage(name, MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: p}, Type: MovingAverageType(kind)}), nil
	case "ATR":
		p, err := period(DefaultATRPeriod)
		if err != nil {
			return nil, err
		}
		return NewATR(name, ATRConfig{IndicatorConfig: IndicatorConfig{Period: p}}), nil
	case "ADX":
		p, err := period(DefaultADXPeriod)
		if err != nil {
			return nil, err
		}
		return NewADX(name, ADXConfig{IndicatorConfig: IndicatorConfig{Period: p}}), nil
	case "MACD", "MACDSIGNAL", "MACDHIST":
		cfg := MACDConfig{Fast: DefaultMACDFast, Slow: DefaultMACDSlow, Signal: DefaultMACDSignal, Line: MACDLine(kind)}
		switch len(params) {
		case 0:
		case 3:
			cfg.Fast, cfg.Slow, cfg.Signal = params[0], params[1], params[2]
		default:
			return nil, fmt.Errorf("indicator %q: expected fast, slow and signal periods", name)
		}
		if cfg.Fast < 2 || cfg.Slow < 2 || cfg.Fast >= cfg.Slow {
			return nil, fmt.Errorf("indicator %q: fast period must be below slow period and both at least 2", name)
		}
		return NewMACD(name, cfg), nil
	case "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME":
		if len(params) != 0 {
			return nil, fmt.Errorf("indicator %q: price fields take no parameters", name)
		}
		return NewPriceField(PriceField(kind)), nil
	}
	return nil, fmt.Errorf("unknown indicator %q", name)
}

// Snapshot calculates every named indicator over bars. Indicators that fail
// to parse or calculate are left out of the map and reported together in the
// returned error, which wraps ports.ErrEvaluation. The map is always usable.
func Snapshot(ctx context.Context, bars []*domain.Bar, names []string) (map[string]float64, error) {
	values := make(map[string]float64, len(names))
	var errs error
	for _, name := range names {
		ind, err := Parse(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		v, err := ind.Calculate(ctx, bars)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		values[name] = v
	}
	if errs != nil {
		return values, fmt.Errorf("%w: %w", ports.ErrEvaluation, errs)
	}
	return values, nil
}

// RequiredDataPoints returns the most bars any of names needs. Unparseable
// names are ignored here and reported by Snapshot.
func RequiredDataPoints(names []string) int {
	required := 1
	for _, n := range names {
		ind, err := Parse(n)
		if err != nil {
			continue
		}
		if r := ind.RequiredDataPoints(); r > required {
			required = r
		}
	}
	return required
}

func checkData(name string, bars []*domain.Bar, required int) error {
	if len(bars) < required {
		return fmt.Errorf("not enough data (%d) to calculate %s, need %d", len(bars), name, required)
	}
	return nil
}

// last returns the final element of a talib output series.
func last(name string, out []float64) (float64, error) {
	if len(out) == 0 {
		return 0, fmt.Errorf("%s produced no output", name)
	}
	v := out[len(out)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s produced a non-finite value", name)
	}
	return v, nil
}

func closes(bars []*domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func highsLowsCloses(bars []*domain.Bar) (highs, lows, closes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	return highs, lows, closes
}
