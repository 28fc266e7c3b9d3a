// Package optimization sweeps strategy risk parameters over historical bars.
package optimization

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/strategy/analytics"
	"paperTrader/internal/strategy/backtesting"
)

// Parameter names understood by the optimizer.
const (
	ParamStopLossPct   = "stop_loss_pct"
	ParamTakeProfitPct = "take_profit_pct"
	ParamQuantity      = "quantity"
)

const defaultParallelism = 4

// ParameterRange defines a range for a parameter to optimize
type ParameterRange struct {
	Name  string
	Min   float64
	Max   float64
	Step  float64
	IsInt bool
}

// OptimizationResult holds the results of a parameter optimization
type OptimizationResult struct {
	Parameters map[string]float64
	Metrics    *analytics.PerformanceMetrics
	Score      float64
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	ParameterRanges []ParameterRange
	Backtest        backtesting.BacktestConfig
	Parallelism     int
	ScoreFunction   func(*analytics.PerformanceMetrics) float64
}

// Optimizer implements strategy parameter optimization
type Optimizer struct {
	config OptimizerConfig
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig) (*Optimizer, error) {
	if len(config.ParameterRanges) == 0 {
		return nil, fmt.Errorf("%w: no parameter ranges", ports.ErrConfigurationError)
	}
	for _, r := range config.ParameterRanges {
		switch r.Name {
		case ParamStopLossPct, ParamTakeProfitPct, ParamQuantity:
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", ports.ErrConfigurationError, r.Name)
		}
		if r.Step <= 0 || r.Min > r.Max {
			return nil, fmt.Errorf("%w: parameter %q needs min <= max and a positive step", ports.ErrConfigurationError, r.Name)
		}
	}
	if config.Parallelism <= 0 {
		config.Parallelism = defaultParallelism
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	return &Optimizer{config: config}, nil
}

// Optimize backtests one copy of base per parameter combination and returns
// the results ordered by score, best first.
func (o *Optimizer) Optimize(ctx context.Context, base *domain.Strategy, bars []*domain.Bar) ([]OptimizationResult, error) {
	combinations := o.generateParameterCombinations()
	results := make([]OptimizationResult, len(combinations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Parallelism)
	for i, params := range combinations {
		g.Go(func() error {
			s := withParams(base, params)
			result, err := backtesting.Backtest(gctx, []*domain.Strategy{s}, bars, o.config.Backtest)
			if err != nil {
				return fmt.Errorf("backtest with %v: %w", params, err)
			}
			results[i] = OptimizationResult{
				Parameters: params,
				Metrics:    result.Metrics,
				Score:      o.config.ScoreFunction(result.Metrics),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// generateParameterCombinations generates all possible parameter combinations
func (o *Optimizer) generateParameterCombinations() []map[string]float64 {
	var combinations []map[string]float64
	currentCombination := make(map[string]float64)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]float64, len(currentCombination))
			for k, v := range currentCombination {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		steps := int(math.Floor((param.Max-param.Min)/param.Step + 1e-9))
		for i := 0; i <= steps; i++ {
			value := param.Min + float64(i)*param.Step
			if param.IsInt {
				value = math.Round(value)
			}
			currentCombination[param.Name] = value
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

// withParams copies base and applies params to the copy's risk settings.
func withParams(base *domain.Strategy, params map[string]float64) *domain.Strategy {
	s := *base
	s.Instruments = append([]string(nil), base.Instruments...)
	for name, v := range params {
		switch name {
		case ParamStopLossPct:
			s.Risk.StopLossPct = v
		case ParamTakeProfitPct:
			s.Risk.TakeProfitPct = v
		case ParamQuantity:
			s.Risk.Quantity = v
		}
	}
	return &s
}

// DefaultScoreFunction weighs win rate, profit factor, drawdown and return into one score.
func DefaultScoreFunction(metrics *analytics.PerformanceMetrics) float64 {
	if metrics == nil || metrics.TradeCount == 0 {
		return 0
	}
	score := 0.0
	score += metrics.WinRate * 0.3
	score += math.Min(metrics.ProfitFactor, 10) * 0.2
	score += (1 - metrics.MaxDrawdownPct) * 0.2
	score += metrics.ReturnOnInvestment * 0.3
	return score
}
