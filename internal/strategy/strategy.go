// Package strategy loads strategy definitions and checks them before the
// engine ever evaluates them.
package strategy

import (
	"context"
	"fmt"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/strategy/condition"
	"paperTrader/internal/strategy/indicators"
	"paperTrader/internal/strategy/strategies"

	"go.uber.org/multierr"
)

// DefaultProvider supplies the single preset strategy described by
// environment settings. It is the fallback when no strategies file exists.
type DefaultProvider struct {
	strategy *domain.Strategy
}

// NewDefaultProvider creates the environment default provider. The preset is
// built eagerly so bad settings fail at startup.
func NewDefaultProvider(cfg strategies.Config) (*DefaultProvider, error) {
	s, err := strategies.Build(cfg)
	if err != nil {
		return nil, err
	}
	return &DefaultProvider{strategy: s}, nil
}

// Name returns the provider name.
func (p *DefaultProvider) Name() string { return "env-default" }

// LoadStrategies returns a copy of the configured strategy.
func (p *DefaultProvider) LoadStrategies(ctx context.Context) ([]*domain.Strategy, error) {
	s := *p.strategy
	s.Instruments = append([]string(nil), p.strategy.Instruments...)
	return []*domain.Strategy{&s}, nil
}

// Chain queries providers in priority order. The first provider returning a
// non-empty, valid set of strategies wins and is logged.
type Chain struct {
	providers []ports.StrategyProvider
	logger    ports.Logger
}

// NewChain creates a provider chain.
func NewChain(logger ports.Logger, providers ...ports.StrategyProvider) (*Chain, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy chain")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no strategy providers", ports.ErrConfigurationError)
	}
	return &Chain{providers: providers, logger: logger}, nil
}

// Name returns the provider name.
func (c *Chain) Name() string { return "chain" }

// LoadStrategies implements ports.StrategyProvider.
func (c *Chain) LoadStrategies(ctx context.Context) ([]*domain.Strategy, error) {
	op := "LoadStrategies"
	for _, p := range c.providers {
		strategies, err := p.LoadStrategies(ctx)
		if err != nil {
			c.logger.Error(ctx, err, op+": provider failed, trying next", map[string]interface{}{"provider": p.Name()})
			continue
		}
		if len(strategies) == 0 {
			c.logger.Debug(ctx, op+": provider returned no strategies", map[string]interface{}{"provider": p.Name()})
			continue
		}
		if err := ValidateAll(strategies); err != nil {
			c.logger.Error(ctx, err, op+": provider returned invalid strategies, trying next", map[string]interface{}{"provider": p.Name()})
			continue
		}

		ids := make([]string, 0, len(strategies))
		for _, s := range strategies {
			ids = append(ids, s.ID)
		}
		c.logger.Info(ctx, op+": strategies loaded", map[string]interface{}{
			"provider":   p.Name(),
			"strategies": ids,
		})
		return strategies, nil
	}
	return nil, fmt.Errorf("%w: no provider supplied any strategy", ports.ErrConfigurationError)
}

// Validate checks a strategy definition and returns every problem found,
// wrapped in ports.ErrConfigurationError.
func Validate(s *domain.Strategy) error {
	if s == nil {
		return fmt.Errorf("%w: nil strategy", ports.ErrConfigurationError)
	}
	var errs error
	if s.ID == "" {
		errs = multierr.Append(errs, fmt.Errorf("id is required"))
	}
	if len(s.Instruments) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("at least one instrument is required"))
	}
	if !s.Direction.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("unknown direction %q", s.Direction))
	}
	if s.Entry == nil {
		errs = multierr.Append(errs, fmt.Errorf("entry condition is required"))
	} else if err := condition.Validate(s.Entry); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("entry: %w", err))
	}
	if s.Exit != nil {
		if err := condition.Validate(s.Exit); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("exit: %w", err))
		}
	}
	for _, name := range condition.Indicators(s.Entry, s.Exit) {
		if _, err := indicators.Parse(name); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if !(s.Risk.Quantity > 0) {
		errs = multierr.Append(errs, fmt.Errorf("quantity must be positive, got %v", s.Risk.Quantity))
	}
	if s.Risk.MaxQuantity < 0 || s.Risk.MaxOpenPositions < 0 {
		errs = multierr.Append(errs, fmt.Errorf("risk limits must not be negative"))
	}
	if s.Risk.StopLossPct < 0 || s.Risk.StopLossPct >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("stop-loss pct must be in [0, 1), got %v", s.Risk.StopLossPct))
	}
	if s.Risk.TakeProfitPct < 0 {
		errs = multierr.Append(errs, fmt.Errorf("take-profit pct must not be negative, got %v", s.Risk.TakeProfitPct))
	}
	if s.Direction == domain.Short && s.Risk.TakeProfitPct >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("short take-profit pct must be below 1, got %v", s.Risk.TakeProfitPct))
	}
	if errs != nil {
		return fmt.Errorf("%w: strategy %q: %w", ports.ErrConfigurationError, s.ID, errs)
	}
	return nil
}

// ValidateAll validates every strategy and rejects duplicate IDs.
func ValidateAll(strategies []*domain.Strategy) error {
	var errs error
	seen := make(map[string]bool, len(strategies))
	for _, s := range strategies {
		if err := Validate(s); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if seen[s.ID] {
			errs = multierr.Append(errs, fmt.Errorf("%w: duplicate strategy id %q", ports.ErrConfigurationError, s.ID))
		}
		seen[s.ID] = true
	}
	return errs
}

// RequiredDataPoints returns the number of bars needed to compute every
// indicator the strategy references.
func RequiredDataPoints(s *domain.Strategy) int {
	return indicators.RequiredDataPoints(condition.Indicators(s.Entry, s.Exit))
}
