package ports

import (
	"context"

	"paperTrader/internal/domain"
)

// StrategyProvider is one source of strategy definitions. Providers are
// queried in priority order and the first non-empty result is used.
type StrategyProvider interface {
	// Name identifies the provider in logs.
	Name() string
	// LoadStrategies returns the provider's strategies.
	// An empty result with a nil error means the provider has nothing to offer.
	LoadStrategies(ctx context.Context) ([]*domain.Strategy, error)
}
