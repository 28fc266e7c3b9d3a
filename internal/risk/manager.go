package risk

import (
	"fmt"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// RiskConfig holds the global risk limits. Strategy risk parameters may
// tighten these limits but never loosen them.
type RiskConfig struct {
	MaxQuantity      float64
	MaxOpenPositions int
}

// RiskManager validates proposed entries and derives protective levels.
// It holds no mutable state and is safe for concurrent use.
type RiskManager struct {
	config RiskConfig
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig) *RiskManager {
	return &RiskManager{config: config}
}

// MaxQuantity returns the effective quantity limit for a strategy. Zero means unlimited.
func (r *RiskManager) MaxQuantity(params domain.RiskParams) float64 {
	return tighter(r.config.MaxQuantity, params.MaxQuantity)
}

// MaxOpenPositions returns the effective concurrent-position limit for a strategy.
// Zero means unlimited.
func (r *RiskManager) MaxOpenPositions(params domain.RiskParams) int {
	return int(tighter(float64(r.config.MaxOpenPositions), float64(params.MaxOpenPositions)))
}

// ValidatePosition checks the creation invariants of a proposed position and
// the configured quantity limit. Violations wrap ports.ErrInvariantViolation.
func (r *RiskManager) ValidatePosition(position *domain.Position, params domain.RiskParams) error {
	if err := position.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrInvariantViolation, err)
	}
	if max := r.MaxQuantity(params); max > 0 && position.Quantity > max {
		return fmt.Errorf("%w: quantity %v exceeds maximum allowed %v", ports.ErrInvariantViolation, position.Quantity, max)
	}
	return nil
}

// CheckOpenPositions checks the number of open positions of a strategy
// against its limit. Reaching the limit wraps ports.ErrRiskLimit.
func (r *RiskManager) CheckOpenPositions(openPositions int, params domain.RiskParams) error {
	if max := r.MaxOpenPositions(params); max > 0 && openPositions >= max {
		return fmt.Errorf("%w: %d open positions, maximum allowed %d", ports.ErrRiskLimit, openPositions, max)
	}
	return nil
}

// GetStopLoss calculates the stop loss price for a position, or nil when disabled.
func (r *RiskManager) GetStopLoss(entryPrice, pct float64, dir domain.Direction) *float64 {
	if pct <= 0 {
		return nil
	}
	if dir == domain.Long {
		return domain.Float(entryPrice * (1 - pct))
	}
	return domain.Float(entryPrice * (1 + pct))
}

// GetTakeProfit calculates the take profit price for a position, or nil when disabled.
func (r *RiskManager) GetTakeProfit(entryPrice, pct float64, dir domain.Direction) *float64 {
	if pct <= 0 {
		return nil
	}
	if dir == domain.Long {
		return domain.Float(entryPrice * (1 + pct))
	}
	return domain.Float(entryPrice * (1 - pct))
}

// NewEntry builds the position a strategy would open at price.
func (r *RiskManager) NewEntry(s *domain.Strategy, instrument string, price float64, at time.Time) *domain.Position {
	return &domain.Position{
		StrategyID: s.ID,
		Instrument: instrument,
		Direction:  s.Direction,
		EntryPrice: price,
		Quantity:   s.Risk.Quantity,
		EntryTime:  at,
		StopLoss:   r.GetStopLoss(price, s.Risk.StopLossPct, s.Direction),
		TakeProfit: r.GetTakeProfit(price, s.Risk.TakeProfitPct, s.Direction),
		Status:     domain.StatusOpen,
	}
}

// tighter returns the smaller positive limit; zero means no limit.
func tighter(global, local float64) float64 {
	switch {
	case global <= 0:
		return local
	case local <= 0:
		return global
	case local < global:
		return local
	default:
		return global
	}
}
