package risk

import (
	"errors"
	"testing"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

func TestRiskManager(t *testing.T) {
	// Create risk manager configuration
	config := RiskConfig{
		MaxQuantity:      1.0,
		MaxOpenPositions: 3,
	}

	// Create risk manager
	manager := NewRiskManager(config)

	strategy := &domain.Strategy{
		ID:        "rsi",
		Direction: domain.Long,
		Risk: domain.RiskParams{
			Quantity:      0.5,
			StopLossPct:   0.02,
			TakeProfitPct: 0.04,
		},
	}
	entryTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Test valid position
	position := manager.NewEntry(strategy, "BTCUSDT", 50000, entryTime)
	if err := manager.ValidatePosition(position, strategy.Risk); err != nil {
		t.Errorf("Expected no error for valid position, got %v", err)
	}
	if position.StopLoss == nil || *position.StopLoss != 49000 {
		t.Errorf("Expected stop loss 49000, got %v", position.StopLoss)
	}
	if position.TakeProfit == nil || *position.TakeProfit != 52000 {
		t.Errorf("Expected take profit 52000, got %v", position.TakeProfit)
	}

	// Test position size limit
	position.Quantity = 2.0
	err := manager.ValidatePosition(position, strategy.Risk)
	if !errors.Is(err, ports.ErrInvariantViolation) {
		t.Errorf("Expected invariant violation for exceeding quantity limit, got %v", err)
	}

	// Strategy limits tighten the global one
	position.Quantity = 0.8
	if err := manager.ValidatePosition(position, domain.RiskParams{MaxQuantity: 0.6}); err == nil {
		t.Error("Expected error for exceeding strategy quantity limit")
	}
	if got := manager.MaxQuantity(domain.RiskParams{MaxQuantity: 5}); got != 1.0 {
		t.Errorf("Expected global quantity limit 1.0 to win, got %v", got)
	}

	// Test bad level ordering
	position.Quantity = 0.5
	position.StopLoss = domain.Float(51000)
	if err := manager.ValidatePosition(position, strategy.Risk); !errors.Is(err, ports.ErrInvariantViolation) {
		t.Errorf("Expected invariant violation for stop loss above entry, got %v", err)
	}

	// Test open positions limit
	if err := manager.CheckOpenPositions(2, strategy.Risk); err != nil {
		t.Errorf("Expected no error below open positions limit, got %v", err)
	}
	if err := manager.CheckOpenPositions(3, strategy.Risk); !errors.Is(err, ports.ErrRiskLimit) {
		t.Errorf("Expected risk limit error at open positions limit, got %v", err)
	}
	if err := manager.CheckOpenPositions(1, domain.RiskParams{MaxOpenPositions: 1}); !errors.Is(err, ports.ErrRiskLimit) {
		t.Errorf("Expected strategy open positions limit to apply, got %v", err)
	}
}

func TestRiskManagerShortLevels(t *testing.T) {
	manager := NewRiskManager(RiskConfig{})

	stopLoss := manager.GetStopLoss(100, 0.05, domain.Short)
	takeProfit := manager.GetTakeProfit(100, 0.10, domain.Short)
	if stopLoss == nil || *stopLoss != 105 {
		t.Errorf("Expected short stop loss 105, got %v", stopLoss)
	}
	if takeProfit == nil || *takeProfit != 90 {
		t.Errorf("Expected short take profit 90, got %v", takeProfit)
	}
	if manager.GetStopLoss(100, 0, domain.Short) != nil {
		t.Error("Expected disabled stop loss to be nil")
	}
	if err := manager.CheckOpenPositions(1000, domain.RiskParams{}); err != nil {
		t.Errorf("Expected no limit when none configured, got %v", err)
	}
}
