// Package recorder writes the immutable history of the engine: one trade per
// closed position and one audit entry per evaluation cycle.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"github.com/shopspring/decimal"
)

// Default bounds for the percentage P&L of a trade.
const (
	DefaultMinPNLPercent = -100.0
	DefaultMaxPNLPercent = 100000.0
)

// TradeConfig bounds what the recorder accepts as a plausible trade.
type TradeConfig struct {
	MinPNLPercent float64
	MaxPNLPercent float64
	Logger        ports.Logger
}

// Trades is the sole writer of trade records.
type Trades struct {
	minPct decimal.Decimal
	maxPct decimal.Decimal
	logger ports.Logger
}

// NewTrades creates a trade recorder.
func NewTrades(cfg TradeConfig) (*Trades, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for trade recorder")
	}
	if cfg.MinPNLPercent == 0 && cfg.MaxPNLPercent == 0 {
		cfg.MinPNLPercent, cfg.MaxPNLPercent = DefaultMinPNLPercent, DefaultMaxPNLPercent
	}
	if cfg.MinPNLPercent >= cfg.MaxPNLPercent {
		return nil, fmt.Errorf("%w: pnl percent range [%v, %v] is empty",
			ports.ErrConfigurationError, cfg.MinPNLPercent, cfg.MaxPNLPercent)
	}
	return &Trades{
		minPct: decimal.NewFromFloat(cfg.MinPNLPercent),
		maxPct: decimal.NewFromFloat(cfg.MaxPNLPercent),
		logger: cfg.Logger,
	}, nil
}

// PNL computes the realized and percentage P&L of closing pos at exitPrice.
// The percentage is relative to the entry notional.
func PNL(pos *domain.Position, exitPrice float64) (pnl, pct decimal.Decimal) {
	pnl = domain.RealizedPNL(pos.Direction, pos.EntryPrice, exitPrice, pos.Quantity)
	notional := decimal.NewFromFloat(pos.EntryPrice).Mul(decimal.NewFromFloat(pos.Quantity))
	if notional.IsZero() {
		return pnl, decimal.Zero
	}
	pct = pnl.Div(notional).Mul(decimal.NewFromInt(100)).Round(domain.PNLPrecision)
	return pnl, pct
}

// Build computes the trade closing pos. It fails with ports.ErrInvariantViolation
// when the trade would break an invariant and ports.ErrDataQuality when the
// percentage P&L is outside the configured range.
func (t *Trades) Build(pos *domain.Position, exitPrice float64, exitTime time.Time, reason domain.ExitReason) (*domain.Trade, error) {
	pnl, pct := PNL(pos, exitPrice)
	if pct.LessThan(t.minPct) || pct.GreaterThan(t.maxPct) {
		return nil, fmt.Errorf("%w: position %d pnl percent %s outside [%s, %s]",
			ports.ErrDataQuality, pos.ID, pct, t.minPct, t.maxPct)
	}

	pnlF, _ := pnl.Float64()
	pctF, _ := pct.Float64()
	trade := &domain.Trade{
		PositionID: pos.ID,
		StrategyID: pos.StrategyID,
		Instrument: pos.Instrument,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		PNL:        pnlF,
		PNLPercent: pctF,
		EntryTime:  pos.EntryTime,
		ExitTime:   exitTime,
		ExitReason: reason,
	}
	if err := trade.Validate(); err != nil {
		return nil, fmt.Errorf("%w: position %d: %w", ports.ErrInvariantViolation, pos.ID, err)
	}
	return trade, nil
}

// Record writes trade through w. A duplicate means the lifecycle closed the
// same position twice; it is logged as a bug and returned, never retried.
func (t *Trades) Record(ctx context.Context, w ports.TradeWriter, trade *domain.Trade) error {
	op := "Record"
	if _, err := w.InsertTrade(ctx, trade); err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			t.logger.Error(ctx, err, op+": second trade for the same position rejected (lifecycle bug)", map[string]interface{}{
				"positionID": trade.PositionID,
			})
		}
		return err
	}
	t.logger.Info(ctx, op+": trade recorded", map[string]interface{}{
		"tradeID":    trade.ID,
		"positionID": trade.PositionID,
		"strategyID": trade.StrategyID,
		"instrument": trade.Instrument,
		"reason":     trade.ExitReason,
		"pnl":        trade.PNL,
		"pnlPercent": trade.PNLPercent,
	})
	return nil
}
