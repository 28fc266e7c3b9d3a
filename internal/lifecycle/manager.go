// Package lifecycle owns every position state transition. Opening is held
// per (strategy, instrument) pair and closing per position; each transition
// commits with its trade and audit entry in a single transaction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/hold"
	"paperTrader/internal/ports"
	"paperTrader/internal/recorder"
	"paperTrader/internal/risk"
)

// Config holds the dependencies of the lifecycle manager.
type Config struct {
	Store  ports.Store
	Holds  *hold.Manager
	Risk   *risk.RiskManager
	Trades *recorder.Trades
	Audit  *recorder.Audit
	Logger ports.Logger
	Now    func() time.Time // Optional, defaults to time.Now
}

// Manager is the only component that mutates position status.
type Manager struct {
	store  ports.Store
	holds  *hold.Manager
	risk   *risk.RiskManager
	trades *recorder.Trades
	audit  *recorder.Audit
	logger ports.Logger
	now    func() time.Time

	mu    sync.RWMutex
	hooks []func(*domain.Trade)
}

// OpenRequest asks for a new position for Strategy on Instrument at Price.
// Audit, when set, is completed and written in the opening transaction.
type OpenRequest struct {
	Strategy   *domain.Strategy
	Instrument string
	Price      float64
	At         time.Time
	Audit      *domain.AuditEntry
}

// CloseRequest asks to close PositionID at Price for Reason.
// Audit, when set, is completed and written in the closing transaction.
type CloseRequest struct {
	PositionID int64
	Price      float64
	At         time.Time
	Reason     domain.ExitReason
	Audit      *domain.AuditEntry
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil || cfg.Holds == nil || cfg.Risk == nil || cfg.Trades == nil || cfg.Audit == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for lifecycle manager")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  cfg.Store,
		holds:  cfg.Holds,
		risk:   cfg.Risk,
		trades: cfg.Trades,
		audit:  cfg.Audit,
		logger: cfg.Logger,
		now:    now,
	}, nil
}

// Subscribe registers fn to be called with every trade after its transaction commits.
func (m *Manager) Subscribe(fn func(*domain.Trade)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Open performs the no-position -> open transition.
//
// Invariant violations are rejected before any write with
// ports.ErrInvariantViolation. An already open position for the pair yields
// ports.ErrContention and a full strategy yields ports.ErrRiskLimit.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*domain.Position, error) {
	op := "Open"
	if req.Strategy == nil {
		return nil, fmt.Errorf("%w: open request without strategy", ports.ErrInvalidRequest)
	}
	at := req.At
	if at.IsZero() {
		at = m.now()
	}
	fields := map[string]interface{}{"strategyID": req.Strategy.ID, "instrument": req.Instrument, "price": req.Price}
	if err := checkPrice(req.Price); err != nil {
		m.logger.Error(ctx, err, op+": open request rejected", fields)
		return nil, err
	}

	pos := m.risk.NewEntry(req.Strategy, req.Instrument, req.Price, at)
	if err := m.risk.ValidatePosition(pos, req.Strategy.Risk); err != nil {
		m.logger.Error(ctx, err, op+": proposed position rejected", fields)
		return nil, err
	}

	release, err := m.holds.Acquire(ctx, hold.PairKey(req.Strategy.ID, req.Instrument))
	if err != nil {
		m.logger.Warn(ctx, op+": pair hold not acquired", withErr(fields, err))
		return nil, err
	}
	defer release()

	err = m.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		existing, err := tx.FindOpenPosition(ctx, pos.StrategyID, pos.Instrument)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: position %d already open for %s/%s", ports.ErrContention, existing.ID, pos.StrategyID, pos.Instrument)
		}
		openCount, err := tx.CountOpenPositions(ctx, pos.StrategyID)
		if err != nil {
			return err
		}
		if err := m.risk.CheckOpenPositions(openCount, req.Strategy.Risk); err != nil {
			return err
		}
		if _, err := tx.CreatePosition(ctx, pos); err != nil {
			if errors.Is(err, ports.ErrDuplicateEntry) {
				return fmt.Errorf("%w: %w", ports.ErrContention, err)
			}
			return err
		}
		if req.Audit != nil {
			entry := req.Audit
			fill(entry, pos, at)
			entry.Signal = domain.SignalEntry
			if entry.Outcome == "" {
				entry.Outcome = fmt.Sprintf("opened %s position %d at %v", pos.Direction, pos.ID, pos.EntryPrice)
			}
			if err := m.audit.Append(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.logOutcome(ctx, op, err, fields)
		return nil, err
	}

	m.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"positionID": pos.ID,
		"strategyID": pos.StrategyID,
		"instrument": pos.Instrument,
		"direction":  pos.Direction,
		"entryPrice": pos.EntryPrice,
		"quantity":   pos.Quantity,
	})
	return pos, nil
}

// Close performs the open -> closed transition under the position's
// exclusive hold. The status is re-read under the hold; a position that is
// no longer open yields ports.ErrContention without any write. P&L, status
// update, trade and audit entry commit as one unit, so for any number of
// concurrent callers exactly one trade is created.
func (m *Manager) Close(ctx context.Context, req CloseRequest) (*domain.Trade, error) {
	op := "Close"
	fields := map[string]interface{}{"positionID": req.PositionID, "price": req.Price, "reason": req.Reason}
	if !req.Reason.Valid() {
		err := fmt.Errorf("%w: unknown exit reason %q", ports.ErrInvariantViolation, req.Reason)
		m.logger.Error(ctx, err, op+": close request rejected", fields)
		return nil, err
	}
	if err := checkPrice(req.Price); err != nil {
		m.logger.Error(ctx, err, op+": close request rejected", fields)
		return nil, err
	}
	at := req.At
	if at.IsZero() {
		at = m.now()
	}

	release, err := m.holds.Acquire(ctx, hold.PositionKey(req.PositionID))
	if err != nil {
		m.logOutcome(ctx, op, err, fields)
		return nil, err
	}
	defer release()

	var trade *domain.Trade
	err = m.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		pos, err := tx.FindPositionByID(ctx, req.PositionID)
		if err != nil {
			return err
		}
		if pos == nil {
			return fmt.Errorf("position %d: %w", req.PositionID, ports.ErrNotFound)
		}
		if !pos.IsOpen() {
			return fmt.Errorf("position %d is %s: %w", pos.ID, pos.Status, ports.ErrContention)
		}

		t, err := m.trades.Build(pos, req.Price, at, req.Reason)
		if err != nil {
			return err
		}
		pos.ExitPrice = t.ExitPrice
		pos.ExitTime = t.ExitTime
		pos.ExitReason = t.ExitReason
		pos.PNL = t.PNL
		if err := tx.MarkPositionClosed(ctx, pos); err != nil {
			return err
		}
		if err := m.trades.Record(ctx, tx, t); err != nil {
			return err
		}
		if req.Audit != nil {
			entry := req.Audit
			fill(entry, pos, at)
			entry.Signal = domain.SignalExit
			if entry.Outcome == "" {
				entry.Outcome = fmt.Sprintf("closed position %d: %s at %v, pnl %v", pos.ID, t.ExitReason, t.ExitPrice, t.PNL)
			}
			if err := m.audit.Append(ctx, tx, entry); err != nil {
				return err
			}
		}
		trade = t
		return nil
	})
	if err != nil {
		m.logOutcome(ctx, op, err, fields)
		return nil, err
	}

	m.notify(trade)
	return trade, nil
}

// ManualClose closes a position on operator request at price.
func (m *Manager) ManualClose(ctx context.Context, positionID int64, price float64) (*domain.Trade, error) {
	return m.Close(ctx, CloseRequest{
		PositionID: positionID,
		Price:      price,
		At:         m.now(),
		Reason:     domain.ExitManual,
		Audit:      &domain.AuditEntry{TriggeredConditions: []string{string(domain.ExitManual)}},
	})
}

func (m *Manager) notify(trade *domain.Trade) {
	m.mu.RLock()
	hooks := make([]func(*domain.Trade), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(trade)
	}
}

// logOutcome logs a failed transition at the level its class deserves.
func (m *Manager) logOutcome(ctx context.Context, op string, err error, fields map[string]interface{}) {
	switch {
	case errors.Is(err, ports.ErrContention):
		m.logger.Info(ctx, op+": no-op, contended", withErr(fields, err))
	case errors.Is(err, ports.ErrRiskLimit):
		m.logger.Info(ctx, op+": risk limit reached", withErr(fields, err))
	case errors.Is(err, ports.ErrStorage):
		m.logger.Warn(ctx, op+": storage fault, will retry on next tick", withErr(fields, err))
	default:
		m.logger.Error(ctx, err, op+": transition failed", fields)
	}
}

// fill copies the identity of pos into an audit entry the caller left blank.
// checkPrice rejects prices that cannot be turned into P&L.
func checkPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || !(price > 0) {
		return fmt.Errorf("%w: price must be a finite positive number, got %v", ports.ErrInvariantViolation, price)
	}
	return nil
}

func fill(entry *domain.AuditEntry, pos *domain.Position, at time.Time) {
	if entry.StrategyID == "" {
		entry.StrategyID = pos.StrategyID
	}
	if entry.Instrument == "" {
		entry.Instrument = pos.Instrument
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = at
	}
	id := pos.ID
	entry.PositionID = &id
}

func withErr(fields map[string]interface{}, err error) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}
