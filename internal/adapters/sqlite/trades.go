package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

const tradeColumns = `id, position_id, strategy_id, instrument, direction, entry_price, exit_price,
	quantity, pnl, pnl_percent, entry_time, exit_time, exit_reason`

// InsertTrade saves a new trade record and returns its assigned ID.
// The UNIQUE position_id column rejects a second trade for the same position.
func (q *queries) InsertTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (position_id, strategy_id, instrument, direction, entry_price, exit_price,
	                    quantity, pnl, pnl_percent, entry_time, exit_time, exit_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := q.db.ExecContext(ctx, query,
		trade.PositionID, trade.StrategyID, trade.Instrument, trade.Direction, trade.EntryPrice, trade.ExitPrice,
		trade.Quantity, trade.PNL, trade.PNLPercent, toMicros(trade.EntryTime), toMicros(trade.ExitTime), trade.ExitReason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for position %d: %w", trade.PositionID, mapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade of position %d: %w", trade.PositionID, mapError(err))
	}
	trade.ID = id // Update domain object
	q.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "positionID": trade.PositionID, "pnl": trade.PNL})
	return id, nil
}

// FindTrades returns matching trades ordered by exit time, then ID.
func (q *queries) FindTrades(ctx context.Context, filter ports.TradeFilter) ([]*domain.Trade, error) {
	w := tradeWhere(filter)
	query := `SELECT ` + tradeColumns + ` FROM trades` + w.String() + ` ORDER BY exit_time ASC, id ASC`
	args := w.args
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", mapError(err))
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindTrades: %w", mapError(err))
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", mapError(err))
	}
	return trades, nil
}

// FindTradeByPositionID returns the trade of a position, or nil, nil.
func (q *queries) FindTradeByPositionID(ctx context.Context, positionID int64) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE position_id = ?`
	trade, err := scanTrade(q.db.QueryRowContext(ctx, query, positionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trade for position %d: %w", positionID, mapError(err))
	}
	return trade, nil
}

// CountTrades counts matching trades.
func (q *queries) CountTrades(ctx context.Context, filter ports.TradeFilter) (int, error) {
	w := tradeWhere(filter)
	var count int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`+w.String(), w.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", mapError(err))
	}
	return count, nil
}

func tradeWhere(filter ports.TradeFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.StrategyID != "" {
		w.add("strategy_id = ?", filter.StrategyID)
	}
	if filter.Instrument != "" {
		w.add("instrument = ?", filter.Instrument)
	}
	if !filter.From.IsZero() {
		w.add("exit_time >= ?", toMicros(filter.From))
	}
	if !filter.To.IsZero() {
		w.add("exit_time < ?", toMicros(filter.To))
	}
	return w
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var (
		direction, exitReason string
		entryTime, exitTime   int64
	)
	err := s.Scan(
		&t.ID, &t.PositionID, &t.StrategyID, &t.Instrument, &direction, &t.EntryPrice, &t.ExitPrice,
		&t.Quantity, &t.PNL, &t.PNLPercent, &entryTime, &exitTime, &exitReason)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Direction = domain.Direction(direction)
	t.ExitReason = domain.ExitReason(exitReason)
	t.EntryTime = fromMicros(entryTime)
	t.ExitTime = fromMicros(exitTime)
	return t, nil
}
