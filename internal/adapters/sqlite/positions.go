package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

const positionColumns = `id, strategy_id, instrument, direction, entry_price, quantity, entry_time,
	stop_loss, take_profit, status, COALESCE(exit_price, 0), exit_time, COALESCE(exit_reason, ''), COALESCE(pnl, 0)`

// CreatePosition saves a new open position and returns its assigned ID.
func (q *queries) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (strategy_id, instrument, direction, entry_price, quantity, entry_time,
	                       stop_loss, take_profit, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := q.db.ExecContext(ctx, query,
		pos.StrategyID, pos.Instrument, pos.Direction, pos.EntryPrice, pos.Quantity, toMicros(pos.EntryTime),
		nullFloat(pos.StopLoss), nullFloat(pos.TakeProfit), domain.StatusOpen)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for %s/%s: %w", pos.StrategyID, pos.Instrument, mapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s/%s: %w", pos.StrategyID, pos.Instrument, mapError(err))
	}
	pos.ID = id // Update the domain object with the ID
	pos.Status = domain.StatusOpen
	q.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "strategyID": pos.StrategyID, "instrument": pos.Instrument})
	return id, nil
}

// MarkPositionClosed performs the open->closed transition. The update is
// guarded on status so a position can only ever be closed once.
func (q *queries) MarkPositionClosed(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET status = ?, exit_price = ?, exit_time = ?, exit_reason = ?, pnl = ?
	WHERE id = ? AND status = ?`

	result, err := q.db.ExecContext(ctx, query,
		domain.StatusClosed, pos.ExitPrice, toMicros(pos.ExitTime), pos.ExitReason, pos.PNL,
		pos.ID, domain.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to close position ID %d: %w", pos.ID, mapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for close position ID %d: %w", pos.ID, mapError(err))
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d is not open: %w", pos.ID, ports.ErrContention)
	}
	pos.Status = domain.StatusClosed
	q.logger.Debug(ctx, "Position closed", map[string]interface{}{"positionID": pos.ID, "reason": pos.ExitReason, "pnl": pos.PNL})
	return nil
}

// FindPositionByID retrieves a position by its unique ID.
func (q *queries) FindPositionByID(ctx context.Context, id int64) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = ?`

	pos, err := scanPosition(q.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			q.logger.Debug(ctx, "Position not found by ID", map[string]interface{}{"positionID": id})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query position by ID %d: %w", id, mapError(err))
	}
	return pos, nil
}

// FindOpenPosition retrieves the open position of a (strategy, instrument) pair, if any.
func (q *queries) FindOpenPosition(ctx context.Context, strategyID, instrument string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE strategy_id = ? AND instrument = ? AND status = ?`

	pos, err := scanPosition(q.db.QueryRowContext(ctx, query, strategyID, instrument, domain.StatusOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query open position for %s/%s: %w", strategyID, instrument, mapError(err))
	}
	return pos, nil
}

// CountOpenPositions counts the open positions of a strategy.
func (q *queries) CountOpenPositions(ctx context.Context, strategyID string) (int, error) {
	const query = `SELECT COUNT(*) FROM positions WHERE strategy_id = ? AND status = ?`
	var count int
	if err := q.db.QueryRowContext(ctx, query, strategyID, domain.StatusOpen).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open positions for strategy %s: %w", strategyID, mapError(err))
	}
	return count, nil
}

// ListPositions returns matching positions ordered by entry time descending.
func (q *queries) ListPositions(ctx context.Context, filter ports.PositionFilter) ([]*domain.Position, error) {
	var w whereBuilder
	if filter.StrategyID != "" {
		w.add("strategy_id = ?", filter.StrategyID)
	}
	if filter.Instrument != "" {
		w.add("instrument = ?", filter.Instrument)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		w.add("entry_time >= ?", toMicros(filter.From))
	}
	if !filter.To.IsZero() {
		w.add("entry_time < ?", toMicros(filter.To))
	}
	query := `SELECT ` + positionColumns + ` FROM positions` + w.String() + ` ORDER BY entry_time DESC, id DESC`
	args := w.args
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", mapError(err))
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during ListPositions: %w", mapError(err))
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", mapError(err))
	}
	return positions, nil
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var (
		direction, status, exitReason string
		entryTime                     int64
		exitTime                      sql.NullInt64
		stopLoss, takeProfit          sql.NullFloat64
	)
	err := s.Scan(
		&p.ID, &p.StrategyID, &p.Instrument, &direction, &p.EntryPrice, &p.Quantity, &entryTime,
		&stopLoss, &takeProfit, &status, &p.ExitPrice, &exitTime, &exitReason, &p.PNL)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.Direction = domain.Direction(direction)
	p.Status = domain.PositionStatus(status)
	p.ExitReason = domain.ExitReason(exitReason)
	p.EntryTime = fromMicros(entryTime)
	if exitTime.Valid {
		p.ExitTime = fromMicros(exitTime.Int64)
	}
	if stopLoss.Valid {
		p.StopLoss = domain.Float(stopLoss.Float64)
	}
	if takeProfit.Valid {
		p.TakeProfit = domain.Float(takeProfit.Float64)
	}
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
