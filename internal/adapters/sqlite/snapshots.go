package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paperTrader/internal/domain"
)

const snapshotColumns = `strategy_id, instrument, window_from, window_to, trade_count, wins, losses,
	win_rate, avg_win, avg_loss, profit_factor, max_drawdown, sharpe, total_pnl, computed_at`

// UpsertSnapshot inserts the snapshot or replaces the one with the same key.
func (q *queries) UpsertSnapshot(ctx context.Context, snap *domain.PerformanceSnapshot) error {
	const query = `
	INSERT INTO performance_snapshots (` + snapshotColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (strategy_id, instrument, window_from, window_to) DO UPDATE SET
		trade_count = excluded.trade_count,
		wins = excluded.wins,
		losses = excluded.losses,
		win_rate = excluded.win_rate,
		avg_win = excluded.avg_win,
		avg_loss = excluded.avg_loss,
		profit_factor = excluded.profit_factor,
		max_drawdown = excluded.max_drawdown,
		sharpe = excluded.sharpe,
		total_pnl = excluded.total_pnl,
		computed_at = excluded.computed_at`

	k := snap.Key
	_, err := q.db.ExecContext(ctx, query,
		k.StrategyID, k.Instrument, toMicros(k.Window.From), toMicros(k.Window.To),
		snap.TradeCount, snap.Wins, snap.Losses, snap.WinRate, snap.AverageWin, snap.AverageLoss,
		snap.ProfitFactor, snap.MaxDrawdown, snap.SharpeRatio, snap.TotalPNL, toMicros(snap.ComputedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot %s: %w", k, mapError(err))
	}
	q.logger.Debug(ctx, "Performance snapshot stored", map[string]interface{}{"key": k.String(), "trades": snap.TradeCount})
	return nil
}

// FindSnapshot returns the snapshot of a key, or nil, nil.
func (q *queries) FindSnapshot(ctx context.Context, key domain.SnapshotKey) (*domain.PerformanceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM performance_snapshots
	WHERE strategy_id = ? AND instrument = ? AND window_from = ? AND window_to = ?`

	snap, err := scanSnapshot(q.db.QueryRowContext(ctx, query,
		key.StrategyID, key.Instrument, toMicros(key.Window.From), toMicros(key.Window.To)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query snapshot %s: %w", key, mapError(err))
	}
	return snap, nil
}

// ListSnapshots returns the snapshots of a strategy, newest window first.
func (q *queries) ListSnapshots(ctx context.Context, strategyID string) ([]*domain.PerformanceSnapshot, error) {
	var w whereBuilder
	if strategyID != "" {
		w.add("strategy_id = ?", strategyID)
	}
	query := `SELECT ` + snapshotColumns + ` FROM performance_snapshots` + w.String() +
		` ORDER BY window_to DESC, strategy_id, instrument`

	rows, err := q.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", mapError(err))
	}
	defer rows.Close()

	snaps := make([]*domain.PerformanceSnapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", mapError(err))
		}
		snaps = append(snaps, snap)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", mapError(err))
	}
	return snaps, nil
}

func scanSnapshot(s scanner) (*domain.PerformanceSnapshot, error) {
	snap := &domain.PerformanceSnapshot{}
	var from, to, computedAt int64
	err := s.Scan(&snap.Key.StrategyID, &snap.Key.Instrument, &from, &to,
		&snap.TradeCount, &snap.Wins, &snap.Losses, &snap.WinRate, &snap.AverageWin, &snap.AverageLoss,
		&snap.ProfitFactor, &snap.MaxDrawdown, &snap.SharpeRatio, &snap.TotalPNL, &computedAt)
	if err != nil {
		return nil, err
	}
	snap.Key.Window = domain.Window{From: fromMicros(from), To: fromMicros(to)}
	snap.ComputedAt = fromMicros(computedAt)
	return snap, nil
}
