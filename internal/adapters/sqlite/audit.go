package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

const auditColumns = `id, cycle_id, strategy_id, instrument, ts, signal, triggered, missing, outcome, position_id`

// AppendAudit saves a new audit entry and returns its assigned ID.
// The table rejects UPDATE and DELETE through triggers.
func (q *queries) AppendAudit(ctx context.Context, entry *domain.AuditEntry) (int64, error) {
	const query = `
	INSERT INTO audit_entries (cycle_id, strategy_id, instrument, ts, signal, triggered, missing, outcome, position_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	triggered, err := encodeList(entry.TriggeredConditions)
	if err != nil {
		return 0, fmt.Errorf("failed to encode triggered conditions: %w", err)
	}
	missing, err := encodeList(entry.MissingIndicators)
	if err != nil {
		return 0, fmt.Errorf("failed to encode missing indicators: %w", err)
	}
	var positionID sql.NullInt64
	if entry.PositionID != nil {
		positionID = sql.NullInt64{Int64: *entry.PositionID, Valid: true}
	}

	result, err := q.db.ExecContext(ctx, query,
		entry.CycleID, entry.StrategyID, entry.Instrument, toMicros(entry.Timestamp), entry.Signal,
		triggered, missing, entry.Outcome, positionID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit entry for %s/%s: %w", entry.StrategyID, entry.Instrument, mapError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for audit entry: %w", mapError(err))
	}
	entry.ID = id
	return id, nil
}

// ListAudit returns matching entries ordered by ID ascending.
func (q *queries) ListAudit(ctx context.Context, filter ports.AuditFilter) ([]*domain.AuditEntry, error) {
	w := auditWhere(filter)
	query := `SELECT ` + auditColumns + ` FROM audit_entries` + w.String() + ` ORDER BY id ASC`
	args := w.args
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", mapError(err))
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", mapError(err))
	}
	return entries, nil
}

// CountAudit counts matching entries.
func (q *queries) CountAudit(ctx context.Context, filter ports.AuditFilter) (int, error) {
	w := auditWhere(filter)
	var count int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`+w.String(), w.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", mapError(err))
	}
	return count, nil
}

func auditWhere(filter ports.AuditFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.StrategyID != "" {
		w.add("strategy_id = ?", filter.StrategyID)
	}
	if filter.Instrument != "" {
		w.add("instrument = ?", filter.Instrument)
	}
	if !filter.From.IsZero() {
		w.add("ts >= ?", toMicros(filter.From))
	}
	if !filter.To.IsZero() {
		w.add("ts < ?", toMicros(filter.To))
	}
	if filter.AfterID > 0 {
		w.add("id > ?", filter.AfterID)
	}
	return w
}

func scanAudit(s scanner) (*domain.AuditEntry, error) {
	e := &domain.AuditEntry{}
	var (
		ts                 int64
		signal             string
		triggered, missing string
		positionID         sql.NullInt64
	)
	if err := s.Scan(&e.ID, &e.CycleID, &e.StrategyID, &e.Instrument, &ts, &signal,
		&triggered, &missing, &e.Outcome, &positionID); err != nil {
		return nil, mapError(err)
	}
	e.Timestamp = fromMicros(ts)
	e.Signal = domain.SignalType(signal)
	if positionID.Valid {
		id := positionID.Int64
		e.PositionID = &id
	}
	var err error
	if e.TriggeredConditions, err = decodeList(triggered); err != nil {
		return nil, fmt.Errorf("audit entry %d triggered conditions: %w", e.ID, err)
	}
	if e.MissingIndicators, err = decodeList(missing); err != nil {
		return nil, fmt.Errorf("audit entry %d missing indicators: %w", e.ID, err)
	}
	return e, nil
}

// encodeList stores identifier lists as JSON arrays.
func encodeList(items []string) (string, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	var items []string
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}
