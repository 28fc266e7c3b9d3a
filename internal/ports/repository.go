package ports

import (
	"context"
	"time"

	"paperTrader/internal/domain"
)

// PositionReader reads positions.
type PositionReader interface {
	// FindPositionByID retrieves a position by its unique ID.
	// Returns nil, nil if not found.
	FindPositionByID(ctx context.Context, id int64) (*domain.Position, error)
	// FindOpenPosition retrieves the open position of a (strategy, instrument) pair, if any.
	// Returns nil, nil if no open position is found.
	FindOpenPosition(ctx context.Context, strategyID, instrument string) (*domain.Position, error)
	// CountOpenPositions counts the open positions of a strategy across instruments.
	CountOpenPositions(ctx context.Context, strategyID string) (int, error)
}

// PositionWriter creates positions and performs the closing transition.
type PositionWriter interface {
	// CreatePosition saves a new open position and returns its assigned ID.
	CreatePosition(ctx context.Context, pos *domain.Position) (int64, error)
	// MarkPositionClosed moves an open position to closed, storing the exit
	// columns of pos. Returns ErrContention if the position is no longer open.
	MarkPositionClosed(ctx context.Context, pos *domain.Position) error
}

// TradeWriter stores closed-trade records.
type TradeWriter interface {
	// InsertTrade saves a new trade and returns its assigned ID.
	// A second trade for the same position fails with ErrDuplicateEntry.
	InsertTrade(ctx context.Context, trade *domain.Trade) (int64, error)
}

// AuditWriter appends audit entries.
type AuditWriter interface {
	// AppendAudit saves a new audit entry and returns its assigned ID.
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) (int64, error)
}

// Tx is the set of operations available inside a store transaction.
type Tx interface {
	PositionReader
	PositionWriter
	TradeWriter
	AuditWriter
}

// Store is the authoritative persistent store of positions, trades and audit entries.
type Store interface {
	Tx
	// WithinTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// PositionFilter selects positions. Zero values are ignored.
type PositionFilter struct {
	StrategyID string
	Instrument string
	Status     domain.PositionStatus
	From       time.Time // Entry time lower bound, inclusive
	To         time.Time // Entry time upper bound, exclusive
	Limit      int
}

// PositionRepository is the query side of the position store.
type PositionRepository interface {
	PositionReader
	// ListPositions returns matching positions ordered by entry time descending.
	ListPositions(ctx context.Context, filter PositionFilter) ([]*domain.Position, error)
}

// TradeFilter selects trades by exit time. Zero values are ignored.
type TradeFilter struct {
	StrategyID string
	Instrument string
	From       time.Time // Exit time lower bound, inclusive
	To         time.Time // Exit time upper bound, exclusive
	Limit      int
}

// TradeRepository is the query side of the trade history.
type TradeRepository interface {
	// FindTrades returns matching trades ordered by exit time, then ID.
	FindTrades(ctx context.Context, filter TradeFilter) ([]*domain.Trade, error)
	// FindTradeByPositionID returns the trade of a position, or nil, nil.
	FindTradeByPositionID(ctx context.Context, positionID int64) (*domain.Trade, error)
	// CountTrades counts matching trades.
	CountTrades(ctx context.Context, filter TradeFilter) (int, error)
}

// AuditFilter selects audit entries. Zero values are ignored.
type AuditFilter struct {
	StrategyID string
	Instrument string
	From       time.Time
	To         time.Time
	AfterID    int64 // Return only entries with a larger ID
	Limit      int
}

// AuditRepository stores and exposes the audit trail.
type AuditRepository interface {
	AuditWriter
	// ListAudit returns matching entries ordered by ID ascending.
	ListAudit(ctx context.Context, filter AuditFilter) ([]*domain.AuditEntry, error)
	// CountAudit counts matching entries.
	CountAudit(ctx context.Context, filter AuditFilter) (int, error)
}

// SnapshotRepository stores performance snapshots.
type SnapshotRepository interface {
	// UpsertSnapshot inserts the snapshot or replaces the one with the same key.
	UpsertSnapshot(ctx context.Context, snap *domain.PerformanceSnapshot) error
	// FindSnapshot returns the snapshot of a key, or nil, nil.
	FindSnapshot(ctx context.Context, key domain.SnapshotKey) (*domain.PerformanceSnapshot, error)
	// ListSnapshots returns the snapshots of a strategy, newest window first.
	// An empty strategyID lists every strategy.
	ListSnapshots(ctx context.Context, strategyID string) ([]*domain.PerformanceSnapshot, error)
}
