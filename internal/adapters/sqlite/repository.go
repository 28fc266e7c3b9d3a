package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paperTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// MemoryPath opens a private in-memory database. Used by backtests and tests.
const MemoryPath = ":memory:"

// dbtx is the subset of *sql.DB and *sql.Tx used by the queries.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// queries holds every statement of the store. It runs either directly on the
// database or inside a transaction, depending on the dbtx it wraps.
type queries struct {
	db     dbtx
	logger ports.Logger
}

// Repository implements ports.Store and the query-side repositories using SQLite.
type Repository struct {
	*queries
	conn   *sql.DB
	logger ports.Logger
}

var (
	_ ports.Store              = (*Repository)(nil)
	_ ports.PositionRepository = (*Repository)(nil)
	_ ports.TradeRepository    = (*Repository)(nil)
	_ ports.AuditRepository    = (*Repository)(nil)
	_ ports.SnapshotRepository = (*Repository)(nil)
)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paper_trader.db" // Default path
	}
	inMemory := dbPath == MemoryPath

	if !inMemory {
		// Create data directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
			return nil, err
		}
		cfg.Logger.Info(context.Background(), "Data directory checked/created", map[string]interface{}{"path": filepath.Dir(dbPath)})
	}

	// WAL for concurrent readers, foreign keys for the trade->position reference,
	// immediate transactions so the write lock is taken on BEGIN.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serialises writers inside the process. Reads share
	// it, so a lookup waits behind any in-flight transaction, not only one for
	// the same position. Transactions are a handful of indexed statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if !inMemory {
		db.SetConnMaxLifetime(time.Hour)
	}

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{
		queries: &queries{db: db, logger: cfg.Logger},
		conn:    db,
		logger:  cfg.Logger,
	}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables, indexes and the immutability triggers.
// Timestamps are stored as UTC unix microseconds.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		strategy_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		direction TEXT NOT NULL CHECK (direction IN ('long', 'short')),
		entry_price REAL NOT NULL CHECK (entry_price > 0),
		quantity REAL NOT NULL CHECK (quantity > 0),
		entry_time INTEGER NOT NULL,
		stop_loss REAL NULL CHECK (stop_loss IS NULL OR stop_loss > 0),
		take_profit REAL NULL CHECK (take_profit IS NULL OR take_profit > 0),
		status TEXT NOT NULL CHECK (status IN ('open', 'closed')),
		exit_price REAL NULL,
		exit_time INTEGER NULL,
		exit_reason TEXT NULL,
		pnl REAL NULL,
		CHECK (direction <> 'long' OR ((stop_loss IS NULL OR stop_loss < entry_price) AND (take_profit IS NULL OR take_profit > entry_price))),
		CHECK (direction <> 'short' OR ((stop_loss IS NULL OR stop_loss > entry_price) AND (take_profit IS NULL OR take_profit < entry_price))),
		CHECK (status = 'open' OR (exit_price > 0 AND exit_time > entry_time AND exit_reason IS NOT NULL AND pnl IS NOT NULL))
	);

	-- At most one open position per (strategy, instrument).
	CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_one_open ON positions (strategy_id, instrument) WHERE status = 'open';
	CREATE INDEX IF NOT EXISTS idx_positions_strategy_status ON positions (strategy_id, status);
	CREATE INDEX IF NOT EXISTS idx_positions_instrument_entry_time ON positions (instrument, entry_time);

	CREATE TRIGGER IF NOT EXISTS positions_closed_immutable
	BEFORE UPDATE ON positions
	WHEN OLD.status = 'closed'
	BEGIN
		SELECT RAISE(ABORT, 'closed positions are immutable');
	END;

	CREATE TRIGGER IF NOT EXISTS positions_entry_immutable
	BEFORE UPDATE ON positions
	WHEN NEW.strategy_id IS NOT OLD.strategy_id
	  OR NEW.instrument IS NOT OLD.instrument
	  OR NEW.direction IS NOT OLD.direction
	  OR NEW.entry_price IS NOT OLD.entry_price
	  OR NEW.quantity IS NOT OLD.quantity
	  OR NEW.entry_time IS NOT OLD.entry_time
	BEGIN
		SELECT RAISE(ABORT, 'position entry columns are immutable');
	END;

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id INTEGER NOT NULL UNIQUE REFERENCES positions (id) ON DELETE RESTRICT,
		strategy_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		direction TEXT NOT NULL CHECK (direction IN ('long', 'short')),
		entry_price REAL NOT NULL CHECK (entry_price > 0),
		exit_price REAL NOT NULL CHECK (exit_price > 0),
		quantity REAL NOT NULL CHECK (quantity > 0),
		pnl REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		entry_time INTEGER NOT NULL,
		exit_time INTEGER NOT NULL,
		exit_reason TEXT NOT NULL CHECK (exit_reason IN ('stop-loss-hit', 'take-profit-hit', 'exit-signal', 'manual-close')),
		CHECK (exit_time > entry_time),
		CHECK (abs(pnl - CASE direction
			WHEN 'long' THEN (exit_price - entry_price) * quantity
			ELSE (entry_price - exit_price) * quantity END) < 0.01)
	);
	CREATE INDEX IF NOT EXISTS idx_trades_strategy_instrument_exit ON trades (strategy_id, instrument, exit_time);

	CREATE TRIGGER IF NOT EXISTS trades_no_update
	BEFORE UPDATE ON trades
	BEGIN
		SELECT RAISE(ABORT, 'trades are append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS trades_no_delete
	BEFORE DELETE ON trades
	BEGIN
		SELECT RAISE(ABORT, 'trades are append-only');
	END;

	CREATE TABLE IF NOT EXISTS audit_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		ts INTEGER NOT NULL,
		signal TEXT NOT NULL CHECK (signal IN ('entry', 'exit', 'hold', 'none', 'error')),
		triggered TEXT NOT NULL DEFAULT '[]',
		missing TEXT NOT NULL DEFAULT '[]',
		outcome TEXT NOT NULL,
		position_id INTEGER NULL REFERENCES positions (id) ON DELETE RESTRICT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_strategy_ts ON audit_entries (strategy_id, ts);

	CREATE TRIGGER IF NOT EXISTS audit_entries_no_update
	BEFORE UPDATE ON audit_entries
	BEGIN
		SELECT RAISE(ABORT, 'audit entries are append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS audit_entries_no_delete
	BEFORE DELETE ON audit_entries
	BEGIN
		SELECT RAISE(ABORT, 'audit entries are append-only');
	END;

	CREATE TABLE IF NOT EXISTS performance_snapshots (
		strategy_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		window_from INTEGER NOT NULL,
		window_to INTEGER NOT NULL,
		trade_count INTEGER NOT NULL CHECK (trade_count >= 0),
		wins INTEGER NOT NULL CHECK (wins >= 0),
		losses INTEGER NOT NULL CHECK (losses >= 0),
		win_rate REAL NOT NULL,
		avg_win REAL NOT NULL,
		avg_loss REAL NOT NULL,
		profit_factor REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe REAL NOT NULL,
		total_pnl REAL NOT NULL,
		computed_at INTEGER NOT NULL,
		PRIMARY KEY (strategy_id, instrument, window_from, window_to),
		CHECK (wins + losses = trade_count),
		CHECK (window_to > window_from)
	);
	`
	_, err := r.conn.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a single immediate transaction. Every write made
// through the supplied ports.Tx commits or rolls back together.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) (err error) {
	sqlTx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				r.logger.Warn(ctx, "Transaction rollback failed", map[string]interface{}{"error": rbErr.Error()})
			}
			return
		}
		if cErr := sqlTx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", mapError(cErr))
		}
	}()

	return fn(ctx, &queries{db: sqlTx, logger: r.logger})
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.conn != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.conn.Close()
	}
	return nil
}

// --- Helpers ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// whereBuilder accumulates optional filter clauses.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(clause string, arg interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	s := " WHERE " + w.clauses[0]
	for _, c := range w.clauses[1:] {
		s += " AND " + c
	}
	return s
}
