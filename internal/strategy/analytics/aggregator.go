package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

const (
	// DefaultWindowDays is the length of the rolling snapshot window.
	DefaultWindowDays = 30
	defaultQueueSize  = 256
)

// AggregatorConfig holds the dependencies of the metrics aggregator.
type AggregatorConfig struct {
	Trades     ports.TradeRepository
	Snapshots  ports.SnapshotRepository
	Logger     ports.Logger
	WindowDays int
	QueueSize  int
	Now        func() time.Time
}

// Aggregator maintains performance snapshots off the committed trade history.
// It is the only writer of snapshots and never blocks the trading path.
type Aggregator struct {
	trades     ports.TradeRepository
	snapshots  ports.SnapshotRepository
	logger     ports.Logger
	windowDays int
	now        func() time.Time

	queue   chan domain.SnapshotKey
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewAggregator creates a metrics aggregator.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Trades == nil || cfg.Snapshots == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for metrics aggregator")
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultWindowDays
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		trades:     cfg.Trades,
		snapshots:  cfg.Snapshots,
		logger:     cfg.Logger,
		windowDays: cfg.WindowDays,
		now:        cfg.Now,
		queue:      make(chan domain.SnapshotKey, cfg.QueueSize),
		pending:    make(map[string]struct{}),
	}, nil
}

// WindowAt returns the window that ends at the close of the UTC day of at.
func (a *Aggregator) WindowAt(at time.Time) domain.Window {
	y, m, d := at.UTC().Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return domain.Window{From: to.AddDate(0, 0, -a.windowDays), To: to}
}

// KeyFor returns the snapshot key of a pair for the window containing at.
func (a *Aggregator) KeyFor(strategyID, instrument string, at time.Time) domain.SnapshotKey {
	return domain.SnapshotKey{StrategyID: strategyID, Instrument: instrument, Window: a.WindowAt(at)}
}

// Notify requests an asynchronous recompute of key. It never blocks: a key
// already queued is not queued twice and a full queue drops the request.
func (a *Aggregator) Notify(key domain.SnapshotKey) bool {
	id := key.String()
	a.mu.Lock()
	if _, ok := a.pending[id]; ok {
		a.mu.Unlock()
		return true
	}
	a.pending[id] = struct{}{}
	a.mu.Unlock()

	select {
	case a.queue <- key:
		return true
	default:
		a.done(key)
		a.logger.Warn(context.Background(), "Metrics queue full, recompute dropped", map[string]interface{}{"key": id})
		return false
	}
}

// OnTrade queues the snapshot affected by a freshly recorded trade.
func (a *Aggregator) OnTrade(t *domain.Trade) {
	a.Notify(a.KeyFor(t.StrategyID, t.Instrument, t.ExitTime))
}

// Recompute reads every committed trade of key and upserts its snapshot.
// Recomputing twice without new trades yields the same snapshot.
func (a *Aggregator) Recompute(ctx context.Context, key domain.SnapshotKey) (*domain.PerformanceSnapshot, error) {
	op := "Recompute"
	trades, err := a.trades.FindTrades(ctx, ports.TradeFilter{
		StrategyID: key.StrategyID,
		Instrument: key.Instrument,
		From:       key.Window.From,
		To:         key.Window.To,
	})
	if err != nil {
		a.logger.Error(ctx, err, op+": failed to read trades", map[string]interface{}{"key": key.String()})
		return nil, fmt.Errorf("failed to read trades for %s: %w", key, err)
	}

	snap := Compute(key, trades)
	snap.ComputedAt = a.now().UTC()
	if err := a.snapshots.UpsertSnapshot(ctx, snap); err != nil {
		a.logger.Error(ctx, err, op+": failed to store snapshot", map[string]interface{}{"key": key.String()})
		return nil, fmt.Errorf("failed to store snapshot for %s: %w", key, err)
	}

	a.logger.Debug(ctx, op+": snapshot updated", map[string]interface{}{
		"key":        key.String(),
		"tradeCount": snap.TradeCount,
		"winRate":    snap.WinRate,
		"totalPNL":   snap.TotalPNL,
	})
	return snap, nil
}

// Run consumes recompute requests until ctx is done.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.Info(ctx, "Metrics aggregator started", map[string]interface{}{"windowDays": a.windowDays})
	for {
		select {
		case <-ctx.Done():
			a.logger.Info(ctx, "Metrics aggregator stopped")
			return nil
		case key := <-a.queue:
			a.done(key)
			// Failures are logged by Recompute; the next trade on the key retries.
			_, _ = a.Recompute(ctx, key)
		}
	}
}

// Flush synchronously recomputes every queued key.
func (a *Aggregator) Flush(ctx context.Context) error {
	for {
		select {
		case key := <-a.queue:
			a.done(key)
			if _, err := a.Recompute(ctx, key); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (a *Aggregator) done(key domain.SnapshotKey) {
	a.mu.Lock()
	delete(a.pending, key.String())
	a.mu.Unlock()
}
