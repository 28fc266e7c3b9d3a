// Package backtesting replays historical bars through the live evaluation
// engine against a private in-memory store.
package backtesting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"paperTrader/internal/adapters/sqlite"
	"paperTrader/internal/app"
	"paperTrader/internal/domain"
	"paperTrader/internal/gate"
	"paperTrader/internal/hold"
	"paperTrader/internal/lifecycle"
	"paperTrader/internal/ports"
	"paperTrader/internal/recorder"
	"paperTrader/internal/risk"
	"paperTrader/internal/strategy"
	"paperTrader/internal/strategy/analytics"
)

const defaultInitialBalance = 1000.0

// BacktestConfig holds configuration for backtesting
type BacktestConfig struct {
	InitialBalance float64
	Risk           risk.RiskConfig
	Workers        int
	MinPNLPercent  float64
	MaxPNLPercent  float64
	WindowDays     int
	Logger         ports.Logger
}

// BacktestResult holds the results of a backtest
type BacktestResult struct {
	Bars          int
	Stats         app.Stats
	AuditEntries  int
	OpenPositions int
	Trades        []*domain.Trade
	Metrics       *analytics.PerformanceMetrics
	ByStrategy    map[string]*analytics.PerformanceMetrics
	Snapshots     []*domain.PerformanceSnapshot
}

// replayClock reports the close time of the bar being replayed, so every
// timestamp written during a backtest is historical.
type replayClock struct {
	mu  sync.RWMutex
	now time.Time
}

func (c *replayClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *replayClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Backtest runs strategies over bars. Bars are replayed in close-time order
// and pass through the same gate, lifecycle and recorders as live bars.
// Strategies without a timeframe take the timeframe of the first bar.
func Backtest(ctx context.Context, strategies []*domain.Strategy, bars []*domain.Bar, cfg BacktestConfig) (*BacktestResult, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for backtest")
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars to replay", ports.ErrInvalidRequest)
	}
	required := 1
	for _, s := range strategies {
		if s != nil {
			required = max(required, strategy.RequiredDataPoints(s))
		}
	}
	if len(bars) < required {
		return nil, fmt.Errorf("%w: not enough data points for strategies: have %d, need %d",
			ports.ErrInvalidRequest, len(bars), required)
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = defaultInitialBalance
	}

	ordered := make([]*domain.Bar, len(bars))
	copy(ordered, bars)
	sort.SliceStable(ordered, func(i, j int) bool {
		return closeTime(ordered[i]).Before(closeTime(ordered[j]))
	})

	clock := &replayClock{now: closeTime(ordered[0])}
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: sqlite.MemoryPath, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	trades, err := recorder.NewTrades(recorder.TradeConfig{
		MinPNLPercent: cfg.MinPNLPercent,
		MaxPNLPercent: cfg.MaxPNLPercent,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	audit := recorder.NewAudit(repo, clock.Now)
	lc, err := lifecycle.NewManager(lifecycle.Config{
		Store:  repo,
		Holds:  hold.NewManager(0),
		Risk:   risk.NewRiskManager(cfg.Risk),
		Trades: trades,
		Audit:  audit,
		Logger: cfg.Logger,
		Now:    clock.Now,
	})
	if err != nil {
		return nil, err
	}
	metrics, err := analytics.NewAggregator(analytics.AggregatorConfig{
		Trades:     repo,
		Snapshots:  repo,
		Logger:     cfg.Logger,
		WindowDays: cfg.WindowDays,
		Now:        clock.Now,
	})
	if err != nil {
		return nil, err
	}
	engine, err := app.NewEngine(app.Config{
		Timeframe: ordered[0].Timeframe,
		Workers:   cfg.Workers,
	}, app.Deps{
		Logger:     cfg.Logger,
		Gate:       gate.New(0),
		Positions:  repo,
		Lifecycle:  lc,
		Audit:      audit,
		Metrics:    metrics,
		Strategies: strategies,
		Now:        clock.Now,
	})
	if err != nil {
		return nil, err
	}

	for _, bar := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clock.set(closeTime(bar))
		if err := engine.HandleBar(ctx, bar); err != nil && !errors.Is(err, ports.ErrInvalidBar) {
			return nil, err
		}
		if err := metrics.Flush(ctx); err != nil {
			return nil, err
		}
	}

	return collect(ctx, repo, engine, len(ordered), cfg.InitialBalance)
}

func collect(ctx context.Context, repo *sqlite.Repository, engine *app.Engine, bars int, initialBalance float64) (*BacktestResult, error) {
	trades, err := repo.FindTrades(ctx, ports.TradeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read backtest trades: %w", err)
	}
	open, err := repo.ListPositions(ctx, ports.PositionFilter{Status: domain.StatusOpen})
	if err != nil {
		return nil, fmt.Errorf("failed to read open positions: %w", err)
	}
	audited, err := repo.CountAudit(ctx, ports.AuditFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	snapshots, err := repo.ListSnapshots(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}

	grouped := make(map[string][]*domain.Trade)
	for _, t := range trades {
		grouped[t.StrategyID] = append(grouped[t.StrategyID], t)
	}
	byStrategy := make(map[string]*analytics.PerformanceMetrics, len(grouped))
	for id, ts := range grouped {
		byStrategy[id] = analytics.AnalyzePerformance(ts, initialBalance)
	}

	return &BacktestResult{
		Bars:          bars,
		Stats:         engine.Stats(),
		AuditEntries:  audited,
		OpenPositions: len(open),
		Trades:        trades,
		Metrics:       analytics.AnalyzePerformance(trades, initialBalance),
		ByStrategy:    byStrategy,
		Snapshots:     snapshots,
	}, nil
}

func closeTime(bar *domain.Bar) time.Time {
	if !bar.CloseTime.IsZero() {
		return bar.CloseTime
	}
	return bar.OpenTime
}
