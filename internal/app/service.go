// Package app runs the evaluation engine: every validated bar fans out to the
// strategies trading its instrument, each producing exactly one audit entry.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/lifecycle"
	"paperTrader/internal/ports"
	"paperTrader/internal/recorder"
	"paperTrader/internal/strategy"
	"paperTrader/internal/strategy/analytics"
	"paperTrader/internal/strategy/condition"
	"paperTrader/internal/strategy/indicators"

	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers      = 8
	defaultCycleTimeout = 2 * time.Second
	defaultHistoryBars  = 500
	streamStopTimeout   = 5 * time.Second
)

// Config holds the engine settings.
type Config struct {
	Instruments     []string      // Streamed instruments; defaults to every strategy instrument
	Timeframe       string        // Timeframe of strategies that name none
	Workers         int           // Concurrent strategy cycles per bar
	CycleTimeout    time.Duration // Upper bound of one evaluation cycle
	RecheckInterval time.Duration // Scheduled re-check of open positions, 0 disables it
	HistoryBars     int           // Bars loaded per series on start
}

// Deps are the collaborators of the engine. Source and Metrics are optional.
type Deps struct {
	Logger     ports.Logger
	Source     ports.BarSource
	Gate       ports.MarketDataGate
	Positions  ports.PositionRepository
	Lifecycle  *lifecycle.Manager
	Audit      *recorder.Audit
	Metrics    *analytics.Aggregator
	Strategies []*domain.Strategy
	Now        func() time.Time
}

// Stats counts what the engine has done since it was created.
type Stats struct {
	Bars     int64
	Rejected int64
	Cycles   int64
	Entries  int64
	Exits    int64
	Errors   int64
}

// series is one streamed (instrument, timeframe) bar series.
type series struct {
	instrument string
	timeframe  string
}

// Engine evaluates strategies against validated bars and drives the position lifecycle.
type Engine struct {
	cfg        Config
	logger     ports.Logger
	source     ports.BarSource
	gate       ports.MarketDataGate
	positions  ports.PositionRepository
	lifecycle  *lifecycle.Manager
	audit      *recorder.Audit
	metrics    *analytics.Aggregator
	strategies []*domain.Strategy
	byID       map[string]*domain.Strategy
	series     []series
	now        func() time.Time

	bars, rejected, cycles, entries, exits, errs atomic.Int64
}

// NewEngine creates an evaluation engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Logger == nil || deps.Gate == nil || deps.Positions == nil || deps.Lifecycle == nil || deps.Audit == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	if len(deps.Strategies) == 0 {
		return nil, fmt.Errorf("%w: engine needs at least one strategy", ports.ErrConfigurationError)
	}
	if err := strategy.ValidateAll(deps.Strategies); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = defaultHistoryBars
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = "1m"
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	byID := make(map[string]*domain.Strategy, len(deps.Strategies))
	seen := make(map[string]bool)
	var instruments []string
	for _, s := range deps.Strategies {
		if s.Timeframe == "" {
			s.Timeframe = cfg.Timeframe
		}
		byID[s.ID] = s
		for _, i := range s.Instruments {
			if !seen[i] {
				seen[i] = true
				instruments = append(instruments, i)
			}
		}
	}
	if len(cfg.Instruments) == 0 {
		sort.Strings(instruments)
		cfg.Instruments = instruments
	}

	streamed := make(map[string]bool, len(cfg.Instruments))
	for _, i := range cfg.Instruments {
		streamed[i] = true
	}
	seenSeries := make(map[series]bool)
	var all []series
	for _, s := range deps.Strategies {
		for _, i := range s.Instruments {
			sr := series{instrument: i, timeframe: s.Timeframe}
			if streamed[i] && !seenSeries[sr] {
				seenSeries[sr] = true
				all = append(all, sr)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].instrument != all[j].instrument {
			return all[i].instrument < all[j].instrument
		}
		return all[i].timeframe < all[j].timeframe
	})

	e := &Engine{
		cfg:        cfg,
		logger:     deps.Logger,
		source:     deps.Source,
		gate:       deps.Gate,
		positions:  deps.Positions,
		lifecycle:  deps.Lifecycle,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		strategies: deps.Strategies,
		byID:       byID,
		series:     all,
		now:        now,
	}
	if e.metrics != nil {
		e.lifecycle.Subscribe(e.metrics.OnTrade)
	}
	return e, nil
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Bars:     e.bars.Load(),
		Rejected: e.rejected.Load(),
		Cycles:   e.cycles.Load(),
		Entries:  e.entries.Load(),
		Exits:    e.exits.Load(),
		Errors:   e.errs.Load(),
	}
}

// Start warms up the bar windows, subscribes to live bars and runs until ctx
// is cancelled, a shutdown signal arrives or a stream dies.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info(ctx, "Starting evaluation engine...", map[string]interface{}{
		"series":     len(e.series),
		"strategies": len(e.strategies),
		"workers":    e.cfg.Workers,
	})
	if e.source == nil {
		return fmt.Errorf("%w: engine has no bar source", ports.ErrConfigurationError)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			e.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := e.source.Ping(ctx); err != nil {
		return fmt.Errorf("bar source unreachable: %w", err)
	}
	if err := e.WarmUp(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.metrics != nil {
		g.Go(func() error { return e.metrics.Run(gctx) })
	}
	for _, sr := range e.series {
		doneCh, stopCh, err := e.source.Stream(gctx, sr.instrument, sr.timeframe,
			func(bar *domain.Bar) { _ = e.HandleBar(gctx, bar) },
			func(err error) {
				e.logger.Warn(gctx, "Bar stream error reported", map[string]interface{}{"series": sr.String(), "error": err.Error()})
			},
		)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("failed to start bar stream for %s: %w", sr, err)
		}
		g.Go(func() error { return e.watchStream(gctx, sr, doneCh, stopCh) })
	}
	if e.cfg.RecheckInterval > 0 {
		g.Go(func() error { return e.recheckLoop(gctx) })
	}

	err := g.Wait()
	e.logger.Info(context.Background(), "Evaluation engine stopped.", map[string]interface{}{"stats": e.Stats()})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// WarmUp loads recent history of every streamed series into the gate.
func (e *Engine) WarmUp(ctx context.Context) error {
	op := "WarmUp"
	required := 1
	for _, s := range e.strategies {
		required = max(required, strategy.RequiredDataPoints(s))
	}

	for _, sr := range e.series {
		bars, err := e.source.History(ctx, sr.instrument, sr.timeframe, max(e.cfg.HistoryBars, required))
		if err != nil {
			e.logger.Error(ctx, err, op+": failed to load history", map[string]interface{}{"series": sr.String()})
			return fmt.Errorf("failed to load history for %s: %w", sr, err)
		}
		accepted := 0
		for _, bar := range bars {
			if err := e.gate.Accept(bar); err != nil {
				e.rejected.Add(1)
				e.logger.Warn(ctx, op+": history bar rejected", map[string]interface{}{"series": sr.String(), "error": err.Error()})
				continue
			}
			accepted++
		}
		fields := map[string]interface{}{"series": sr.String(), "bars": accepted, "required": required}
		if accepted < required {
			e.logger.Warn(ctx, op+": history shorter than indicator lookback", fields)
		} else {
			e.logger.Info(ctx, op+": history loaded", fields)
		}
	}
	return nil
}

func (s series) String() string {
	return domain.SeriesKey(s.instrument, s.timeframe)
}

func (e *Engine) watchStream(ctx context.Context, sr series, doneCh, stopCh chan struct{}) error {
	select {
	case <-ctx.Done():
		select {
		case stopCh <- struct{}{}:
		default:
		}
		select {
		case <-doneCh:
			e.logger.Info(context.Background(), "Bar stream shut down gracefully", map[string]interface{}{"series": sr.String()})
		case <-time.After(streamStopTimeout):
			e.logger.Warn(context.Background(), "Timeout waiting for bar stream to shut down", map[string]interface{}{"series": sr.String()})
		}
		return nil
	case <-doneCh:
		err := fmt.Errorf("%w: bar stream for %s stopped unexpectedly", ports.ErrConnectionFailed, sr)
		e.logger.Error(ctx, err, "Bar stream stopped")
		return err
	}
}

func (e *Engine) recheckLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.RecheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.Recheck(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn(ctx, "Scheduled re-check failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// HandleBar validates bar and, once accepted, runs one cycle per strategy
// trading its instrument. Bars still forming are ignored.
func (e *Engine) HandleBar(ctx context.Context, bar *domain.Bar) error {
	if bar == nil || !bar.IsFinal {
		return nil
	}
	e.bars.Add(1)
	if err := e.gate.Accept(bar); err != nil {
		e.rejected.Add(1)
		e.logger.Warn(ctx, "Bar rejected", map[string]interface{}{"instrument": bar.Instrument, "error": err.Error()})
		return err
	}
	return e.RunCycles(ctx, bar)
}

// RunCycles evaluates every active strategy on bar in parallel, bounded by
// the configured worker count. A failing cycle never stops the others.
func (e *Engine) RunCycles(ctx context.Context, bar *domain.Bar) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, s := range e.strategies {
		if !s.Trades(bar.Instrument) || s.Timeframe != bar.Timeframe {
			continue
		}
		g.Go(func() error {
			e.runCycle(gctx, s, bar, false)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// Recheck re-evaluates the exit conditions of every open position against the
// last validated bar of its instrument.
func (e *Engine) Recheck(ctx context.Context) error {
	open, err := e.positions.ListPositions(ctx, ports.PositionFilter{Status: domain.StatusOpen})
	if err != nil {
		e.logger.Error(ctx, err, "Recheck: failed to list open positions")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, pos := range open {
		s, ok := e.byID[pos.StrategyID]
		if !ok {
			continue
		}
		bar, ok := e.gate.Last(pos.Instrument, s.Timeframe)
		if !ok {
			continue
		}
		g.Go(func() error {
			e.runCycle(gctx, s, bar, true)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// runCycle is one evaluation of strategy s on bar. It writes exactly one
// audit entry: inside the lifecycle transaction when a transition commits,
// otherwise directly.
func (e *Engine) runCycle(parent context.Context, s *domain.Strategy, bar *domain.Bar, recheck bool) domain.SignalType {
	ctx, cancel := context.WithTimeout(parent, e.cfg.CycleTimeout)
	defer cancel()
	e.cycles.Add(1)

	entry := &domain.AuditEntry{
		CycleID:    recorder.NewCycleID(),
		StrategyID: s.ID,
		Instrument: bar.Instrument,
		Timestamp:  e.now(),
	}
	fields := map[string]interface{}{"cycleID": entry.CycleID, "strategyID": s.ID, "instrument": bar.Instrument}

	values, snapErr := indicators.Snapshot(ctx, e.gate.Window(bar.Instrument, bar.Timeframe), condition.Indicators(s.Entry, s.Exit))
	if snapErr != nil {
		e.logger.Warn(ctx, "Indicator snapshot incomplete", withErr(fields, snapErr))
	}

	pos, err := e.positions.FindOpenPosition(ctx, s.ID, bar.Instrument)
	if err != nil {
		return e.fail(ctx, entry, fields, "position lookup failed", err)
	}

	if pos == nil {
		if recheck {
			entry.Signal = domain.SignalNone
			entry.Outcome = "recheck: no open position"
			return e.record(ctx, entry, fields)
		}
		return e.evaluateEntry(ctx, s, bar, values, entry, fields)
	}
	entry.PositionID = &pos.ID
	return e.evaluateExit(ctx, pos, s, bar, values, entry, fields, recheck)
}

func (e *Engine) evaluateEntry(ctx context.Context, s *domain.Strategy, bar *domain.Bar, values map[string]float64, entry *domain.AuditEntry, fields map[string]interface{}) domain.SignalType {
	res := condition.Evaluate(s.Entry, values)
	entry.TriggeredConditions = res.Fired
	entry.MissingIndicators = res.Missing
	if !res.Triggered {
		entry.Signal = domain.SignalNone
		entry.Outcome = "entry conditions not met"
		if len(res.Missing) > 0 {
			entry.Outcome = "entry conditions not met: missing indicators"
			e.logger.Warn(ctx, "Missing indicators treated as false", withErr(fields, res.MissingError()))
		}
		return e.record(ctx, entry, fields)
	}

	_, err := e.lifecycle.Open(ctx, lifecycle.OpenRequest{
		Strategy:   s,
		Instrument: bar.Instrument,
		Price:      bar.Close,
		At:         barTime(bar),
		Audit:      entry,
	})
	switch {
	case err == nil:
		e.entries.Add(1)
		return domain.SignalEntry
	case errors.Is(err, ports.ErrContention):
		entry.PositionID = nil
		entry.Signal = domain.SignalEntry
		entry.Outcome = "no-op: position already open for pair"
		return e.record(ctx, entry, fields)
	case errors.Is(err, ports.ErrRiskLimit):
		entry.PositionID = nil
		entry.Signal = domain.SignalEntry
		entry.Outcome = "blocked: " + err.Error()
		return e.record(ctx, entry, fields)
	default:
		entry.PositionID = nil
		return e.fail(ctx, entry, fields, "open failed", err)
	}
}

func (e *Engine) evaluateExit(ctx context.Context, pos *domain.Position, s *domain.Strategy, bar *domain.Bar, values map[string]float64, entry *domain.AuditEntry, fields map[string]interface{}, recheck bool) domain.SignalType {
	res := condition.Evaluate(s.Exit, values)
	entry.MissingIndicators = res.Missing

	decision, ok := lifecycle.EvaluateExit(pos, bar.Close, res.Triggered)
	if !ok {
		entry.TriggeredConditions = res.Fired
		entry.Signal = domain.SignalHold
		entry.Outcome = fmt.Sprintf("holding position %d", pos.ID)
		return e.record(ctx, entry, fields)
	}
	if decision.Reason == domain.ExitSignal {
		entry.TriggeredConditions = res.Fired
	} else {
		entry.TriggeredConditions = []string{string(decision.Reason)}
	}

	at := barTime(bar)
	if recheck {
		at = e.now()
	}
	_, err := e.lifecycle.Close(ctx, lifecycle.CloseRequest{
		PositionID: pos.ID,
		Price:      decision.Price,
		At:         at,
		Reason:     decision.Reason,
		Audit:      entry,
	})
	switch {
	case err == nil:
		e.exits.Add(1)
		return domain.SignalExit
	case errors.Is(err, ports.ErrContention):
		entry.Signal = domain.SignalExit
		entry.Outcome = fmt.Sprintf("no-op: position %d closed by a concurrent trigger", pos.ID)
		return e.record(ctx, entry, fields)
	default:
		return e.fail(ctx, entry, fields, "close failed", err)
	}
}

// record appends entry outside of any transition.
func (e *Engine) record(ctx context.Context, entry *domain.AuditEntry, fields map[string]interface{}) domain.SignalType {
	if err := e.audit.Append(ctx, nil, entry); err != nil {
		e.errs.Add(1)
		e.logger.Error(ctx, err, "Failed to append audit entry", fields)
	}
	return entry.Signal
}

func (e *Engine) fail(ctx context.Context, entry *domain.AuditEntry, fields map[string]interface{}, what string, err error) domain.SignalType {
	e.errs.Add(1)
	entry.Signal = domain.SignalError
	entry.Outcome = what + ": " + err.Error()
	if ports.IsRetryable(err) {
		e.logger.Warn(ctx, "Cycle aborted, will retry on next tick", withErr(fields, err))
	} else {
		e.logger.Error(ctx, err, "Cycle aborted", fields)
	}
	// The cycle context may be what failed; the audit entry must still be written.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CycleTimeout)
	defer cancel()
	return e.record(auditCtx, entry, fields)
}

// barTime is the moment a bar's price became final.
func barTime(bar *domain.Bar) time.Time {
	if !bar.CloseTime.IsZero() {
		return bar.CloseTime
	}
	return bar.OpenTime
}

func withErr(fields map[string]interface{}, err error) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}
