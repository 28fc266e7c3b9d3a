package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"paperTrader/config"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/adapters/sqlite"
	"paperTrader/internal/domain"
	"paperTrader/internal/hold"
	"paperTrader/internal/lifecycle"
	"paperTrader/internal/ports"
	"paperTrader/internal/recorder"
	"paperTrader/internal/risk"
)

func main() {
	strategyID := flag.String("strategy", "", "only report this strategy")
	limit := flag.Int("limit", 20, "number of recent trades to list")
	openOnly := flag.Bool("open", false, "list open positions instead of recent trades")
	auditLimit := flag.Int("audit", 0, "also list the last N audit entries")
	closeID := flag.Int64("close", 0, "manually close the open position with this ID")
	closePrice := flag.Float64("price", 0, "exit price for -close")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	// Keep stdout for the report.
	appLogger := logger.NewStdLogger(logger.LevelError)
	ctx := context.Background()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open database %s: %v", cfg.DBPath, err)
	}
	defer repo.Close()

	audit := recorder.NewAudit(repo, nil)
	if *closeID != 0 {
		if err := manualClose(ctx, cfg, repo, audit, appLogger, *closeID, *closePrice); err != nil {
			log.Fatalf("Error closing position %d: %v", *closeID, err)
		}
		fmt.Println()
	}

	if err := printSnapshots(ctx, repo, *strategyID); err != nil {
		log.Fatalf("Error reading snapshots: %v", err)
	}
	fmt.Println()
	if *openOnly {
		err = printOpenPositions(ctx, repo, *strategyID)
	} else {
		err = printTrades(ctx, repo, *strategyID, *limit)
	}
	if err != nil {
		log.Fatalf("Error reading store: %v", err)
	}
	if *auditLimit > 0 {
		fmt.Println()
		if err := printAudit(ctx, audit, *strategyID, *auditLimit); err != nil {
			log.Fatalf("Error reading audit trail: %v", err)
		}
	}
}

// manualClose runs the operator close through the same lifecycle the engine
// uses, so the store guards still apply if the engine is running.
func manualClose(ctx context.Context, cfg *config.Config, repo *sqlite.Repository, audit *recorder.Audit, lg ports.Logger, id int64, price float64) error {
	if !(price > 0) {
		return fmt.Errorf("%w: -price must be positive", ports.ErrInvalidRequest)
	}
	trades, err := recorder.NewTrades(recorder.TradeConfig{
		MinPNLPercent: cfg.PNLPctMin,
		MaxPNLPercent: cfg.PNLPctMax,
		Logger:        lg,
	})
	if err != nil {
		return err
	}
	lc, err := lifecycle.NewManager(lifecycle.Config{
		Store:  repo,
		Holds:  hold.NewManager(cfg.HoldTimeout),
		Risk:   risk.NewRiskManager(cfg.RiskConfig()),
		Trades: trades,
		Audit:  audit,
		Logger: lg,
	})
	if err != nil {
		return err
	}
	trade, err := lc.ManualClose(ctx, id, price)
	if err != nil {
		return err
	}
	fmt.Printf("Closed position %d (%s %s) at %.4f, PnL %.4f (%.2f%%)\n",
		trade.PositionID, trade.StrategyID, trade.Instrument, trade.ExitPrice, trade.PNL, trade.PNLPercent)
	return nil
}

func printAudit(ctx context.Context, audit *recorder.Audit, strategyID string, limit int) error {
	filter := ports.AuditFilter{StrategyID: strategyID}
	total, err := audit.Count(ctx, filter)
	if err != nil {
		return err
	}
	// Entries are streamed in ID order; skip ahead to the last limit ones.
	skip := total - limit
	var entries []*domain.AuditEntry
	err = audit.Stream(ctx, filter, func(e *domain.AuditEntry) error {
		if skip > 0 {
			skip--
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("## Audit Trail (%d of %d)\n", len(entries), total)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	fmt.Fprintln(w, "ID\tTime\tStrategy\tInstrument\tSignal\tFired\tMissing\tPosition\tOutcome\t")
	for _, e := range entries {
		pos := "-"
		if e.PositionID != nil {
			pos = fmt.Sprintf("%d", *e.PositionID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			e.ID, e.Timestamp.Format(time.RFC3339), e.StrategyID, e.Instrument, e.Signal,
			strings.Join(e.TriggeredConditions, ","), strings.Join(e.MissingIndicators, ","), pos, e.Outcome)
	}
	return w.Flush()
}

func printSnapshots(ctx context.Context, repo ports.SnapshotRepository, strategyID string) error {
	snaps, err := repo.ListSnapshots(ctx, strategyID)
	if err != nil {
		return err
	}
	fmt.Println("## Performance Snapshots")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Strategy\tInstrument\tWindow\tTrades\tWinRate\tPF\tMaxDD\tSharpe\tTotalPnL\tComputed\t")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s..%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t\n",
			s.Key.StrategyID, s.Key.Instrument,
			s.Key.Window.From.Format("2006-01-02"), s.Key.Window.To.Format("2006-01-02"),
			s.TradeCount, s.WinRate*100, s.ProfitFactor, s.MaxDrawdown, s.SharpeRatio, s.TotalPNL,
			s.ComputedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func printTrades(ctx context.Context, repo ports.TradeRepository, strategyID string, limit int) error {
	total, err := repo.CountTrades(ctx, ports.TradeFilter{StrategyID: strategyID})
	if err != nil {
		return err
	}
	trades, err := repo.FindTrades(ctx, ports.TradeFilter{StrategyID: strategyID})
	if err != nil {
		return err
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}

	fmt.Printf("## Recent Trades (%d of %d)\n", len(trades), total)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "ID\tPosition\tStrategy\tInstrument\tDir\tEntry\tExit\tQty\tPnL\tPnL%\tExitTime\tReason\t")
	for _, t := range trades {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%.4f\t%.4f\t%g\t%.4f\t%.2f\t%s\t%s\t\n",
			t.ID, t.PositionID, t.StrategyID, t.Instrument, t.Direction, t.EntryPrice, t.ExitPrice,
			t.Quantity, t.PNL, t.PNLPercent, t.ExitTime.Format(time.RFC3339), t.ExitReason)
	}
	return w.Flush()
}

func printOpenPositions(ctx context.Context, repo ports.PositionRepository, strategyID string) error {
	open, err := repo.ListPositions(ctx, ports.PositionFilter{StrategyID: strategyID, Status: domain.StatusOpen})
	if err != nil {
		return err
	}
	fmt.Printf("## Open Positions (%d)\n", len(open))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "ID\tStrategy\tInstrument\tDir\tEntry\tQty\tSL\tTP\tEntryTime\t")
	level := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.4f", *v)
	}
	for _, p := range open {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.4f\t%g\t%s\t%s\t%s\t\n",
			p.ID, p.StrategyID, p.Instrument, p.Direction, p.EntryPrice, p.Quantity,
			level(p.StopLoss), level(p.TakeProfit), p.EntryTime.Format(time.RFC3339))
	}
	return w.Flush()
}
