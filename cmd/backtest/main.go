package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"paperTrader/config"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/adapters/strategyfile"
	"paperTrader/internal/domain"
	"paperTrader/internal/strategy"
	"paperTrader/internal/strategy/analytics"
	"paperTrader/internal/strategy/backtesting"
	"paperTrader/internal/strategy/optimization"
	"paperTrader/internal/utils"
)

func main() {
	data := flag.String("data", "", "CSV file of bars written by fetch_bars (required)")
	strategiesFile := flag.String("strategies", "", "strategies file (defaults to STRATEGIES_FILE)")
	balance := flag.Float64("balance", 1000, "initial balance for the report")
	tradesOut := flag.String("trades-out", "", "write the trades of the run to this CSV file")
	sweepTP := flag.String("sweep-tp", "", "sweep take-profit as min:max:step for the first strategy")
	flag.Parse()
	if *data == "" {
		flag.Usage()
		os.Exit(2)
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if *strategiesFile != "" {
		cfg.StrategiesFile = *strategiesFile
	}
	appLogger, syncLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = syncLogger() }()
	ctx := context.Background()

	// 2. Load bars
	bars, err := utils.ReadBarsFromCSV(*data)
	if err != nil {
		log.Fatalf("Error loading bars: %v", err)
	}
	appLogger.Info(ctx, "Loaded bars", map[string]interface{}{"file": *data, "count": len(bars)})

	// 3. Load strategies, the file first, then the environment default
	defaultProvider, err := strategy.NewDefaultProvider(cfg.DefaultStrategy())
	if err != nil {
		log.Fatalf("Invalid default strategy settings: %v", err)
	}
	chain, err := strategy.NewChain(appLogger, strategyfile.NewProvider(cfg.StrategiesFile), defaultProvider)
	if err != nil {
		log.Fatalf("Failed to build strategy providers: %v", err)
	}
	strategies, err := chain.LoadStrategies(ctx)
	if err != nil {
		log.Fatalf("Failed to load strategies: %v", err)
	}

	btConfig := backtesting.BacktestConfig{
		InitialBalance: *balance,
		Risk:           cfg.RiskConfig(),
		Workers:        cfg.Workers,
		MinPNLPercent:  cfg.PNLPctMin,
		MaxPNLPercent:  cfg.PNLPctMax,
		WindowDays:     cfg.MetricsWindowDays,
		Logger:         appLogger,
	}

	if *sweepTP != "" {
		runSweep(ctx, *sweepTP, strategies[0], bars, btConfig)
		return
	}

	// 4. Replay
	result, err := backtesting.Backtest(ctx, strategies, bars, btConfig)
	if err != nil {
		log.Fatalf("Backtest error: %v", err)
	}
	appLogger.Info(ctx, "Backtest finished", map[string]interface{}{
		"bars":          result.Bars,
		"cycles":        result.Stats.Cycles,
		"rejectedBars":  result.Stats.Rejected,
		"auditEntries":  result.AuditEntries,
		"openPositions": result.OpenPositions,
	})

	printResults(result)

	if *tradesOut != "" {
		if err := utils.WriteTradesToCSV(result.Trades, *tradesOut); err != nil {
			log.Fatalf("Error writing trades CSV: %v", err)
		}
		appLogger.Info(ctx, "Trades saved to", map[string]interface{}{"filename": filepath.Clean(*tradesOut)})
	}
}

func printResults(result *backtesting.BacktestResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Strategy\tTrades\tWinRate\tAvgWin\tAvgLoss\tTotalPnL\tMaxDD%\tSharpe\tROI%\t")
	ids := make([]string, 0, len(result.ByStrategy))
	for id := range result.ByStrategy {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	row := func(name string, m *analytics.PerformanceMetrics) {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			name, m.TradeCount, m.WinRate*100, m.AverageWin, m.AverageLoss, m.TotalPNL,
			m.MaxDrawdownPct*100, m.SharpeRatio, m.ReturnOnInvestment*100)
	}
	for _, id := range ids {
		row(id, result.ByStrategy[id])
	}
	row("ALL", result.Metrics)
	w.Flush()

	fmt.Println("\n## Exit Reasons")
	reasons := make([]string, 0, len(result.Metrics.ExitReasons))
	for r := range result.Metrics.ExitReasons {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("%-18s %d\n", r, result.Metrics.ExitReasons[domain.ExitReason(r)])
	}

	fmt.Println("\n## Monthly Returns")
	for _, mr := range result.Metrics.GetMonthlyReturns() {
		fmt.Printf("%s  %.2f\n", mr.Month.Format("2006-01"), mr.Return)
	}
}

func runSweep(ctx context.Context, rangeArg string, base *domain.Strategy, bars []*domain.Bar, btConfig backtesting.BacktestConfig) {
	r, err := parseRange(optimization.ParamTakeProfitPct, rangeArg)
	if err != nil {
		log.Fatalf("Invalid -sweep-tp: %v", err)
	}
	opt, err := optimization.NewOptimizer(optimization.OptimizerConfig{
		ParameterRanges: []optimization.ParameterRange{r},
		Backtest:        btConfig,
	})
	if err != nil {
		log.Fatalf("Failed to create optimizer: %v", err)
	}
	results, err := opt.Optimize(ctx, base, bars)
	if err != nil {
		log.Fatalf("Optimization error: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintf(w, "TP%%\tTrades\tWinRate\tTotalPnL\tMaxDD%%\tScore\t\n")
	for _, res := range results {
		m := res.Metrics
		fmt.Fprintf(w, "%.2f\t%d\t%.2f\t%.2f\t%.2f\t%.3f\t\n",
			res.Parameters[optimization.ParamTakeProfitPct]*100, m.TradeCount, m.WinRate*100, m.TotalPNL, m.MaxDrawdownPct*100, res.Score)
	}
	w.Flush()
}

// parseRange parses "min:max:step".
func parseRange(name, rangeArg string) (optimization.ParameterRange, error) {
	parts := strings.Split(rangeArg, ":")
	if len(parts) != 3 {
		return optimization.ParameterRange{}, fmt.Errorf("want min:max:step, got %q", rangeArg)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return optimization.ParameterRange{}, err
		}
		vals[i] = v
	}
	return optimization.ParameterRange{Name: name, Min: vals[0], Max: vals[1], Step: vals[2]}, nil
}
