package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"paperTrader/config"
	"paperTrader/internal/adapters/binanceclient"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/adapters/sqlite"
	"paperTrader/internal/adapters/strategyfile"
	"paperTrader/internal/app"
	"paperTrader/internal/gate"
	"paperTrader/internal/hold"
	"paperTrader/internal/lifecycle"
	"paperTrader/internal/recorder"
	"paperTrader/internal/risk"
	"paperTrader/internal/strategy"
	"paperTrader/internal/strategy/analytics"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, syncLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = syncLogger() }()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.Log.Level, "format": cfg.Log.Format})

	fatal := func(err error, msg string) {
		appLogger.Error(ctx, err, "FATAL: "+msg)
		_ = syncLogger()
		log.Fatalf("FATAL: %s: %v", msg, err)
	}

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		fatal(err, "Failed to initialize database repository")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized", map[string]interface{}{"path": cfg.DBPath})

	// 4. Load Strategies: the strategies file wins over the environment default
	defaultProvider, err := strategy.NewDefaultProvider(cfg.DefaultStrategy())
	if err != nil {
		fatal(err, "Invalid default strategy settings")
	}
	chain, err := strategy.NewChain(appLogger, strategyfile.NewProvider(cfg.StrategiesFile), defaultProvider)
	if err != nil {
		fatal(err, "Failed to build strategy providers")
	}
	strategies, err := chain.LoadStrategies(ctx)
	if err != nil {
		fatal(err, "Failed to load strategies")
	}

	// 5. Initialize Position Lifecycle
	trades, err := recorder.NewTrades(recorder.TradeConfig{
		MinPNLPercent: cfg.PNLPctMin,
		MaxPNLPercent: cfg.PNLPctMax,
		Logger:        appLogger,
	})
	if err != nil {
		fatal(err, "Failed to initialize trade recorder")
	}
	audit := recorder.NewAudit(repo, nil)
	lc, err := lifecycle.NewManager(lifecycle.Config{
		Store:  repo,
		Holds:  hold.NewManager(cfg.HoldTimeout),
		Risk:   risk.NewRiskManager(cfg.RiskConfig()),
		Trades: trades,
		Audit:  audit,
		Logger: appLogger,
	})
	if err != nil {
		fatal(err, "Failed to initialize position lifecycle")
	}
	metrics, err := analytics.NewAggregator(analytics.AggregatorConfig{
		Trades:     repo,
		Snapshots:  repo,
		Logger:     appLogger,
		WindowDays: cfg.MetricsWindowDays,
	})
	if err != nil {
		fatal(err, "Failed to initialize metrics aggregator")
	}

	// 6. Initialize Market Data Source (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		fatal(err, "Failed to initialize Binance client")
	}

	// 7. Initialize Engine
	engine, err := app.NewEngine(app.Config{
		Timeframe:       cfg.Timeframe,
		Workers:         cfg.Workers,
		CycleTimeout:    cfg.CycleTimeout,
		RecheckInterval: cfg.RecheckInterval,
		HistoryBars:     cfg.HistoryBars,
	}, app.Deps{
		Logger:     appLogger,
		Source:     binanceClient,
		Gate:       gate.New(cfg.HistoryBars),
		Positions:  repo,
		Lifecycle:  lc,
		Audit:      audit,
		Metrics:    metrics,
		Strategies: strategies,
	})
	if err != nil {
		fatal(err, "Failed to initialize engine")
	}

	// 8. Run until interrupted
	if err := engine.Start(ctx); err != nil {
		fatal(err, "Engine exited with error")
	}
	appLogger.Info(ctx, "Application finished gracefully.")
}
