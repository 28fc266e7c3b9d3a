package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"paperTrader/config"
	"paperTrader/internal/adapters/binanceclient"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "ETHUSDT", "instrument to download")
	interval := flag.String("interval", "1m", "bar timeframe")
	days := flag.Int("days", 90, "number of days back from now")
	outDir := flag.String("out", "data", "output directory")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, syncLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = syncLogger() }()
	ctx := context.Background()

	// 3. Initialize Market Data Source (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	instrument := strings.ToUpper(*symbol)
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)

	fmt.Printf("Fetching bars for %s %s from %s to %s...\n", instrument, *interval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	bars, err := binanceClient.HistoryRange(ctx, instrument, *interval, start, end)
	if err != nil {
		log.Fatalf("Error fetching bars: %v", err)
	}
	appLogger.Info(ctx, "Fetched bars", map[string]interface{}{"count": len(bars)})

	filename := filepath.Join(*outDir, fmt.Sprintf("%s_%s_%s_to_%s.csv", instrument, *interval, start.Format("20060102"), end.Format("20060102")))
	if err := utils.WriteBarsToCSV(bars, filename); err != nil {
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
