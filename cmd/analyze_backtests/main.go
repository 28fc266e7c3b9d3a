package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"paperTrader/internal/domain"
	"paperTrader/internal/strategy/analytics"
	"paperTrader/internal/utils"
)

func main() {
	dir := flag.String("dir", "data", "directory holding trade CSV files written by backtest -trades-out")
	prefix := flag.String("prefix", "backtest_trades", "file name prefix")
	balance := flag.Float64("balance", 1000, "initial balance")
	flag.Parse()

	// Find all backtest trade files
	files, err := findBacktestFiles(*dir, *prefix)
	if err != nil {
		log.Fatalf("Error finding backtest files: %v", err)
	}
	if len(files) == 0 {
		log.Println("No backtest files found. Run the backtest with -trades-out first.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "File\tTrades\tWinRate\tAvgWin\tAvgLoss\tTotalPnL\tMaxDD%\tExpectancy\tAvgHold\t")

	analyzed := make(map[string]*analytics.PerformanceMetrics, len(files))
	for _, file := range files {
		trades, err := utils.ReadTradesFromCSV(file)
		if err != nil {
			log.Printf("Error reading trades from %s: %v", file, err)
			continue
		}
		m := analytics.AnalyzePerformance(trades, *balance)
		analyzed[file] = m

		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t\n",
			filepath.Base(file), m.TradeCount, m.WinRate*100, m.AverageWin, m.AverageLoss,
			m.TotalPNL, m.MaxDrawdownPct*100, m.Expectancy, m.AverageTradeDuration)
	}
	w.Flush()

	fmt.Println("\n## Exit Reason Analysis")
	for _, file := range files {
		if m, ok := analyzed[file]; ok {
			printExitReasons(file, m)
		}
	}
}

// findBacktestFiles finds all backtest trade files in the specified directory
func findBacktestFiles(dir, prefix string) ([]string, error) {
	var files []string

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) && strings.HasSuffix(entry.Name(), ".csv") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func printExitReasons(file string, m *analytics.PerformanceMetrics) {
	fmt.Printf("\nFile: %s\n", filepath.Base(file))
	fmt.Println("Exit Reason\tCount\tShare")

	reasons := make([]domain.ExitReason, 0, len(m.ExitReasons))
	for reason := range m.ExitReasons {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		return string(reasons[i]) < string(reasons[j])
	})
	for _, reason := range reasons {
		count := m.ExitReasons[reason]
		fmt.Printf("%s\t%d\t%.1f%%\n", reason, count, float64(count)/float64(m.TradeCount)*100)
	}
}
