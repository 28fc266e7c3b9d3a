package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"paperTrader/internal/domain"
)

var tradeHeader = []string{
	"id", "position_id", "strategy_id", "instrument", "direction", "entry_price", "exit_price",
	"quantity", "pnl", "pnl_percent", "entry_time", "exit_time", "exit_reason",
}

// WriteTradesToCSV writes trades to filename, creating its directory if needed.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filename, err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		err := writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			strconv.FormatInt(t.PositionID, 10),
			t.StrategyID,
			t.Instrument,
			string(t.Direction),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.FormatFloat(t.PNL, 'f', -1, 64),
			strconv.FormatFloat(t.PNLPercent, 'f', -1, 64),
			t.EntryTime.UTC().Format(time.RFC3339Nano),
			t.ExitTime.UTC().Format(time.RFC3339Nano),
			string(t.ExitReason),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTradesFromCSV reads a file produced by WriteTradesToCSV. Every trade
// is validated, so a hand-edited file with inconsistent P&L is rejected.
func ReadTradesFromCSV(filename string) ([]*domain.Trade, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(tradeHeader)

	var trades []*domain.Trade
	for row := 1; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return trades, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		if row == 1 && rec[0] == tradeHeader[0] {
			continue
		}
		t, err := parseTrade(rec)
		if err == nil {
			err = t.Validate()
		}
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", filename, row, err)
		}
		trades = append(trades, t)
	}
}

func parseTrade(rec []string) (*domain.Trade, error) {
	var errs []error
	parseInt := func(i int) int64 {
		v, err := strconv.ParseInt(rec[i], 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", tradeHeader[i], err))
		}
		return v
	}
	parseFloat := func(i int) float64 {
		v, err := strconv.ParseFloat(rec[i], 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", tradeHeader[i], err))
		}
		return v
	}
	parseTime := func(i int) time.Time {
		v, err := time.Parse(time.RFC3339Nano, rec[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", tradeHeader[i], err))
		}
		return v.UTC()
	}

	t := &domain.Trade{
		ID:         parseInt(0),
		PositionID: parseInt(1),
		StrategyID: rec[2],
		Instrument: rec[3],
		Direction:  domain.Direction(rec[4]),
		EntryPrice: parseFloat(5),
		ExitPrice:  parseFloat(6),
		Quantity:   parseFloat(7),
		PNL:        parseFloat(8),
		PNLPercent: parseFloat(9),
		EntryTime:  parseTime(10),
		ExitTime:   parseTime(11),
		ExitReason: domain.ExitReason(rec[12]),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}
