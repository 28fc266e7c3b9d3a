// Package utils holds file helpers shared by the command-line tools.
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

var barHeader = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}

// WriteBarsToCSV writes bars to filename, creating its directory if needed.
func WriteBarsToCSV(bars []*domain.Bar, filename string) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", filename, err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteBars(file, bars)
}

// WriteBars writes a header row followed by one row per bar.
func WriteBars(w io.Writer, bars []*domain.Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(barHeader); err != nil {
		return err
	}
	for _, b := range bars {
		err := writer.Write([]string{
			b.OpenTime.UTC().Format(time.RFC3339Nano),
			b.CloseTime.UTC().Format(time.RFC3339Nano),
			b.Instrument,
			b.Timeframe,
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadBarsFromCSV reads a file produced by WriteBarsToCSV.
func ReadBarsFromCSV(filename string) ([]*domain.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	bars, err := ReadBars(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return bars, nil
}

// ReadBars parses CSV rows into final bars. The header row is optional.
// Row numbers in errors are 1-based and count the header.
func ReadBars(r io.Reader) ([]*domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(barHeader)
	reader.ReuseRecord = true

	var bars []*domain.Bar
	for row := 1; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return bars, nil
		}
		if err != nil {
			return nil, err
		}
		if row == 1 && rec[0] == barHeader[0] {
			continue
		}
		bar, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		bars = append(bars, bar)
	}
}

func parseRow(rec []string) (*domain.Bar, error) {
	openTime, err := time.Parse(time.RFC3339Nano, rec[0])
	if err != nil {
		return nil, fmt.Errorf("invalid open_time: %w", err)
	}
	closeTime, err := time.Parse(time.RFC3339Nano, rec[1])
	if err != nil {
		return nil, fmt.Errorf("invalid close_time: %w", err)
	}
	var values [5]float64
	for i := range values {
		v, err := strconv.ParseFloat(rec[4+i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", barHeader[4+i], err)
		}
		values[i] = v
	}
	return &domain.Bar{
		Instrument: rec[2],
		Timeframe:  rec[3],
		OpenTime:   openTime.UTC(),
		CloseTime:  closeTime.UTC(),
		Open:       values[0],
		High:       values[1],
		Low:        values[2],
		Close:      values[3],
		Volume:     values[4],
		IsFinal:    true,
	}, nil
}
