package domain

import "time"

// Bar represents a single OHLCV candlestick for an instrument and timeframe.
type Bar struct {
	Instrument string    // Trading symbol
	Timeframe  string    // Bar interval (e.g., "1m", "1h")
	OpenTime   time.Time // Start time of the interval
	CloseTime  time.Time // End time of the interval
	Open       float64   // Opening price
	High       float64   // Highest price
	Low        float64   // Lowest price
	Close      float64   // Closing price
	Volume     float64   // Trading volume
	IsFinal    bool      // Whether this bar is the final one for the interval
}

// SeriesKey identifies the bar series a bar belongs to.
func (b *Bar) SeriesKey() string {
	return SeriesKey(b.Instrument, b.Timeframe)
}

// SeriesKey builds the key of an (instrument, timeframe) series.
func SeriesKey(instrument, timeframe string) string {
	return instrument + "@" + timeframe
}
