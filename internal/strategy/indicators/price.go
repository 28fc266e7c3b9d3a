package indicators

import (
	"context"

	"paperTrader/internal/domain"
)

// PriceField exposes a raw field of the latest bar as an indicator.
type PriceField string

const (
	FieldOpen   PriceField = "OPEN"
	FieldHigh   PriceField = "HIGH"
	FieldLow    PriceField = "LOW"
	FieldClose  PriceField = "CLOSE"
	FieldVolume PriceField = "VOLUME"
)

// NewPriceField creates the indicator for a raw bar field.
func NewPriceField(f PriceField) PriceField {
	return f
}

// Name returns the name of the field
func (f PriceField) Name() string {
	return string(f)
}

// RequiredDataPoints returns the minimum number of bars needed
func (f PriceField) RequiredDataPoints() int {
	return 1
}

// Calculate returns the field of the most recent bar
func (f PriceField) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	if err := checkData(f.Name(), bars, 1); err != nil {
		return 0, err
	}
	b := bars[len(bars)-1]
	switch f {
	case FieldOpen:
		return b.Open, nil
	case FieldHigh:
		return b.High, nil
	case FieldLow:
		return b.Low, nil
	case FieldVolume:
		return b.Volume, nil
	default:
		return b.Close, nil
	}
}
