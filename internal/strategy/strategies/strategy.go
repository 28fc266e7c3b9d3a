// Package strategies builds ready-made strategy definitions from a handful
// of numeric settings. Each preset is an ordinary condition tree, so it is
// evaluated, audited and persisted exactly like a strategy read from a file.
package strategies

import (
	"fmt"
	"sort"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// Preset names.
const (
	PresetRSI         = "rsi"
	PresetMACrossover = "ma-crossover"
)

// Config holds the settings shared by every preset. Each preset reads only
// the fields it needs.
type Config struct {
	Preset      string // Defaults to PresetRSI
	ID          string // Defaults to "default-" + preset
	Instruments []string
	Timeframe   string
	Direction   domain.Direction
	Risk        domain.RiskParams

	RSIPeriod     int     // e.g., 14
	RSIOverbought float64 // e.g., 70.0
	RSIOversold   float64 // e.g., 30.0

	FastMAPeriod int     // e.g., 8
	SlowMAPeriod int     // e.g., 21
	ADXPeriod    int     // e.g., 14
	MinADX       float64 // Trend strength filter, 0 disables it
}

type builder func(cfg Config) (entry, exit *domain.Condition, name string, err error)

var presets = map[string]builder{
	PresetRSI:         rsiMeanReversion,
	PresetMACrossover: maCrossover,
}

// Names returns the known preset names, sorted.
func Names() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates the strategy described by cfg.
func Build(cfg Config) (*domain.Strategy, error) {
	if cfg.Preset == "" {
		cfg.Preset = PresetRSI
	}
	build, ok := presets[cfg.Preset]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy preset %q (known: %v)", ports.ErrConfigurationError, cfg.Preset, Names())
	}
	if cfg.ID == "" {
		cfg.ID = "default-" + cfg.Preset
	}
	if cfg.Direction == "" {
		cfg.Direction = domain.Long
	}
	if !cfg.Direction.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", ports.ErrConfigurationError, cfg.Direction)
	}

	entry, exit, name, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: preset %s: %w", ports.ErrConfigurationError, cfg.Preset, err)
	}
	return &domain.Strategy{
		ID:          cfg.ID,
		Name:        name,
		Instruments: append([]string(nil), cfg.Instruments...),
		Timeframe:   cfg.Timeframe,
		Direction:   cfg.Direction,
		Entry:       entry,
		Exit:        exit,
		Risk:        cfg.Risk,
		Enabled:     true,
	}, nil
}

func leaf(id, indicator string, op domain.Operator, value float64) *domain.Condition {
	return &domain.Condition{ID: id, Indicator: indicator, Op: op, Value: value}
}

func cross(id, indicator string, op domain.Operator, ref string) *domain.Condition {
	return &domain.Condition{ID: id, Indicator: indicator, Op: op, Ref: ref}
}
