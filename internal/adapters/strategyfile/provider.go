// Package strategyfile loads strategy definitions from a YAML file.
package strategyfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"gopkg.in/yaml.v3"
)

// File is the document layout of a strategies file.
type File struct {
	Strategies []StrategyDoc `yaml:"strategies"`
}

// StrategyDoc is one strategy as written in YAML.
type StrategyDoc struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Instruments []string      `yaml:"instruments"`
	Timeframe   string        `yaml:"timeframe"`
	Direction   string        `yaml:"direction"`
	Enabled     *bool         `yaml:"enabled"` // Defaults to true
	Entry       *ConditionDoc `yaml:"entry"`
	Exit        *ConditionDoc `yaml:"exit"`
	Risk        RiskDoc       `yaml:"risk"`
}

// ConditionDoc is a condition tree node as written in YAML.
type ConditionDoc struct {
	ID        string          `yaml:"id"`
	All       []*ConditionDoc `yaml:"all"`
	Any       []*ConditionDoc `yaml:"any"`
	Indicator string          `yaml:"indicator"`
	Op        string          `yaml:"op"`
	Value     *float64        `yaml:"value"`
	Ref       string          `yaml:"ref"`
}

// RiskDoc holds the risk parameters of a strategy.
type RiskDoc struct {
	Quantity         float64 `yaml:"quantity"`
	MaxQuantity      float64 `yaml:"max_quantity"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	TakeProfitPct    float64 `yaml:"take_profit_pct"`
}

// Provider reads strategies from a YAML file on every load.
type Provider struct {
	path string
}

// NewProvider creates a file provider for path.
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// Name returns the provider name.
func (p *Provider) Name() string { return "file:" + p.path }

// LoadStrategies implements ports.StrategyProvider. A missing file yields no
// strategies so the next provider in the chain is consulted.
func (p *Provider) LoadStrategies(ctx context.Context) ([]*domain.Strategy, error) {
	if p.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ports.ErrConfigurationError, p.path, err)
	}
	return Parse(data)
}

// Parse decodes a strategies document. Unknown keys are rejected.
func Parse(data []byte) ([]*domain.Strategy, error) {
	var doc File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: invalid strategies file: %w", ports.ErrConfigurationError, err)
	}

	strategies := make([]*domain.Strategy, 0, len(doc.Strategies))
	for i, sd := range doc.Strategies {
		s, err := sd.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: strategies[%d] (%s): %w", ports.ErrConfigurationError, i, sd.ID, err)
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}

func (d StrategyDoc) toDomain() (*domain.Strategy, error) {
	entry, err := d.Entry.toDomain("entry")
	if err != nil {
		return nil, err
	}
	exit, err := d.Exit.toDomain("exit")
	if err != nil {
		return nil, err
	}
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	return &domain.Strategy{
		ID:          d.ID,
		Name:        d.Name,
		Instruments: d.Instruments,
		Timeframe:   d.Timeframe,
		Direction:   domain.Direction(d.Direction),
		Entry:       entry,
		Exit:        exit,
		Risk: domain.RiskParams{
			Quantity:         d.Risk.Quantity,
			MaxQuantity:      d.Risk.MaxQuantity,
			MaxOpenPositions: d.Risk.MaxOpenPositions,
			StopLossPct:      d.Risk.StopLossPct,
			TakeProfitPct:    d.Risk.TakeProfitPct,
		},
		Enabled: enabled,
	}, nil
}

func (c *ConditionDoc) toDomain(path string) (*domain.Condition, error) {
	if c == nil {
		return nil, nil
	}
	out := &domain.Condition{
		ID:        c.ID,
		Indicator: c.Indicator,
		Op:        domain.Operator(c.Op),
		Ref:       c.Ref,
	}
	if c.Indicator != "" {
		switch {
		case c.Value != nil && c.Ref != "":
			return nil, fmt.Errorf("%s: leaf has both value and ref", path)
		case c.Value == nil && c.Ref == "":
			return nil, fmt.Errorf("%s: leaf needs a value or a ref", path)
		case c.Value != nil:
			out.Value = *c.Value
		}
	}
	for i, child := range c.All {
		node, err := child.toDomain(fmt.Sprintf("%s.all[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out.All = append(out.All, node)
	}
	for i, child := range c.Any {
		node, err := child.toDomain(fmt.Sprintf("%s.any[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out.Any = append(out.Any, node)
	}
	return out, nil
}
