package condition

import (
	"sync"
	"testing"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(id, indicator string, op domain.Operator, value float64) *domain.Condition {
	return &domain.Condition{ID: id, Indicator: indicator, Op: op, Value: value}
}

func TestEvaluate(t *testing.T) {
	oversold := leaf("oversold", "RSI_14", domain.OpLess, 30)
	volume := leaf("volume", "VOLUME", domain.OpGreater, 1000)
	crossed := &domain.Condition{ID: "crossed", Indicator: "EMA_9", Op: domain.OpGreater, Ref: "EMA_21"}

	tests := []struct {
		name        string
		tree        *domain.Condition
		values      map[string]float64
		wantTrigger bool
		wantFired   []string
		wantMissing []string
	}{
		{
			name:   "nil tree",
			tree:   nil,
			values: map[string]float64{"RSI_14": 10},
		},
		{
			name:        "single leaf true",
			tree:        oversold,
			values:      map[string]float64{"RSI_14": 25},
			wantTrigger: true,
			wantFired:   []string{"oversold"},
		},
		{
			name:   "single leaf false",
			tree:   oversold,
			values: map[string]float64{"RSI_14": 55},
		},
		{
			name:        "missing indicator evaluates false",
			tree:        oversold,
			values:      map[string]float64{},
			wantMissing: []string{"RSI_14"},
		},
		{
			name:        "all of two",
			tree:        &domain.Condition{All: []*domain.Condition{oversold, volume}},
			values:      map[string]float64{"RSI_14": 25, "VOLUME": 5000},
			wantTrigger: true,
			wantFired:   []string{"oversold", "volume"},
		},
		{
			name:   "all short-circuits on first false",
			tree:   &domain.Condition{All: []*domain.Condition{oversold, volume}},
			values: map[string]float64{"RSI_14": 60},
			// VOLUME is never looked up, so it is not reported missing
		},
		{
			name:        "any short-circuits on first true",
			tree:        &domain.Condition{Any: []*domain.Condition{oversold, volume}},
			values:      map[string]float64{"RSI_14": 20},
			wantTrigger: true,
			wantFired:   []string{"oversold"},
		},
		{
			name:        "any falls through a missing leaf",
			tree:        &domain.Condition{Any: []*domain.Condition{oversold, volume}},
			values:      map[string]float64{"VOLUME": 2000},
			wantTrigger: true,
			wantFired:   []string{"volume"},
			wantMissing: []string{"RSI_14"},
		},
		{
			name:        "reference comparison",
			tree:        crossed,
			values:      map[string]float64{"EMA_9": 101, "EMA_21": 100},
			wantTrigger: true,
			wantFired:   []string{"crossed"},
		},
		{
			name:        "missing reference",
			tree:        crossed,
			values:      map[string]float64{"EMA_9": 101},
			wantMissing: []string{"EMA_21"},
		},
		{
			name: "nested groups",
			tree: &domain.Condition{All: []*domain.Condition{
				volume,
				{Any: []*domain.Condition{oversold, crossed}},
			}},
			values:      map[string]float64{"VOLUME": 5000, "RSI_14": 50, "EMA_9": 2, "EMA_21": 1},
			wantTrigger: true,
			wantFired:   []string{"volume", "crossed"},
		},
		{
			name:        "leaf without id is labelled by its comparison",
			tree:        leaf("", "CLOSE", domain.OpGreaterEqual, 100),
			values:      map[string]float64{"CLOSE": 100},
			wantTrigger: true,
			wantFired:   []string{"CLOSE >= 100"},
		},
		{
			name:        "equality uses a tolerance",
			tree:        leaf("eq", "CLOSE", domain.OpEqual, 0.3),
			values:      map[string]float64{"CLOSE": 0.1 + 0.2},
			wantTrigger: true,
			wantFired:   []string{"eq"},
		},
		{
			name:   "unknown operator never fires",
			tree:   leaf("bad", "CLOSE", domain.Operator("~"), 1),
			values: map[string]float64{"CLOSE": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.tree, tt.values)
			assert.Equal(t, tt.wantTrigger, got.Triggered)
			assert.Equal(t, tt.wantFired, got.Fired)
			assert.Equal(t, tt.wantMissing, got.Missing)
		})
	}
}

func TestEvaluate_MissingRSIDoesNotPanic(t *testing.T) {
	tree := leaf("rsi-oversold", "RSI", domain.OpLess, 30)

	var got Result
	require.NotPanics(t, func() { got = Evaluate(tree, map[string]float64{"CLOSE": 100}) })
	assert.False(t, got.Triggered)
	assert.Equal(t, []string{"RSI"}, got.Missing)
	assert.ErrorIs(t, got.MissingError(), ports.ErrEvaluation)
}

func TestEvaluate_DeterministicAndConcurrent(t *testing.T) {
	tree := &domain.Condition{Any: []*domain.Condition{
		leaf("a", "RSI_14", domain.OpLess, 30),
		{All: []*domain.Condition{
			leaf("b", "CLOSE", domain.OpGreater, 10),
			leaf("c", "ATR_14", domain.OpLess, 5),
		}},
	}}
	values := map[string]float64{"RSI_14": 40, "CLOSE": 12, "ATR_14": 3}
	want := Evaluate(tree, values)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, Evaluate(tree, values))
		}()
	}
	wg.Wait()
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		tree    *domain.Condition
		wantErr bool
	}{
		{name: "nil", tree: nil},
		{name: "leaf", tree: leaf("a", "RSI_14", domain.OpLess, 30)},
		{name: "unknown operator", tree: leaf("a", "RSI_14", "=>", 30), wantErr: true},
		{name: "leaf without indicator", tree: &domain.Condition{Op: domain.OpLess}, wantErr: true},
		{name: "both all and any", tree: &domain.Condition{
			All: []*domain.Condition{leaf("a", "X", domain.OpLess, 1)},
			Any: []*domain.Condition{leaf("b", "Y", domain.OpLess, 1)},
		}, wantErr: true},
		{name: "nil child", tree: &domain.Condition{All: []*domain.Condition{nil}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.tree)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestIndicators(t *testing.T) {
	entry := &domain.Condition{All: []*domain.Condition{
		leaf("a", "RSI_14", domain.OpLess, 30),
		{Indicator: "EMA_9", Op: domain.OpGreater, Ref: "EMA_21"},
	}}
	exit := leaf("b", "RSI_14", domain.OpGreater, 70)

	assert.Equal(t, []string{"EMA_21", "EMA_9", "RSI_14"}, Indicators(entry, exit, nil))
}
