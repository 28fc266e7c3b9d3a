// Package condition evaluates strategy condition trees against a snapshot of
// indicator values. Evaluation is pure: no I/O, no shared state, safe to call
// from any number of goroutines.
package condition

import (
	"fmt"
	"math"
	"sort"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"go.uber.org/multierr"
)

// equalityEpsilon is the tolerance used by == and !=.
const equalityEpsilon = 1e-9

// Result is the outcome of evaluating a tree.
type Result struct {
	Triggered bool
	Fired     []string // Labels of the evaluated leaves that were true, in evaluation order
	Missing   []string // Indicators that were absent, in evaluation order, unique
}

// Evaluate evaluates tree against values. A nil tree never triggers.
// A leaf whose indicator (or reference) is missing evaluates false and the
// indicator is recorded in Result.Missing. Groups short-circuit, so leaves
// after the deciding child are neither evaluated nor reported.
func Evaluate(tree *domain.Condition, values map[string]float64) Result {
	var r Result
	if tree == nil {
		return r
	}
	e := evaluation{values: values}
	r.Triggered = e.node(tree)
	r.Fired = e.fired
	r.Missing = e.missing
	return r
}

// MissingError reports the missing indicators of a result as an ErrEvaluation, or nil.
func (r Result) MissingError() error {
	if len(r.Missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing indicators %v", ports.ErrEvaluation, r.Missing)
}

type evaluation struct {
	values  map[string]float64
	fired   []string
	missing []string
}

func (e *evaluation) node(c *domain.Condition) bool {
	switch {
	case len(c.All) > 0:
		for _, child := range c.All {
			if child == nil || !e.node(child) {
				return false
			}
		}
		return true
	case len(c.Any) > 0:
		for _, child := range c.Any {
			if child != nil && e.node(child) {
				return true
			}
		}
		return false
	default:
		return e.leaf(c)
	}
}

func (e *evaluation) leaf(c *domain.Condition) bool {
	lhs, ok := e.lookup(c.Indicator)
	if !ok {
		return false
	}
	rhs := c.Value
	if c.Ref != "" {
		if rhs, ok = e.lookup(c.Ref); !ok {
			return false
		}
	}
	if compare(lhs, c.Op, rhs) {
		e.fired = append(e.fired, c.Label())
		return true
	}
	return false
}

func (e *evaluation) lookup(name string) (float64, bool) {
	v, ok := e.values[name]
	if !ok || math.IsNaN(v) {
		e.markMissing(name)
		return 0, false
	}
	return v, true
}

func (e *evaluation) markMissing(name string) {
	for _, m := range e.missing {
		if m == name {
			return
		}
	}
	e.missing = append(e.missing, name)
}

func compare(lhs float64, op domain.Operator, rhs float64) bool {
	switch op {
	case domain.OpGreater:
		return lhs > rhs
	case domain.OpGreaterEqual:
		return lhs >= rhs
	case domain.OpLess:
		return lhs < rhs
	case domain.OpLessEqual:
		return lhs <= rhs
	case domain.OpEqual:
		return math.Abs(lhs-rhs) <= equalityEpsilon
	case domain.OpNotEqual:
		return math.Abs(lhs-rhs) > equalityEpsilon
	}
	return false
}

// Validate checks the structure of a tree and returns every problem found.
func Validate(tree *domain.Condition) error {
	if tree == nil {
		return nil
	}
	return validate(tree, "root")
}

func validate(c *domain.Condition, path string) error {
	var errs error
	if len(c.All) > 0 && len(c.Any) > 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s: node cannot have both all and any", path))
	}
	if c.IsGroup() {
		if c.Indicator != "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: group node cannot compare indicator %q", path, c.Indicator))
		}
		for i, child := range c.All {
			errs = multierr.Append(errs, validateChild(child, fmt.Sprintf("%s.all[%d]", path, i)))
		}
		for i, child := range c.Any {
			errs = multierr.Append(errs, validateChild(child, fmt.Sprintf("%s.any[%d]", path, i)))
		}
		return errs
	}
	if c.Indicator == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s: leaf requires an indicator", path))
	}
	if !c.Op.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("%s: unknown operator %q", path, c.Op))
	}
	return errs
}

func validateChild(c *domain.Condition, path string) error {
	if c == nil {
		return fmt.Errorf("%s: empty node", path)
	}
	return validate(c, path)
}

// Indicators returns the sorted set of indicator names referenced by trees.
func Indicators(trees ...*domain.Condition) []string {
	seen := make(map[string]struct{})
	var walk func(c *domain.Condition)
	walk = func(c *domain.Condition) {
		if c == nil {
			return
		}
		if c.Indicator != "" {
			seen[c.Indicator] = struct{}{}
		}
		if c.Ref != "" {
			seen[c.Ref] = struct{}{}
		}
		for _, child := range c.All {
			walk(child)
		}
		for _, child := range c.Any {
			walk(child)
		}
	}
	for _, t := range trees {
		walk(t)
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
