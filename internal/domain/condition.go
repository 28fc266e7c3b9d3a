package domain

import "fmt"

// Operator is a comparison operator used by leaf conditions.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	switch o {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Condition is a node of a condition tree. A node is either a group, where
// All (AND) or Any (OR) holds the children, or a leaf comparing Indicator
// against a constant Value or against another indicator named by Ref.
type Condition struct {
	ID string

	All []*Condition
	Any []*Condition

	Indicator string
	Op        Operator
	Value     float64
	Ref       string
}

// IsGroup reports whether the node combines children rather than comparing values.
func (c *Condition) IsGroup() bool {
	return len(c.All) > 0 || len(c.Any) > 0
}

// Label returns the identifier used when reporting a fired leaf.
func (c *Condition) Label() string {
	if c.ID != "" {
		return c.ID
	}
	rhs := fmt.Sprintf("%g", c.Value)
	if c.Ref != "" {
		rhs = c.Ref
	}
	return fmt.Sprintf("%s %s %s", c.Indicator, c.Op, rhs)
}
