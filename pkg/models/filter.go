package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidFilter = errors.New("invalid filter")

// Op is a filter operator.
type Op string

const (
	OpEQ  Op = "EQ"
	OpLT  Op = "LT"
	OpLE  Op = "LE"
	OpGT  Op = "GT"
	OpGE  Op = "GE"
	OpNE  Op = "NE"
	OpIN  Op = "IN"
	OpAND Op = "AND"
	OpOR  Op = "OR"
)

// IsComposite reports whether op combines child filters.
func (op Op) IsComposite() bool {
	return op == OpAND || op == OpOR
}

func (op Op) valid() bool {
	switch op {
	case OpEQ, OpLT, OpLE, OpGT, OpGE, OpNE, OpIN, OpAND, OpOR:
		return true
	}
	return false
}

// Filter is a node of a predicate tree: either a *Leaf or a *Composite.
type Filter interface {
	Operator() Op
	String() string
	isFilter()
}

// Leaf compares one property. Comparison operators carry exactly one value,
// IN carries the list of accepted values.
type Leaf struct {
	Op       Op
	Property string
	Values   []any
}

// Composite combines child filters with AND or OR.
type Composite struct {
	Op       Op
	Children []Filter
}

func (l *Leaf) Operator() Op      { return l.Op }
func (c *Composite) Operator() Op { return c.Op }
func (*Leaf) isFilter()           {}
func (*Composite) isFilter()      {}

// Value returns the single operand of a comparison leaf.
func (l *Leaf) Value() any {
	if len(l.Values) == 0 {
		return nil
	}
	return l.Values[0]
}

func (l *Leaf) String() string {
	if l.Op == OpIN {
		return fmt.Sprintf("IN(%s,%s)", l.Property, formatValue(l.Values))
	}
	return fmt.Sprintf("%s(%s,%s)", l.Op, l.Property, formatValue(l.Value()))
}

func (c *Composite) String() string {
	parts := make([]string, len(c.Children))
	for i, child := range c.Children {
		parts[i] = child.String()
	}
	return fmt.Sprintf("%s(%s)", c.Op, strings.Join(parts, ","))
}

func leaf(op Op, property string, value any) Filter {
	return &Leaf{Op: op, Property: property, Values: []any{NormalizeValue(value)}}
}

func Eq(property string, value any) Filter { return leaf(OpEQ, property, value) }
func Lt(property string, value any) Filter { return leaf(OpLT, property, value) }
func Le(property string, value any) Filter { return leaf(OpLE, property, value) }
func Gt(property string, value any) Filter { return leaf(OpGT, property, value) }
func Ge(property string, value any) Filter { return leaf(OpGE, property, value) }
func Ne(property string, value any) Filter { return leaf(OpNE, property, value) }

// In matches entities whose property equals any of values.
func In(property string, values ...any) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = NormalizeValue(v)
	}
	return &Leaf{Op: OpIN, Property: property, Values: vs}
}

func And(filters ...Filter) Filter { return &Composite{Op: OpAND, Children: filters} }
func Or(filters ...Filter) Filter  { return &Composite{Op: OpOR, Children: filters} }

// Validate checks the structural invariants of the tree: composites have at
// least one child and leaves name exactly one property.
func Validate(f Filter) error {
	switch n := f.(type) {
	case nil:
		return fmt.Errorf("%w: nil node", ErrInvalidFilter)
	case *Leaf:
		if n == nil {
			return fmt.Errorf("%w: nil leaf", ErrInvalidFilter)
		}
		if !n.Op.valid() || n.Op.IsComposite() {
			return fmt.Errorf("%w: leaf operator %q", ErrInvalidFilter, n.Op)
		}
		if n.Property == "" {
			return fmt.Errorf("%w: %s without property", ErrInvalidFilter, n.Op)
		}
		if n.Op != OpIN && len(n.Values) != 1 {
			return fmt.Errorf("%w: %s(%s) needs exactly one value, got %d", ErrInvalidFilter, n.Op, n.Property, len(n.Values))
		}
		return nil
	case *Composite:
		if n == nil {
			return fmt.Errorf("%w: nil composite", ErrInvalidFilter)
		}
		if !n.Op.IsComposite() {
			return fmt.Errorf("%w: composite operator %q", ErrInvalidFilter, n.Op)
		}
		if len(n.Children) == 0 {
			return fmt.Errorf("%w: %s without children", ErrInvalidFilter, n.Op)
		}
		for _, child := range n.Children {
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown node %T", ErrInvalidFilter, f)
	}
}
