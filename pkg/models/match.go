package models

import (
	"strings"
	"time"
)

// Lookup returns a property value, resolving the reserved metadata names.
func (e *Entity) Lookup(property string) (any, bool) {
	switch property {
	case PropCreatedAt:
		return e.CreatedAt, !e.CreatedAt.IsZero()
	case PropUpdatedAt:
		return e.UpdatedAt, !e.UpdatedAt.IsZero()
	case PropCreatedBy:
		return e.CreatedBy, e.CreatedBy != ""
	case PropUpdatedBy:
		return e.UpdatedBy, e.UpdatedBy != ""
	case PropOwner:
		return e.Owner, e.Owner != ""
	}
	v, ok := e.Properties[property]
	return v, ok
}

// Matches evaluates the filter against an entity. A nil filter matches
// everything. A list-valued property matches when any element does, the
// way datastore list properties behave.
func Matches(f Filter, e *Entity) bool {
	switch n := f.(type) {
	case nil:
		return true
	case *Composite:
		switch n.Op {
		case OpAND:
			for _, c := range n.Children {
				if !Matches(c, e) {
					return false
				}
			}
			return true
		case OpOR:
			for _, c := range n.Children {
				if Matches(c, e) {
					return true
				}
			}
			return false
		}
		return false
	case *Leaf:
		v, ok := e.Lookup(n.Property)
		if !ok {
			return false
		}
		if list, isList := v.([]any); isList {
			for _, elem := range list {
				if matchLeaf(n, elem) {
					return true
				}
			}
			return false
		}
		return matchLeaf(n, v)
	}
	return false
}

func matchLeaf(l *Leaf, v any) bool {
	if l.Op == OpIN {
		for _, candidate := range l.Values {
			if c, ok := Compare(v, candidate); ok && c == 0 {
				return true
			}
		}
		return false
	}

	c, ok := Compare(v, l.Value())
	if !ok {
		return l.Op == OpNE
	}
	switch l.Op {
	case OpEQ:
		return c == 0
	case OpNE:
		return c != 0
	case OpLT:
		return c < 0
	case OpLE:
		return c <= 0
	case OpGT:
		return c > 0
	case OpGE:
		return c >= 0
	}
	return false
}

// Compare orders two property values of the same family. ok is false when
// the values are not comparable (different families, or booleans ordered).
func Compare(a, b any) (int, bool) {
	a, b = NormalizeValue(a), NormalizeValue(b)
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, ok := asTime(b)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	case int64, float64:
		xf, _ := toFloat(x)
		yf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case xf < yf:
			return -1, true
		case xf > yf:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// asTime also accepts RFC 3339 strings, the form timestamps take on codecs
// without a time type.
func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		return t, err == nil
	}
	return time.Time{}, false
}
