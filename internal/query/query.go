// Package query defines the filter grammar shared by the remote store
// adapter and the local cache: a Condition maps fields to operator/value
// pairs (AND within a condition), and a Query is a list of conditions
// (OR across the list).
//
// The grammar is evaluated two ways that must agree: translated into the
// remote store's native filters, and in memory via Match over cached rows.
package query

import (
	"fmt"
	"reflect"
	"time"

	"github.com/MSU-Students/q-attendance/internal/common"
	"github.com/MSU-Students/q-attendance/internal/record"
)

// Op is a comparison operator symbol.
type Op string

const (
	OpEqual          Op = "=="
	OpNotEqual       Op = "!="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpIn             Op = "in"
)

var validOps = map[Op]struct{}{
	OpEqual: {}, OpNotEqual: {}, OpGreater: {}, OpGreaterOrEqual: {},
	OpLess: {}, OpLessOrEqual: {}, OpIn: {},
}

// Operand maps operator symbols to comparison values. All pairs must hold.
type Operand map[Op]any

// Condition maps field names to operands. All fields must hold (AND).
// An empty condition matches every record.
type Condition map[string]Operand

// Query is a list of conditions, any one of which must hold (OR).
// A nil or empty query matches every record.
type Query []Condition

// Where builds a query from explicit conditions.
func Where(conds ...Condition) Query {
	return Query(conds)
}

// Eq builds a single-condition query from a key/value shorthand: a bare
// value means equality, while an Operand value is taken as-is.
func Eq(fields map[string]any) Query {
	if fields == nil {
		return nil
	}
	cond := Condition{}
	for field, v := range fields {
		switch op := v.(type) {
		case Operand:
			cond[field] = op
		case map[Op]any:
			cond[field] = Operand(op)
		default:
			cond[field] = Operand{OpEqual: v}
		}
	}
	return Query{cond}
}

// Validate reports malformed queries: unknown operators, or an "in"
// comparison whose value is not a list. These are programmer errors.
func (q Query) Validate() error {
	for _, cond := range q {
		for field, operand := range cond {
			for op, want := range operand {
				if _, ok := validOps[op]; !ok {
					return fmt.Errorf("%w: unknown operator %q on field %q", common.ErrInvalidQuery, string(op), field)
				}
				if op == OpIn {
					if _, ok := toList(want); !ok {
						return fmt.Errorf("%w: %q requires a list value on field %q", common.ErrInvalidQuery, string(OpIn), field)
					}
				}
			}
		}
	}
	return nil
}

// Match reports whether the record satisfies the query.
func (q Query) Match(r record.Record) bool {
	if len(q) == 0 {
		return true
	}
	for _, cond := range q {
		if cond.match(r) {
			return true
		}
	}
	return false
}

func (c Condition) match(r record.Record) bool {
	for field, operand := range c {
		value := r[field]
		for op, want := range operand {
			if !eval(value, op, want) {
				return false
			}
		}
	}
	return true
}

func eval(value any, op Op, want any) bool {
	switch op {
	case OpEqual:
		return Equal(value, want)
	case OpNotEqual:
		return !Equal(value, want)
	case OpIn:
		list, ok := toList(want)
		if !ok {
			return false
		}
		for _, item := range list {
			if Equal(value, item) {
				return true
			}
		}
		return false
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		cmp, ok := Compare(value, want)
		if !ok {
			return false
		}
		switch op {
		case OpGreater:
			return cmp > 0
		case OpGreaterOrEqual:
			return cmp >= 0
		case OpLess:
			return cmp < 0
		default:
			return cmp <= 0
		}
	default:
		return false
	}
}

// Equal compares two field values loosely: numbers compare by value
// regardless of Go type, times compare by instant, everything else by
// deep equality.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := toTime(a); ok {
		tb, ok := toTime(b)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two field values. It reports 0/-1/+1 and whether the
// values were comparable at all (numbers with numbers, strings with
// strings, times with times).
func Compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if sa, ok := a.(string); ok {
		// A string field may still hold an RFC 3339 instant when the
		// comparison value is a time.
		if tb, isTime := b.(time.Time); isTime {
			ta, err := time.Parse(time.RFC3339Nano, sa)
			if err != nil {
				return 0, false
			}
			return ta.Compare(tb), true
		}
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case sa < sb:
			return -1, true
		case sa > sb:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}
