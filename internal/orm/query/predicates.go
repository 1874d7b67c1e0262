// Package query holds the predicates used to look up seeded entities.
//
// A Predicate is a conjunction of field conditions and opaque match
// functions. Field conditions name a dotted property path on the entity
// ("Room.Region.Code") and can be evaluated in memory with Match or
// rendered into SQL for columns of the queried table with SQL.
package query

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/conduit-lang/seedling/internal/orm/path"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpIn
	OpIsNull
	OpIsNotNull
)

// String returns the SQL representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpIn:
		return "IN"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "UNKNOWN"
	}
}

// Condition represents a single comparison on a property path
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// String renders the condition for logs and error messages
func (c Condition) String() string {
	switch c.Operator {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", c.Field, c.Operator)
	case OpIn:
		return fmt.Sprintf("%s IN %v", c.Field, c.Value)
	default:
		return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
	}
}

// MatchFunc is an opaque condition evaluated against an entity
type MatchFunc func(entity any) bool

type matcher struct {
	desc string
	fn   MatchFunc
}

// Predicate is an immutable conjunction of conditions; the zero value matches everything
type Predicate struct {
	conds []Condition
	funcs []matcher
}

// All returns the predicate that matches every entity
func All() Predicate { return Predicate{} }

// Eq matches entities whose field equals value
func Eq(field string, value interface{}) Predicate {
	return Predicate{conds: []Condition{{Field: field, Operator: OpEqual, Value: value}}}
}

// NotEq matches entities whose field differs from value
func NotEq(field string, value interface{}) Predicate {
	return Predicate{conds: []Condition{{Field: field, Operator: OpNotEqual, Value: value}}}
}

// In matches entities whose field equals one of values
func In(field string, values ...interface{}) Predicate {
	return Predicate{conds: []Condition{{Field: field, Operator: OpIn, Value: values}}}
}

// IsNull matches entities whose nullable field holds nil
func IsNull(field string) Predicate {
	return Predicate{conds: []Condition{{Field: field, Operator: OpIsNull}}}
}

// IsNotNull matches entities whose field holds a value
func IsNotNull(field string) Predicate {
	return Predicate{conds: []Condition{{Field: field, Operator: OpIsNotNull}}}
}

// Func wraps an arbitrary match function; desc is used when printing the predicate
func Func(desc string, fn MatchFunc) Predicate {
	if fn == nil {
		return Predicate{}
	}
	return Predicate{funcs: []matcher{{desc: desc, fn: fn}}}
}

// And combines predicates into one conjunction
func And(preds ...Predicate) Predicate {
	var out Predicate
	for _, p := range preds {
		out.conds = append(out.conds, p.conds...)
		out.funcs = append(out.funcs, p.funcs...)
	}
	return out
}

// And returns p extended with the conditions of others
func (p Predicate) And(others ...Predicate) Predicate {
	return And(append([]Predicate{p}, others...)...)
}

// Conditions returns a copy of the field conditions
func (p Predicate) Conditions() []Condition {
	out := make([]Condition, len(p.conds))
	copy(out, p.conds)
	return out
}

// IsAll reports whether the predicate has no conditions
func (p Predicate) IsAll() bool {
	return len(p.conds) == 0 && len(p.funcs) == 0
}

// Prefixed rebases the predicate onto a navigation: a predicate on a Room
// becomes a predicate on a Facility when prefixed with "Room".
func (p Predicate) Prefixed(prefix string) Predicate {
	if prefix == "" {
		return p
	}

	out := Predicate{
		conds: make([]Condition, len(p.conds)),
		funcs: make([]matcher, len(p.funcs)),
	}
	for i, c := range p.conds {
		c.Field = prefix + "." + c.Field
		out.conds[i] = c
	}
	for i, m := range p.funcs {
		inner := m.fn
		out.funcs[i] = matcher{
			desc: prefix + ": " + m.desc,
			fn: func(entity any) bool {
				v, err := path.Lookup(entity, prefix)
				if err != nil || isNil(v) {
					return false
				}
				return inner(v.Interface())
			},
		}
	}
	return out
}

// Match evaluates the predicate against an entity in memory. A condition whose
// path crosses an unset navigation does not match.
func (p Predicate) Match(entity any) bool {
	for _, c := range p.conds {
		if !c.match(entity) {
			return false
		}
	}
	for _, m := range p.funcs {
		if !m.fn(entity) {
			return false
		}
	}
	return true
}

func (c Condition) match(entity any) bool {
	v, err := path.Lookup(entity, c.Field)
	if err != nil {
		return false
	}

	switch c.Operator {
	case OpIsNull:
		return isNil(v)
	case OpIsNotNull:
		return !isNil(v)
	case OpEqual:
		return equal(v, c.Value)
	case OpNotEqual:
		return !equal(v, c.Value)
	case OpIn:
		values, _ := c.Value.([]interface{})
		for _, want := range values {
			if equal(v, want) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// SQL splits the predicate into a WHERE clause over the queried table and a
// residual predicate for everything that cannot be expressed on its columns
// (nested paths and match functions). columnOf maps a field name to its
// column. The clause is nil when no condition could be rendered.
func (p Predicate) SQL(columnOf func(field string) (string, bool)) (sq.Sqlizer, Predicate) {
	var (
		where    sq.And
		residual = Predicate{funcs: p.funcs}
	)

	for _, c := range p.conds {
		col, ok := "", false
		if !strings.Contains(c.Field, ".") {
			col, ok = columnOf(c.Field)
		}
		if !ok {
			residual.conds = append(residual.conds, c)
			continue
		}
		where = append(where, conditionToSQL(col, c))
	}

	if len(where) == 0 {
		return nil, residual
	}
	return where, residual
}

func conditionToSQL(col string, c Condition) sq.Sqlizer {
	switch c.Operator {
	case OpNotEqual:
		return sq.NotEq{col: c.Value}
	case OpIsNull:
		return sq.Eq{col: nil}
	case OpIsNotNull:
		return sq.NotEq{col: nil}
	case OpIn:
		return sq.Eq{col: c.Value}
	default:
		return sq.Eq{col: c.Value}
	}
}

// String renders the predicate, e.g. "Name = Room 3 AND Region.Code IS NULL"
func (p Predicate) String() string {
	if p.IsAll() {
		return "TRUE"
	}
	parts := make([]string, 0, len(p.conds)+len(p.funcs))
	for _, c := range p.conds {
		parts = append(parts, c.String())
	}
	for _, m := range p.funcs {
		parts = append(parts, "func("+m.desc+")")
	}
	return strings.Join(parts, " AND ")
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

func isEntityPointer(v reflect.Value) bool {
	if v.Kind() != reflect.Pointer {
		return false
	}
	elem := v.Type().Elem()
	return elem.Kind() == reflect.Struct && elem != reflect.TypeOf(time.Time{})
}

// equal compares a field value with a condition value, converting the
// condition value to the field type when both are of the same family.
func equal(field reflect.Value, want interface{}) bool {
	if want == nil {
		return isNil(field)
	}
	// related entities compare by identity
	if w := reflect.ValueOf(want); isEntityPointer(field) && w.Type() == field.Type() {
		return field.Pointer() == w.Pointer()
	}
	for field.Kind() == reflect.Pointer || field.Kind() == reflect.Interface {
		if field.IsNil() {
			return false
		}
		field = field.Elem()
	}

	w := reflect.ValueOf(want)
	for w.Kind() == reflect.Pointer {
		if w.IsNil() {
			return false
		}
		w = w.Elem()
	}

	if w.Type() != field.Type() {
		if !path.Assignable(w.Type(), field.Type()) {
			return false
		}
		converted := reflect.New(field.Type()).Elem()
		if err := path.Assign(converted, w); err != nil {
			return false
		}
		w = converted
	}

	if t, ok := field.Interface().(time.Time); ok {
		return t.Equal(w.Interface().(time.Time))
	}
	if field.Type().Comparable() {
		return field.Interface() == w.Interface()
	}
	return reflect.DeepEqual(field.Interface(), w.Interface())
}
