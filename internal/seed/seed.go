package seed

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/seedling/internal/orm/path"
	"github.com/conduit-lang/seedling/internal/orm/query"
)

// EntitySeed describes how to build entities of type T. Customisations are
// registered through the fluent methods, which modify the seed in place and
// return it. A malformed registration is recorded and reported by Err and by
// every entry point before anything is built.
type EntitySeed[T any] struct {
	p *plan
}

// New returns a seed for T with default options and no customisations
func New[T any]() *EntitySeed[T] {
	return &EntitySeed[T]{p: newPlan(reflect.TypeOf((*T)(nil)).Elem())}
}

// EntityType returns the struct type the seed builds
func (s *EntitySeed[T]) EntityType() reflect.Type { return s.p.typ }

// Kind returns the seed's name; unnamed seeds have kind ""
func (s *EntitySeed[T]) Kind() string { return s.p.kind }

func (s *EntitySeed[T]) plan() *plan { return s.p }

// Err returns the first registration error
func (s *EntitySeed[T]) Err() error { return s.p.err }

// Options returns the seed options
func (s *EntitySeed[T]) Options() Options { return s.p.opts }

// Customisations returns the registered customisations in registration order
func (s *EntitySeed[T]) Customisations() []*Customisation {
	return append([]*Customisation(nil), s.p.custom...)
}

// Clone returns an independent copy of the seed
func (s *EntitySeed[T]) Clone() *EntitySeed[T] {
	return &EntitySeed[T]{p: s.p.clone()}
}

// Named sets the seed's kind. Seeds of the same type and kind are equal.
func (s *EntitySeed[T]) Named(kind string) *EntitySeed[T] {
	s.p.kind = kind
	return s
}

// Amount sets how many entities the seed builds
func (s *EntitySeed[T]) Amount(n int) *EntitySeed[T] {
	if n < 0 {
		s.p.fail(seedingErrorf("%s: negative amount %d", s.p.typeName(), n))
		return s
	}
	s.p.opts.AmountToCreate = n
	s.p.set.amount = true
	return s
}

// Behaviour sets the insertion behaviour
func (s *EntitySeed[T]) Behaviour(b InsertionBehaviour) *EntitySeed[T] {
	s.p.opts.InsertionBehaviour = b
	s.p.set.behaviour = true
	return s
}

// WithOptions replaces both options
func (s *EntitySeed[T]) WithOptions(o Options) *EntitySeed[T] {
	return s.Amount(o.AmountToCreate).Behaviour(o.InsertionBehaviour)
}

// Matching restricts which existing entities the seed may reuse
func (s *EntitySeed[T]) Matching(preds ...query.Predicate) *EntitySeed[T] {
	s.p.match = s.p.match.And(preds...)
	return s
}

// Constructors registers factory funcs for the skeleton entity. Each must
// return T or *T, optionally with an error. The one with the fewest
// parameters is used; string parameters receive unique placeholder values.
func (s *EntitySeed[T]) Constructors(fns ...any) *EntitySeed[T] {
	for _, fn := range fns {
		c, err := newConstructor(s.p.typ, fn)
		if err != nil {
			s.p.fail(wrapSeeding(err, "register constructor"))
			continue
		}
		s.p.ctors = append(s.p.ctors, c)
	}
	return s
}

// Requires declares a prerequisite navigation built with b (nil: the
// registered seed). It replaces the prerequisite derived for the same
// navigation.
func (s *EntitySeed[T]) Requires(expr string, b Builder) *EntitySeed[T] {
	p, ok := s.parse(expr)
	if !ok {
		return s
	}
	if p.Len() != 1 || !p.IsNavigation() {
		s.fail(expr, "prerequisites must be a navigation declared on %s", s.p.typeName())
		return s
	}
	if b != nil && !s.checkSeed(expr, p, b) {
		return s
	}
	s.p.require(&Prerequisite{EntityType: s.p.typ, Path: p, Seed: b})
	return s
}

// With sets the property at expr to value
func (s *EntitySeed[T]) With(expr string, value any) *EntitySeed[T] {
	p, ok := s.parse(expr)
	if !ok || !s.checkValue(expr, p, value) {
		return s
	}
	c := newCustomisation(KindPropertyValue, p)
	c.value = value
	s.p.customise(c)
	return s
}

// Without sets the nullable property at expr to nil
func (s *EntitySeed[T]) Without(expr string) *EntitySeed[T] {
	p, ok := s.parse(expr)
	if !ok {
		return s
	}
	if !path.IsNullable(p.Type()) {
		s.fail(expr, "%s is not nullable", p.Type())
		return s
	}
	s.p.customise(newCustomisation(KindNullProperty, p))
	return s
}

// WithIndexed sets the property at expr to fn(index) for each entity of the batch
func (s *EntitySeed[T]) WithIndexed(expr string, fn func(index int) any) *EntitySeed[T] {
	if fn == nil {
		s.fail(expr, "nil value func")
		return s
	}
	p, ok := s.parse(expr)
	if !ok {
		return s
	}
	c := newCustomisation(KindDynamicProperty, p)
	c.byIdx = fn
	s.p.customise(c)
	return s
}

// WithFunc sets the property at expr to a fresh fn() for each entity
func (s *EntitySeed[T]) WithFunc(expr string, fn func() any) *EntitySeed[T] {
	if fn == nil {
		s.fail(expr, "nil value func")
		return s
	}
	return s.dynamic(expr, func(int, reflect.Value) any { return fn() })
}

// WithPrevious sets the property at expr from the index and the entity built
// just before (nil for the first)
func (s *EntitySeed[T]) WithPrevious(expr string, fn func(index int, previous *T) any) *EntitySeed[T] {
	if fn == nil {
		s.fail(expr, "nil value func")
		return s
	}
	return s.dynamic(expr, func(i int, prev reflect.Value) any {
		var typed *T
		if prev.IsValid() {
			typed, _ = prev.Interface().(*T)
		}
		return fn(i, typed)
	})
}

// WithValues sets the property at expr to values[i] for the i-th entity; a
// single value is used for every entity
func (s *EntitySeed[T]) WithValues(expr string, values ...any) *EntitySeed[T] {
	p, ok := s.parse(expr)
	if !ok {
		return s
	}
	if len(values) == 0 {
		s.fail(expr, "no values given")
		return s
	}
	for _, v := range values {
		if !s.checkValue(expr, p, v) {
			return s
		}
	}
	c := newCustomisation(KindDynamicProperty, p)
	c.values = append([]any(nil), values...)
	s.p.customise(c)
	return s
}

func (s *EntitySeed[T]) dynamic(expr string, fn valueFunc) *EntitySeed[T] {
	p, ok := s.parse(expr)
	if !ok {
		return s
	}
	c := newCustomisation(KindDynamicProperty, p)
	c.fn = fn
	s.p.customise(c)
	return s
}

// WithExisting points the navigation at expr to an existing entity matching
// every predicate. Nothing is ever built for it.
func (s *EntitySeed[T]) WithExisting(expr string, preds ...query.Predicate) *EntitySeed[T] {
	p, ok := s.navigation(expr)
	if !ok {
		return s
	}
	c := newCustomisation(KindExistingNavigation, p)
	c.preds = append([]query.Predicate(nil), preds...)
	s.p.customise(c)
	return s
}

// WithDifferent builds a new related entity at expr for every entity of the
// batch, optionally from the given seed. Every intermediate navigation of a
// nested path becomes distinct too.
func (s *EntitySeed[T]) WithDifferent(expr string, b ...Builder) *EntitySeed[T] {
	return s.navigationSeed(KindDistinctNavigation, expr, b)
}

// WithNew builds one related entity at expr shared by the batch, optionally
// from the given seed
func (s *EntitySeed[T]) WithNew(expr string, b ...Builder) *EntitySeed[T] {
	return s.navigationSeed(KindSharedNavigation, expr, b)
}

func (s *EntitySeed[T]) navigationSeed(kind Kind, expr string, b []Builder) *EntitySeed[T] {
	p, ok := s.navigation(expr)
	if !ok {
		return s
	}
	if len(b) > 1 {
		s.fail(expr, "at most one seed can be given")
		return s
	}

	c := newCustomisation(kind, p)
	c.nested = implicitPlan(p.Type())
	if len(b) == 1 && b[0] != nil {
		if !s.checkSeed(expr, p, b[0]) {
			return s
		}
		c.nested = b[0].plan().clone()
	}
	s.p.customise(c)
	return s
}

// WithRespective builds the navigation at expr from seeds[i] for the i-th
// entity. A seed passed again in the next position shares the related
// entity; any other seed builds its own.
func (s *EntitySeed[T]) WithRespective(expr string, seeds ...Builder) *EntitySeed[T] {
	p, ok := s.navigation(expr)
	if !ok {
		return s
	}
	if len(seeds) == 0 {
		s.fail(expr, "no seeds given")
		return s
	}
	c := newCustomisation(KindRespectiveNavigation, p)
	for i, b := range seeds {
		if b == nil {
			s.fail(expr, "nil seed")
			return s
		}
		if !s.checkSeed(expr, p, b) {
			return s
		}
		c.seeds = append(c.seeds, b.plan().clone())
		c.repeat = append(c.repeat, i > 0 && b.plan() == seeds[i-1].plan())
	}
	s.p.customise(c)
	return s
}

// WithChildren adds count children built from the optional seed to the
// collection at expr; their navigations back to the owner are set
func (s *EntitySeed[T]) WithChildren(expr string, count int, b ...Builder) *EntitySeed[T] {
	p, ok := s.parse(expr)
	if !ok {
		return s
	}
	if !p.IsCollection() {
		s.fail(expr, "%s is not a collection of entities", p.Type())
		return s
	}
	if count < 0 {
		s.fail(expr, "negative count %d", count)
		return s
	}

	elem := p.Type().Elem()
	c := newCustomisation(KindChildCollection, p)
	c.count = count
	c.nested = implicitPlan(elem)
	if len(b) > 0 && b[0] != nil {
		if b[0].EntityType() != elem.Elem() {
			s.fail(expr, "seed builds %s, not %s", b[0].EntityType(), elem.Elem())
			return s
		}
		c.nested = b[0].plan().clone()
	}
	s.p.customise(c)
	return s
}

// WithPrimaryKey assigns explicit keys: one for every entity, or keys[i] for the i-th
func (s *EntitySeed[T]) WithPrimaryKey(keys ...any) *EntitySeed[T] {
	if len(keys) == 0 {
		s.p.fail(seedingErrorf("WithPrimaryKey on %s: no keys given", s.p.typeName()))
		return s
	}
	c := newCustomisation(KindPrimaryKey, path.Path{})
	c.keys = append([]any(nil), keys...)
	s.p.customise(c)
	return s
}

// Claim marks expr as handled so no prerequisite is built for it
func (s *EntitySeed[T]) Claim(expr string) *EntitySeed[T] {
	p, ok := s.parse(expr)
	if !ok {
		return s
	}
	s.p.customise(newCustomisation(KindVoid, p))
	return s
}

func (s *EntitySeed[T]) parse(expr string) (path.Path, bool) {
	p, err := path.Parse(s.p.typ, expr)
	if err != nil {
		s.p.fail(&SeedingError{Message: fmt.Sprintf("invalid customisation %q on %s", expr, s.p.typeName()), Err: err})
		return path.Path{}, false
	}
	return p, true
}

func (s *EntitySeed[T]) navigation(expr string) (path.Path, bool) {
	p, ok := s.parse(expr)
	if !ok {
		return p, false
	}
	if !p.IsNavigation() {
		s.fail(expr, "%s is not a navigation", p.Type())
		return p, false
	}
	return p, true
}

func (s *EntitySeed[T]) checkValue(expr string, p path.Path, value any) bool {
	var vt reflect.Type
	if value != nil {
		vt = reflect.TypeOf(value)
	}
	if !path.Assignable(vt, p.Type()) {
		s.fail(expr, "cannot assign %T to %s", value, p.Type())
		return false
	}
	return true
}

func (s *EntitySeed[T]) checkSeed(expr string, p path.Path, b Builder) bool {
	if want := path.Indirect(p.Type()); b.EntityType() != want {
		s.fail(expr, "seed builds %v, not %s", b.EntityType(), want)
		return false
	}
	return true
}

func (s *EntitySeed[T]) fail(expr, format string, args ...any) {
	s.p.fail(seedingErrorf("invalid customisation %q on %s: %s",
		expr, s.p.typeName(), fmt.Sprintf(format, args...)))
}
