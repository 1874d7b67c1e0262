package seed

import (
	"reflect"
	"sort"

	"github.com/conduit-lang/seedling/internal/orm/path"
	"github.com/conduit-lang/seedling/internal/orm/query"
	"github.com/conduit-lang/seedling/internal/orm/schema"
)

// Builder is implemented by every seed. The typed EntitySeed[T] and the
// untyped seeds returned by Default share one build engine.
type Builder interface {
	// EntityType returns the struct type the seed builds
	EntityType() reflect.Type
	// Kind names the seed; seeds are equal when type and kind are equal
	Kind() string

	plan() *plan
}

// Equal reports whether two seeds describe the same relationship
func Equal(a, b Builder) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.EntityType() == b.EntityType() && a.Kind() == b.Kind()
}

// Default returns a seed for t with no customisations
func Default(t reflect.Type) Builder {
	return newPlan(t)
}

// plan is the untyped build description behind every seed
type plan struct {
	typ      reflect.Type
	kind     string
	opts     Options
	set      optionsSet
	match    query.Predicate
	custom   []*Customisation
	requires []*Prerequisite
	ctors    []constructor

	// implicit plans are created for intermediate hops of a path; at build
	// time they are folded into the seed the finder returns for their type
	implicit bool

	// err is the first registration error
	err error
}

func newPlan(t reflect.Type) *plan {
	p := &plan{opts: DefaultOptions()}
	if t != nil {
		p.typ = path.Indirect(t)
	}
	if p.typ == nil || p.typ.Kind() != reflect.Struct {
		p.fail(seedingErrorf("cannot seed %v: entity types must be structs", t))
	}
	return p
}

func implicitPlan(t reflect.Type) *plan {
	p := newPlan(t)
	p.implicit = true
	return p
}

func (p *plan) EntityType() reflect.Type { return p.typ }
func (p *plan) Kind() string             { return p.kind }
func (p *plan) plan() *plan              { return p }

func (p *plan) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *plan) typeName() string {
	if p.typ == nil {
		return "<nil>"
	}
	return p.typ.Name()
}

func (p *plan) clone() *plan {
	out := *p
	out.custom = make([]*Customisation, len(p.custom))
	for i, c := range p.custom {
		out.custom[i] = c.clone()
	}
	out.requires = append([]*Prerequisite(nil), p.requires...)
	out.ctors = append([]constructor(nil), p.ctors...)
	return &out
}

// customise registers c, normalising multi-hop paths and merging with any
// customisation already registered for the same target
func (p *plan) customise(c *Customisation) {
	if c.path.Len() > 1 {
		head := c.path.Head()
		kind := KindSharedNavigation
		if c.kind == KindDistinctNavigation {
			kind = KindDistinctNavigation
		}

		inner := *c
		inner.path = c.path.Tail()
		nested := implicitPlan(head.Type())
		nested.customise(&inner)

		c = newCustomisation(kind, head)
		c.nested = nested
	}

	for i, old := range p.custom {
		if old.sameTarget(c) {
			p.custom[i] = merge(old, c)
			return
		}
	}
	p.custom = append(p.custom, c)
}

// absorb folds src into dst: explicitly set options, the match predicate,
// constructors, prerequisites and customisations. An implicit dst yields to
// an explicit src.
func absorb(dst, src *plan) *plan {
	if dst.implicit && !src.implicit {
		dst, src = src, dst
	}

	if src.set.amount {
		dst.opts.AmountToCreate = src.opts.AmountToCreate
		dst.set.amount = true
	}
	if src.set.behaviour {
		dst.opts.InsertionBehaviour = src.opts.InsertionBehaviour
		dst.set.behaviour = true
	}
	if !src.match.IsAll() {
		dst.match = dst.match.And(src.match)
	}
	dst.ctors = append(dst.ctors, src.ctors...)
	for _, r := range src.requires {
		dst.require(r)
	}
	for _, c := range src.custom {
		dst.customise(c.clone())
	}
	if src.err != nil {
		dst.fail(src.err)
	}
	return dst
}

// require registers an explicit prerequisite, replacing one for the same navigation
func (p *plan) require(r *Prerequisite) {
	for i, old := range p.requires {
		if old.Path.Equal(r.Path) {
			p.requires[i] = r
			return
		}
	}
	p.requires = append(p.requires, r)
}

// claims reports whether a customisation populates nav
func (p *plan) claims(nav path.Path) bool {
	for _, c := range p.custom {
		if c.claims(nav) {
			return true
		}
	}
	return false
}

// validate checks registration errors and every customisation against amount
func (p *plan) validate(amount int) error {
	if p.err != nil {
		return p.err
	}
	for _, c := range p.custom {
		if err := c.validate(p.typ, amount); err != nil {
			return err
		}
	}
	return nil
}

// predicate combines the seed's own match predicate with the equivalent
// predicate of every customisation
func (p *plan) predicate(index int, model *schema.Model) query.Predicate {
	pred := p.match
	for _, c := range p.custom {
		pred = pred.And(c.predicate(index, model))
	}
	return pred
}

// reusable reports whether an existing entity can stand in for one built from p
func (p *plan) reusable() bool {
	for _, c := range p.custom {
		if !c.reusable() {
			return false
		}
	}
	return true
}

// ordered returns the customisations in application order
func (p *plan) ordered() []*Customisation {
	out := append([]*Customisation(nil), p.custom...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].order < out[j].order
	})
	return out
}

// amount returns the number of entities the plan builds
func (p *plan) amount() int {
	if p.opts.AmountToCreate < 1 {
		return 1
	}
	return p.opts.AmountToCreate
}
