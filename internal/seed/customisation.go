package seed

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/seedling/internal/orm/path"
	"github.com/conduit-lang/seedling/internal/orm/query"
	"github.com/conduit-lang/seedling/internal/orm/schema"
)

// Kind identifies the variant of a Customisation
type Kind int

const (
	KindVoid Kind = iota
	KindPropertyValue
	KindNullProperty
	KindDynamicProperty
	KindExistingNavigation
	KindDistinctNavigation
	KindSharedNavigation
	KindRespectiveNavigation
	KindChildCollection
	KindPrimaryKey
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindPropertyValue:
		return "property_value"
	case KindNullProperty:
		return "null_property"
	case KindDynamicProperty:
		return "dynamic_property"
	case KindExistingNavigation:
		return "existing_navigation"
	case KindDistinctNavigation:
		return "distinct_navigation"
	case KindSharedNavigation:
		return "shared_navigation"
	case KindRespectiveNavigation:
		return "respective_navigation"
	case KindChildCollection:
		return "child_collection"
	case KindPrimaryKey:
		return "primary_key"
	default:
		return "unknown"
	}
}

// Order is the default application order of the kind; lower applies first
func (k Kind) Order() int {
	switch k {
	case KindDistinctNavigation, KindSharedNavigation:
		return 50
	case KindPropertyValue:
		return 200
	default:
		return 0
	}
}

func (k Kind) isNavigation() bool {
	switch k {
	case KindExistingNavigation, KindDistinctNavigation, KindSharedNavigation,
		KindRespectiveNavigation, KindChildCollection:
		return true
	default:
		return false
	}
}

// valueFunc produces the value for the index-th entity of a batch;
// previous is the entity built for index-1 (invalid for the first)
type valueFunc func(index int, previous reflect.Value) any

// indexFunc produces a value from the index alone, so it also yields the
// equivalent predicate
type indexFunc func(index int) any

// Customisation is one rule overriding how a property or navigation of an
// entity is populated. Paths are single hops after registration; a deeper
// path is held by the nested seed of a navigation customisation.
type Customisation struct {
	kind  Kind
	path  path.Path
	order int

	value  any               // KindPropertyValue
	values []any             // KindDynamicProperty (value list form)
	fn     valueFunc         // KindDynamicProperty (function forms)
	byIdx  indexFunc         // KindDynamicProperty (WithIndexed)
	preds  []query.Predicate // KindExistingNavigation
	nested *plan             // navigation kinds
	seeds  []*plan           // KindRespectiveNavigation
	repeat []bool            // KindRespectiveNavigation: seeds[i] is the caller's seeds[i-1]
	count  int               // KindChildCollection
	keys   []any             // KindPrimaryKey
}

func newCustomisation(kind Kind, p path.Path) *Customisation {
	return &Customisation{kind: kind, path: p, order: kind.Order()}
}

// Kind returns the variant
func (c *Customisation) Kind() Kind { return c.kind }

// Path returns the dotted path the customisation targets
func (c *Customisation) Path() string { return c.path.String() }

// Order returns the application order
func (c *Customisation) Order() int { return c.order }

// String renders the customisation for logs
func (c *Customisation) String() string {
	if c.kind == KindPrimaryKey {
		return fmt.Sprintf("%s(%v)", c.kind, c.keys)
	}
	return fmt.Sprintf("%s(%s)", c.kind, c.path)
}

func (c *Customisation) clone() *Customisation {
	out := *c
	if c.nested != nil {
		out.nested = c.nested.clone()
	}
	if c.seeds != nil {
		out.seeds = make([]*plan, len(c.seeds))
		for i, s := range c.seeds {
			out.seeds[i] = s.clone()
		}
	}
	out.repeat = append([]bool(nil), c.repeat...)
	out.values = append([]any(nil), c.values...)
	out.preds = append([]query.Predicate(nil), c.preds...)
	out.keys = append([]any(nil), c.keys...)
	return &out
}

// sameTarget reports whether both customisations claim the same property
func (c *Customisation) sameTarget(o *Customisation) bool {
	if c.kind == KindPrimaryKey || o.kind == KindPrimaryKey {
		return c.kind == o.kind
	}
	return c.path.Equal(o.path)
}

// claims reports whether the customisation populates navigation nav, either
// directly or through its foreign key
func (c *Customisation) claims(nav path.Path) bool {
	if c.kind == KindPrimaryKey {
		return false
	}
	if c.path.Equal(nav) {
		return true
	}
	if rewritten, ok := c.path.Navigation(); ok && rewritten.Equal(nav) {
		return true
	}
	return false
}

// merge combines an existing customisation with a newer one for the same
// target. Scalar rules are replaced, except that a computed value never
// replaces a fixed one; navigation rules keep the strongest kind and fold
// the newer nested seed into the existing one.
func merge(old, c *Customisation) *Customisation {
	switch {
	case c.kind == KindVoid:
		return old
	case old.kind == KindPropertyValue && c.kind == KindDynamicProperty:
		return old
	case old.kind == KindVoid, !old.kind.isNavigation(), !c.kind.isNavigation():
		return c
	}

	merged := old.clone()
	switch c.kind {
	case KindExistingNavigation:
		if old.kind != KindExistingNavigation {
			merged.kind = KindExistingNavigation
			merged.preds = nil
		}
		merged.preds = append(merged.preds, c.preds...)
	case KindRespectiveNavigation:
		merged.kind = KindRespectiveNavigation
		nc := c.clone()
		merged.seeds, merged.repeat = nc.seeds, nc.repeat
	case KindChildCollection:
		merged.kind = KindChildCollection
		merged.count = c.count
	case KindDistinctNavigation:
		if old.kind == KindSharedNavigation {
			merged.kind = KindDistinctNavigation
		}
	case KindSharedNavigation:
		// keeps the existing kind
	}
	merged.order = merged.kind.Order()

	switch {
	case c.nested == nil:
	case merged.nested == nil:
		merged.nested = c.nested.clone()
	default:
		merged.nested = absorb(merged.nested, c.nested.clone())
	}
	return merged
}

// validate checks the customisation against the number of entities built
// from its owner seed
func (c *Customisation) validate(owner reflect.Type, amount int) error {
	switch c.kind {
	case KindDynamicProperty:
		if c.values != nil {
			if err := checkCount("values", c.path.String(), len(c.values), amount, owner); err != nil {
				return err
			}
		}
	case KindPrimaryKey:
		if err := checkCount("primary keys", "the primary key", len(c.keys), amount, owner); err != nil {
			return err
		}
	case KindRespectiveNavigation:
		if len(c.seeds) != amount {
			return seedingErrorf("%d seeds provided for %s but %d %s entities are being created",
				len(c.seeds), c.path, amount, owner.Name())
		}
	case KindDistinctNavigation:
		if amount <= 1 {
			return seedingErrorf("WithDifferent(%s) needs more than one %s entity; %d is being created",
				c.path, owner.Name(), amount)
		}
	case KindChildCollection:
		if c.count < 0 {
			return seedingErrorf("WithChildren(%s) on %s: negative count %d", c.path, owner.Name(), c.count)
		}
	}

	if c.nested != nil {
		if err := c.nested.validate(c.nestedAmount(amount)); err != nil {
			return err
		}
	}
	for _, s := range c.seeds {
		if err := s.validate(1); err != nil {
			return err
		}
	}
	return nil
}

// nestedAmount is the number of entities the nested seed builds per owner batch
func (c *Customisation) nestedAmount(amount int) int {
	switch c.kind {
	case KindDistinctNavigation:
		return amount
	case KindChildCollection:
		return c.count
	default:
		return 1
	}
}

func checkCount(what, target string, provided, amount int, owner reflect.Type) error {
	if provided == 1 || provided == amount {
		return nil
	}
	return seedingErrorf("%d %s provided for %s but %d %s entities are being created",
		provided, what, target, amount, owner.Name())
}

// predicate returns the condition an existing entity must satisfy to stand in
// for the index-th entity built with this customisation
func (c *Customisation) predicate(index int, model *schema.Model) query.Predicate {
	field := c.path.String()
	switch c.kind {
	case KindPropertyValue:
		return query.Eq(field, c.value)
	case KindNullProperty:
		return query.IsNull(field)
	case KindDynamicProperty:
		switch {
		case c.values != nil:
			return query.Eq(field, at(c.values, index))
		case c.byIdx != nil:
			return query.Eq(field, c.byIdx(index))
		case c.fn != nil:
			return query.Func(field+" computed per entity", func(any) bool { return false })
		}
	case KindPrimaryKey:
		if model != nil && len(model.PrimaryKey) == 1 {
			return query.Eq(model.PrimaryKey[0].Name, at(c.keys, index))
		}
	case KindExistingNavigation:
		pred := query.And(c.preds...)
		if c.nested != nil {
			pred = pred.And(c.nested.predicate(0, nil))
		}
		return pred.Prefixed(field)
	case KindSharedNavigation:
		return c.nested.predicate(0, nil).Prefixed(field)
	case KindDistinctNavigation:
		return c.nested.predicate(index, nil).Prefixed(field)
	case KindRespectiveNavigation:
		if index < len(c.seeds) {
			return c.seeds[index].predicate(0, nil).Prefixed(field)
		}
	}
	return query.All()
}

// reusable reports whether an existing entity can stand in for one built with
// c; values computed from the previous sibling or a generator cannot be matched
func (c *Customisation) reusable() bool {
	if c.kind == KindDynamicProperty && c.fn != nil {
		return false
	}
	if c.nested != nil && !c.nested.reusable() {
		return false
	}
	for _, s := range c.seeds {
		if !s.reusable() {
			return false
		}
	}
	return true
}

// valueAt returns the value of a dynamic or value-list customisation
func (c *Customisation) valueAt(index int, previous reflect.Value) any {
	if c.byIdx != nil {
		return c.byIdx(index)
	}
	if c.fn != nil {
		return c.fn(index, previous)
	}
	return at(c.values, index)
}

// at returns values[index], broadcasting a single value
func at(values []any, index int) any {
	if len(values) == 1 {
		return values[0]
	}
	if index < len(values) {
		return values[index]
	}
	return nil
}
