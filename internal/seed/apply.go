package seed

import (
	"reflect"

	"github.com/conduit-lang/seedling/internal/orm/path"
	"github.com/conduit-lang/seedling/internal/orm/query"
	"github.com/conduit-lang/seedling/internal/orm/schema"
)

// apply runs one customisation against a freshly built entity
func (bc *BuildContext) apply(c *Customisation, entity reflect.Value, r request) error {
	switch c.kind {
	case KindVoid:
		return nil

	case KindPropertyValue:
		v := reflect.ValueOf(c.value)
		if c.path.IsNavigation() {
			return bc.assign(entity, c.path, v)
		}
		return bc.set(entity, c.path, v)

	case KindNullProperty:
		return bc.set(entity, c.path, reflect.Value{})

	case KindDynamicProperty:
		v := reflect.ValueOf(c.valueAt(r.index, r.previous))
		if c.path.IsNavigation() {
			return bc.assign(entity, c.path, v)
		}
		return bc.set(entity, c.path, v)

	case KindPrimaryKey:
		if err := bc.repo.SetPrimaryKey(entity.Interface(), at(c.keys, r.index)); err != nil {
			return wrapSeeding(err, "set primary key of %s", entity.Elem().Type().Name())
		}
		return nil

	case KindExistingNavigation:
		v, err := bc.existing(c, entity)
		if err != nil {
			return err
		}
		return bc.assign(entity, c.path, v)

	case KindSharedNavigation:
		v, err := bc.sharedNavigation(c, r)
		if err != nil {
			return err
		}
		return bc.assign(entity, c.path, v)

	case KindDistinctNavigation:
		v, err := bc.distinctNavigation(c, r)
		if err != nil {
			return err
		}
		return bc.assign(entity, c.path, v)

	case KindRespectiveNavigation:
		v, err := bc.respectiveNavigation(c, r)
		if err != nil {
			return err
		}
		return bc.assign(entity, c.path, v)

	case KindChildCollection:
		return bc.children(c, entity)

	default:
		return seedingErrorf("unknown customisation %s", c)
	}
}

// existing finds the entity a WithExisting customisation points at. It never builds.
func (bc *BuildContext) existing(c *Customisation, owner reflect.Value) (reflect.Value, error) {
	target := path.Indirect(c.path.Type())
	pred := query.And(c.preds...)
	if c.nested != nil {
		pred = pred.And(c.nested.predicate(0, nil))
	}

	v, ok, err := bc.findExisting(target, pred, TryFindExisting)
	if err != nil {
		return reflect.Value{}, err
	}
	if !ok {
		return reflect.Value{}, seedingErrorf("WithExisting(%s) on %s: no existing %s matches %s",
			c.path, owner.Elem().Type().Name(), target.Name(), pred)
	}
	return v, nil
}

// sharedNavigation builds the related entity once per batch. Unless its seed
// sets a behaviour, only entities staged in this run are reused.
func (bc *BuildContext) sharedNavigation(c *Customisation, r request) (reflect.Value, error) {
	key := c.path.String()
	if v, ok := r.batch.shared[key]; ok {
		return v, nil
	}

	if r.behaviour == TryFindNew && r.previous.IsValid() {
		if prev, err := c.path.Get(r.previous); err == nil && !prev.IsNil() {
			r.batch.shared[key] = prev
			return prev, nil
		}
	}

	nested, err := bc.resolve(c.nested)
	if err != nil {
		return reflect.Value{}, err
	}
	var force *InsertionBehaviour
	if !nested.set.behaviour {
		tryNew := TryFindNew
		force = &tryNew
	}
	v, err := bc.buildNested(nested, 0, 1, reflect.Value{}, force, nil)
	if err != nil {
		return reflect.Value{}, err
	}
	r.batch.shared[key] = v
	return v, nil
}

// distinctNavigation builds a new related entity for every index of the batch
func (bc *BuildContext) distinctNavigation(c *Customisation, r request) (reflect.Value, error) {
	var previous reflect.Value
	if r.previous.IsValid() {
		if prev, err := c.path.Get(r.previous); err == nil && !prev.IsNil() {
			previous = prev
		}
	}
	addNew := AddNew
	return bc.buildNested(c.nested, r.index, r.amount, previous, &addNew, r.batch.child(c))
}

// respectiveNavigation builds the index-th seed of the list. A seed given
// again in the next position shares the entity; a seed repeated after a
// different one builds a new entity.
func (bc *BuildContext) respectiveNavigation(c *Customisation, r request) (reflect.Value, error) {
	key := c.path.String()
	built := r.batch.respective[key]
	if built == nil {
		built = make([]reflect.Value, len(c.seeds))
		r.batch.respective[key] = built
	}
	if r.index >= len(c.seeds) {
		return reflect.Value{}, seedingErrorf("no seed for index %d of %s", r.index, c.path)
	}

	i := r.index
	if i < len(c.repeat) && c.repeat[i] && built[i-1].IsValid() {
		built[i] = built[i-1]
		return built[i], nil
	}

	p := c.seeds[i].clone()
	if c.nested != nil {
		p = absorb(p, c.nested.clone())
	}
	addNew := AddNew
	v, err := bc.buildNested(p, 0, 1, reflect.Value{}, &addNew, nil)
	if err != nil {
		return reflect.Value{}, err
	}
	built[i] = v
	return v, nil
}

// children builds count children onto a collection and points their
// back-references at the owner
func (bc *BuildContext) children(c *Customisation, owner reflect.Value) error {
	coll, err := c.path.Get(owner)
	if err != nil {
		return wrapSeeding(err, "read %s", c.path)
	}

	b := newBatch()
	addNew := AddNew
	var previous reflect.Value
	for j := 0; j < c.count; j++ {
		child, err := bc.buildNested(c.nested, j, c.count, previous, &addNew, b)
		if err != nil {
			return err
		}
		if err := bc.linkOwner(child, owner); err != nil {
			return err
		}
		coll = reflect.Append(coll, child)
		previous = child
	}
	return bc.set(owner, c.path, coll)
}

// linkOwner sets every unset navigation of child that points at the owner's type
func (bc *BuildContext) linkOwner(child, owner reflect.Value) error {
	model, err := bc.repo.ModelInfo(child.Elem().Type())
	if err != nil {
		return wrapSeeding(err, "describe %s", child.Elem().Type().Name())
	}
	for _, rel := range model.Relationships {
		if rel.Type != schema.RelationshipBelongsTo || rel.Target != owner.Elem().Type() {
			continue
		}
		if _, set := model.Navigation(child, rel); set {
			continue
		}
		np, err := path.Parse(model.Type, rel.FieldName)
		if err != nil {
			return wrapSeeding(err, "back-reference %s.%s", model.Name, rel.FieldName)
		}
		if err := bc.assign(child, np, owner); err != nil {
			return err
		}
	}
	return nil
}
