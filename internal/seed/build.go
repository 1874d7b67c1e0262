package seed

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/conduit-lang/seedling/internal/orm/path"
	"github.com/conduit-lang/seedling/internal/orm/query"
)

// BuildContext carries the repository and lookup state of one seeding call.
// It is not safe for concurrent use.
type BuildContext struct {
	ctx    context.Context
	repo   Repository
	finder Finder
	logger *zap.Logger

	// entities whose build has started but not returned, innermost last
	stack    []reflect.Value
	resolved map[*plan]*plan

	built  int
	reused int
}

// NewBuildContext creates a build context. A nil finder resolves every type
// to its default seed; a nil logger discards output.
func NewBuildContext(ctx context.Context, repo Repository, finder Finder, logger *zap.Logger) *BuildContext {
	if finder == nil {
		finder = DefaultFinder
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BuildContext{
		ctx:      ctx,
		repo:     repo,
		finder:   finder,
		logger:   logger,
		resolved: make(map[*plan]*plan),
	}
}

// Built returns the number of entities created so far
func (bc *BuildContext) Built() int { return bc.built }

// Reused returns the number of existing entities returned instead of built
func (bc *BuildContext) Reused() int { return bc.reused }

// Build builds every entity described by the seed and returns them as
// pointers, in build order. Nothing is saved.
func (bc *BuildContext) Build(b Builder) ([]any, error) {
	if b == nil {
		return nil, &PreconditionError{Arg: "seed", Message: "must not be nil"}
	}
	values, err := bc.buildRoot(b.plan())
	if err != nil {
		return nil, err
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.Interface()
	}
	return out, nil
}

// batch holds the entities shared between the builds of one batch
type batch struct {
	shared     map[string]reflect.Value
	respective map[string][]reflect.Value
	children   map[*Customisation]*batch
}

func newBatch() *batch {
	return &batch{
		shared:     make(map[string]reflect.Value),
		respective: make(map[string][]reflect.Value),
		children:   make(map[*Customisation]*batch),
	}
}

// child returns the batch used by the nested builds of c across this batch
func (b *batch) child(c *Customisation) *batch {
	nb, ok := b.children[c]
	if !ok {
		nb = newBatch()
		b.children[c] = nb
	}
	return nb
}

// request describes the build of one entity within a batch
type request struct {
	index     int
	amount    int
	previous  reflect.Value
	behaviour InsertionBehaviour
	batch     *batch
}

func (bc *BuildContext) buildRoot(p *plan) ([]reflect.Value, error) {
	if bc.repo == nil {
		return nil, seedingErrorf("no repository to seed %s into", p.typeName())
	}
	p, err := bc.resolve(p)
	if err != nil {
		return nil, err
	}

	amount := p.amount()
	if err := p.validate(amount); err != nil {
		return nil, err
	}

	b := newBatch()
	out := make([]reflect.Value, 0, amount)
	var previous reflect.Value
	for i := 0; i < amount; i++ {
		v, err := bc.buildOne(p, request{
			index:     i,
			amount:    amount,
			previous:  previous,
			behaviour: p.opts.behaviourAt(amount, p.set.behaviour),
			batch:     b,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		previous = v
	}
	return out, nil
}

// buildNested builds one entity of a nested seed. index and amount position
// it within the owner's batch; force overrides the seed's behaviour.
func (bc *BuildContext) buildNested(p *plan, index, amount int, previous reflect.Value, force *InsertionBehaviour, b *batch) (reflect.Value, error) {
	p, err := bc.resolve(p)
	if err != nil {
		return reflect.Value{}, err
	}
	if err := p.validate(amount); err != nil {
		return reflect.Value{}, err
	}

	behaviour := p.opts.InsertionBehaviour
	if force != nil {
		behaviour = *force
	}
	if b == nil {
		b = newBatch()
	}
	return bc.buildOne(p, request{
		index:     index,
		amount:    amount,
		previous:  previous,
		behaviour: behaviour,
		batch:     b,
	})
}

func (bc *BuildContext) buildOne(p *plan, r request) (reflect.Value, error) {
	model, err := bc.repo.ModelInfo(p.typ)
	if err != nil {
		return reflect.Value{}, wrapSeeding(err, "describe %s", p.typeName())
	}
	pred := p.predicate(r.index, model)

	reusable := p.reusable()
	if r.behaviour == MustFindExisting && !reusable {
		return reflect.Value{}, seedingErrorf("no existing %s can match %s", p.typeName(), pred)
	}
	if r.behaviour != AddNew && reusable {
		found, ok, err := bc.findExisting(p.typ, pred, r.behaviour)
		if err != nil {
			return reflect.Value{}, err
		}
		if ok {
			bc.reused++
			bc.logger.Debug("reused existing entity",
				zap.String("entity", p.typeName()),
				zap.Int("index", r.index),
				zap.Stringer("predicate", pred))
			return found, nil
		}
		if r.behaviour == MustFindExisting {
			return reflect.Value{}, seedingErrorf("no existing %s matches %s", p.typeName(), pred)
		}
	}

	entity, err := p.construct()
	if err != nil {
		return reflect.Value{}, err
	}
	bc.stack = append(bc.stack, entity)
	defer func() { bc.stack = bc.stack[:len(bc.stack)-1] }()

	if err := bc.attachPrerequisites(p, entity, r.batch); err != nil {
		return reflect.Value{}, err
	}
	if err := bc.repo.Add(bc.ctx, entity.Interface()); err != nil {
		return reflect.Value{}, wrapSeeding(err, "add %s", p.typeName())
	}
	for _, c := range p.ordered() {
		if err := bc.apply(c, entity, r); err != nil {
			return reflect.Value{}, err
		}
	}

	bc.built++
	bc.logger.Debug("built entity",
		zap.String("entity", p.typeName()),
		zap.Int("index", r.index),
		zap.Stringer("behaviour", r.behaviour))
	return entity, nil
}

func (bc *BuildContext) findExisting(t reflect.Type, pred query.Predicate, behaviour InsertionBehaviour) (reflect.Value, bool, error) {
	if v, ok := bc.repo.FindLocal(t, pred); ok {
		return reflect.ValueOf(v), true, nil
	}
	if behaviour == TryFindNew {
		return reflect.Value{}, false, nil
	}

	found, err := bc.repo.Query(bc.ctx, t, pred)
	if err != nil {
		return reflect.Value{}, false, wrapSeeding(err, "query %s", t.Name())
	}
	if len(found) == 0 {
		return reflect.Value{}, false, nil
	}
	return reflect.ValueOf(found[0]), true, nil
}

// resolve folds an implicit plan into the seed the finder returns for its type
func (bc *BuildContext) resolve(p *plan) (*plan, error) {
	if !p.implicit {
		return p, nil
	}
	if r, ok := bc.resolved[p]; ok {
		return r, nil
	}

	resolved := p
	if base := bc.finder.Find(p.typ); base != nil {
		bp := base.plan()
		if bp.typ != p.typ {
			return nil, seedingErrorf("seed found for %s builds %v", p.typeName(), bp.typ)
		}
		resolved = absorb(bp.clone(), p.clone())
	}
	bc.resolved[p] = resolved
	return resolved, nil
}

func (bc *BuildContext) attachPrerequisites(p *plan, entity reflect.Value, b *batch) error {
	model, err := bc.repo.ModelInfo(p.typ)
	if err != nil {
		return wrapSeeding(err, "describe %s", p.typeName())
	}
	reqs, err := p.prerequisites(model)
	if err != nil {
		return err
	}

	for _, r := range reqs {
		if p.claims(r.Path) {
			continue
		}
		if current, err := r.Path.Get(entity); err == nil && !current.IsNil() {
			continue
		}

		value, err := bc.prerequisite(r, b)
		if err != nil {
			return err
		}
		if err := bc.assign(entity, r.Path, value); err != nil {
			return err
		}
	}
	return nil
}

// prerequisite returns the related entity for r: an in-progress ancestor of
// the required type, the entity already built for this batch, or a new build
func (bc *BuildContext) prerequisite(r *Prerequisite, b *batch) (reflect.Value, error) {
	if anc, ok := bc.inProgress(r.Target()); ok {
		bc.logger.Debug("prerequisite closes on ancestor",
			zap.String("entity", r.EntityType.Name()),
			zap.String("path", r.Path.String()))
		return anc, nil
	}

	key := "prerequisite:" + r.Path.String()
	if v, ok := b.shared[key]; ok {
		bc.logger.Debug("prerequisite shared",
			zap.String("entity", r.EntityType.Name()),
			zap.String("path", r.Path.String()))
		return v, nil
	}

	nested := implicitPlan(r.Target())
	if r.Seed != nil {
		nested = r.Seed.plan().clone()
	}
	var force *InsertionBehaviour
	if r.composite {
		addNew := AddNew
		force = &addNew
	}

	v, err := bc.buildNested(nested, 0, 1, reflect.Value{}, force, nil)
	if err != nil {
		return reflect.Value{}, err
	}
	b.shared[key] = v
	return v, nil
}

func (bc *BuildContext) inProgress(t reflect.Type) (reflect.Value, bool) {
	for i := len(bc.stack) - 1; i >= 0; i-- {
		if bc.stack[i].Elem().Type() == t {
			return bc.stack[i], true
		}
	}
	return reflect.Value{}, false
}

// assign attaches a related entity to a navigation
func (bc *BuildContext) assign(entity reflect.Value, p path.Path, value reflect.Value) error {
	if value.IsValid() && !value.IsNil() {
		if err := bc.repo.PrepareToSet(value.Interface()); err != nil {
			return wrapSeeding(err, "prepare %s for %s", value.Elem().Type().Name(), p)
		}
	}
	return bc.set(entity, p, value)
}

func (bc *BuildContext) set(entity reflect.Value, p path.Path, value reflect.Value) error {
	if err := p.Set(entity, value); err != nil {
		return wrapSeeding(err, "set %s.%s", entity.Elem().Type().Name(), p)
	}
	return nil
}
