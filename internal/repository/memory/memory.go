// Package memory is a seed.Repository that keeps entities in process.
// Saving assigns generated keys, copies navigation keys into foreign keys and
// marks everything persisted; explicit primary keys are not supported.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/conduit-lang/seedling/internal/orm/path"
	"github.com/conduit-lang/seedling/internal/orm/query"
	"github.com/conduit-lang/seedling/internal/orm/schema"
	"github.com/conduit-lang/seedling/internal/orm/tracking"
	"github.com/conduit-lang/seedling/internal/seed"
)

// Repository is an in-memory seed.Repository
type Repository struct {
	tracker *tracking.Tracker
	models  *schema.Registry

	mu    sync.Mutex
	seq   map[reflect.Type]int64
	saves int
}

// New creates an empty repository using the process-wide model registry
func New() *Repository {
	return NewWithRegistry(schema.Default)
}

// NewWithRegistry creates an empty repository using models
func NewWithRegistry(models *schema.Registry) *Repository {
	return &Repository{
		tracker: tracking.New(),
		models:  models,
		seq:     make(map[reflect.Type]int64),
	}
}

// Query returns the saved entities of type t matching pred, in insertion order
func (r *Repository) Query(_ context.Context, t reflect.Type, pred query.Predicate) ([]any, error) {
	if _, err := r.models.Get(t); err != nil {
		return nil, err
	}
	t = path.Indirect(t)

	var out []any
	for _, e := range r.tracker.Entries(tracking.StateUnchanged) {
		if e.Type == t && pred.Match(e.Entity) {
			out = append(out, e.Entity)
		}
	}
	return out, nil
}

// Add stages entity
func (r *Repository) Add(_ context.Context, entity any) error {
	_, err := r.tracker.Track(entity, tracking.StateAdded)
	return err
}

// FindLocal returns the first staged entity of type t matching pred
func (r *Repository) FindLocal(t reflect.Type, pred query.Predicate) (any, bool) {
	return r.tracker.Find(t, pred.Match, tracking.StateAdded)
}

// ModelInfo describes t
func (r *Repository) ModelInfo(t reflect.Type) (*schema.Model, error) {
	return r.models.Get(t)
}

// SetPrimaryKey is not supported: keys are generated on save
func (r *Repository) SetPrimaryKey(entity any, _ any) error {
	return fmt.Errorf("memory repository: set primary key of %T: %w", entity, seed.ErrNotSupported)
}

// PrepareToSet needs no preparation in memory
func (r *Repository) PrepareToSet(any) error {
	return nil
}

// SaveChanges persists every staged entity along with the untracked
// entities reachable through their navigations
func (r *Repository) SaveChanges(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.tracker.Cascade(r.models); err != nil {
		return err
	}

	var generated []reflect.Value
	reset := func(err error) error {
		for _, key := range generated {
			key.Set(reflect.Zero(key.Type()))
		}
		return err
	}

	added := r.tracker.Entries(tracking.StateAdded)
	for _, e := range added {
		key, err := r.assignKey(e)
		if err != nil {
			return reset(err)
		}
		if key.IsValid() {
			generated = append(generated, key)
		}
	}
	for _, e := range added {
		if err := r.models.SyncForeignKeys(reflect.ValueOf(e.Entity)); err != nil {
			return reset(fmt.Errorf("save %s: %w", e.Type.Name(), err))
		}
	}

	r.tracker.AcceptChanges()
	r.saves++
	return nil
}

// DiscardChanges drops every staged entity
func (r *Repository) DiscardChanges() {
	r.tracker.RejectChanges()
}

// assignKey generates a key for an entity whose auto key is still zero and
// returns the key field it set
func (r *Repository) assignKey(e *tracking.Entry) (reflect.Value, error) {
	m, err := r.models.Get(e.Type)
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.ValueOf(e.Entity)
	if !m.AutoKey || !m.HasZeroKey(v) {
		return reflect.Value{}, nil
	}

	key := m.PrimaryKey[0]
	var value any
	switch {
	case key.Type == reflect.TypeOf(uuid.UUID{}):
		value = uuid.New()
	case key.Type.Kind() == reflect.String:
		value = uuid.NewString()
	default:
		r.seq[e.Type]++
		value = r.seq[e.Type]
	}
	if err := m.SetKey(v, value); err != nil {
		return reflect.Value{}, err
	}
	return m.Value(v, key), nil
}

// Saves returns how many times SaveChanges succeeded
func (r *Repository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.saves
}

// Count returns the number of saved entities of type t
func (r *Repository) Count(t reflect.Type) int {
	found, _ := r.Query(context.Background(), t, query.All())
	return len(found)
}

// All returns the saved entities of type T in insertion order
func All[T any](r *Repository) []*T {
	t := reflect.TypeOf((*T)(nil)).Elem()
	found, _ := r.Query(context.Background(), t, query.All())
	out := make([]*T, len(found))
	for i, e := range found {
		out[i] = e.(*T)
	}
	return out
}
