// Package registry maps entity types to the seeds used when no explicit seed
// is given. Seeds are registered explicitly, usually from package init
// functions next to the entity definitions.
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/conduit-lang/seedling/internal/orm/path"
	"github.com/conduit-lang/seedling/internal/seed"
)

// Factory returns a fresh seed on every call
type Factory func() seed.Builder

type entry struct {
	kind    string
	factory Factory
}

// Registry is a seed.Finder backed by registered factories
type Registry struct {
	mu      sync.RWMutex
	entries map[reflect.Type]entry
}

// Default is the process-wide seed registry
var Default = New()

// New creates an empty registry
func New() *Registry {
	return &Registry{
		entries: make(map[reflect.Type]entry),
	}
}

// Register stores factory as the seed for T, replacing any earlier one.
// kind is recorded for listing; the factory's seeds carry their own kind.
func Register[T any](r *Registry, kind string, factory func() *seed.EntitySeed[T]) error {
	if r == nil {
		return fmt.Errorf("register: nil registry")
	}
	if factory == nil {
		return fmt.Errorf("register %s: nil factory", typeOf[T]())
	}
	t := typeOf[T]()
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("register %s: entity types must be structs", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t] = entry{
		kind:    kind,
		factory: func() seed.Builder { return factory() },
	}
	return nil
}

// MustRegister is Register that panics on error
func MustRegister[T any](r *Registry, kind string, factory func() *seed.EntitySeed[T]) {
	if err := Register(r, kind, factory); err != nil {
		panic(err)
	}
}

// Find returns a fresh seed for t: the registered one or the default seed
func (r *Registry) Find(t reflect.Type) seed.Builder {
	t = path.Indirect(t)

	r.mu.RLock()
	e, ok := r.entries[t]
	r.mu.RUnlock()

	if ok {
		if b := e.factory(); b != nil {
			return b
		}
	}
	return seed.Default(t)
}

// FindSeed returns a fresh typed seed for T: the registered one or a new seed
func FindSeed[T any](r *Registry) *seed.EntitySeed[T] {
	t := typeOf[T]()

	r.mu.RLock()
	e, ok := r.entries[t]
	r.mu.RUnlock()

	if ok {
		if typed, ok := e.factory().(*seed.EntitySeed[T]); ok {
			return typed
		}
	}
	return seed.New[T]()
}

// Has reports whether a seed is registered for t
func (r *Registry) Has(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[path.Indirect(t)]
	return ok
}

// Kinds returns "Type:kind" for every registration, sorted
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for t, e := range r.entries {
		out = append(out, t.Name()+":"+e.kind)
	}
	sort.Strings(out)
	return out
}

// Clear removes every registration (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[reflect.Type]entry)
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

var _ seed.Finder = (*Registry)(nil)
