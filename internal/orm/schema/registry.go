package schema

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/conduit-lang/seedling/internal/orm/path"
)

// Registry caches models by struct type.
// Models are inspected lazily on the first lookup of a type and kept for the
// life of the process; Clear exists for tests.
type Registry struct {
	models map[reflect.Type]*Model
	mu     sync.RWMutex
}

// Default is the process-wide model cache used by the bundled repositories
var Default = NewRegistry()

// NewRegistry creates a new model registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[reflect.Type]*Model),
	}
}

// Get returns the model of t, inspecting it on first use
func (r *Registry) Get(t reflect.Type) (*Model, error) {
	t = path.Indirect(t)

	r.mu.RLock()
	m, ok := r.models[t]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	inspected, err := Inspect(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// another goroutine may have won the race; keep the first model
	if m, ok := r.models[t]; ok {
		return m, nil
	}
	r.models[t] = inspected
	return inspected, nil
}

// Register stores a hand-built model, replacing any inspected one
func (r *Registry) Register(m *Model) error {
	if m == nil || m.Type == nil {
		return fmt.Errorf("register: model has no type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Type] = m
	return nil
}

// Clear removes all cached models (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = make(map[reflect.Type]*Model)
}

// Count returns the number of cached models
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// SyncForeignKeys copies the key of every assigned belongs_to navigation into
// its foreign key field. Navigations whose target has no key yet are skipped.
func (r *Registry) SyncForeignKeys(entity reflect.Value) error {
	m, err := r.Get(entity.Type())
	if err != nil {
		return err
	}

	for _, rel := range m.BelongsTo() {
		if rel.ForeignKey == nil {
			continue
		}
		target, ok := m.Navigation(entity, rel)
		if !ok {
			continue
		}
		tm, err := r.Get(rel.Target)
		if err != nil {
			return err
		}
		if len(tm.PrimaryKey) != 1 || tm.HasZeroKey(target) {
			continue
		}
		key := tm.Value(target, tm.PrimaryKey[0])
		if err := path.Assign(m.Value(entity, rel.ForeignKey), key); err != nil {
			return fmt.Errorf("%s.%s: %w", m.Name, rel.ForeignKey.Name, err)
		}
	}
	return nil
}
