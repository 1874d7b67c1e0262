// Package tracking provides the unit of work shared by the bundled repositories.
// It remembers every entity added or loaded during a seeding run so that
// lookups can see unsaved entities and SaveChanges knows what to persist.
package tracking

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/conduit-lang/seedling/internal/orm/path"
)

// State is the persistence state of a tracked entity
type State int

const (
	// StateAdded entities are pending insertion
	StateAdded State = iota
	// StateUnchanged entities are persisted
	StateUnchanged
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateAdded:
		return "added"
	case StateUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Entry is one tracked entity
type Entry struct {
	Entity any          // pointer to the entity struct
	Type   reflect.Type // struct type of Entity
	State  State
}

// Tracker tracks entities by identity, in the order they were first seen
type Tracker struct {
	mu      sync.RWMutex
	entries []*Entry
	index   map[any]*Entry
}

// New creates an empty tracker
func New() *Tracker {
	return &Tracker{index: make(map[any]*Entry)}
}

// Track starts tracking entity in the given state. Tracking an entity twice
// returns the existing entry unchanged.
func (t *Tracker) Track(entity any, state State) (*Entry, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("track: %T is not a pointer to a struct", entity)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.index[entity]; ok {
		return e, nil
	}
	e := &Entry{Entity: entity, Type: v.Elem().Type(), State: state}
	t.entries = append(t.entries, e)
	t.index[entity] = e
	return e, nil
}

// Entry returns the entry of a tracked entity
func (t *Tracker) Entry(entity any) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.index[entity]
	return e, ok
}

// Find returns the first tracked entity of type typ accepted by match.
// With no states given every state is searched.
func (t *Tracker) Find(typ reflect.Type, match func(entity any) bool, states ...State) (any, bool) {
	typ = path.Indirect(typ)

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if e.Type != typ || !inStates(e.State, states) {
			continue
		}
		if match == nil || match(e.Entity) {
			return e.Entity, true
		}
	}
	return nil, false
}

// Entries returns a snapshot of the entries in the given states (all when none given)
func (t *Tracker) Entries(states ...State) []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if inStates(e.State, states) {
			out = append(out, e)
		}
	}
	return out
}

// HasChanges reports whether any entity is pending insertion
func (t *Tracker) HasChanges() bool {
	return len(t.Entries(StateAdded)) > 0
}

// AcceptChanges marks every added entity as persisted
func (t *Tracker) AcceptChanges() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		e.State = StateUnchanged
	}
}

// RejectChanges forgets every added entity
func (t *Tracker) RejectChanges() {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.State == StateAdded {
			delete(t.index, e.Entity)
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
}

// Len returns the number of tracked entities
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// Reset forgets every tracked entity
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = nil
	t.index = make(map[any]*Entry)
}

func inStates(s State, states []State) bool {
	if len(states) == 0 {
		return true
	}
	for _, want := range states {
		if s == want {
			return true
		}
	}
	return false
}
