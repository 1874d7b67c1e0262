package tracking

import (
	"reflect"

	"github.com/conduit-lang/seedling/internal/orm/schema"
)

// Cascade stages the untracked entities reachable from added ones through
// belongs_to navigations and has_many collections
func (t *Tracker) Cascade(models *schema.Registry) error {
	queue := t.Entries(StateAdded)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		m, err := models.Get(e.Type)
		if err != nil {
			return err
		}
		v := reflect.ValueOf(e.Entity)
		for _, rel := range m.Relationships {
			for _, related := range related(m, v, rel) {
				if _, tracked := t.Entry(related); tracked {
					continue
				}
				entry, err := t.Track(related, StateAdded)
				if err != nil {
					return err
				}
				queue = append(queue, entry)
			}
		}
	}
	return nil
}

func related(m *schema.Model, entity reflect.Value, rel *schema.Relationship) []any {
	if rel.Type == schema.RelationshipBelongsTo {
		if nav, ok := m.Navigation(entity, rel); ok {
			return []any{nav.Interface()}
		}
		return nil
	}

	coll := entity.Elem().FieldByIndex(rel.Index)
	out := make([]any, 0, coll.Len())
	for i := 0; i < coll.Len(); i++ {
		if child := coll.Index(i); !child.IsNil() {
			out = append(out, child.Interface())
		}
	}
	return out
}

// InsertOrder returns the added entries with every entity after the added
// entities its belongs_to navigations point at. Cycles, including
// self-references, are broken in insertion order; the caller patches the
// foreign keys left unset.
func (t *Tracker) InsertOrder(models *schema.Registry) ([]*Entry, error) {
	added := t.Entries(StateAdded)
	pending := make(map[any]*Entry, len(added))
	for _, e := range added {
		pending[e.Entity] = e
	}

	out := make([]*Entry, 0, len(added))
	visiting := make(map[any]bool)
	var visit func(e *Entry) error
	visit = func(e *Entry) error {
		if _, ok := pending[e.Entity]; !ok || visiting[e.Entity] {
			return nil
		}
		visiting[e.Entity] = true

		m, err := models.Get(e.Type)
		if err != nil {
			return err
		}
		for _, rel := range m.BelongsTo() {
			nav, ok := m.Navigation(reflect.ValueOf(e.Entity), rel)
			if !ok {
				continue
			}
			if parent, ok := pending[nav.Interface()]; ok {
				if err := visit(parent); err != nil {
					return err
				}
			}
		}

		delete(pending, e.Entity)
		out = append(out, e)
		return nil
	}

	for _, e := range added {
		if err := visit(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}
