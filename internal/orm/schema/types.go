// Package schema provides model metadata for seedable entity types.
// A Model describes one Go struct: its table, column fields, primary key and
// navigation relationships. Models are derived by reflection (see Inspect)
// and cached in a Registry.
package schema

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/seedling/internal/orm/path"
)

var (
	// ErrCompositeKey is returned when a single key value is assigned to a composite key
	ErrCompositeKey = errors.New("entity has a composite primary key")

	// ErrNoPrimaryKey is returned when a key operation targets a model without a key
	ErrNoPrimaryKey = errors.New("entity has no primary key")

	// ErrKeyType is returned when a key value does not fit the key field
	ErrKeyType = errors.New("primary key value has the wrong type")
)

// RelationType represents the type of relationship
type RelationType int

const (
	RelationshipBelongsTo RelationType = iota
	RelationshipHasMany
)

// String returns the string representation of the relationship type
func (r RelationType) String() string {
	switch r {
	case RelationshipBelongsTo:
		return "belongs_to"
	case RelationshipHasMany:
		return "has_many"
	default:
		return "unknown"
	}
}

// Field is a persisted scalar field
type Field struct {
	Name     string
	Column   string
	Index    []int
	Type     reflect.Type
	Nullable bool
	Primary  bool
}

// Relationship is a navigation to another entity type
type Relationship struct {
	Type      RelationType
	FieldName string
	Index     []int
	Target    reflect.Type // struct type of the related entity

	// ForeignKey is the scalar field holding the related key (belongs_to only)
	ForeignKey *Field
	Required   bool

	// PartOfPrimaryKey is set when the foreign key is a member of a composite key
	PartOfPrimaryKey bool
}

// Model is the metadata of one entity type
type Model struct {
	Name          string
	Type          reflect.Type
	TableName     string
	Fields        []*Field
	PrimaryKey    []*Field
	AutoKey       bool
	Relationships []*Relationship
}

// Field returns the column field with the given Go name
func (m *Model) Field(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// FieldByColumn returns the field mapped to column
func (m *Model) FieldByColumn(column string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return nil, false
}

// Relationship returns the relationship declared on the given field
func (m *Model) Relationship(name string) (*Relationship, bool) {
	for _, r := range m.Relationships {
		if r.FieldName == name {
			return r, true
		}
	}
	return nil, false
}

// RequiredNavigations returns the belongs_to relationships that must be
// populated before the entity can be persisted
func (m *Model) RequiredNavigations() []*Relationship {
	var out []*Relationship
	for _, r := range m.Relationships {
		if r.Type == RelationshipBelongsTo && r.Required {
			out = append(out, r)
		}
	}
	return out
}

// BelongsTo returns every belongs_to relationship
func (m *Model) BelongsTo() []*Relationship {
	var out []*Relationship
	for _, r := range m.Relationships {
		if r.Type == RelationshipBelongsTo {
			out = append(out, r)
		}
	}
	return out
}

// Columns returns the column names in declaration order
func (m *Model) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// HasCompositeKey reports whether the key spans several fields
func (m *Model) HasCompositeKey() bool {
	return len(m.PrimaryKey) > 1
}

// Value returns the field value on entity (a pointer to the model's struct)
func (m *Model) Value(entity reflect.Value, f *Field) reflect.Value {
	return reflect.Indirect(entity).FieldByIndex(f.Index)
}

// KeyValues returns the primary key values of entity
func (m *Model) KeyValues(entity reflect.Value) []any {
	out := make([]any, len(m.PrimaryKey))
	for i, f := range m.PrimaryKey {
		out[i] = m.Value(entity, f).Interface()
	}
	return out
}

// HasZeroKey reports whether any key field still holds its zero value
func (m *Model) HasZeroKey(entity reflect.Value) bool {
	if len(m.PrimaryKey) == 0 {
		return true
	}
	for _, f := range m.PrimaryKey {
		if m.Value(entity, f).IsZero() {
			return true
		}
	}
	return false
}

// SetKey assigns value to the single primary key field of entity
func (m *Model) SetKey(entity reflect.Value, value any) error {
	switch {
	case len(m.PrimaryKey) == 0:
		return fmt.Errorf("%s: %w", m.Name, ErrNoPrimaryKey)
	case len(m.PrimaryKey) > 1:
		return fmt.Errorf("%s: %w", m.Name, ErrCompositeKey)
	}

	key := m.PrimaryKey[0]
	v := reflect.ValueOf(value)
	if !v.IsValid() || !path.Assignable(v.Type(), key.Type) {
		return fmt.Errorf("%s.%s: %w: got %T, want %s", m.Name, key.Name, ErrKeyType, value, key.Type)
	}
	return path.Assign(m.Value(entity, key), v)
}

// ScanTargets returns field addresses for the given columns, in order
func (m *Model) ScanTargets(entity reflect.Value, columns []string) ([]any, error) {
	targets := make([]any, len(columns))
	for i, col := range columns {
		f, ok := m.FieldByColumn(col)
		if !ok {
			return nil, fmt.Errorf("%s has no column %s", m.Name, col)
		}
		targets[i] = m.Value(entity, f).Addr().Interface()
	}
	return targets, nil
}

// InsertValues returns the columns and values to insert; a zero auto key is skipped
func (m *Model) InsertValues(entity reflect.Value) ([]string, []any) {
	cols := make([]string, 0, len(m.Fields))
	vals := make([]any, 0, len(m.Fields))
	for _, f := range m.Fields {
		v := m.Value(entity, f)
		if f.Primary && m.AutoKey && v.IsZero() {
			continue
		}
		cols = append(cols, f.Column)
		vals = append(vals, v.Interface())
	}
	return cols, vals
}

// Navigation returns the related entity assigned to r on entity, if any
func (m *Model) Navigation(entity reflect.Value, r *Relationship) (reflect.Value, bool) {
	v := reflect.Indirect(entity).FieldByIndex(r.Index)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, false
	}
	return v, true
}
