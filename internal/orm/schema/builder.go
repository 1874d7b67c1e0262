package schema

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/seedling/internal/orm/path"
	casing "github.com/conduit-lang/seedling/internal/util/strings"
)

// Tabler lets an entity choose its table name
type Tabler interface {
	TableName() string
}

var (
	tablerType  = reflect.TypeOf((*Tabler)(nil)).Elem()
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
)

// Inspect derives the model of a struct type.
//
// Conventions:
//   - scalar exported fields are columns; the column is the `db` tag or the snake_case name
//   - `seed:"pk"` marks key fields; without any, a field named ID is the key
//   - `seed:"pk,manual"` disables key generation by the store
//   - a pointer-to-struct field Nav is a belongs_to navigation; NavID (or NavId)
//     is its foreign key and makes it required unless the key is a pointer
//   - `seed:"required"` on a navigation marks it required without a foreign key
//   - []*Child fields are has_many navigations
//   - `seed:"-"` ignores a field
func Inspect(t reflect.Type) (*Model, error) {
	t = path.Indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("inspect %v: not a struct type", t)
	}

	b := &builder{model: &Model{Name: t.Name(), Type: t, TableName: tableName(t)}}
	return b.build()
}

type builder struct {
	model    *Model
	navs     []reflect.StructField
	manual   bool
	required map[string]bool
	errors   []string
}

func (b *builder) build() (*Model, error) {
	t := b.model.Type
	b.required = make(map[string]bool)

	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		opts := tagOptions(sf.Tag.Get("seed"))
		if opts["-"] {
			continue
		}

		switch {
		case isScalar(sf.Type):
			b.addField(sf, opts)
		case sf.Type.Kind() == reflect.Pointer && sf.Type.Elem().Kind() == reflect.Struct:
			b.navs = append(b.navs, sf)
			if opts["required"] {
				b.required[sf.Name] = true
			}
		case isCollection(sf.Type):
			b.model.Relationships = append(b.model.Relationships, &Relationship{
				Type:      RelationshipHasMany,
				FieldName: sf.Name,
				Index:     sf.Index,
				Target:    sf.Type.Elem().Elem(),
			})
		}
	}

	if len(b.model.PrimaryKey) == 0 {
		if f, ok := b.model.Field("ID"); ok {
			f.Primary = true
			b.model.PrimaryKey = []*Field{f}
		}
	}
	b.model.AutoKey = len(b.model.PrimaryKey) == 1 && !b.manual && isGeneratable(b.model.PrimaryKey[0].Type)

	for _, nav := range b.navs {
		b.addNavigation(nav)
	}

	if len(b.errors) > 0 {
		return nil, fmt.Errorf("inspect %s failed with %d errors:\n%s",
			t.Name(), len(b.errors), strings.Join(b.errors, "\n"))
	}
	return b.model, nil
}

func (b *builder) addField(sf reflect.StructField, opts map[string]bool) {
	column := sf.Tag.Get("db")
	if column == "" {
		column = casing.ToSnakeCase(sf.Name)
	}
	if _, dup := b.model.FieldByColumn(column); dup {
		b.errors = append(b.errors, fmt.Sprintf("  column %s is mapped twice (field %s)", column, sf.Name))
		return
	}

	f := &Field{
		Name:     sf.Name,
		Column:   column,
		Index:    sf.Index,
		Type:     sf.Type,
		Nullable: path.IsNullable(sf.Type),
		Primary:  opts["pk"],
	}
	b.model.Fields = append(b.model.Fields, f)
	if f.Primary {
		b.model.PrimaryKey = append(b.model.PrimaryKey, f)
		if opts["manual"] {
			b.manual = true
		}
	}
}

func (b *builder) addNavigation(sf reflect.StructField) {
	rel := &Relationship{
		Type:      RelationshipBelongsTo,
		FieldName: sf.Name,
		Index:     sf.Index,
		Target:    sf.Type.Elem(),
		Required:  b.required[sf.Name],
	}

	for _, f := range b.model.Fields {
		if path.IsForeignKeyFor(f.Name, sf.Name) {
			rel.ForeignKey = f
			rel.Required = rel.Required || !f.Nullable
			rel.PartOfPrimaryKey = f.Primary
			break
		}
	}

	b.model.Relationships = append(b.model.Relationships, rel)
}

// isScalar reports whether a field type maps onto a single column
func isScalar(t reflect.Type) bool {
	base := path.Indirect(t)
	if base == timeType || base == uuidType {
		return true
	}
	if base.Implements(valuerType) || reflect.PointerTo(base).Implements(scannerType) {
		return true
	}
	switch base.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return base.Elem().Kind() == reflect.Uint8
	default:
		return false
	}
}

func isCollection(t reflect.Type) bool {
	return t.Kind() == reflect.Slice &&
		t.Elem().Kind() == reflect.Pointer &&
		t.Elem().Elem().Kind() == reflect.Struct &&
		!isScalar(t.Elem())
}

// isGeneratable reports whether a store can generate keys of type t
func isGeneratable(t reflect.Type) bool {
	if t == uuidType {
		return true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64, reflect.String:
		return true
	default:
		return false
	}
}

func tagOptions(tag string) map[string]bool {
	opts := make(map[string]bool)
	for _, part := range strings.Split(tag, ",") {
		if part = strings.TrimSpace(part); part != "" {
			opts[part] = true
		}
	}
	return opts
}

func tableName(t reflect.Type) string {
	if reflect.PointerTo(t).Implements(tablerType) {
		return reflect.New(t).Interface().(Tabler).TableName()
	}
	return casing.TableName(t.Name())
}
