package path

import (
	"fmt"
	"reflect"
	"sync"
)

// Owner walks root along the path and returns the struct that declares the
// terminal field. root may be a struct or a (chain of) pointer to struct.
func (p Path) Owner(root reflect.Value) (reflect.Value, error) {
	v, err := structOf(root, p)
	if err != nil {
		return reflect.Value{}, err
	}

	for i := 0; i < len(p.segs)-1; i++ {
		seg := p.segs[i]
		f, err := v.FieldByIndexErr(seg.Index)
		if err != nil {
			return reflect.Value{}, &NilHopError{Path: p.String(), Owner: seg.Owner, Property: seg.Name}
		}
		for f.Kind() == reflect.Pointer {
			if f.IsNil() {
				return reflect.Value{}, &NilHopError{Path: p.String(), Owner: seg.Owner, Property: seg.Name}
			}
			f = f.Elem()
		}
		v = f
	}
	return v, nil
}

// Get returns the terminal field value
func (p Path) Get(root reflect.Value) (reflect.Value, error) {
	if len(p.segs) == 0 {
		return reflect.Value{}, fmt.Errorf("get: empty path")
	}
	owner, err := p.Owner(root)
	if err != nil {
		return reflect.Value{}, err
	}
	f, err := owner.FieldByIndexErr(p.Last().Index)
	if err != nil {
		last := p.Last()
		return reflect.Value{}, &NilHopError{Path: p.String(), Owner: last.Owner, Property: last.Name}
	}
	return f, nil
}

// Set assigns value to the terminal field. An invalid value assigns the zero value.
func (p Path) Set(root reflect.Value, value reflect.Value) error {
	f, err := p.Get(root)
	if err != nil {
		return err
	}
	if !f.CanSet() {
		return fmt.Errorf("set %s: field is not addressable; pass a pointer to the entity", p.String())
	}
	if err := Assign(f, value); err != nil {
		return fmt.Errorf("set %s: %w", p.String(), err)
	}
	return nil
}

// Assign stores v into dst, converting between numeric kinds and wrapping a
// value into a pointer field when needed.
func Assign(dst, v reflect.Value) error {
	if !v.IsValid() {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}

	dt := dst.Type()
	switch {
	case v.Type().AssignableTo(dt):
		dst.Set(v)
	case dt.Kind() == reflect.Pointer && v.Type().AssignableTo(dt.Elem()):
		ptr := reflect.New(dt.Elem())
		ptr.Elem().Set(v)
		dst.Set(ptr)
	case dt.Kind() == reflect.Pointer && convertible(v.Type(), dt.Elem()):
		ptr := reflect.New(dt.Elem())
		ptr.Elem().Set(v.Convert(dt.Elem()))
		dst.Set(ptr)
	case convertible(v.Type(), dt):
		dst.Set(v.Convert(dt))
	default:
		return fmt.Errorf("cannot assign %s to %s", v.Type(), dt)
	}
	return nil
}

// Assignable reports whether values of src can be stored into dst by Assign
func Assignable(src, dst reflect.Type) bool {
	if src == nil {
		return IsNullable(dst)
	}
	if src.AssignableTo(dst) || convertible(src, dst) {
		return true
	}
	if dst.Kind() == reflect.Pointer {
		return src.AssignableTo(dst.Elem()) || convertible(src, dst.Elem())
	}
	return false
}

// convertible restricts reflect conversion to same-family kinds so that an
// int is never silently turned into a one-rune string.
func convertible(src, dst reflect.Type) bool {
	if !src.ConvertibleTo(dst) {
		return false
	}
	return family(src.Kind()) != 0 && family(src.Kind()) == family(dst.Kind())
}

func family(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 1
	case reflect.String:
		return 2
	case reflect.Bool:
		return 3
	default:
		return 0
	}
}

func structOf(root reflect.Value, p Path) (reflect.Value, error) {
	for root.Kind() == reflect.Pointer || root.Kind() == reflect.Interface {
		if root.IsNil() {
			return reflect.Value{}, fmt.Errorf("%s: entity is nil", p.String())
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%s: %s is not a struct", p.String(), root.Type())
	}
	if p.root != nil && root.Type() != p.root {
		return reflect.Value{}, fmt.Errorf("%s: path is rooted at %s, got %s", p.String(), p.root, root.Type())
	}
	return root, nil
}

type cacheKey struct {
	typ  reflect.Type
	expr string
}

// parsed caches Lookup parses; entries are immutable once stored
var parsed sync.Map

// Lookup parses expr against the dynamic type of entity (cached) and returns the value
func Lookup(entity any, expr string) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("lookup %s: entity is nil", expr)
	}
	t := Indirect(v.Type())

	key := cacheKey{typ: t, expr: expr}
	cached, ok := parsed.Load(key)
	if !ok {
		p, err := Parse(t, expr)
		if err != nil {
			return reflect.Value{}, err
		}
		cached, _ = parsed.LoadOrStore(key, p)
	}
	return cached.(Path).Get(v)
}
