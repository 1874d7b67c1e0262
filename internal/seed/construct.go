package seed

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// constructor is a registered factory func for the skeleton entity
type constructor struct {
	fn     reflect.Value
	params []reflect.Type
}

// newConstructor checks that fn is a func returning T, *T, (T, error) or (*T, error)
func newConstructor(t reflect.Type, fn any) (constructor, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return constructor{}, fmt.Errorf("constructor for %s must be a func, got %T", t.Name(), fn)
	}

	ft := v.Type()
	if ft.IsVariadic() {
		return constructor{}, fmt.Errorf("constructor %s for %s must not be variadic", ft, t.Name())
	}
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return constructor{}, fmt.Errorf("constructor %s for %s must return %s or (%s, error)", ft, t.Name(), t.Name(), t.Name())
	}
	if out := ft.Out(0); out != t && out != reflect.PointerTo(t) {
		return constructor{}, fmt.Errorf("constructor %s returns %s, not %s", ft, out, t.Name())
	}

	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}
	return constructor{fn: v, params: params}, nil
}

// construct creates the skeleton entity through the constructor with the
// fewest parameters; among equals the first registered wins. Without
// constructors the zero value is allocated.
func (p *plan) construct() (reflect.Value, error) {
	if p.typ == nil || p.typ.Kind() != reflect.Struct {
		return reflect.Value{}, seedingErrorf("no constructor for %v: not a struct type", p.typ)
	}
	if len(p.ctors) == 0 {
		return reflect.New(p.typ), nil
	}

	best := p.ctors[0]
	for _, c := range p.ctors[1:] {
		if len(c.params) < len(best.params) {
			best = c
		}
	}

	args := make([]reflect.Value, len(best.params))
	for i, t := range best.params {
		args[i] = placeholder(t)
	}
	out := best.fn.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, &SeedingError{
			Message: fmt.Sprintf("constructor %s failed", best.fn.Type()),
			Err:     out[1].Interface().(error),
		}
	}

	v := out[0]
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, seedingErrorf("constructor %s returned nil", best.fn.Type())
		}
		return v, nil
	}
	ptr := reflect.New(p.typ)
	ptr.Elem().Set(v)
	return ptr, nil
}

// placeholder returns the example argument for a constructor parameter:
// a fresh unique string for strings, the zero value otherwise
func placeholder(t reflect.Type) reflect.Value {
	if t.Kind() == reflect.String {
		return reflect.ValueOf(uuid.NewString()).Convert(t)
	}
	return reflect.Zero(t)
}
