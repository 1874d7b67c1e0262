// Package path provides dotted field paths over entity structs.
// A path such as "Facility.Room.Region" is the getter language used by seed
// customisations: it is parsed once against the root struct type into
// single-hop segments and then used to read, assign and compare properties
// on built entities.
package path

import (
	"fmt"
	"reflect"
	"strings"
)

// Segment is one hop of a path
type Segment struct {
	Name  string       // Go field name
	Index []int        // field index within Owner (multi-level for promoted fields)
	Owner reflect.Type // struct type that declares the field
	Type  reflect.Type // declared field type
}

// Path is an ordered list of single-hop segments rooted at a struct type
type Path struct {
	root reflect.Type
	segs []Segment
}

// Error describes a malformed path expression
type Error struct {
	Expr   string
	Type   reflect.Type
	Reason string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("invalid property path %q on %s: %s", e.Expr, typeName(e.Type), e.Reason)
}

// NilHopError is returned when a path walks through a nil navigation
type NilHopError struct {
	Path     string
	Owner    reflect.Type
	Property string
}

// Error implements the error interface
func (e *NilHopError) Error() string {
	return fmt.Sprintf(
		"cannot access %s: %s.%s is nil; seed it first with WithNew or a prerequisite",
		e.Path, typeName(e.Owner), e.Property)
}

// Parse validates expr against root and returns the parsed path.
// Every hop except the last must be a struct or pointer to struct.
func Parse(root reflect.Type, expr string) (Path, error) {
	root = Indirect(root)
	if root == nil || root.Kind() != reflect.Struct {
		return Path{}, &Error{Expr: expr, Type: root, Reason: "root is not a struct type"}
	}

	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Path{}, &Error{Expr: expr, Type: root, Reason: "empty expression"}
	}

	parts := strings.Split(expr, ".")
	segs := make([]Segment, 0, len(parts))
	current := root

	for i, part := range parts {
		if part == "" {
			return Path{}, &Error{Expr: expr, Type: root, Reason: "empty segment"}
		}
		if i > 0 {
			prev := segs[i-1]
			next := Indirect(prev.Type)
			if next.Kind() != reflect.Struct {
				return Path{}, &Error{
					Expr:   expr,
					Type:   root,
					Reason: fmt.Sprintf("%s is %s, not a navigation", prev.Name, prev.Type),
				}
			}
			current = next
		}

		field, ok := current.FieldByName(part)
		if !ok {
			return Path{}, &Error{
				Expr:   expr,
				Type:   root,
				Reason: fmt.Sprintf("%s has no field %s", current.Name(), part),
			}
		}
		if !field.IsExported() {
			return Path{}, &Error{
				Expr:   expr,
				Type:   root,
				Reason: fmt.Sprintf("%s.%s is not exported", current.Name(), part),
			}
		}

		segs = append(segs, Segment{
			Name:  field.Name,
			Index: field.Index,
			Owner: current,
			Type:  field.Type,
		})
	}

	return Path{root: root, segs: segs}, nil
}

// MustParse is like Parse but panics on error
func MustParse(root reflect.Type, expr string) Path {
	p, err := Parse(root, expr)
	if err != nil {
		panic(err)
	}
	return p
}

// IsZero reports whether the path has no segments
func (p Path) IsZero() bool {
	return len(p.segs) == 0
}

// Root returns the struct type the path starts from
func (p Path) Root() reflect.Type {
	return p.root
}

// Len returns the number of hops
func (p Path) Len() int {
	return len(p.segs)
}

// Segments returns a copy of the hops
func (p Path) Segments() []Segment {
	out := make([]Segment, len(p.segs))
	copy(out, p.segs)
	return out
}

// Type returns the declared type of the terminal field
func (p Path) Type() reflect.Type {
	if len(p.segs) == 0 {
		return p.root
	}
	return p.segs[len(p.segs)-1].Type
}

// Last returns the terminal segment
func (p Path) Last() Segment {
	return p.segs[len(p.segs)-1]
}

// String returns the dotted expression
func (p Path) String() string {
	names := make([]string, len(p.segs))
	for i, s := range p.segs {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

// Head returns the first hop as a single-segment path
func (p Path) Head() Path {
	if len(p.segs) == 0 {
		return p
	}
	return Path{root: p.root, segs: p.segs[:1:1]}
}

// Tail returns the path after the first hop, rooted at the first hop's struct type
func (p Path) Tail() Path {
	if len(p.segs) == 0 {
		return p
	}
	return Path{root: Indirect(p.segs[0].Type), segs: p.segs[1:]}
}

// Parent returns the path without its terminal segment
func (p Path) Parent() Path {
	if len(p.segs) == 0 {
		return p
	}
	return Path{root: p.root, segs: p.segs[: len(p.segs)-1 : len(p.segs)-1]}
}

// Split decomposes the path into single-hop paths, each rooted at its owner
func (p Path) Split() []Path {
	out := make([]Path, len(p.segs))
	for i, s := range p.segs {
		out[i] = Path{root: s.Owner, segs: []Segment{s}}
	}
	return out
}

// Join recomposes contiguous paths into one
func Join(parts ...Path) (Path, error) {
	if len(parts) == 0 {
		return Path{}, fmt.Errorf("join: no paths")
	}

	joined := Path{root: parts[0].root}
	for i, part := range parts {
		if i > 0 {
			want := Indirect(parts[i-1].Type())
			if part.root != want {
				return Path{}, fmt.Errorf("join: %s is rooted at %s, expected %s",
					part.String(), typeName(part.root), typeName(want))
			}
		}
		joined.segs = append(joined.segs, part.segs...)
	}
	return joined, nil
}

// Equal reports whether both paths have the same root and hops
func (p Path) Equal(q Path) bool {
	if p.root != q.root || len(p.segs) != len(q.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i].Name != q.segs[i].Name {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is a leading part of p
func (p Path) HasPrefix(q Path) bool {
	if p.root != q.root || len(q.segs) > len(p.segs) {
		return false
	}
	for i := range q.segs {
		if p.segs[i].Name != q.segs[i].Name {
			return false
		}
	}
	return true
}

// IsNavigation reports whether the terminal field is a pointer to a struct
func (p Path) IsNavigation() bool {
	t := p.Type()
	return t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct
}

// IsCollection reports whether the terminal field is a slice of struct pointers
func (p Path) IsCollection() bool {
	t := p.Type()
	return t.Kind() == reflect.Slice &&
		t.Elem().Kind() == reflect.Pointer &&
		t.Elem().Elem().Kind() == reflect.Struct
}

// Navigation rewrites a foreign key path (x.ParentID) into the navigation
// path (x.Parent) when the owner declares the navigation field.
func (p Path) Navigation() (Path, bool) {
	if len(p.segs) == 0 {
		return p, false
	}
	last := p.Last()
	nav, ok := NavigationName(last.Name)
	if !ok {
		return p, false
	}
	field, ok := last.Owner.FieldByName(nav)
	if !ok || !field.IsExported() {
		return p, false
	}
	if field.Type.Kind() != reflect.Pointer || field.Type.Elem().Kind() != reflect.Struct {
		return p, false
	}

	segs := make([]Segment, 0, len(p.segs))
	segs = append(segs, p.segs[:len(p.segs)-1]...)
	segs = append(segs, Segment{Name: field.Name, Index: field.Index, Owner: last.Owner, Type: field.Type})
	return Path{root: p.root, segs: segs}, true
}

// NavigationName returns the navigation name implied by a foreign key name
func NavigationName(fk string) (string, bool) {
	for _, suffix := range []string{"ID", "Id"} {
		if strings.HasSuffix(fk, suffix) && len(fk) > len(suffix) {
			return strings.TrimSuffix(fk, suffix), true
		}
	}
	return "", false
}

// IsForeignKeyFor reports whether fk names the foreign key of navigation nav
func IsForeignKeyFor(fk, nav string) bool {
	return fk == nav+"ID" || fk == nav+"Id"
}

// IsNullable reports whether values of t can be nil
func IsNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	default:
		return false
	}
}

// Indirect strips pointer indirections from t
func Indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
