package seed

import (
	"reflect"

	"github.com/conduit-lang/seedling/internal/orm/path"
	"github.com/conduit-lang/seedling/internal/orm/schema"
)

// Prerequisite is a related entity that must be populated before its owner
// can be persisted
type Prerequisite struct {
	EntityType reflect.Type // owner struct type
	Path       path.Path    // single-hop navigation on the owner
	Seed       Builder      // nil resolves through the Finder

	// composite is set when the navigation's foreign key belongs to the
	// owner's composite primary key
	composite bool
}

// Target returns the struct type of the related entity
func (r *Prerequisite) Target() reflect.Type {
	return path.Indirect(r.Path.Type())
}

// prerequisites derives the prerequisites of p from model: every required
// navigation, with explicit Requires entries replacing the derived one for
// the same navigation.
func (p *plan) prerequisites(model *schema.Model) ([]*Prerequisite, error) {
	var out []*Prerequisite
	for _, rel := range model.RequiredNavigations() {
		np, err := path.Parse(p.typ, rel.FieldName)
		if err != nil {
			return nil, wrapSeeding(err, "required navigation %s.%s", p.typeName(), rel.FieldName)
		}
		out = append(out, &Prerequisite{
			EntityType: p.typ,
			Path:       np,
			composite:  rel.PartOfPrimaryKey,
		})
	}

	for _, explicit := range p.requires {
		r := *explicit
		if rel, ok := model.Relationship(r.Path.String()); ok {
			r.composite = rel.PartOfPrimaryKey
		}

		replaced := false
		for i, derived := range out {
			if derived.Path.Equal(r.Path) {
				out[i] = &r
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, &r)
		}
	}
	return out, nil
}
