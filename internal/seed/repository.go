package seed

import (
	"context"
	"reflect"

	"github.com/conduit-lang/seedling/internal/orm/query"
	"github.com/conduit-lang/seedling/internal/orm/schema"
)

// Repository is the store seeds are built into. Entities are passed as
// pointers to structs; types are struct types.
type Repository interface {
	// Query returns the persisted entities of type t matching pred
	Query(ctx context.Context, t reflect.Type, pred query.Predicate) ([]any, error)

	// Add stages entity for persistence; adding a tracked entity is a no-op
	Add(ctx context.Context, entity any) error

	// FindLocal searches the entities staged or tracked by this repository
	FindLocal(t reflect.Type, pred query.Predicate) (any, bool)

	// ModelInfo describes the primary key and navigations of t
	ModelInfo(t reflect.Type) (*schema.Model, error)

	// SetPrimaryKey assigns an explicit key; repositories that cannot honour
	// explicit keys return an error wrapping ErrNotSupported
	SetPrimaryKey(entity any, value any) error

	// PrepareToSet is called with a related entity before it is assigned to a navigation
	PrepareToSet(value any) error

	// SaveChanges persists everything staged since the last save
	SaveChanges(ctx context.Context) error
}

// Discarder is implemented by repositories that can drop the entities staged
// since the last save. A failed entry point discards so that a later save
// does not persist a partial graph.
type Discarder interface {
	DiscardChanges()
}

// Finder locates the seed used for entity types that have no explicit seed
type Finder interface {
	Find(t reflect.Type) Builder
}

// FinderFunc adapts a function to the Finder interface
type FinderFunc func(t reflect.Type) Builder

// Find calls f(t)
func (f FinderFunc) Find(t reflect.Type) Builder {
	return f(t)
}

// DefaultFinder resolves every type to its default seed
var DefaultFinder Finder = FinderFunc(Default)
