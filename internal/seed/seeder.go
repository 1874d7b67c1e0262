package seed

import (
	"context"
	"reflect"

	"go.uber.org/zap"
)

// Seeder runs seeds against a repository. Every entry point builds inside a
// single BuildContext and saves exactly once.
type Seeder struct {
	repo   Repository
	finder Finder
	logger *zap.Logger
}

// SeederOption configures a Seeder
type SeederOption func(*Seeder)

// WithFinder sets the finder used for types without an explicit seed
func WithFinder(f Finder) SeederOption {
	return func(s *Seeder) {
		if f != nil {
			s.finder = f
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) SeederOption {
	return func(s *Seeder) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSeeder creates a seeder over repo
func NewSeeder(repo Repository, opts ...SeederOption) *Seeder {
	s := &Seeder{
		repo:   repo,
		finder: DefaultFinder,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository returns the seeder's repository
func (s *Seeder) Repository() Repository {
	return s.repo
}

// Run builds with fn inside one build context and saves once
func (s *Seeder) Run(ctx context.Context, fn func(bc *BuildContext) error) error {
	if s.repo == nil {
		return seedingErrorf("seeder has no repository")
	}

	bc := NewBuildContext(ctx, s.repo, s.finder, s.logger)
	if err := fn(bc); err != nil {
		if d, ok := s.repo.(Discarder); ok {
			d.DiscardChanges()
		}
		s.logger.Debug("seeding failed", zap.Error(err), zap.Int("built", bc.Built()))
		return err
	}
	if err := s.repo.SaveChanges(ctx); err != nil {
		return wrapSeeding(err, "save changes")
	}

	s.logger.Debug("seeding saved",
		zap.Int("built", bc.Built()),
		zap.Int("reused", bc.Reused()))
	return nil
}

// Seed builds the seed and returns its first entity
func Seed[T any](ctx context.Context, s *Seeder, es *EntitySeed[T]) (*T, error) {
	if err := checkSeeder(s); err != nil {
		return nil, err
	}
	if es == nil {
		return nil, &PreconditionError{Arg: "seed", Message: "must not be nil"}
	}

	var out *T
	err := s.Run(ctx, func(bc *BuildContext) error {
		values, err := bc.buildRoot(es.p)
		if err != nil {
			return err
		}
		out = values[0].Interface().(*T)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SeedMany builds n entities from the seed; the seed itself is not modified
func SeedMany[T any](ctx context.Context, s *Seeder, n int, es *EntitySeed[T]) ([]*T, error) {
	if err := checkSeeder(s); err != nil {
		return nil, err
	}
	if es == nil {
		return nil, &PreconditionError{Arg: "seed", Message: "must not be nil"}
	}
	if n < 0 {
		return nil, &PreconditionError{Arg: "count", Message: "must not be negative"}
	}

	batch := es.Clone().Amount(n)
	out := make([]*T, 0, n)
	err := s.Run(ctx, func(bc *BuildContext) error {
		if n == 0 {
			return nil
		}
		values, err := bc.buildRoot(batch.p)
		if err != nil {
			return err
		}
		for _, v := range values {
			out = append(out, v.Interface().(*T))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SeedAll builds every seed in order and returns the first entity of each
func SeedAll(ctx context.Context, s *Seeder, seeds ...Builder) ([]any, error) {
	if err := checkSeeder(s); err != nil {
		return nil, err
	}
	for _, b := range seeds {
		if b == nil {
			return nil, &PreconditionError{Arg: "seeds", Message: "must not contain nil"}
		}
	}

	out := make([]any, 0, len(seeds))
	err := s.Run(ctx, func(bc *BuildContext) error {
		for _, b := range seeds {
			values, err := bc.buildRoot(b.plan())
			if err != nil {
				return err
			}
			out = append(out, values[0].Interface())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Seed2 builds two seeds in one save
func Seed2[A, B any](ctx context.Context, s *Seeder, a *EntitySeed[A], b *EntitySeed[B]) (*A, *B, error) {
	if a == nil || b == nil {
		return nil, nil, &PreconditionError{Arg: "seeds", Message: "must not be nil"}
	}
	out, err := SeedAll(ctx, s, a, b)
	if err != nil {
		return nil, nil, err
	}
	return out[0].(*A), out[1].(*B), nil
}

// Seed3 builds three seeds in one save
func Seed3[A, B, C any](ctx context.Context, s *Seeder, a *EntitySeed[A], b *EntitySeed[B], c *EntitySeed[C]) (*A, *B, *C, error) {
	if a == nil || b == nil || c == nil {
		return nil, nil, nil, &PreconditionError{Arg: "seeds", Message: "must not be nil"}
	}
	out, err := SeedAll(ctx, s, a, b, c)
	if err != nil {
		return nil, nil, nil, err
	}
	return out[0].(*A), out[1].(*B), out[2].(*C), nil
}

// SeedDefault builds one T from the seed the seeder's finder returns
func SeedDefault[T any](ctx context.Context, s *Seeder) (*T, error) {
	out, err := SeedManyDefault[T](ctx, s, 1)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// SeedManyDefault builds n entities of T from the seed the seeder's finder returns
func SeedManyDefault[T any](ctx context.Context, s *Seeder, n int) ([]*T, error) {
	if err := checkSeeder(s); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, &PreconditionError{Arg: "count", Message: "must not be negative"}
	}

	t := reflect.TypeOf((*T)(nil)).Elem()
	b := s.finder.Find(t)
	if b == nil {
		b = Default(t)
	}
	p := b.plan().clone()
	p.opts.AmountToCreate = n
	p.set.amount = true

	out := make([]*T, 0, n)
	err := s.Run(ctx, func(bc *BuildContext) error {
		if n == 0 {
			return nil
		}
		values, err := bc.buildRoot(p)
		if err != nil {
			return err
		}
		for _, v := range values {
			typed, ok := v.Interface().(*T)
			if !ok {
				return seedingErrorf("seed for %s built %s", t.Name(), v.Type())
			}
			out = append(out, typed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkSeeder(s *Seeder) error {
	if s == nil {
		return &PreconditionError{Arg: "seeder", Message: "must not be nil"}
	}
	return nil
}
