// Package fixtures is the legacy seeding mode: independent default fixtures,
// one per entity type, each creating a configured number of entities after
// the fixtures it depends on.
package fixtures

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/seedling/internal/orm/schema"
	"github.com/conduit-lang/seedling/internal/seed"
)

// Fixture creates the default entities of one type
type Fixture interface {
	EntityType() reflect.Type
	DependsOn() []reflect.Type
	DefaultCount() Range
	Create(bc *seed.BuildContext, count int) ([]any, error)
}

// Range is an inclusive entity count range; Min == Max is a fixed count
type Range struct {
	Min, Max int
}

// Fixed returns the range holding only n
func Fixed(n int) Range {
	return Range{Min: n, Max: n}
}

// Pick returns a count within the range
func (r Range) Pick(rnd *rand.Rand) int {
	if r.Max <= r.Min || rnd == nil {
		return r.Min
	}
	return r.Min + rnd.Intn(r.Max-r.Min+1)
}

// String renders "5" or "2-7"
func (r Range) String() string {
	if r.Min == r.Max {
		return strconv.Itoa(r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// ParseCount parses a fixed count ("5") or an inclusive range ("2-7")
func ParseCount(s string) (Range, error) {
	s = strings.TrimSpace(s)
	lo, hi, isRange := strings.Cut(s, "-")

	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || min < 0 {
		return Range{}, fmt.Errorf("invalid count %q: want a non-negative number or min-max", s)
	}
	if !isRange {
		return Fixed(min), nil
	}

	max, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil || max < min {
		return Range{}, fmt.Errorf("invalid count range %q: want min-max with min <= max", s)
	}
	return Range{Min: min, Max: max}, nil
}

// Option configures a fixture created by New
type Option func(*settings)

type settings struct {
	deps  []reflect.Type
	count Range
}

// DependsOn declares that the fixture runs after the fixture for D
func DependsOn[D any]() Option {
	return func(s *settings) {
		s.deps = append(s.deps, reflect.TypeOf((*D)(nil)).Elem())
	}
}

// Count sets the default number of entities
func Count(n int) Option {
	return func(s *settings) {
		s.count = Fixed(n)
	}
}

// CountRange sets a default count range
func CountRange(min, max int) Option {
	return func(s *settings) {
		s.count = Range{Min: min, Max: max}
	}
}

type fixture[T any] struct {
	settings
	typ     reflect.Type
	factory func() *seed.EntitySeed[T]
}

// New creates a fixture building T from the seeds factory returns; a nil
// factory uses the default seed
func New[T any](factory func() *seed.EntitySeed[T], opts ...Option) Fixture {
	if factory == nil {
		factory = seed.New[T]
	}
	f := &fixture[T]{
		settings: settings{count: Fixed(1)},
		typ:      reflect.TypeOf((*T)(nil)).Elem(),
		factory:  factory,
	}
	for _, opt := range opts {
		opt(&f.settings)
	}
	return f
}

func (f *fixture[T]) EntityType() reflect.Type  { return f.typ }
func (f *fixture[T]) DependsOn() []reflect.Type { return f.deps }
func (f *fixture[T]) DefaultCount() Range       { return f.count }

// Create builds count entities from a fresh seed
func (f *fixture[T]) Create(bc *seed.BuildContext, count int) ([]any, error) {
	if count == 0 {
		return nil, nil
	}
	return bc.Build(f.factory().Clone().Amount(count))
}

// Sort orders fixtures so that every fixture follows the fixtures it
// depends on. Dependencies without a fixture are ignored. When no fixture
// can be placed the returned *seed.SeedingError lists the entity type names
// involved.
func Sort(fixtures []Fixture) ([]Fixture, error) {
	byName := make(map[string]Fixture, len(fixtures))
	g := schema.NewDependencyGraph()
	for _, f := range fixtures {
		if f == nil {
			return nil, &seed.PreconditionError{Arg: "fixtures", Message: "must not contain nil"}
		}
		name := f.EntityType().Name()
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate fixture for %s", name)
		}
		byName[name] = f

		deps := make([]string, len(f.DependsOn()))
		for i, d := range f.DependsOn() {
			deps[i] = d.Name()
		}
		g.AddNode(name, deps...)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, &seed.SeedingError{Message: "cyclic fixture dependencies", Err: err}
	}

	out := make([]Fixture, len(order))
	for i, name := range order {
		out[i] = byName[name]
	}
	return out, nil
}

// CountSource supplies configured counts keyed by entity type name
type CountSource interface {
	FixtureCount(typeName string) (string, bool)
}

// Step is one fixture with the number of entities it will create
type Step struct {
	Fixture Fixture
	Count   int
}

// Runner creates fixtures through a seeder
type Runner struct {
	seeder *seed.Seeder
	counts CountSource
	rnd    *rand.Rand
	logger *zap.Logger
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithCounts sets where configured counts are read from
func WithCounts(src CountSource) RunnerOption {
	return func(r *Runner) { r.counts = src }
}

// WithRand sets the source used to pick counts within ranges
func WithRand(rnd *rand.Rand) RunnerOption {
	return func(r *Runner) { r.rnd = rnd }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner
func NewRunner(s *seed.Seeder, opts ...RunnerOption) *Runner {
	r := &Runner{
		seeder: s,
		rnd:    rand.New(rand.NewSource(1)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan sorts the fixtures and decides how many entities each creates: the
// configured count when present, the fixture's default otherwise
func (r *Runner) Plan(fixtures ...Fixture) ([]Step, error) {
	sorted, err := Sort(fixtures)
	if err != nil {
		return nil, err
	}

	steps := make([]Step, len(sorted))
	for i, f := range sorted {
		count := f.DefaultCount()
		if r.counts != nil {
			if raw, ok := r.counts.FixtureCount(f.EntityType().Name()); ok {
				if count, err = ParseCount(raw); err != nil {
					return nil, fmt.Errorf("fixture %s: %w", f.EntityType().Name(), err)
				}
			}
		}
		steps[i] = Step{Fixture: f, Count: count.Pick(r.rnd)}
	}
	return steps, nil
}

// Run creates every fixture in dependency order and saves once. The
// created entities are returned by type name.
func (r *Runner) Run(ctx context.Context, fixtures ...Fixture) (map[string][]any, error) {
	steps, err := r.Plan(fixtures...)
	if err != nil {
		return nil, err
	}
	return r.RunPlan(ctx, steps)
}

// RunPlan creates the planned steps in order and saves once
func (r *Runner) RunPlan(ctx context.Context, steps []Step) (map[string][]any, error) {
	if r.seeder == nil {
		return nil, &seed.PreconditionError{Arg: "seeder", Message: "must not be nil"}
	}

	created := make(map[string][]any, len(steps))
	err := r.seeder.Run(ctx, func(bc *seed.BuildContext) error {
		for _, step := range steps {
			name := step.Fixture.EntityType().Name()
			entities, err := step.Fixture.Create(bc, step.Count)
			if err != nil {
				return fmt.Errorf("fixture %s: %w", name, err)
			}
			created[name] = entities
			r.logger.Info("fixture created", zap.String("entity", name), zap.Int("count", len(entities)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
