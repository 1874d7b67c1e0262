package fixtures

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/seedling/internal/repository/memory"
	"github.com/conduit-lang/seedling/internal/seed"
)

type Country struct {
	ID   int
	Name string
}

type City struct {
	ID        int
	Name      string
	CountryID int
	Country   *Country
}

type Street struct {
	ID     int
	Name   string
	CityID int
	City   *City
}

type D struct{ ID int }
type E struct{ ID int }

type counts map[string]string

func (c counts) FixtureCount(name string) (string, bool) {
	v, ok := c[name]
	return v, ok
}

func names(fs []Fixture) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.EntityType().Name()
	}
	return out
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    Range
		wantErr bool
	}{
		{"5", Fixed(5), false},
		{" 0 ", Fixed(0), false},
		{"2-7", Range{Min: 2, Max: 7}, false},
		{"3 - 3", Fixed(3), false},
		{"7-2", Range{}, true},
		{"-1", Range{}, true},
		{"many", Range{}, true},
		{"", Range{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRange_Pick(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	r := Range{Min: 2, Max: 7}
	for i := 0; i < 50; i++ {
		n := r.Pick(rnd)
		assert.GreaterOrEqual(t, n, 2)
		assert.LessOrEqual(t, n, 7)
	}
	assert.Equal(t, 4, Fixed(4).Pick(rnd))
	assert.Equal(t, "2-7", r.String())
	assert.Equal(t, "4", Fixed(4).String())
}

func TestSort_DependenciesFirst(t *testing.T) {
	sorted, err := Sort([]Fixture{
		New[Street](nil, DependsOn[City]()),
		New[Country](nil),
		New[City](nil, DependsOn[Country]()),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Country", "City", "Street"}, names(sorted))
}

func TestSort_IgnoresMissingDependencies(t *testing.T) {
	sorted, err := Sort([]Fixture{New[City](nil, DependsOn[Country]())})
	require.NoError(t, err)
	assert.Equal(t, []string{"City"}, names(sorted))
}

func TestSort_Cycle(t *testing.T) {
	_, err := Sort([]Fixture{
		New[D](nil, DependsOn[E]()),
		New[E](nil, DependsOn[D]()),
	})
	require.Error(t, err)

	var se *seed.SeedingError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "D")
	assert.Contains(t, err.Error(), "E")
}

func TestSort_Duplicate(t *testing.T) {
	_, err := Sort([]Fixture{New[Country](nil), New[Country](nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate fixture for Country")
}

func TestSort_Nil(t *testing.T) {
	_, err := Sort([]Fixture{nil})
	assert.ErrorIs(t, err, seed.ErrPrecondition)
}

func TestRunner_Plan(t *testing.T) {
	r := NewRunner(nil, WithCounts(counts{"City": "4", "Street": "2-3"}))

	steps, err := r.Plan(
		New[Street](nil, DependsOn[City]()),
		New[Country](nil, Count(2)),
		New[City](nil, DependsOn[Country]()),
	)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	assert.Equal(t, reflect.TypeOf(Country{}), steps[0].Fixture.EntityType())
	assert.Equal(t, 2, steps[0].Count)
	assert.Equal(t, 4, steps[1].Count)
	assert.GreaterOrEqual(t, steps[2].Count, 2)
	assert.LessOrEqual(t, steps[2].Count, 3)
}

func TestRunner_PlanInvalidCount(t *testing.T) {
	r := NewRunner(nil, WithCounts(counts{"City": "lots"}))
	_, err := r.Plan(New[City](nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture City")
}

func TestRunner_RunSavesOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	repo := memory.New()
	r := NewRunner(seed.NewSeeder(repo), WithLogger(zap.New(core)))

	created, err := r.Run(context.Background(),
		New[City](func() *seed.EntitySeed[City] {
			return seed.New[City]().WithIndexed("Name", func(i int) any { return "City" })
		}, DependsOn[Country](), Count(3)),
		New[Country](nil, Count(2)),
		New[Street](nil, DependsOn[City](), Count(0)),
	)
	require.NoError(t, err)

	assert.Len(t, created["Country"], 2)
	assert.Len(t, created["City"], 3)
	assert.Empty(t, created["Street"])

	assert.Equal(t, 1, repo.Saves())
	assert.Len(t, memory.All[Country](repo), 2)
	assert.Len(t, memory.All[City](repo), 3)
	for _, c := range memory.All[City](repo) {
		assert.NotZero(t, c.CountryID)
	}
	assert.Equal(t, 3, logs.FilterMessage("fixture created").Len())
}

func TestRunner_RunFailureDiscards(t *testing.T) {
	repo := memory.New()
	r := NewRunner(seed.NewSeeder(repo))

	_, err := r.Run(context.Background(),
		New[Country](nil, Count(2)),
		New[City](func() *seed.EntitySeed[City] {
			return seed.New[City]().With("Nope", 1)
		}, DependsOn[Country]()),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture City")
	assert.Equal(t, 0, repo.Saves())
	assert.Empty(t, memory.All[Country](repo))
}

func TestRunner_NilSeeder(t *testing.T) {
	_, err := NewRunner(nil).Run(context.Background(), New[Country](nil))
	assert.ErrorIs(t, err, seed.ErrPrecondition)
}
