package registry

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/seedling/internal/repository/memory"
	"github.com/conduit-lang/seedling/internal/seed"
)

type Region struct {
	ID   int
	Code string
}

type Room struct {
	ID       int
	Name     string
	RegionID int
	Region   *Region
}

func TestRegistry_FindReturnsFreshSeeds(t *testing.T) {
	r := New()
	require.NoError(t, Register(r, "eu", func() *seed.EntitySeed[Region] {
		return seed.New[Region]().Named("eu").With("Code", "EU")
	}))

	first := FindSeed[Region](r)
	second := FindSeed[Region](r)
	assert.NotSame(t, first, second)
	assert.Equal(t, "eu", first.Kind())

	first.With("Code", "changed")
	assert.Equal(t, "eu", r.Find(reflect.TypeOf(&Region{})).Kind())
	assert.True(t, seed.Equal(first, second))
}

func TestRegistry_FallsBackToDefault(t *testing.T) {
	r := New()

	b := r.Find(reflect.TypeOf(Room{}))
	require.NotNil(t, b)
	assert.Equal(t, reflect.TypeOf(Room{}), b.EntityType())
	assert.Empty(t, b.Kind())
	assert.False(t, r.Has(reflect.TypeOf(Room{})))

	assert.Empty(t, FindSeed[Room](r).Customisations())
}

func TestRegistry_RegisterValidates(t *testing.T) {
	r := New()
	assert.Error(t, Register[Region](r, "x", nil))
	assert.Error(t, Register(r, "x", func() *seed.EntitySeed[int] { return seed.New[int]() }))
	assert.Error(t, Register(nil, "x", func() *seed.EntitySeed[Region] { return seed.New[Region]() }))
	assert.Panics(t, func() { MustRegister[Region](r, "x", nil) })
}

func TestRegistry_KindsAndClear(t *testing.T) {
	r := New()
	MustRegister(r, "eu", func() *seed.EntitySeed[Region] { return seed.New[Region]() })
	MustRegister(r, "big", func() *seed.EntitySeed[Room] { return seed.New[Room]() })

	assert.Equal(t, []string{"Region:eu", "Room:big"}, r.Kinds())

	r.Clear()
	assert.Empty(t, r.Kinds())
}

func TestRegistry_DrivesNestedSeeds(t *testing.T) {
	r := New()
	MustRegister(r, "eu", func() *seed.EntitySeed[Region] {
		return seed.New[Region]().Named("eu").With("Code", "EU")
	})

	repo := memory.New()
	s := seed.NewSeeder(repo, seed.WithFinder(r))

	rooms, err := seed.SeedMany(context.Background(), s, 2, seed.New[Room]())
	require.NoError(t, err)
	assert.Equal(t, "EU", rooms[0].Region.Code)
	assert.Same(t, rooms[0].Region, rooms[1].Region)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			MustRegister(r, "eu", func() *seed.EntitySeed[Region] { return seed.New[Region]() })
		}()
		go func() {
			defer wg.Done()
			_ = r.Find(reflect.TypeOf(Region{}))
		}()
	}
	wg.Wait()
	assert.True(t, r.Has(reflect.TypeOf(Region{})))
}
