package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/seedling/internal/orm/query"
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
	Desks    []*Desk
}

type Desk struct {
	ID     uuid.UUID
	RoomID int
	Room   *Room
}

func TestRepository_SaveAssignsKeysAndForeignKeys(t *testing.T) {
	ctx := context.Background()
	repo := New()

	room := &Room{Name: "Room 1", Region: &Region{Code: "EU"}}
	require.NoError(t, repo.Add(ctx, room))
	require.NoError(t, repo.SaveChanges(ctx))

	assert.Equal(t, 1, room.ID)
	assert.Equal(t, 1, room.Region.ID, "untracked navigations are saved with their owner")
	assert.Equal(t, room.Region.ID, room.RegionID)
	assert.Equal(t, 1, repo.Saves())

	regions := All[Region](repo)
	require.Len(t, regions, 1)
	assert.Same(t, room.Region, regions[0])
}

func TestRepository_CascadesChildren(t *testing.T) {
	ctx := context.Background()
	repo := New()

	room := &Room{Name: "Room 1", Region: &Region{}}
	room.Desks = []*Desk{{Room: room}, {Room: room}}
	require.NoError(t, repo.Add(ctx, room))
	require.NoError(t, repo.SaveChanges(ctx))

	desks := All[Desk](repo)
	require.Len(t, desks, 2)
	for _, d := range desks {
		assert.NotEqual(t, uuid.Nil, d.ID)
		assert.Equal(t, room.ID, d.RoomID)
	}
}

func TestRepository_QueryOnlySeesSavedEntities(t *testing.T) {
	ctx := context.Background()
	repo := New()
	regionType := reflect.TypeOf(Region{})

	eu := &Region{Code: "EU"}
	require.NoError(t, repo.Add(ctx, eu))

	found, err := repo.Query(ctx, regionType, query.All())
	require.NoError(t, err)
	assert.Empty(t, found)

	local, ok := repo.FindLocal(regionType, query.Eq("Code", "EU"))
	require.True(t, ok)
	assert.Same(t, eu, local)

	require.NoError(t, repo.SaveChanges(ctx))
	found, err = repo.Query(ctx, regionType, query.Eq("Code", "EU"))
	require.NoError(t, err)
	assert.Equal(t, []any{eu}, found)
	assert.Equal(t, 1, repo.Count(regionType))
}

func TestRepository_KeepsExplicitKeys(t *testing.T) {
	ctx := context.Background()
	repo := New()

	r := &Region{ID: 42}
	require.NoError(t, repo.Add(ctx, r))
	require.NoError(t, repo.SaveChanges(ctx))
	assert.Equal(t, 42, r.ID)
}

func TestRepository_DiscardChanges(t *testing.T) {
	ctx := context.Background()
	repo := New()

	require.NoError(t, repo.Add(ctx, &Region{Code: "EU"}))
	require.NoError(t, repo.SaveChanges(ctx))
	require.NoError(t, repo.Add(ctx, &Region{Code: "US"}))

	repo.DiscardChanges()
	require.NoError(t, repo.SaveChanges(ctx))

	regions := All[Region](repo)
	require.Len(t, regions, 1)
	assert.Equal(t, "EU", regions[0].Code)
}

// Parcel's foreign key cannot hold its label's int key
type Parcel struct {
	ID      int
	LabelID string
	Label   *Label
}

type Label struct {
	ID   int
	Text string
}

func TestRepository_FailedSaveResetsGeneratedKeys(t *testing.T) {
	ctx := context.Background()
	repo := New()

	parcel := &Parcel{Label: &Label{Text: "fragile"}}
	require.NoError(t, repo.Add(ctx, parcel))

	err := repo.SaveChanges(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Parcel")

	assert.Zero(t, parcel.ID)
	assert.Zero(t, parcel.Label.ID)
	assert.Equal(t, 0, repo.Saves())
	assert.Equal(t, 0, repo.Count(reflect.TypeOf(Parcel{})))

	staged, ok := repo.FindLocal(reflect.TypeOf(Parcel{}), query.All())
	require.True(t, ok, "entities stay staged after a failed save")
	assert.Same(t, parcel, staged)
}

func TestRepository_SetPrimaryKeyNotSupported(t *testing.T) {
	err := New().SetPrimaryKey(&Region{}, 1)
	assert.True(t, errors.Is(err, seed.ErrNotSupported))
}

func TestRepository_ImplementsSeedRepository(t *testing.T) {
	var _ seed.Repository = New()
	var _ seed.Discarder = New()
}
