package redisstore

import (
	"context"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
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
	Notes    *string
	RegionID int
	Region   *Region
}

type Badge struct {
	ID     uuid.UUID
	RoomID int
	Room   *Room
}

func setupTestRedis(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, "test:"), mr
}

// reopen returns a store with an empty identity map over the same server
func reopen(t *testing.T, mr *miniredis.Miniredis) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, "test:")
}

func TestStore_SaveWritesDocuments(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	room := &Room{Name: "Room 1", Region: &Region{Code: "EU"}}
	require.NoError(t, store.Add(ctx, room))
	require.NoError(t, store.SaveChanges(ctx))

	assert.Equal(t, 1, room.ID)
	assert.Equal(t, 1, room.RegionID)

	doc, err := mr.Get("test:rooms:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"Room 1","notes":null,"region_id":1}`, doc)

	ids, err := mr.List("test:regions:ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)

	seq, err := mr.Get("test:rooms:seq")
	require.NoError(t, err)
	assert.Equal(t, "1", seq)
}

func TestStore_QueryDecodesSavedEntities(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	notes := "corner"
	region := &Region{Code: "EU"}
	require.NoError(t, store.Add(ctx, &Room{Name: "a", Notes: &notes, Region: region}))
	require.NoError(t, store.Add(ctx, &Room{Name: "b", Region: &Region{Code: "US"}}))
	require.NoError(t, store.SaveChanges(ctx))

	fresh := reopen(t, mr)
	rooms, err := fresh.Query(ctx, reflect.TypeOf(Room{}), query.All())
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	a := rooms[0].(*Room)
	assert.Equal(t, "a", a.Name)
	require.NotNil(t, a.Notes)
	assert.Equal(t, "corner", *a.Notes)
	assert.Nil(t, rooms[1].(*Room).Notes)

	again, err := fresh.Query(ctx, reflect.TypeOf(Room{}), query.Eq("Name", "a"))
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Same(t, a, again[0], "documents are decoded once")
}

func TestStore_QueryLoadsNavigations(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, &Room{Name: "a", Region: &Region{Code: "EU"}}))
	require.NoError(t, store.Add(ctx, &Room{Name: "b", Region: &Region{Code: "US"}}))
	require.NoError(t, store.SaveChanges(ctx))

	fresh := reopen(t, mr)
	found, err := fresh.Query(ctx, reflect.TypeOf(Room{}), query.Eq("Region.Code", "US"))
	require.NoError(t, err)
	require.Len(t, found, 1)

	room := found[0].(*Room)
	assert.Equal(t, "b", room.Name)
	require.NotNil(t, room.Region)
	assert.Equal(t, "US", room.Region.Code)
}

func TestStore_KeysByType(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	explicit := &Region{Code: "EU"}
	require.NoError(t, store.Add(ctx, explicit))
	require.NoError(t, store.SetPrimaryKey(explicit, 40))

	badge := &Badge{Room: &Room{Name: "r", Region: explicit}}
	require.NoError(t, store.Add(ctx, badge))
	require.NoError(t, store.SaveChanges(ctx))

	assert.Equal(t, 40, explicit.ID)
	assert.Equal(t, 40, badge.Room.RegionID)
	assert.NotEqual(t, uuid.Nil, badge.ID)
	assert.Equal(t, badge.Room.ID, badge.RoomID)
}

func TestStore_DiscardChanges(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, &Region{Code: "EU"}))
	store.DiscardChanges()
	require.NoError(t, store.SaveChanges(ctx))

	assert.False(t, mr.Exists("test:regions:ids"))
}

func TestStore_SeedsThroughEngine(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	s := seed.NewSeeder(store)

	rooms, err := seed.SeedMany(ctx, s, 3, seed.New[Room]())
	require.NoError(t, err)
	assert.Same(t, rooms[0].Region, rooms[2].Region)

	ids, err := mr.List("test:rooms:ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	region, err := seed.Seed(ctx, seed.NewSeeder(reopen(t, mr)), seed.New[Region]().Behaviour(seed.MustFindExisting))
	require.NoError(t, err)
	assert.Equal(t, rooms[0].RegionID, region.ID)
}

func TestOpen_ConnectionError(t *testing.T) {
	_, err := Open(Config{Addr: "localhost:99999"})
	assert.Error(t, err)
}
