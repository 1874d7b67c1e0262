package path

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type region struct {
	ID   int
	Name string
}

type room struct {
	ID       int
	Name     string
	RegionID int
	Region   *region
	Nickname *string
}

type facility struct {
	ID     int
	RoomID int
	Room   *room
	Tags   []string
	secret string
}

var facilityType = reflect.TypeOf(facility{})

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{name: "single hop", expr: "RoomID"},
		{name: "nested navigation", expr: "Room.Region.Name"},
		{name: "empty", expr: " ", wantErr: "empty expression"},
		{name: "empty segment", expr: "Room..Name", wantErr: "empty segment"},
		{name: "unknown field", expr: "Room.Floor", wantErr: "room has no field Floor"},
		{name: "unexported", expr: "secret", wantErr: "not exported"},
		{name: "through scalar", expr: "RoomID.Value", wantErr: "not a navigation"},
		{name: "through slice", expr: "Tags.Len", wantErr: "not a navigation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(facilityType, tt.expr)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Contains(t, err.Error(), "path.facility")
				var pathErr *Error
				assert.True(t, errors.As(err, &pathErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expr, p.String())
		})
	}
}

func TestParse_PointerRoot(t *testing.T) {
	p, err := Parse(reflect.TypeOf(&facility{}), "Room.Name")
	require.NoError(t, err)
	assert.Equal(t, facilityType, p.Root())
	assert.Equal(t, reflect.TypeOf(""), p.Type())
}

func TestSplitAndJoin(t *testing.T) {
	p := MustParse(facilityType, "Room.Region.Name")

	parts := p.Split()
	require.Len(t, parts, 3)
	assert.Equal(t, facilityType, parts[0].Root())
	assert.Equal(t, reflect.TypeOf(room{}), parts[1].Root())
	assert.Equal(t, reflect.TypeOf(region{}), parts[2].Root())

	joined, err := Join(parts...)
	require.NoError(t, err)
	assert.True(t, joined.Equal(p))

	_, err = Join(parts[0], parts[2])
	assert.Error(t, err)
}

func TestHeadTailParent(t *testing.T) {
	p := MustParse(facilityType, "Room.Region.Name")

	assert.Equal(t, "Room", p.Head().String())
	assert.Equal(t, "Region.Name", p.Tail().String())
	assert.Equal(t, reflect.TypeOf(room{}), p.Tail().Root())
	assert.Equal(t, "Room.Region", p.Parent().String())
	assert.True(t, p.HasPrefix(p.Parent()))
	assert.False(t, p.Parent().HasPrefix(p))
	assert.True(t, p.Parent().IsNavigation())
}

func TestOwnerGetSet(t *testing.T) {
	f := &facility{Room: &room{Region: &region{Name: "north"}}}
	p := MustParse(facilityType, "Room.Region.Name")

	owner, err := p.Owner(reflect.ValueOf(f))
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(region{}), owner.Type())

	require.NoError(t, p.Set(reflect.ValueOf(f), reflect.ValueOf("south")))
	assert.Equal(t, "south", f.Room.Region.Name)

	v, err := p.Get(reflect.ValueOf(f))
	require.NoError(t, err)
	assert.Equal(t, "south", v.String())
}

func TestOwner_NilHop(t *testing.T) {
	f := &facility{Room: &room{}}
	p := MustParse(facilityType, "Room.Region.Name")

	_, err := p.Owner(reflect.ValueOf(f))
	var nilErr *NilHopError
	require.True(t, errors.As(err, &nilErr))
	assert.Equal(t, "Region", nilErr.Property)
	assert.Contains(t, err.Error(), "path.room.Region is nil")
}

func TestSet_Conversions(t *testing.T) {
	r := &room{}

	require.NoError(t, MustParse(reflect.TypeOf(room{}), "RegionID").Set(reflect.ValueOf(r), reflect.ValueOf(int64(7))))
	assert.Equal(t, 7, r.RegionID)

	require.NoError(t, MustParse(reflect.TypeOf(room{}), "Nickname").Set(reflect.ValueOf(r), reflect.ValueOf("nick")))
	require.NotNil(t, r.Nickname)
	assert.Equal(t, "nick", *r.Nickname)

	require.NoError(t, MustParse(reflect.TypeOf(room{}), "Nickname").Set(reflect.ValueOf(r), reflect.Value{}))
	assert.Nil(t, r.Nickname)

	err := MustParse(reflect.TypeOf(room{}), "Name").Set(reflect.ValueOf(r), reflect.ValueOf(65))
	assert.Error(t, err, "int must not convert to string")
}

func TestNavigation(t *testing.T) {
	nav, ok := MustParse(facilityType, "Room.RegionID").Navigation()
	require.True(t, ok)
	assert.Equal(t, "Room.Region", nav.String())
	assert.True(t, nav.IsNavigation())

	_, ok = MustParse(facilityType, "Room.Name").Navigation()
	assert.False(t, ok)

	_, ok = MustParse(facilityType, "ID").Navigation()
	assert.False(t, ok)
}

func TestIsForeignKeyFor(t *testing.T) {
	assert.True(t, IsForeignKeyFor("RoomID", "Room"))
	assert.True(t, IsForeignKeyFor("RoomId", "Room"))
	assert.False(t, IsForeignKeyFor("Room", "Room"))
}

func TestIsNullable(t *testing.T) {
	assert.True(t, IsNullable(reflect.TypeOf(&room{})))
	assert.True(t, IsNullable(reflect.TypeOf([]string{})))
	assert.False(t, IsNullable(reflect.TypeOf("")))
	assert.False(t, IsNullable(reflect.TypeOf(room{})))
}

func TestLookup(t *testing.T) {
	f := &facility{Room: &room{Name: "lobby"}}

	v, err := Lookup(f, "Room.Name")
	require.NoError(t, err)
	assert.Equal(t, "lobby", v.String())

	_, err = Lookup(f, "Room.Region.Name")
	assert.Error(t, err)
}
