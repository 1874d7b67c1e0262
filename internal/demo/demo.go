// Package demo is a small booking domain with registered seeds and default
// fixtures. The CLI seeds it into the configured store.
package demo

import (
	"fmt"
	"reflect"
	"time"

	"github.com/conduit-lang/seedling/internal/fixtures"
	"github.com/conduit-lang/seedling/internal/seed"
	"github.com/conduit-lang/seedling/internal/seed/registry"
)

// Region groups rooms
type Region struct {
	ID   int
	Code string
	Name string
}

// Room is a bookable room in a region
type Room struct {
	ID         int
	Name       string
	Capacity   int
	RegionID   int
	Region     *Region
	Facilities []*Facility
}

// Facility is equipment available in a room
type Facility struct {
	ID     int
	Name   string
	Notes  *string
	RoomID int
	Room   *Room
}

// Person books rooms
type Person struct {
	ID    string
	Name  string
	Email string
}

// Booking reserves a room, optionally for a person
type Booking struct {
	ID       int
	Starts   time.Time
	Hours    int
	RoomID   int
	Room     *Room
	PersonID *string
	Person   *Person
}

// Tag labels a room
type Tag struct {
	ID     int
	Label  string
	RoomID *int
	Room   *Room
}

var labels = []string{"quiet", "bright", "accessible"}

var epoch = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

// RegionSeed names regions R1, R2, ...
func RegionSeed() *seed.EntitySeed[Region] {
	return seed.New[Region]().
		WithIndexed("Code", func(i int) any { return fmt.Sprintf("R%d", i+1) }).
		WithIndexed("Name", func(i int) any { return fmt.Sprintf("Region %d", i+1) })
}

// RoomSeed builds rooms with two facilities each
func RoomSeed() *seed.EntitySeed[Room] {
	return seed.New[Room]().
		WithIndexed("Name", func(i int) any { return fmt.Sprintf("Room %d", i+1) }).
		WithIndexed("Capacity", func(i int) any { return 4 + 2*i }).
		WithChildren("Facilities", 2)
}

// FacilitySeed names facilities after their position
func FacilitySeed() *seed.EntitySeed[Facility] {
	return seed.New[Facility]().
		WithIndexed("Name", func(i int) any { return fmt.Sprintf("Facility %d", i+1) })
}

// PersonSeed builds people with distinct emails
func PersonSeed() *seed.EntitySeed[Person] {
	return seed.New[Person]().
		WithIndexed("Name", func(i int) any { return fmt.Sprintf("Person %d", i+1) }).
		WithIndexed("Email", func(i int) any { return fmt.Sprintf("person%d@example.com", i+1) })
}

// BookingSeed books consecutive days for existing people
func BookingSeed() *seed.EntitySeed[Booking] {
	return seed.New[Booking]().
		WithIndexed("Starts", func(i int) any { return epoch.AddDate(0, 0, i) }).
		With("Hours", 2).
		WithExisting("Person")
}

// TagSeed labels rooms
func TagSeed() *seed.EntitySeed[Tag] {
	return seed.New[Tag]().
		WithIndexed("Label", func(i int) any { return labels[i%len(labels)] }).
		WithExisting("Room")
}

// Register adds the demo seeds to r
func Register(r *registry.Registry) error {
	for _, err := range []error{
		registry.Register(r, "demo", RegionSeed),
		registry.Register(r, "demo", RoomSeed),
		registry.Register(r, "demo", FacilitySeed),
		registry.Register(r, "demo", PersonSeed),
		registry.Register(r, "demo", BookingSeed),
		registry.Register(r, "demo", TagSeed),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Fixtures returns the default fixtures of the demo domain. Rooms create
// their own facilities.
func Fixtures() []fixtures.Fixture {
	return []fixtures.Fixture{
		fixtures.New(BookingSeed, fixtures.DependsOn[Room](), fixtures.DependsOn[Person](), fixtures.CountRange(3, 6)),
		fixtures.New(TagSeed, fixtures.DependsOn[Room](), fixtures.Count(3)),
		fixtures.New(RoomSeed, fixtures.DependsOn[Region](), fixtures.Count(3)),
		fixtures.New(PersonSeed, fixtures.Count(2)),
		fixtures.New(RegionSeed, fixtures.Count(2)),
	}
}

// Types returns the demo entity types, parents first
func Types() []reflect.Type {
	return []reflect.Type{
		reflect.TypeOf(Region{}),
		reflect.TypeOf(Room{}),
		reflect.TypeOf(Facility{}),
		reflect.TypeOf(Person{}),
		reflect.TypeOf(Booking{}),
		reflect.TypeOf(Tag{}),
	}
}
