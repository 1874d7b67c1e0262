// Package seed builds consistent entity graphs for tests.
//
// An EntitySeed[T] describes how one T is built: its options, the
// customisations overriding single properties or navigations, and explicit
// prerequisites. Building resolves every required navigation (sharing one
// related entity across a batch unless told otherwise), reuses existing
// entities when the insertion behaviour allows it, and stages everything in
// a Repository that is saved once per entry point call.
//
//	room := seed.New[Room]().With("Region.Code", "EU")
//	facilities, err := seed.SeedMany(ctx, seeder, 3, seed.New[Facility]().WithNew("Room", room))
package seed
