package seed

// InsertionBehaviour decides whether a build may reuse an existing entity.
// Values are ordered by strictness.
type InsertionBehaviour int

const (
	// TryFindExisting reuses a matching staged or stored entity, else creates one
	TryFindExisting InsertionBehaviour = 0
	// TryFindNew reuses a matching entity staged during this run only
	TryFindNew InsertionBehaviour = 50
	// AddNew always creates
	AddNew InsertionBehaviour = 100
	// MustFindExisting requires a match and never creates
	MustFindExisting InsertionBehaviour = 200
)

// String returns the string representation of the behaviour
func (b InsertionBehaviour) String() string {
	switch b {
	case TryFindExisting:
		return "TryFindExisting"
	case TryFindNew:
		return "TryFindNew"
	case AddNew:
		return "AddNew"
	case MustFindExisting:
		return "MustFindExisting"
	default:
		return "unknown"
	}
}

// Options controls how many entities a seed builds and how it reuses data
type Options struct {
	AmountToCreate     int
	InsertionBehaviour InsertionBehaviour
}

// DefaultOptions returns the options of a fresh seed
func DefaultOptions() Options {
	return Options{AmountToCreate: 1, InsertionBehaviour: TryFindExisting}
}

// optionsSet records which options were set explicitly so that merging two
// nested seeds only carries over deliberate choices
type optionsSet struct {
	amount    bool
	behaviour bool
}

// behaviourAt returns the behaviour used for the entities of a batch. A batch
// of several entities never collapses into existing rows unless the
// behaviour was set explicitly.
func (o Options) behaviourAt(amount int, explicit bool) InsertionBehaviour {
	if amount > 1 && !explicit && o.InsertionBehaviour == TryFindExisting {
		return AddNew
	}
	return o.InsertionBehaviour
}
