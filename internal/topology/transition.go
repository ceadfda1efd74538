package topology

import "fmt"

// Transition is one membership change between two snapshots.
// The set is closed: Unchanged, Replaced and Grown.
type Transition interface {
	fmt.Stringer
	transition()
}

// Unchanged means the two snapshots hold the same identities.
type Unchanged struct{}

// Replaced means the occupant of UID changed.
type Replaced struct {
	UID      int    // UID is the slot whose occupant changed
	Previous string // Previous is the deregistered identity
	Current  string // Current is the new occupant
}

// Grown means the topology gained slots [From, To).
type Grown struct {
	From int // From is the previous size
	To   int // To is the new size
}

func (Unchanged) transition() {}
func (Replaced) transition()  {}
func (Grown) transition()     {}

func (Unchanged) String() string { return "unchanged" }

func (r Replaced) String() string {
	return fmt.Sprintf("replaced(uid=%d)", r.UID)
}

func (g Grown) String() string {
	return fmt.Sprintf("grown(%d->%d)", g.From, g.To)
}

// Diff lists the transitions from prev to cur in uid order, with growth last.
// Replacement is only looked for over the overlapping range; the new tail
// starts empty. A shrinking topology yields no transition for the lost tail.
func Diff(prev, cur []string) []Transition {
	overlap := min(len(prev), len(cur))

	var out []Transition

	for uid := 0; uid < overlap; uid++ {
		if prev[uid] != cur[uid] {
			out = append(out, Replaced{UID: uid, Previous: prev[uid], Current: cur[uid]})
		}
	}

	if len(cur) > len(prev) {
		out = append(out, Grown{From: len(prev), To: len(cur)})
	}

	if len(out) == 0 {
		return []Transition{Unchanged{}}
	}

	return out
}
