package harness

import (
	"fmt"
	"sort"

	"github.com/roach88/onelane/internal/bridge"
)

// entryLedger tracks the direction each occupant entered in, rebuilt from
// the event stream. The bridge snapshot only carries the lane direction,
// so direction exclusion is checked against this.
type entryLedger map[bridge.ActorID]bridge.Direction

func (l entryLedger) apply(ev bridge.Event) {
	switch ev.Kind {
	case bridge.EventGranted:
		l[ev.Actor] = ev.Direction
	case bridge.EventReleased, bridge.EventPurged:
		delete(l, ev.Actor)
	}
}

// checkInvariants returns one message per violated invariant.
func checkInvariants(s bridge.Snapshot, entered entryLedger) []string {
	var violations []string

	if s.Occupancy != len(s.Occupants) {
		violations = append(violations,
			fmt.Sprintf("occupancy %d does not match %d occupants", s.Occupancy, len(s.Occupants)))
	}
	if s.Occupancy > 0 && !s.Direction.Valid() {
		violations = append(violations, "occupied bridge has no direction")
	}
	if s.Expected != "" && s.Occupancy > 0 {
		violations = append(violations,
			fmt.Sprintf("reservation for %s while %d actors are on the bridge", s.Expected, s.Occupancy))
	}

	actors := make([]bridge.ActorID, 0, len(entered))
	for a := range entered {
		actors = append(actors, a)
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i] < actors[j] })
	for _, a := range actors {
		if d := entered[a]; d != s.Direction {
			violations = append(violations,
				fmt.Sprintf("occupant %s entered heading %s but the lane flows %s", a, d, s.Direction))
		}
	}

	seen := make(map[bridge.ActorID]string)
	for _, a := range s.Occupants {
		seen[a] = "bridge"
	}
	for _, q := range []struct {
		name   string
		actors []bridge.ActorID
	}{{"left queue", s.WaitingLeft}, {"right queue", s.WaitingRight}} {
		for _, a := range q.actors {
			if where, ok := seen[a]; ok {
				violations = append(violations, fmt.Sprintf("%s is in the %s and the %s", a, q.name, where))
				continue
			}
			seen[a] = q.name
		}
	}
	return violations
}
