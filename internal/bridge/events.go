package bridge

// EventKind names a bridge state change.
type EventKind string

const (
	EventGranted  EventKind = "granted"
	EventQueued   EventKind = "queued"
	EventReleased EventKind = "released"
	EventPurged   EventKind = "purged"
	EventInvited  EventKind = "invited"
	EventSkipped  EventKind = "skipped" // invitation candidate had no live connection
	EventIdle     EventKind = "idle"    // both queues drained, direction reset
)

// Event describes one state change. Snapshot is the bridge state right
// after the change was applied.
type Event struct {
	Seq       int64     `json:"seq"`
	Kind      EventKind `json:"kind"`
	Actor     ActorID   `json:"actor,omitempty"`
	Direction Direction `json:"direction"`
	Snapshot  Snapshot  `json:"snapshot"`
}

// Snapshot is a consistent, read-only view of the bridge.
type Snapshot struct {
	Occupancy    int       `json:"occupancy"`
	Direction    Direction `json:"current_direction"`
	Occupants    []ActorID `json:"occupants"`
	WaitingLeft  []ActorID `json:"waiting_left"`
	WaitingRight []ActorID `json:"waiting_right"`
	Expected     ActorID   `json:"expected,omitempty"`
}

// Occupied reports whether any actor is on the lane.
func (s Snapshot) Occupied() bool {
	return s.Occupancy > 0
}

// Observer receives bridge events.
//
// Observe is called outside the bridge lock but in sequence order, so an
// implementation must return quickly: hand the event off to a queue or a
// buffered channel instead of doing I/O inline.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}
