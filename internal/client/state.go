package client

import "fmt"

// State is the coordinator's position in the crossing cycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingGrant
	StateCrossing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingGrant:
		return "awaiting_grant"
	case StateCrossing:
		return "crossing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
