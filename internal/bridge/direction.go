package bridge

import (
	"fmt"
	"strings"
)

// Direction is the travel direction of an actor or of the lane.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	// None means the lane has no committed direction.
	None Direction = "none"
)

// ParseDirection parses an actor direction. Matching is case-insensitive;
// only Left and Right are valid for actors.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Left:
		return Left, nil
	case Right:
		return Right, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// Opposite returns the other travel direction. None has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case Left:
		return Right
	case Right:
		return Left
	default:
		return None
	}
}

// Valid reports whether d is a direction an actor may travel in.
func (d Direction) Valid() bool {
	return d == Left || d == Right
}

func (d Direction) String() string {
	if d == "" {
		return string(None)
	}
	return string(d)
}

// ActorID identifies one vehicle session.
type ActorID string

// Outcome is the result of a RequestEntry call.
type Outcome int

const (
	// Granted means the actor is now on the lane.
	Granted Outcome = iota + 1
	// Queued means the actor waits in its direction's queue.
	Queued
	// AlreadyCrossing means the actor was already an occupant; nothing changed.
	AlreadyCrossing
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Queued:
		return "queued"
	case AlreadyCrossing:
		return "already_crossing"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
