package bridge

import "errors"

var (
	// ErrNotOccupant is returned by Release for an actor that is not on the lane.
	ErrNotOccupant = errors.New("actor is not on the bridge")

	// ErrInvalidActor is returned for an empty actor id.
	ErrInvalidActor = errors.New("invalid actor id")

	// ErrInvalidDirection is returned for a direction other than left or right.
	ErrInvalidDirection = errors.New("invalid direction")
)
