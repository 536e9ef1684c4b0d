package protocol

import (
	"fmt"
	"time"

	"github.com/roach88/onelane/internal/bridge"
)

// Kind is a request type or a response status.
type Kind string

const (
	// Request types.
	KindRequestAccess    Kind = "REQUEST_ACCESS"
	KindCrossingComplete Kind = "CROSSING_COMPLETE"
	KindUpdateStatus     Kind = "UPDATE_BRIDGE_STATUS"

	// Response statuses.
	KindPermissionGranted Kind = "PERMISSION_GRANTED"
	KindPermissionDenied  Kind = "PERMISSION_DENIED"
	KindError             Kind = "ERROR"
)

// IsRequest reports whether k may appear in a client request.
func (k Kind) IsRequest() bool {
	switch k {
	case KindRequestAccess, KindCrossingComplete, KindUpdateStatus:
		return true
	default:
		return false
	}
}

// Reason qualifies a response status.
type Reason string

const (
	ReasonDirectGrant     Reason = "DIRECT_GRANT"
	ReasonScheduledInvite Reason = "SCHEDULED_INVITE"
	ReasonAlreadyCrossing Reason = "ALREADY_CROSSING"
	ReasonQueued          Reason = "QUEUED"
	ReasonReleased        Reason = "RELEASED"
	ReasonStatus          Reason = "STATUS"
	ReasonNotOnBridge     Reason = "NOT_ON_BRIDGE"
	ReasonInvalidRequest  Reason = "INVALID_REQUEST"
)

// Request is a client frame as it appears on the wire.
type Request struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Type      Kind   `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewRequest builds a request stamped with now.
func NewRequest(kind Kind, id bridge.ActorID, dir bridge.Direction, now time.Time) Request {
	return Request{
		ID:        string(id),
		Direction: string(dir),
		Type:      kind,
		Timestamp: formatTime(now),
	}
}

// Response is a server frame: either the answer to a request or a pushed
// invitation.
type Response struct {
	Status            Kind             `json:"status"`
	Reason            Reason           `json:"reason"`
	Message           string           `json:"message"`
	CurrentDirection  bridge.Direction `json:"current_direction"`
	ExpectedDirection bridge.Direction `json:"expected_direction,omitempty"`
	Timestamp         string           `json:"timestamp"`
	Data              *StatusData      `json:"data,omitempty"`
}

// IsInvitation reports whether r is a scheduler push rather than a reply.
func (r Response) IsInvitation() bool {
	return r.Status == KindPermissionGranted && r.Reason == ReasonScheduledInvite
}

// StatusData is the payload of an UPDATE_BRIDGE_STATUS reply.
type StatusData struct {
	BridgeOccupied   bool             `json:"bridge_occupied"`
	CarsOnBridge     []bridge.ActorID `json:"cars_on_bridge"`
	LeftTrafficSize  int              `json:"left_traffic_size"`
	RightTrafficSize int              `json:"right_traffic_size"`
	LeftTraffic      []bridge.ActorID `json:"left_traffic"`
	RightTraffic     []bridge.ActorID `json:"right_traffic"`
	ExpectedCar      bridge.ActorID   `json:"expected_car,omitempty"`
}

// NewStatusData converts a bridge snapshot into its wire form.
// Slices are never nil so they encode as [].
func NewStatusData(s bridge.Snapshot) *StatusData {
	return &StatusData{
		BridgeOccupied:   s.Occupied(),
		CarsOnBridge:     nonNil(s.Occupants),
		LeftTrafficSize:  len(s.WaitingLeft),
		RightTrafficSize: len(s.WaitingRight),
		LeftTraffic:      nonNil(s.WaitingLeft),
		RightTraffic:     nonNil(s.WaitingRight),
		ExpectedCar:      s.Expected,
	}
}

// Granted answers a REQUEST_ACCESS that put the actor on the lane.
func Granted(outcome bridge.Outcome, actor bridge.ActorID, dir bridge.Direction, now time.Time) Response {
	reason := ReasonDirectGrant
	msg := fmt.Sprintf("%s may cross heading %s", actor, dir)
	if outcome == bridge.AlreadyCrossing {
		reason = ReasonAlreadyCrossing
		msg = fmt.Sprintf("%s is already on the bridge", actor)
	}
	return Response{
		Status:           KindPermissionGranted,
		Reason:           reason,
		Message:          msg,
		CurrentDirection: dir,
		Timestamp:        formatTime(now),
	}
}

// Queued answers a REQUEST_ACCESS that left the actor waiting.
func Queued(actor bridge.ActorID, current bridge.Direction, now time.Time) Response {
	return Response{
		Status:           KindPermissionDenied,
		Reason:           ReasonQueued,
		Message:          fmt.Sprintf("%s is waiting for its turn", actor),
		CurrentDirection: current,
		Timestamp:        formatTime(now),
	}
}

// Released acknowledges a CROSSING_COMPLETE.
func Released(actor bridge.ActorID, current bridge.Direction, now time.Time) Response {
	return Response{
		Status:           KindPermissionGranted,
		Reason:           ReasonReleased,
		Message:          fmt.Sprintf("%s has left the bridge", actor),
		CurrentDirection: current,
		Timestamp:        formatTime(now),
	}
}

// NotOnBridge answers a CROSSING_COMPLETE from an actor that holds no slot.
func NotOnBridge(actor bridge.ActorID, current bridge.Direction, now time.Time) Response {
	return Response{
		Status:           KindError,
		Reason:           ReasonNotOnBridge,
		Message:          fmt.Sprintf("%s is not on the bridge", actor),
		CurrentDirection: current,
		Timestamp:        formatTime(now),
	}
}

// Invalid rejects a frame that could not be decoded or validated.
func Invalid(err error, current bridge.Direction, now time.Time) Response {
	return Response{
		Status:           KindPermissionDenied,
		Reason:           ReasonInvalidRequest,
		Message:          err.Error(),
		CurrentDirection: current,
		Timestamp:        formatTime(now),
	}
}

// Status answers an UPDATE_BRIDGE_STATUS.
func Status(s bridge.Snapshot, now time.Time) Response {
	return Response{
		Status:           KindPermissionGranted,
		Reason:           ReasonStatus,
		Message:          "bridge status",
		CurrentDirection: s.Direction,
		Timestamp:        formatTime(now),
		Data:             NewStatusData(s),
	}
}

// Invite is the unsolicited push telling an actor the lane is reserved
// for it. The actor claims the slot with a fresh REQUEST_ACCESS.
func Invite(inv bridge.Invitation, now time.Time) Response {
	return Response{
		Status:            KindPermissionGranted,
		Reason:            ReasonScheduledInvite,
		Message:           fmt.Sprintf("bridge reserved for %s heading %s", inv.Actor, inv.Direction),
		CurrentDirection:  inv.Direction,
		ExpectedDirection: inv.Direction,
		Timestamp:         formatTime(now),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nonNil(ids []bridge.ActorID) []bridge.ActorID {
	if ids == nil {
		return []bridge.ActorID{}
	}
	return ids
}
