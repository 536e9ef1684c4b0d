package harness

import "github.com/roach88/onelane/internal/bridge"

// TraceEvent is one bridge event as seen by the harness.
type TraceEvent struct {
	Seq          int64            `json:"seq"`
	Kind         bridge.EventKind `json:"kind"`
	Actor        bridge.ActorID   `json:"actor,omitempty"`
	Direction    bridge.Direction `json:"direction"`
	Occupancy    int              `json:"occupancy"`
	WaitingLeft  []bridge.ActorID `json:"waiting_left"`
	WaitingRight []bridge.ActorID `json:"waiting_right"`
	Expected     bridge.ActorID   `json:"expected,omitempty"`
}

func traceEventFrom(ev bridge.Event) TraceEvent {
	return TraceEvent{
		Seq:          ev.Seq,
		Kind:         ev.Kind,
		Actor:        ev.Actor,
		Direction:    ev.Direction,
		Occupancy:    ev.Snapshot.Occupancy,
		WaitingLeft:  ev.Snapshot.WaitingLeft,
		WaitingRight: ev.Snapshot.WaitingRight,
		Expected:     ev.Snapshot.Expected,
	}
}

// Result is the outcome of a scenario run.
type Result struct {
	// Name is the scenario name.
	Name string `json:"name"`

	// Pass is true when every step expectation, invariant check and
	// assertion held.
	Pass bool `json:"pass"`

	// Trace holds every bridge event in seq order.
	Trace []TraceEvent `json:"trace"`

	// Invitations lists the actors invited by schedule steps, in order.
	Invitations []bridge.ActorID `json:"invitations"`

	// Final is the bridge snapshot after the last step.
	Final bridge.Snapshot `json:"final"`

	// Errors are human-readable failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:        name,
		Pass:        true,
		Trace:       []TraceEvent{},
		Invitations: []bridge.ActorID{},
		Errors:      []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
