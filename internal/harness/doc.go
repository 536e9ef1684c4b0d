// Package harness runs YAML scenarios against an in-process bridge.
//
// A scenario drives a bridge.Bridge and its bridge.Scheduler through a
// list of steps, checks the admission invariants after every step, and
// evaluates assertions over the resulting event trace and final state.
// No sockets are involved: actors are entries in a recording directory,
// so invitations are captured instead of written to a connection.
//
// # Scenario Format
//
//	name: end_to_end
//	description: "Opposite direction is served first once the lane drains"
//	steps:
//	  - op: request
//	    actor: A1
//	    direction: left
//	    expect: granted
//	  - op: request
//	    actor: A2
//	    direction: right
//	    expect: queued
//	  - op: release
//	    actor: A1
//	    expect: released
//	  - op: schedule
//	    expect_invite: A2
//	assertions:
//	  - type: final_state
//	    state: { occupancy: 0, direction: right, expected: A2 }
//	  - type: trace_order
//	    events: ["granted:A1", "queued:A2", "invited:A2"]
//
// # Step Operations
//
//   - request: REQUEST_ACCESS for actor in direction; connects the actor
//   - release: CROSSING_COMPLETE for actor
//   - purge: drop every trace of actor, as a closed connection does
//   - disconnect: actor loses its live connection but keeps its state
//   - break: actor stays registered but its next invitation fails
//   - status: check the snapshot against the step's state block
//   - schedule: run one synchronous scheduler dispatch
//
// # Assertion Types
//
//   - final_state: occupancy, direction, reservation and queue contents
//   - trace_contains: an event with the given kind, actor and direction
//   - trace_order: selectors matched in order, gaps allowed
//   - trace_count: exact number of matching events
//
// Traces are deterministic: sequence numbers come from a fresh logical
// clock per run, so RenderTrace output can be compared against golden
// files.
package harness
