package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/onelane/internal/bridge"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Kind: bridge.EventGranted, Actor: "A", Direction: bridge.Left, Occupancy: 1},
		{Seq: 2, Kind: bridge.EventQueued, Actor: "B", Direction: bridge.Right, Occupancy: 1},
		{Seq: 3, Kind: bridge.EventReleased, Actor: "A", Direction: bridge.Left},
		{Seq: 4, Kind: bridge.EventInvited, Actor: "B", Direction: bridge.Right, Expected: "B"},
		{Seq: 5, Kind: bridge.EventGranted, Actor: "B", Direction: bridge.Right, Occupancy: 1},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Event: "invited", Actor: "B"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Event: "granted", Direction: "RIGHT"}))

	err := assertTraceContains(trace, Assertion{Event: "invited", Actor: "A"})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Equal(t, "invited actor=A", aerr.Expected)
	assert.Equal(t, "not found in trace", aerr.Actual)
	assert.Contains(t, err.Error(), "004 invited actor=B")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Events: []string{"granted:A", "invited:B", "granted:B"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Events: []string{"granted", "granted"}}))

	err := assertTraceOrder(trace, Assertion{Events: []string{"invited:B", "queued:B"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"queued:B" not found after "invited:B"`)

	err = assertTraceOrder(trace, Assertion{Events: []string{"purged"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"purged" not found`)

	err = assertTraceOrder(trace, Assertion{Events: []string{"granted", "granted", "granted"}})
	assert.Error(t, err, "each selector consumes its match")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "granted", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "granted", Actor: "B", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "purged", Count: 0}))

	err := assertTraceCount(trace, Assertion{Event: "granted", Direction: "left", Count: 2})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "2 occurrences of granted direction=left", aerr.Expected)
	assert.Equal(t, "1 occurrences", aerr.Actual)
}

func TestAssertFinalState(t *testing.T) {
	final := bridge.Snapshot{
		Occupancy:    1,
		Direction:    bridge.Right,
		Occupants:    []bridge.ActorID{"B"},
		WaitingLeft:  []bridge.ActorID{"C", "D"},
		WaitingRight: []bridge.ActorID{},
	}

	assert.NoError(t, assertFinalState(final, Assertion{State: &StateExpect{
		Occupancy:    intPtr(1),
		Direction:    strPtr("right"),
		Expected:     strPtr(""),
		WaitingLeft:  []string{"C", "D"},
		WaitingRight: []string{},
	}}))

	err := assertFinalState(final, Assertion{State: &StateExpect{
		Direction:   strPtr("left"),
		WaitingLeft: []string{"D", "C"},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direction = right, want left")
	assert.Contains(t, err.Error(), "waiting_left = [C D], want [D C]")
}

func TestEvaluateAssertions_CollectsEveryFailure(t *testing.T) {
	result := NewResult("eval")
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Event: "granted"},
		{Type: AssertTraceCount, Event: "granted", Count: 7},
		{Type: AssertFinalState, State: &StateExpect{Occupancy: intPtr(3)}},
		{Type: "bogus"},
	})

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], "occupancy = 0, want 3")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}
