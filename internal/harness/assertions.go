package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/onelane/internal/bridge"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
		}
	}
	return buf.String()
}

// selector matches trace events. Empty fields match anything.
type selector struct {
	kind      bridge.EventKind
	actor     bridge.ActorID
	direction bridge.Direction
}

// parseSelector reads "kind" or "kind:actor".
func parseSelector(s string) selector {
	kind, actor, _ := strings.Cut(s, ":")
	return selector{kind: bridge.EventKind(kind), actor: bridge.ActorID(actor)}
}

func selectorFor(a Assertion) selector {
	sel := selector{kind: bridge.EventKind(a.Event), actor: bridge.ActorID(a.Actor)}
	if a.Direction != "" {
		sel.direction, _ = bridge.ParseDirection(a.Direction)
	}
	return sel
}

func (s selector) matches(ev TraceEvent) bool {
	if s.kind != "" && ev.Kind != s.kind {
		return false
	}
	if s.actor != "" && ev.Actor != s.actor {
		return false
	}
	if s.direction != "" && ev.Direction != s.direction {
		return false
	}
	return true
}

func (s selector) String() string {
	var parts []string
	parts = append(parts, string(s.kind))
	if s.actor != "" {
		parts = append(parts, "actor="+string(s.actor))
	}
	if s.direction != "" {
		parts = append(parts, "direction="+string(s.direction))
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that at least one event matches.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	sel := selectorFor(a)
	for _, ev := range trace {
		if sel.matches(ev) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: sel.String(),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the selectors match events in order.
// Other events may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for i, raw := range a.Events {
		sel := parseSelector(raw)
		found := false
		for pos < len(trace) {
			ev := trace[pos]
			pos++
			if sel.matches(ev) {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("%q not found", raw)
			if i > 0 {
				actual = fmt.Sprintf("%q not found after %q", raw, a.Events[i-1])
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   actual,
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching events.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	sel := selectorFor(a)
	count := 0
	for _, ev := range trace {
		if sel.matches(ev) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, sel),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState compares the final snapshot with a.State.
func assertFinalState(final bridge.Snapshot, a Assertion) error {
	diffs := compareState(final, a.State)
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: "final state to match",
		Actual:   strings.Join(diffs, "; "),
	}
}

// compareState returns one message per field of want that s does not match.
func compareState(s bridge.Snapshot, want *StateExpect) []string {
	if want == nil {
		return nil
	}
	var diffs []string
	if want.Occupancy != nil && *want.Occupancy != s.Occupancy {
		diffs = append(diffs, fmt.Sprintf("occupancy = %d, want %d", s.Occupancy, *want.Occupancy))
	}
	if want.Direction != nil && *want.Direction != string(s.Direction) {
		diffs = append(diffs, fmt.Sprintf("direction = %s, want %s", s.Direction, *want.Direction))
	}
	if want.Expected != nil && *want.Expected != string(s.Expected) {
		diffs = append(diffs, fmt.Sprintf("expected = %q, want %q", s.Expected, *want.Expected))
	}
	diffs = appendListDiff(diffs, "occupants", s.Occupants, want.Occupants)
	diffs = appendListDiff(diffs, "waiting_left", s.WaitingLeft, want.WaitingLeft)
	diffs = appendListDiff(diffs, "waiting_right", s.WaitingRight, want.WaitingRight)
	return diffs
}

func appendListDiff(diffs []string, field string, got []bridge.ActorID, want []string) []string {
	if want == nil {
		return diffs
	}
	have := make([]string, len(got))
	for i, a := range got {
		have[i] = string(a)
	}
	if !slices.Equal(have, want) {
		diffs = append(diffs, fmt.Sprintf("%s = %v, want %v", field, have, want))
	}
	return diffs
}

// EvaluateAssertions evaluates every assertion against result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result.Final, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
