package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/onelane/internal/bridge"
)

// Scenario is one harness test.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Steps run in order against a fresh bridge.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpRequest    = "request"
	OpRelease    = "release"
	OpPurge      = "purge"
	OpDisconnect = "disconnect"
	OpBreak      = "break"
	OpStatus     = "status"
	OpSchedule   = "schedule"
)

// Step outcomes accepted by Step.Expect.
const (
	ExpectGranted         = "granted"
	ExpectQueued          = "queued"
	ExpectAlreadyCrossing = "already_crossing"
	ExpectInvalid         = "invalid"
	ExpectReleased        = "released"
	ExpectPurged          = "purged"
	ExpectNotFound        = "not_found"
)

// NoInvite is the expect_invite value asserting that schedule invited nobody.
const NoInvite = "none"

// Step is one operation.
type Step struct {
	Op        string `yaml:"op"`
	Actor     string `yaml:"actor,omitempty"`
	Direction string `yaml:"direction,omitempty"`

	// Expect is the required outcome of request, release or purge.
	Expect string `yaml:"expect,omitempty"`

	// ExpectInvite names the actor a schedule step must invite, or "none".
	ExpectInvite string `yaml:"expect_invite,omitempty"`

	// State is checked against the snapshot taken by a status step.
	State *StateExpect `yaml:"state,omitempty"`
}

func (s Step) String() string {
	switch {
	case s.Actor != "" && s.Direction != "":
		return fmt.Sprintf("%s %s %s", s.Op, s.Actor, s.Direction)
	case s.Actor != "":
		return fmt.Sprintf("%s %s", s.Op, s.Actor)
	default:
		return s.Op
	}
}

// StateExpect is a partial bridge snapshot. Nil fields are not checked;
// an empty list checks for an empty queue.
type StateExpect struct {
	Occupancy    *int     `yaml:"occupancy,omitempty"`
	Direction    *string  `yaml:"direction,omitempty"`
	Expected     *string  `yaml:"expected,omitempty"`
	Occupants    []string `yaml:"occupants,omitempty"`
	WaitingLeft  []string `yaml:"waiting_left,omitempty"`
	WaitingRight []string `yaml:"waiting_right,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Event, Actor and Direction select events (trace_contains, trace_count).
	Event     string `yaml:"event,omitempty"`
	Actor     string `yaml:"actor,omitempty"`
	Direction string `yaml:"direction,omitempty"`

	// Count is the exact number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events are "kind" or "kind:actor" selectors (trace_order).
	Events []string `yaml:"events,omitempty"`

	// State is the expected final snapshot (final_state).
	State *StateExpect `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpRequest:
		if step.Actor == "" {
			return errors.New("actor is required for request")
		}
		if step.Direction == "" {
			return errors.New("direction is required for request")
		}
		return checkExpect(step, ExpectGranted, ExpectQueued, ExpectAlreadyCrossing, ExpectInvalid)
	case OpRelease:
		if step.Actor == "" {
			return errors.New("actor is required for release")
		}
		return checkExpect(step, ExpectReleased, ExpectNotFound)
	case OpPurge:
		if step.Actor == "" {
			return errors.New("actor is required for purge")
		}
		return checkExpect(step, ExpectPurged, ExpectNotFound)
	case OpDisconnect, OpBreak:
		if step.Actor == "" {
			return fmt.Errorf("actor is required for %s", step.Op)
		}
	case OpStatus:
		if step.State == nil {
			return errors.New("state is required for status")
		}
	case OpSchedule:
	case "":
		return errors.New("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Expect != "" {
		return fmt.Errorf("expect is not supported for %s", step.Op)
	}
	return nil
}

func checkExpect(step Step, allowed ...string) error {
	if step.Expect == "" {
		return nil
	}
	for _, a := range allowed {
		if step.Expect == a {
			return nil
		}
	}
	return fmt.Errorf("expect %q is not valid for %s (want one of %v)", step.Expect, step.Op, allowed)
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return errors.New("event is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return errors.New("events list is required for trace_order")
		}
	case AssertTraceCount:
		if a.Event == "" {
			return errors.New("event is required for trace_count")
		}
		if a.Count < 0 {
			return errors.New("count must be non-negative for trace_count")
		}
	case AssertFinalState:
		if a.State == nil {
			return errors.New("state is required for final_state")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Direction != "" {
		if _, err := bridge.ParseDirection(a.Direction); err != nil {
			return err
		}
	}
	return nil
}
