package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/testutil"
)

// Harness executes one scenario against a fresh bridge.
type Harness struct {
	bridge    *bridge.Bridge
	scheduler *bridge.Scheduler
	directory *directory
	logger    *slog.Logger

	mu      sync.Mutex
	events  []bridge.Event
	entered entryLedger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the logger for harness progress. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// Run executes scenario and returns its result. The error is reserved for
// scenarios the harness cannot execute; failed expectations are reported
// in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	if scenario == nil {
		return nil, errors.New("nil scenario")
	}

	h := &Harness{
		directory: newDirectory(),
		logger:    testutil.DiscardLogger(),
		entered:   make(entryLedger),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.bridge = bridge.New(
		bridge.WithClock(bridge.NewClock()),
		bridge.WithLogger(h.logger),
		bridge.WithObserver(bridge.ObserverFunc(h.observe)),
	)
	h.scheduler = bridge.NewScheduler(h.bridge, h.directory, bridge.WithSchedulerLogger(h.logger))

	result := NewResult(scenario.Name)
	for i, step := range scenario.Steps {
		if err := h.execute(step, result); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step, err)
		}
		snap := h.bridge.Status()
		h.mu.Lock()
		violations := checkInvariants(snap, h.entered)
		h.mu.Unlock()
		for _, v := range violations {
			result.AddError(fmt.Sprintf("steps[%d] (%s): invariant violated: %s", i, step, v))
		}
		h.logger.Debug("step completed", "scenario", scenario.Name, "step", i, "op", step.Op, "actor", step.Actor)
	}

	result.Final = h.bridge.Status()
	h.mu.Lock()
	for _, ev := range h.events {
		result.Trace = append(result.Trace, traceEventFrom(ev))
	}
	h.mu.Unlock()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) observe(ev bridge.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	h.entered.apply(ev)
}

// execute runs one step. Expectation mismatches are recorded on result.
func (h *Harness) execute(step Step, result *Result) error {
	actor := bridge.ActorID(step.Actor)

	switch step.Op {
	case OpRequest:
		h.directory.connect(actor)
		got := ExpectInvalid
		dir, err := bridge.ParseDirection(step.Direction)
		if err == nil {
			var out bridge.Outcome
			out, err = h.bridge.RequestEntry(actor, dir)
			if err == nil {
				got = out.String()
			}
		}
		h.checkExpect(step, got, result)

	case OpRelease:
		got := ExpectReleased
		if err := h.bridge.Release(actor); err != nil {
			if !errors.Is(err, bridge.ErrNotOccupant) {
				return err
			}
			got = ExpectNotFound
		}
		h.checkExpect(step, got, result)

	case OpPurge:
		got := ExpectNotFound
		if h.bridge.Purge(actor) {
			got = ExpectPurged
		}
		h.checkExpect(step, got, result)

	case OpDisconnect:
		h.directory.disconnect(actor)

	case OpBreak:
		h.directory.breakConn(actor)

	case OpStatus:
		for _, msg := range compareState(h.bridge.Status(), step.State) {
			result.AddError(fmt.Sprintf("%s: %s", step, msg))
		}

	case OpSchedule:
		inv, ok := h.scheduler.Dispatch()
		got := NoInvite
		if ok {
			got = string(inv.Actor)
			result.Invitations = append(result.Invitations, inv.Actor)
		}
		if step.ExpectInvite != "" && step.ExpectInvite != got {
			result.AddError(fmt.Sprintf("%s: expected invitation for %s, got %s", step, step.ExpectInvite, got))
		}

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func (h *Harness) checkExpect(step Step, got string, result *Result) {
	if step.Expect != "" && step.Expect != got {
		result.AddError(fmt.Sprintf("%s: expected %s, got %s", step, step.Expect, got))
	}
}
