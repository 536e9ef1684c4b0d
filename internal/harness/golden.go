package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/onelane/internal/bridge"
)

// RenderTrace renders a result as deterministic text, one event per line.
func RenderTrace(r *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", r.Name)
	for _, ev := range r.Trace {
		buf.WriteString(formatEvent(ev))
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "final: occupancy=%d direction=%s expected=%s left=[%s] right=[%s]\n",
		r.Final.Occupancy, r.Final.Direction, orDash(r.Final.Expected),
		joinActors(r.Final.WaitingLeft), joinActors(r.Final.WaitingRight))
	return []byte(buf.String())
}

func formatEvent(ev TraceEvent) string {
	return fmt.Sprintf("%03d %s actor=%s direction=%s occupancy=%d expected=%s left=[%s] right=[%s]",
		ev.Seq, ev.Kind, orDash(ev.Actor), ev.Direction, ev.Occupancy, orDash(ev.Expected),
		joinActors(ev.WaitingLeft), joinActors(ev.WaitingRight))
}

func orDash(a bridge.ActorID) string {
	if a == "" {
		return "-"
	}
	return string(a)
}

func joinActors(actors []bridge.ActorID) string {
	parts := make([]string, len(actors))
	for i, a := range actors {
		parts[i] = string(a)
	}
	return strings.Join(parts, " ")
}

// RunWithGolden executes scenario and compares its rendered trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, RenderTrace(result))
}
