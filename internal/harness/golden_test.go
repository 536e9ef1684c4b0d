package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	for _, name := range []string{
		"end_to_end",
		"reservation_integrity",
		"disconnected_candidate",
		"starvation_bound",
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRenderTrace_Format(t *testing.T) {
	scenario := &Scenario{
		Name:        "render",
		Description: "one grant",
		Steps:       []Step{{Op: OpRequest, Actor: "A", Direction: "left"}},
	}
	result, err := Run(scenario)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(RenderTrace(result)), "\n"), "\n")
	assert.Equal(t, []string{
		"scenario: render",
		"001 granted actor=A direction=left occupancy=1 expected=- left=[] right=[]",
		"final: occupancy=1 direction=left expected=- left=[] right=[]",
	}, lines)
}
