package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDir_Fixtures(t *testing.T) {
	suite, err := RunDir("testdata/scenarios")
	require.NoError(t, err)

	assert.Equal(t, 4, suite.Total)
	assert.Equal(t, 4, suite.Passed)
	assert.Zero(t, suite.Failed)
	assert.Empty(t, suite.Failures)
}

func TestRunDir_MixedResults(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("a_pass.yaml", `
name: pass
description: "grant"
steps:
  - op: request
    actor: A
    direction: left
    expect: granted
`)
	write("b_fail.yml", `
name: fail
description: "wrong expectation"
steps:
  - op: release
    actor: A
    expect: released
`)
	write("c_broken.yaml", "name: [unterminated\n")
	write("notes.txt", "ignored")

	suite, err := RunDir(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, suite.Total)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 2, suite.Failed)
	require.Len(t, suite.Failures, 2)
	assert.Equal(t, filepath.Join(dir, "b_fail.yml"), suite.Failures[0].Path)
	assert.Equal(t, []string{"release A: expected released, got not_found"}, suite.Failures[0].Errors)
	assert.Contains(t, suite.Failures[1].Errors[0], "failed to parse YAML")
}

func TestRunDir_Empty(t *testing.T) {
	_, err := RunDir(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files")
}
