package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTest_AllPass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quick.yaml", passingScenario)
	writeFile(t, dir, "notes.txt", "not a scenario")

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ quick")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_Failure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quick.yaml", passingScenario)
	writeFile(t, dir, "broken.yaml", failingScenario)

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTest_LoadErrorIsAFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yml", "name: bad\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ bad.yml")
	assert.Contains(t, out, "load error")
}

func TestTest_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quick.yaml", passingScenario)
	writeFile(t, dir, "broken.yaml", failingScenario)

	out, err := execute(t, "test", dir, "--filter", "q*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTest_NoScenarios(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_MissingDirectory(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quick.yaml", passingScenario)
	writeFile(t, dir, "broken.yaml", failingScenario)

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)

	// Files run in name order.
	assert.Equal(t, "broken", resp.Data.Scenarios[0].Name)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Equal(t, "quick", resp.Data.Scenarios[1].Name)
	assert.Len(t, resp.Data.Scenarios[1].Digest, 64)
}

func TestTest_Golden(t *testing.T) {
	dir := t.TempDir()
	golden := filepath.Join(dir, "golden")
	writeFile(t, dir, "quick.yaml", passingScenario)

	out, err := execute(t, "test", dir, "--golden", golden, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ quick (golden updated)")

	data, err := os.ReadFile(filepath.Join(golden, "quick.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "state starting from stopped\n")

	_, err = execute(t, "test", dir, "--golden", golden)
	require.NoError(t, err)

	writeFile(t, golden, "quick.golden", "state started from stopped\n")
	out, err = execute(t, "test", dir, "--golden", golden)
	require.Error(t, err)
	assert.Contains(t, out, `golden mismatch at line 1: got "state starting from stopped", want "state started from stopped"`)
}

func TestTest_UpdateRequiresGolden(t *testing.T) {
	_, err := execute(t, "test", t.TempDir(), "--update")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--update requires --golden")
}
