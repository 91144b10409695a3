package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommand_Pass(t *testing.T) {
	out, _, err := execute(t, "test", "testdata/scenarios", "--filter", "greet")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ greet\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Failure(t *testing.T) {
	out, _, err := execute(t, "test", "testdata/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ greet\n")
	assert.Contains(t, out, "✗ wrong\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "test", "testdata/scenarios")
	require.Error(t, err)

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Scenarios, 2)
	assert.True(t, result.Scenarios[0].Pass)
	assert.False(t, result.Scenarios[1].Pass)
	assert.NotEmpty(t, result.Scenarios[1].Errors)
}

func TestTestCommand_GoldenMismatchAndUpdate(t *testing.T) {
	dir := t.TempDir()
	modelsDir := filepath.Join(dir, "models")
	scenariosDir := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(modelsDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(scenariosDir, "golden"), 0o755))
	copyFile(t, "testdata/models/greet.yaml", filepath.Join(modelsDir, "greet.yaml"))
	copyFile(t, "testdata/scenarios/greet.yaml", filepath.Join(scenariosDir, "greet.yaml"))

	goldenPath := filepath.Join(scenariosDir, "golden", "greet.golden")
	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"stale": true}`), 0o644))

	out, _, err := execute(t, "test", scenariosDir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")

	_, _, err = execute(t, "test", scenariosDir, "--update")
	require.NoError(t, err)

	want, err := os.ReadFile("testdata/scenarios/golden/greet.golden")
	require.NoError(t, err)
	got, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	_, _, err = execute(t, "test", scenariosDir)
	require.NoError(t, err)
}

func TestTestCommand_Empty(t *testing.T) {
	out, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, _, err := execute(t, "test", "testdata/nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestFindScenarioFiles(t *testing.T) {
	files, err := findScenarioFiles("testdata/scenarios", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata/scenarios", "greet.yaml"),
		filepath.Join("testdata/scenarios", "wrong.yaml"),
	}, files)

	_, err = findScenarioFiles("testdata/scenarios", "[")
	assert.Error(t, err)
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0o644))
}
