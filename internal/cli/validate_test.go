package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	out, _, err := execute(t, "validate", "testdata/models")
	require.NoError(t, err)
	assert.Equal(t, "✓ All 3 model(s) valid\n", out)
}

func TestValidate_ValidJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "validate", "testdata/models")
	require.NoError(t, err)

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.Models)
}

func TestValidate_StructuralErrorJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "validate", "testdata/broken")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E201", resp.Error.Code)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "broken", result.Errors[0].Model)
}

func TestValidate_WarningsPassUnlessStrict(t *testing.T) {
	out, _, err := execute(t, "validate", "testdata/degraded")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All 1 model(s) valid")
	assert.Contains(t, out, "[E210]")

	out, _, err = execute(t, "validate", "--strict", "testdata/degraded")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
}

func TestValidate_MissingPath(t *testing.T) {
	out, _, err := execute(t, "validate", "/nonexistent/models")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "path not found")
}
