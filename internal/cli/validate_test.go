package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Text(t *testing.T) {
	out, err := execute(t, "validate", catalogPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Catalog valid: 2 dimensions, 2 measures, 3 subsets")
	assert.Contains(t, out, "borough")
	assert.Contains(t, out, "string (3 values), nullable")
	assert.Contains(t, out, "int [2019, 2021]")
}

func TestValidate_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", catalogPath)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"borough", "year"}, resp.Data.Dimensions)
	assert.Equal(t, []string{"killed", "injured"}, resp.Data.Measures)
	assert.Equal(t, 3, resp.Data.Subsets)
}

func TestValidate_MissingFile(t *testing.T) {
	out, err := execute(t, "validate", "/nonexistent/catalog.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [ERROR]")
}

func TestValidate_CeilingExceeded(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", catalogPath, "--max-dimensions", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFIGURATION", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "ceiling is 1")
}

func TestSubsets(t *testing.T) {
	out, err := execute(t, "subsets", catalogPath)
	require.NoError(t, err)
	assert.Equal(t, "borough\nyear\nborough__year\n", out)

	out, err = execute(t, "--format", "json", "subsets", catalogPath)
	require.NoError(t, err)
	var resp struct {
		Data SubsetsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Count)
	assert.Equal(t, []string{"borough", "year", "borough__year"}, resp.Data.Keys)
}
