package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_Valid(t *testing.T) {
	path := writeConfig(t, "grants:\n  - id: g1\n    functions: [index.update]\n")

	out, err := execute(t, "-c", path, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "partition observation is valid")
}

func TestValidateCommand_PathArgument(t *testing.T) {
	path := writeConfig(t, "")

	out, err := execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   ValidateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "observation", resp.Data.Partition)
	assert.Equal(t, path, resp.Data.Path)
}

func TestValidateCommand_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "partition: observation\ncolour: blue\n", "colour"},
		{"bad partition name", "partition: Observation\n", "partition"},
		{"bad grant function", "partition: observation\ngrants:\n  - id: g\n    functions: [update]\n", "functions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			out, err := execute(t, "validate", path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, out, ErrCodeConfig)
		})
	}
}
