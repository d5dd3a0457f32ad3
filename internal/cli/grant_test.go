package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dhtrecords/internal/ir"
)

func TestGrantCommand_IssueListRevoke(t *testing.T) {
	path := writeConfig(t, "")

	out, err := execute(t, "-c", path, "grant", "issue", "resource-index", "index.update", "--secret", "s3cret")
	require.NoError(t, err)
	assert.Contains(t, out, "Issued grant resource-index for index.update")
	assert.Contains(t, out, "Secret: s3cret")

	out, err = execute(t, "-c", path, "grant", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "resource-index")
	assert.Contains(t, out, "active")
	assert.NotContains(t, out, "s3cret")

	out, err = execute(t, "-c", path, "grant", "revoke", "resource-index")
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked grant resource-index")

	out, err = execute(t, "-c", path, "--format", "json", "grant", "list")
	require.NoError(t, err)
	var resp struct {
		Data []ir.Grant `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.True(t, resp.Data[0].Revoked)
	assert.Empty(t, resp.Data[0].Secret)
	assert.Equal(t, "observation", resp.Data[0].Grantor)
}

func TestGrantCommand_GeneratedSecret(t *testing.T) {
	path := writeConfig(t, "")

	out, err := execute(t, "-c", path, "--format", "json", "grant", "issue", "g1", "proposal.*")
	require.NoError(t, err)

	var resp struct {
		Data ir.Grant `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data.Secret, 36)
	assert.True(t, resp.Data.Allows("proposal", "create"))
}

func TestGrantCommand_ConfiguredGrantsAreIssued(t *testing.T) {
	path := writeConfig(t, "grants:\n  - id: from-config\n    secret: cfg\n    functions: [index.update]\n")

	out, err := execute(t, "-c", path, "grant", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "from-config")

	// Reopening the partition does not issue the grant twice.
	out, err = execute(t, "-c", path, "--format", "json", "grant", "list")
	require.NoError(t, err)
	var resp struct {
		Data []ir.Grant `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data, 1)
}

func TestGrantCommand_Errors(t *testing.T) {
	path := writeConfig(t, "")

	_, err := execute(t, "-c", path, "grant", "issue", "g1", "update")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "-c", path, "grant", "issue", "g1", "index.update", "--secret", "x")
	require.NoError(t, err)
	out, err := execute(t, "-c", path, "grant", "issue", "g1", "index.update")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "already exists")

	out, err = execute(t, "-c", path, "grant", "revoke", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestClaimCommand_AddList(t *testing.T) {
	path := writeConfig(t, "")

	out, err := execute(t, "-c", path, "claim", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No claims stored.")

	out, err = execute(t, "-c", path, "claim", "add", "resource_specification_index",
		"--partition", "specification", "--secret", "abc", "--module", "index", "--function", "update")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored claim resource_specification_index on specification (index.update)")

	out, err = execute(t, "-c", path, "--format", "json", "claim", "list")
	require.NoError(t, err)
	var resp struct {
		Data []ir.Claim `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, ir.Claim{
		Partition:  "specification",
		Permission: "resource_specification_index",
		Grantor:    "specification",
		Module:     "index",
		Function:   "update",
	}, resp.Data[0])
}

func TestClaimCommand_RequiredFlags(t *testing.T) {
	path := writeConfig(t, "")

	_, err := execute(t, "-c", path, "claim", "add", "p", "--partition", "specification")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
