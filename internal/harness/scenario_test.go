package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "One partition, one call"
partitions:
  - partition: observation
steps:
  - partition: observation
    call: proposal.list
`

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, "One partition, one call", scenario.Description)
	require.Len(t, scenario.Partitions, 1)
	assert.Equal(t, "observation", scenario.Partitions[0].Partition)
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, "proposal.list", scenario.Steps[0].Call)
	assert.Nil(t, scenario.Steps[0].Expect)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}

func TestParseScenario_PartitionConfig(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: configured
description: "Partition configuration is decoded in place"
partitions:
  - partition: specification
    call_timeout: 2s
    modules:
      economic_resource: resources
    grants:
      - id: g1
        secret: s1
        functions: [index.update]
    claims:
      - partition: observation
        permission: p
        grantor: observation
        secret: s2
        module: index
        function: update
steps:
  - partition: specification
    call: resources.list
`))
	require.NoError(t, err)

	cfg := scenario.Partitions[0]
	assert.Equal(t, "2s", cfg.CallTimeout.String())
	assert.Equal(t, "resources", cfg.Modules["economic_resource"])
	require.Len(t, cfg.Grants, 1)
	assert.Equal(t, []string{"index.update"}, cfg.Grants[0].Functions)
	require.Len(t, cfg.Claims, 1)
	assert.Equal(t, "p", cfg.Claims[0].Permission)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown field",
			yaml: `
name: x
description: d
partitions: [{partition: a}]
step:
  - {partition: a, call: m.f}
`,
			wantErr: "field step not found",
		},
		{
			name: "unknown config field",
			yaml: `
name: x
description: d
partitions: [{partition: a, grant: []}]
steps: [{partition: a, call: m.f}]
`,
			wantErr: "field grant not found",
		},
		{
			name:    "missing name",
			yaml:    "description: d\npartitions: [{partition: a}]\nsteps: [{partition: a, call: m.f}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: x\npartitions: [{partition: a}]\nsteps: [{partition: a, call: m.f}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no partitions",
			yaml:    "name: x\ndescription: d\nsteps: [{partition: a, call: m.f}]\n",
			wantErr: "partitions list is required",
		},
		{
			name:    "no steps",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "duplicate partition",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}, {partition: a}]\nsteps: [{partition: a, call: m.f}]\n",
			wantErr: `duplicate partition "a"`,
		},
		{
			name:    "unknown step partition",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{partition: b, call: m.f}]\n",
			wantErr: `steps[0]: unknown partition "b"`,
		},
		{
			name:    "call without function",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{partition: a, call: list}]\n",
			wantErr: "call must be module.function",
		},
		{
			name:    "from without permission",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}, {partition: b}]\nsteps: [{partition: a, from: b}]\n",
			wantErr: "permission is required with from",
		},
		{
			name:    "permission without from",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{partition: a, call: m.f, permission: p}]\n",
			wantErr: "permission requires from",
		},
		{
			name:    "disconnect unknown partition",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{disconnect: b}]\n",
			wantErr: `unknown partition "b"`,
		},
		{
			name:    "disconnect with call",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{disconnect: a, call: m.f}]\n",
			wantErr: "disconnect takes no call fields",
		},
		{
			name:    "unknown outcome",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{partition: a, call: m.f, expect: {outcome: maybe}}]\n",
			wantErr: `unknown outcome "maybe"`,
		},
		{
			name:    "save on failure",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{partition: a, call: m.f, expect: {outcome: network_error}, save: {v: id}}]\n",
			wantErr: "save requires outcome ok",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{partition: a, call: m.f}]\nassertions: [{type: final_state}]\n",
			wantErr: `unknown assertion type "final_state"`,
		},
		{
			name:    "trace_order without calls",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{partition: a, call: m.f}]\nassertions: [{type: trace_order}]\n",
			wantErr: "calls list is required for trace_order",
		},
		{
			name:    "index_targets without relation",
			yaml:    "name: x\ndescription: d\npartitions: [{partition: a}]\nsteps: [{partition: a, call: m.f}]\nassertions: [{type: index_targets, partition: a, base: x}]\n",
			wantErr: "base and relation are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
