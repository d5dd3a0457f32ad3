package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dhtrecords/internal/config"
)

// Scenario defines a cluster, the calls made against it and what must hold
// afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Partitions configures one node each. data_dir is ignored; every node
	// gets a directory under the run's data directory.
	Partitions []config.Config `yaml:"partitions"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and index state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action against the cluster.
type Step struct {
	// Partition is the partition called.
	Partition string `yaml:"partition,omitempty"`

	// Call is "module.function" for a direct call on Partition.
	Call string `yaml:"call,omitempty"`

	// From and Permission make a capability-checked call on Partition from
	// another partition, using the claim From holds for Permission.
	From       string `yaml:"from,omitempty"`
	Permission string `yaml:"permission,omitempty"`

	// Payload is sent as JSON. Nil sends {}.
	Payload map[string]any `yaml:"payload,omitempty"`

	// Disconnect and Reconnect cut a partition off the mesh and restore it.
	Disconnect string `yaml:"disconnect,omitempty"`
	Reconnect  string `yaml:"reconnect,omitempty"`

	// Expect checks the call's outcome. Nil expects outcome ok.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Save maps variable names to dotted paths into the response payload.
	Save map[string]string `yaml:"save,omitempty"`
}

// ExpectClause specifies the expected outcome of a call.
type ExpectClause struct {
	// Outcome is ok, unauthorized, network_error or not_configured.
	Outcome string `yaml:"outcome"`

	// Error must be a substring of the failure message.
	Error string `yaml:"error,omitempty"`

	// Result maps dotted response paths to expected values.
	// This is a subset match; unlisted fields are not checked.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or index state after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Call is "module.function" or a permission (trace_contains, trace_count).
	Call string `yaml:"call,omitempty"`

	// Partition narrows trace_contains and selects the node for index_targets.
	Partition string `yaml:"partition,omitempty"`

	// Outcome narrows trace_contains.
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Calls is the expected call order (trace_order).
	Calls []string `yaml:"calls,omitempty"`

	// Base, Relation and Targets describe an index read (index_targets).
	// Targets are compared as a set.
	Base     string   `yaml:"base,omitempty"`
	Relation string   `yaml:"relation,omitempty"`
	Targets  []string `yaml:"targets,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertIndexTargets  = "index_targets"
)

// Outcome names used in expectations and traces. The first three are the
// RPC outcomes; not_configured is raised on the caller side.
const (
	OutcomeOK            = "ok"
	OutcomeUnauthorized  = "unauthorized"
	OutcomeNetworkError  = "network_error"
	OutcomeNotConfigured = "not_configured"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Unknown fields are rejected, including inside partition configs.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Partitions) == 0 {
		return fmt.Errorf("partitions list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	known := make(map[string]bool, len(s.Partitions))
	for i, p := range s.Partitions {
		if p.Partition == "" {
			return fmt.Errorf("partitions[%d]: partition is required", i)
		}
		if known[p.Partition] {
			return fmt.Errorf("partitions[%d]: duplicate partition %q", i, p.Partition)
		}
		known[p.Partition] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, known); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, known); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step, known map[string]bool) error {
	switch {
	case st.Disconnect != "" || st.Reconnect != "":
		target := st.Disconnect + st.Reconnect
		if st.Disconnect != "" && st.Reconnect != "" {
			return fmt.Errorf("steps[%d]: disconnect and reconnect are exclusive", index)
		}
		if st.Call != "" || st.Permission != "" || st.Expect != nil || len(st.Save) > 0 {
			return fmt.Errorf("steps[%d]: %s takes no call fields", index, kindOf(st))
		}
		if !known[target] {
			return fmt.Errorf("steps[%d]: unknown partition %q", index, target)
		}
		return nil
	case st.Partition == "":
		return fmt.Errorf("steps[%d]: partition is required", index)
	case !known[st.Partition]:
		return fmt.Errorf("steps[%d]: unknown partition %q", index, st.Partition)
	}

	if st.From != "" {
		if !known[st.From] {
			return fmt.Errorf("steps[%d]: unknown partition %q", index, st.From)
		}
		if st.Permission == "" {
			return fmt.Errorf("steps[%d]: permission is required with from", index)
		}
		if st.Call != "" {
			return fmt.Errorf("steps[%d]: call and from are exclusive", index)
		}
	} else {
		if _, _, ok := strings.Cut(st.Call, "."); !ok {
			return fmt.Errorf("steps[%d]: call must be module.function, got %q", index, st.Call)
		}
		if st.Permission != "" {
			return fmt.Errorf("steps[%d]: permission requires from", index)
		}
	}

	if st.Expect != nil {
		switch st.Expect.Outcome {
		case OutcomeOK, OutcomeUnauthorized, OutcomeNetworkError, OutcomeNotConfigured:
		case "":
			return fmt.Errorf("steps[%d].expect: outcome is required", index)
		default:
			return fmt.Errorf("steps[%d].expect: unknown outcome %q", index, st.Expect.Outcome)
		}
		if len(st.Save) > 0 && st.Expect.Outcome != OutcomeOK {
			return fmt.Errorf("steps[%d]: save requires outcome ok", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, known map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertIndexTargets:
		if !known[a.Partition] {
			return fmt.Errorf("assertions[%d]: unknown partition %q for index_targets", index, a.Partition)
		}
		if a.Base == "" || a.Relation == "" {
			return fmt.Errorf("assertions[%d]: base and relation are required for index_targets", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func kindOf(st *Step) string {
	if st.Disconnect != "" {
		return "disconnect"
	}
	return "reconnect"
}
