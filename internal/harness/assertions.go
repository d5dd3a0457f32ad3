package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/dhtrecords/internal/indexes"
	"github.com/roach88/dhtrecords/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describe(event))
		}
	}
	return buf.String()
}

func describe(e TraceEvent) string {
	switch e.Type {
	case EventCall:
		if e.From != "" {
			return fmt.Sprintf("%s -> %s %s: %s", e.From, e.Partition, e.Call, e.Outcome)
		}
		return fmt.Sprintf("%s %s: %s", e.Partition, e.Call, e.Outcome)
	default:
		return e.Type + " " + e.Partition
	}
}

// assertTraceContains checks if the trace contains a call matching the
// assertion's call, and its partition and outcome when given.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type != EventCall || event.Call != assertion.Call {
			continue
		}
		if assertion.Partition != "" && event.Partition != assertion.Partition {
			continue
		}
		if assertion.Outcome != "" && event.Outcome != assertion.Outcome {
			continue
		}
		return nil
	}

	expected := "call " + assertion.Call
	if assertion.Partition != "" {
		expected += " on " + assertion.Partition
	}
	if assertion.Outcome != "" {
		expected += " with outcome " + assertion.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if calls appear in the specified order.
// Calls don't need to be consecutive (intervening calls are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// First position of each expected call, 1-indexed.
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventCall {
			continue
		}
		if slices.Contains(assertion.Calls, event.Call) && positions[event.Call] == 0 {
			positions[event.Call] = i + 1
		}
	}

	for _, call := range assertion.Calls {
		if positions[call] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all calls present: %v", assertion.Calls),
				Actual:   fmt.Sprintf("missing call: %s", call),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Calls); i++ {
		prev := assertion.Calls[i-1]
		curr := assertion.Calls[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("calls in order: %v", assertion.Calls),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the call appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventCall && event.Call == assertion.Call {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Call),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertIndexTargets reads an index on a partition and compares the
// targets, as a set, with the expected ones.
func assertIndexTargets(actx *AssertionContext, assertion Assertion) error {
	n, ok := actx.Harness.Node(assertion.Partition)
	if !ok {
		return fmt.Errorf("index_targets: unknown partition %q", assertion.Partition)
	}
	base, err := actx.Harness.resolve(assertion.Base)
	if err != nil {
		return fmt.Errorf("index_targets: %w", err)
	}
	want := make([]string, 0, len(assertion.Targets))
	for _, t := range assertion.Targets {
		v, err := actx.Harness.resolve(t)
		if err != nil {
			return fmt.Errorf("index_targets: %w", err)
		}
		want = append(want, v)
	}

	rel := indexes.Relation{Type: assertion.Relation}
	targets, err := n.Engine().Read(actx.Ctx, ir.IdentityAddress(base), rel)
	if err != nil {
		return &AssertionError{
			Type:     AssertIndexTargets,
			Expected: fmt.Sprintf("read %s from %s on %s", rel, assertion.Base, assertion.Partition),
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}
	got := make([]string, len(targets))
	for i, t := range targets {
		got[i] = t.String()
	}

	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b }), cmpopts.EquateEmpty()); diff != "" {
		return &AssertionError{
			Type:     AssertIndexTargets,
			Expected: fmt.Sprintf("%s from %s on %s to be %v", rel, assertion.Base, assertion.Partition, assertion.Targets),
			Actual:   fmt.Sprintf("(-want +got):\n%s", diff),
		}
	}
	return nil
}

// lookup follows a dotted path through decoded JSON. Numeric segments index
// arrays. The empty path is the document itself.
func lookup(doc any, path string) (any, bool) {
	if path == "" {
		return doc, true
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// matchPath compares the value at path with want. A nil want matches a
// missing field or null. Values are compared in their JSON form, so YAML
// integers equal JSON numbers.
func matchPath(doc any, path string, want any) (string, bool) {
	got, ok := lookup(doc, path)
	if want == nil {
		if !ok || got == nil {
			return "", true
		}
		return cmp.Diff(nil, got), false
	}
	if !ok {
		return fmt.Sprintf("field %q not present", path), false
	}

	normalized, err := normalize(want)
	if err != nil {
		return err.Error(), false
	}
	if diff := cmp.Diff(normalized, got); diff != "" {
		return diff, false
	}
	return "", true
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode expected value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode expected value: %w", err)
	}
	return out, nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Harness *Harness
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the cluster for index_targets assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertIndexTargets:
			if actx == nil || actx.Harness == nil {
				err = fmt.Errorf("assertion[%d]: index_targets requires a running cluster", i)
			} else {
				err = assertIndexTargets(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
