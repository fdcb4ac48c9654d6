package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/cubist/internal/cube"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Key      string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Key != "" {
		fmt.Fprintf(&buf, " (key=%s)", e.Key)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertArtifactCount:
		return compareCount(a, int64(len(result.Artifacts)))
	case AssertArtifactRows:
		art := result.Artifact(a.Key)
		if art == nil {
			return missingArtifact(a)
		}
		return compareCount(a, int64(len(art.Rows)))
	case AssertArtifactTotal:
		art := result.Artifact(a.Key)
		if art == nil {
			return missingArtifact(a)
		}
		return compareCount(a, art.TotalCount())
	case AssertDropped:
		for _, res := range result.Summary.Results {
			if res.Key == a.Key {
				return compareCount(a, res.Dropped)
			}
		}
		return missingArtifact(a)
	case AssertRunStatus:
		if got := string(result.Summary.Status); got != a.Status {
			return &AssertionError{Type: a.Type, Expected: a.Status, Actual: got}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func compareCount(a Assertion, got int64) error {
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Key:      a.Key,
		Expected: fmt.Sprintf("%d", a.Count),
		Actual:   fmt.Sprintf("%d", got),
	}
}

func missingArtifact(a Assertion) error {
	return &AssertionError{Type: a.Type, Key: a.Key, Expected: "artifact", Actual: "not stored"}
}

// checkExpect compares one lookup outcome with its expectation.
func checkExpect(want *ExpectClause, got LookupOutcome) []string {
	if want.Error != "" {
		if got.Error != want.Error {
			return []string{fmt.Sprintf("expected error %s, got %s", want.Error, describe(got))}
		}
		return nil
	}
	if got.Error != "" {
		return []string{fmt.Sprintf("unexpected error %s", got.Error)}
	}

	var msgs []string
	if want.Rows != nil && len(got.Rows) != *want.Rows {
		msgs = append(msgs, fmt.Sprintf("expected %d rows, got %d", *want.Rows, len(got.Rows)))
	}
	if want.Values == nil {
		return msgs
	}
	if len(got.Rows) != 1 {
		return append(msgs, fmt.Sprintf("values need exactly one row, got %d", len(got.Rows)))
	}

	row := got.Rows[0]
	cols := make([]string, 0, len(want.Values))
	for col := range want.Values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		v, ok := intValue(row[col])
		if !ok {
			msgs = append(msgs, fmt.Sprintf("column %s: not an integer column", col))
			continue
		}
		if v != want.Values[col] {
			msgs = append(msgs, fmt.Sprintf("column %s: expected %d, got %d", col, want.Values[col], v))
		}
	}
	return msgs
}

func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case cube.Int:
		return int64(n), true
	default:
		return 0, false
	}
}

func describe(o LookupOutcome) string {
	if o.Error != "" {
		return o.Error
	}
	return fmt.Sprintf("%d rows", len(o.Rows))
}

