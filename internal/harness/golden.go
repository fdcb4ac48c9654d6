package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cubist/internal/cube"
)

// Snapshot renders a result as canonical JSON lines: a run header, one
// line per artifact in key order, then one line per lookup. Byte-stable
// across runs and platforms.
func Snapshot(name string, result *Result) ([]byte, error) {
	var lines [][]byte

	header := map[string]any{
		"scenario":      name,
		"run_id":        result.Summary.RunID,
		"status":        string(result.Summary.Status),
		"snapshot_hash": result.Summary.SnapshotHash,
		"records":       result.Summary.Records,
	}
	line, err := cube.MarshalCanonical(header)
	if err != nil {
		return nil, err
	}
	lines = append(lines, line)

	for _, a := range result.Artifacts {
		rows := make([]any, len(a.Rows))
		for i, r := range a.Rows {
			rows[i] = a.RowObject(r)
		}
		line, err := cube.MarshalCanonical(map[string]any{
			"key":          a.Key,
			"dimensions":   a.Dimensions,
			"measures":     a.Measures,
			"rows":         rows,
			"content_hash": a.ContentHash,
		})
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	for _, o := range result.Lookups {
		where := make(map[string]any, len(o.Where))
		for k, v := range o.Where {
			where[k] = v
		}
		obj := map[string]any{"where": where}
		if o.Error != "" {
			obj["error"] = o.Error
		} else {
			rows := make([]any, len(o.Rows))
			for i, r := range o.Rows {
				rows[i] = r
			}
			obj["key"] = o.Key
			obj["rows"] = rows
		}
		line, err := cube.MarshalCanonical(obj)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	out := bytes.Join(lines, []byte{'\n'})
	return append(out, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Failed expectations are reported with t.Errorf. The returned error covers
// scenario setup only.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}

	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
