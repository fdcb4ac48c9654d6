package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one end-to-end materialization test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the CUE catalog path, relative to the scenario file.
	Catalog string `yaml:"catalog"`

	// MaxDimensions overrides the catalog ceiling when non-zero.
	MaxDimensions int `yaml:"max_dimensions,omitempty"`

	// Records are inline input records.
	Records []map[string]any `yaml:"records,omitempty"`

	// RecordsFile is a CSV or YAML records file, relative to the scenario
	// file. Mutually exclusive with Records.
	RecordsFile string `yaml:"records_file,omitempty"`

	// RunID prefixes the sequential run IDs. Defaults to "run".
	RunID string `yaml:"run_id,omitempty"`

	// Lookups run after materialization, in order.
	Lookups []LookupStep `yaml:"lookups,omitempty"`

	// Assertions validate the stored artifacts and the run summary.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// LookupStep is one lookup and its expected answer.
type LookupStep struct {
	// Where maps dimension names to values.
	Where map[string]any `yaml:"where"`

	// Expect is required.
	Expect *ExpectClause `yaml:"expect"`
}

// ExpectClause specifies the expected lookup answer.
type ExpectClause struct {
	// Rows is the expected number of matching rows.
	Rows *int `yaml:"rows,omitempty"`

	// Values are expected measure sums and count of the single matching
	// row. Subset match: unlisted columns are not checked.
	Values map[string]int64 `yaml:"values,omitempty"`

	// Error is the expected error code (CONFIGURATION or NOT_FOUND).
	Error string `yaml:"error,omitempty"`
}

// Assertion validates artifacts or the run summary.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Key is the canonical subset key (artifact_rows, artifact_total, dropped).
	Key string `yaml:"key,omitempty"`

	// Count is the expected number.
	Count int64 `yaml:"count"`

	// Status is the expected run status (run_status).
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertArtifactCount = "artifact_count" // number of stored artifacts
	AssertArtifactRows  = "artifact_rows"  // rows in one artifact
	AssertArtifactTotal = "artifact_total" // sum of counts in one artifact
	AssertDropped       = "dropped"        // records dropped by one subset
	AssertRunStatus     = "run_status"     // ok or failed
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// catalog and records paths relative to the file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Catalog = resolve(base, scenario.Catalog)
	scenario.RecordsFile = resolve(base, scenario.RecordsFile)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if _, err := os.Stat(s.Catalog); err != nil {
		return fmt.Errorf("catalog file not found: %s", s.Catalog)
	}
	if len(s.Records) > 0 && s.RecordsFile != "" {
		return fmt.Errorf("records and records_file are mutually exclusive")
	}
	if s.RecordsFile != "" {
		if _, err := os.Stat(s.RecordsFile); err != nil {
			return fmt.Errorf("records file not found: %s", s.RecordsFile)
		}
	}
	if len(s.Lookups) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("at least one lookup or assertion is required")
	}

	for i, step := range s.Lookups {
		if step.Expect == nil {
			return fmt.Errorf("lookups[%d]: expect is required", i)
		}
		if step.Expect.Error != "" && (step.Expect.Rows != nil || step.Expect.Values != nil) {
			return fmt.Errorf("lookups[%d].expect: error excludes rows and values", i)
		}
		if step.Expect.Error == "" && step.Expect.Rows == nil && step.Expect.Values == nil {
			return fmt.Errorf("lookups[%d].expect: one of rows, values or error is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertArtifactCount:
	case AssertArtifactRows, AssertArtifactTotal, AssertDropped:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
		}
	case AssertRunStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for run_status", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
