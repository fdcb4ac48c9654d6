package harness

import (
	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/ingest"
	"github.com/roach88/cubist/internal/materialize"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every lookup expectation and assertion holds.
	Pass bool `json:"pass"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Lookups has one outcome per scenario lookup, in order.
	Lookups []LookupOutcome `json:"lookups"`

	// Summary is the materialization run summary.
	Summary *materialize.Summary `json:"-"`

	// Artifacts are all stored artifacts in key order.
	Artifacts []*cube.Artifact `json:"-"`

	// Report holds ingest data-quality counters.
	Report *ingest.Report `json:"-"`
}

// LookupOutcome records what one lookup returned.
type LookupOutcome struct {
	Where map[string]string `json:"where"`
	Key   string            `json:"key,omitempty"`
	Rows  []map[string]any  `json:"rows,omitempty"`

	// Error is the error code, empty on success.
	Error string `json:"error,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Errors:  []string{},
		Lookups: []LookupOutcome{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Artifact returns the stored artifact under key, or nil.
func (r *Result) Artifact(key string) *cube.Artifact {
	for _, a := range r.Artifacts {
		if a.Key == key {
			return a
		}
	}
	return nil
}
