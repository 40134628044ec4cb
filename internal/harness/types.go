package harness

import "github.com/roach88/nestc/internal/engine"

// Result is the outcome of running one scenario.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// ErrorKind is the kind the pipeline failed with, if it failed.
	ErrorKind string `json:"error_kind,omitempty"`

	// ArtifactID and RunID identify the records written to the scenario's
	// registry.
	ArtifactID string `json:"artifact_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	// LoopNest is the printed loop nest of the compiled pipeline.
	LoopNest string `json:"-"`

	// Outputs holds the output buffers after invocation, by name.
	Outputs map[string]*engine.Buffer `json:"-"`
}

// NewResult creates a passing result for the named scenario.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Errors:   []string{},
		Outputs:  make(map[string]*engine.Buffer),
	}
}

// AddError records a failed expectation and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
