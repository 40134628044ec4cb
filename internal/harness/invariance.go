package harness

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/roach88/nestc/internal/compiler"
	"github.com/roach88/nestc/internal/testutil"
)

// maxInvarianceParams bounds the generator params CheckInvariance
// enumerates; each param doubles the number of builds.
const maxInvarianceParams = 6

// CheckInvariance runs the scenario once for every combination of its
// generator's params and checks that all builds produce bit-identical
// outputs. Schedule directives guarded by `when` change only how values are
// computed, so any difference is a lowering or emission bug.
//
// The scenario's own Set is ignored. Each build must also pass the
// scenario's expectations; failures are reported with the param
// combination that caused them.
func CheckInvariance(scenario *Scenario) (*Result, error) {
	gens, err := compiler.LoadGenerators(scenario.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	gen, err := compiler.FindGenerator(gens, scenario.Generator)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	params := gen.ParamNames()
	if len(params) > maxInvarianceParams {
		return nil, fmt.Errorf("scenario %s: %d generator params, at most %d can be enumerated",
			scenario.Name, len(params), maxInvarianceParams)
	}

	result := NewResult(scenario.Name)
	var baseline *Result
	var baselineSet string
	for mask := range 1 << len(params) {
		set := make(map[string]bool, len(params))
		for i, p := range params {
			set[p] = mask&(1<<i) != 0
		}
		label := formatSet(set)

		r, err := run(scenario, set)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		for _, msg := range r.Errors {
			result.AddError(fmt.Sprintf("%s: %s", label, msg))
		}
		if !r.Pass || scenario.Expect.Error != "" {
			continue
		}
		if baseline == nil {
			baseline, baselineSet = r, label
			result.ArtifactID, result.RunID, result.LoopNest = r.ArtifactID, r.RunID, r.LoopNest
			result.Outputs = r.Outputs
			continue
		}
		for _, name := range slices.Sorted(maps.Keys(baseline.Outputs)) {
			if !sameBits(testutil.Values(baseline.Outputs[name]), testutil.Values(r.Outputs[name])) {
				result.AddError(fmt.Sprintf("output %q differs between %s and %s", name, baselineSet, label))
			}
		}
	}
	return result, nil
}

func sameBits(a, b []float64) bool {
	return slices.EqualFunc(a, b, func(x, y float64) bool {
		return math.Float64bits(x) == math.Float64bits(y)
	})
}

func formatSet(set map[string]bool) string {
	if len(set) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(set))
	for _, name := range slices.Sorted(maps.Keys(set)) {
		parts = append(parts, fmt.Sprintf("%s=%t", name, set[name]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
