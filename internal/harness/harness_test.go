package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nestc/internal/ir"
)

func loadScenario(t *testing.T, file string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join(scenarioDir, file))
	require.NoError(t, err)
	return s
}

func fill(v float64) *float64 { return &v }

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
			assert.Equal(t, s.Expect.Error, result.ErrorKind)
		})
	}
}

func TestRun_RecordsArtifactAndRun(t *testing.T) {
	result, err := Run(loadScenario(t, "scale_default.yaml"))
	require.NoError(t, err)

	assert.Len(t, result.ArtifactID, 64)
	assert.Equal(t, "scale_default-run-1", result.RunID)
	assert.Contains(t, result.LoopNest, "vectorized<4> for x in [0, 10)")
	require.Contains(t, result.Outputs, "output")
	assert.Equal(t, 1, result.Outputs["output"].WriteCount(9, 4))
}

func TestRun_Deterministic(t *testing.T) {
	s := loadScenario(t, "blur_ramp.yaml")
	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.ArtifactID, second.ArtifactID)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.LoopNest, second.LoopNest)
}

func TestRun_FailedInvocationIsRecorded(t *testing.T) {
	result, err := Run(loadScenario(t, "input_too_small.yaml"))
	require.NoError(t, err)

	assert.True(t, result.Pass)
	assert.Equal(t, string(ir.KindSignatureMismatch), result.ErrorKind)
	assert.NotEmpty(t, result.ArtifactID)
	assert.Equal(t, "input_too_small-run-1", result.RunID)
}

func TestRun_ExpectationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Scenario)
		want   string
	}{
		{
			name: "wrong value",
			mutate: func(s *Scenario) {
				s.Expect.Outputs["output"] = OutputExpect{All: fill(7)}
			},
			want: `output "output" at [0 0]: expected 7, got 6.0`,
		},
		{
			name: "unexpected pipeline error",
			mutate: func(s *Scenario) {
				s.Params = map[string]string{"gain": "1"}
			},
			want: "unexpected SIGNATURE_MISMATCH",
		},
		{
			name: "unparsable param",
			mutate: func(s *Scenario) {
				s.Params = map[string]string{"scale": "lots"}
			},
			want: "unexpected SIGNATURE_MISMATCH",
		},
		{
			name: "expected error but ran",
			mutate: func(s *Scenario) {
				s.Expect = Expect{Error: string(ir.KindCyclicDependency)}
			},
			want: "expected CYCLIC_DEPENDENCY error, pipeline ran successfully",
		},
		{
			name: "missing input data",
			mutate: func(s *Scenario) {
				s.Inputs = nil
			},
			want: `no data for input "input"`,
		},
		{
			name: "unknown input",
			mutate: func(s *Scenario) {
				s.Inputs["other"] = Input{Fill: fill(1)}
			},
			want: `pipeline has no input "other"`,
		},
		{
			name: "input rank",
			mutate: func(s *Scenario) {
				s.Inputs["input"] = Input{Fill: fill(1), Extent: []int64{10}}
			},
			want: `input "input" has rank 2, scenario gives 1 extents`,
		},
		{
			name: "unknown output",
			mutate: func(s *Scenario) {
				s.Expect.Outputs["nope"] = OutputExpect{All: fill(0)}
			},
			want: `output "nope": pipeline has no such output`,
		},
		{
			name: "point outside region",
			mutate: func(s *Scenario) {
				s.Expect.Outputs["output"] = OutputExpect{Points: []Point{{At: []int64{10, 0}, Value: 6}}}
			},
			want: "is outside region",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadScenario(t, "scale_default.yaml")
			tt.mutate(s)

			result, err := Run(s)
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, result.Errors[0], tt.want)
		})
	}
}

func TestRun_WrongErrorKind(t *testing.T) {
	s := loadScenario(t, "cycle.yaml")
	s.Expect.Error = string(ir.KindType)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, string(ir.KindCyclicDependency), result.ErrorKind)
	assert.Contains(t, result.Errors[0], "expected TYPE_ERROR error, got CYCLIC_DEPENDENCY")
}

func TestRun_ScenarioProblemsAreErrors(t *testing.T) {
	t.Run("unknown generator", func(t *testing.T) {
		s := loadScenario(t, "blur_ramp.yaml")
		s.Generator = "sharpen"
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no generator named "sharpen"`)
	})

	t.Run("unknown generator param", func(t *testing.T) {
		s := loadScenario(t, "blur_ramp.yaml")
		s.Set = map[string]bool{"vectorize": true}
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no generator param "vectorize"`)
	})
}

func TestRun_InputRegionOverride(t *testing.T) {
	s := loadScenario(t, "blur_ramp.yaml")
	s.Inputs["src"] = Input{
		Extent: []int64{20},
		Min:    []int64{-5},
		Ramp:   &Ramp{Base: 0, Step: []float64{1}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Tolerance(t *testing.T) {
	s := loadScenario(t, "scale_param.yaml")
	s.Expect.Outputs["output"] = OutputExpect{
		Points:    []Point{{At: []int64{0, 0}, Value: 0.52}},
		Tolerance: 0.05,
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
