package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValid(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), scalePipeline)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ scale")
}

func TestValidateReportsEveryGenerator(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), blurPipeline)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✓ blur")
	assert.Contains(t, out, "✗ cycle")
	assert.Contains(t, out, ErrCodeCyclicDependency)
}

func TestValidateJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), blurPipeline, "--set", "unroll=true")
	require.Error(t, err)

	resp, result := decode[ValidationResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, result.Valid)
	require.Len(t, result.Generators, 2)

	byName := map[string]GeneratorCheck{}
	for _, c := range result.Generators {
		byName[c.Generator] = c
	}
	assert.True(t, byName["blur"].Valid)
	assert.False(t, byName["cycle"].Valid)
	assert.Equal(t, ErrCodeCyclicDependency, byName["cycle"].Code)
}

func TestValidateMissingFile(t *testing.T) {
	_, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "does-not-exist.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateUnknownParam(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), blurPipeline, "--set", "tile=true")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `no generator has a param "tile"`)
}
