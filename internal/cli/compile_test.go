package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
)

func TestCompileText(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), scalePipeline)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled scale (1 stage(s)) artifact")
	assert.Contains(t, out, "input input: float32 rank 2 region [0, 10) x [0, 5)")
	assert.Contains(t, out, "scalar scale: float32 = 2.0")
	assert.NotContains(t, out, "Recorded in registry")
}

func TestCompileJSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), blurPipeline, "-g", "blur")
	require.NoError(t, err)

	resp, result := decode[CompileResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "blur", result.Pipeline)
	assert.Len(t, result.PipelineID, 64)
	assert.Len(t, result.ArtifactID, 64)
	assert.Equal(t, 2, result.Stages)
	require.Len(t, result.Signature, 2)
	assert.Equal(t, "src", result.Signature[0].Name)
	assert.Equal(t, [][2]int64{{-1, 10}}, result.Signature[0].Region)
	assert.False(t, result.Cached)
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "scale.nest")

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), scalePipeline, "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote artifact to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	p, err := loopnest.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "scale", p.Name)
}

func TestCompileRegistryCacheHit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "nestc.db")

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), scalePipeline, "--db", db)
	require.NoError(t, err)
	_, first := decode[CompileResult](t, out)
	assert.False(t, first.Cached)
	assert.True(t, first.Recorded)

	out, err = execute(t, NewCompileCommand(&RootOptions{Format: "json"}), scalePipeline, "--db", db)
	require.NoError(t, err)
	_, second := decode[CompileResult](t, out)
	assert.True(t, second.Cached)
	assert.False(t, second.Recorded)
	assert.Equal(t, first.ArtifactID, second.ArtifactID)

	// A different schedule is a different pipeline.
	out, err = execute(t, NewCompileCommand(&RootOptions{Format: "json"}), scalePipeline, "--db", db, "--set", "parallel=false")
	require.NoError(t, err)
	_, third := decode[CompileResult](t, out)
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.PipelineID, third.PipelineID)
}

func TestCompileVectorBitsOverride(t *testing.T) {
	out, err := execute(t, NewLowerCommand(&RootOptions{Format: "text"}), scalePipeline, "--vector-bits", "256")
	require.NoError(t, err)
	assert.Contains(t, out, "vectorized<8> for x")
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
		exit int
	}{
		{"missing file", []string{filepath.Join(t.TempDir(), "nope.cue")}, ErrCodeNotFound, ExitCommandError},
		{"ambiguous generator", []string{blurPipeline}, ErrCodeBadFlag, ExitCommandError},
		{"unknown generator", []string{blurPipeline, "-g", "sharpen"}, ErrCodeNotFound, ExitCommandError},
		{"malformed set", []string{scalePipeline, "--set", "parallel"}, ErrCodeBadFlag, ExitCommandError},
		{"cycle", []string{blurPipeline, "-g", "cycle"}, ErrCodeCyclicDependency, ExitGraphError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.exit, GetExitCode(err))

			resp, _ := decode[CompileResult](t, out)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestCompileCycleReportsKind(t *testing.T) {
	_, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), blurPipeline, "-g", "cycle")
	require.Error(t, err)
	assert.True(t, ir.IsKind(err, ir.KindCyclicDependency))
}
