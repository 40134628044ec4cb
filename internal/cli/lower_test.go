package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowerText(t *testing.T) {
	out, err := execute(t, NewLowerCommand(&RootOptions{Format: "text"}), scalePipeline)
	require.NoError(t, err)

	assert.Contains(t, out, "pipeline scale\n")
	assert.Contains(t, out, "parallel for yo in [0, 3):")
	assert.Contains(t, out, "vectorized<4> for x in [0, 10):")
}

func TestLowerGeneratorParams(t *testing.T) {
	out, err := execute(t, NewLowerCommand(&RootOptions{Format: "text"}), scalePipeline,
		"--set", "parallel=false", "--set", "vectorize=false")
	require.NoError(t, err)

	assert.NotContains(t, out, "parallel for")
	assert.NotContains(t, out, "vectorized")
	assert.Contains(t, out, "for yo in [0, 3):")
}

func TestLowerJSON(t *testing.T) {
	out, err := execute(t, NewLowerCommand(&RootOptions{Format: "json"}), blurPipeline, "-g", "blur", "--set", "unroll=true")
	require.NoError(t, err)

	resp, result := decode[LowerResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "blur", result.Pipeline)
	assert.Contains(t, result.LoopNest, "realize blurx: int32 [0, 8)")
	assert.Contains(t, result.LoopNest, "unrolled<2> for xi")
}

func TestLowerUnknownParam(t *testing.T) {
	_, err := execute(t, NewLowerCommand(&RootOptions{Format: "text"}), scalePipeline, "--set", "tile=true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed")
}
