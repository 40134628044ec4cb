package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/nestc/internal/engine"
	"github.com/roach88/nestc/internal/ir"
)

func TestCheckOutputs(t *testing.T) {
	b := engine.NewBuffer(ir.Int32, 3)
	b.Set(engine.Int32(1), 0)
	b.Set(engine.Int32(2), 1)
	b.Set(engine.Int32(3), 2)
	outputs := map[string]*engine.Buffer{"out": b}

	assert.Empty(t, checkOutputs(outputs, map[string]OutputExpect{
		"out": {Points: []Point{{At: []int64{2}, Value: 3}}},
	}))
	assert.Empty(t, checkOutputs(outputs, map[string]OutputExpect{
		"out": {All: fill(2), Tolerance: 1},
	}))

	errs := checkOutputs(outputs, map[string]OutputExpect{"out": {All: fill(1)}})
	assert.Equal(t, []string{
		`output "out" at [1]: expected 1, got 2`,
		`output "out" at [2]: expected 1, got 3`,
	}, errs)
}

func TestCheckOutputs_CapsMismatches(t *testing.T) {
	b := engine.NewBuffer(ir.Float64, 10)
	errs := checkOutputs(map[string]*engine.Buffer{"out": b}, map[string]OutputExpect{"out": {All: fill(1)}})

	assert.Len(t, errs, maxMismatches+1)
	assert.Equal(t, `output "out": 5 more mismatches`, errs[maxMismatches])
}

func TestMatches_ComparesInElementType(t *testing.T) {
	v := engine.Float32(0.1)
	assert.True(t, matches(v, 0.1, ir.Float32, 0))
	assert.False(t, matches(engine.Float64(0.1), 0.1000001, ir.Float64, 0))
	assert.True(t, matches(engine.Int32(2), 2.4, ir.Int32, 0))
}
