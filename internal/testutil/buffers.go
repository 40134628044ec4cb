package testutil

import (
	"github.com/roach88/nestc/internal/engine"
	"github.com/roach88/nestc/internal/ir"
)

// FilledBuffer allocates a buffer covering region with every element set to
// v converted to t.
func FilledBuffer(t ir.ScalarType, region []ir.Range, v float64) *engine.Buffer {
	b := engine.NewBufferRegion(t, region)
	b.Fill(engine.Float64(v).Convert(t))
	return b
}

// RampBuffer allocates a buffer covering region whose element at c is
// base + sum(step[d] * c[d]), converted to t. Missing steps are 0.
func RampBuffer(t ir.ScalarType, region []ir.Range, base float64, step []float64) *engine.Buffer {
	b := engine.NewBufferRegion(t, region)
	b.Each(func(coords []int64, _ engine.Scalar) {
		b.Set(engine.Float64(RampValue(base, step, coords)).Convert(t), coords...)
	})
	return b
}

// RampValue is the value RampBuffer stores at coords, before conversion.
func RampValue(base float64, step []float64, coords []int64) float64 {
	v := base
	for d, c := range coords {
		if d < len(step) {
			v += step[d] * float64(c)
		}
	}
	return v
}

// Values returns every element of b as float64, dimension 0 fastest.
func Values(b *engine.Buffer) []float64 {
	var out []float64
	b.Each(func(_ []int64, v engine.Scalar) {
		out = append(out, v.Float())
	})
	return out
}
