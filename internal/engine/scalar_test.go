package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/nestc/internal/ir"
)

func TestScalarConvert(t *testing.T) {
	tests := []struct {
		name string
		in   Scalar
		to   ir.ScalarType
		want Scalar
	}{
		{"float32 to itself rounds", Scalar{Type: ir.Float32, F: 0.1}, ir.Float32, Float32(0.1)},
		{"int32 to itself wraps", Scalar{Type: ir.Int32, I: 1<<32 + 7}, ir.Int32, Int32(7)},
		{"bool to itself", Scalar{Type: ir.Bool, I: 4}, ir.Bool, Bool(true)},
		{"float to int truncates", Float64(-2.7), ir.Int32, Int32(-2)},
		{"int to float", Int64(3), ir.Float64, Float64(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Convert(tt.to))
		})
	}
}
