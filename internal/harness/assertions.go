package harness

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/roach88/nestc/internal/engine"
	"github.com/roach88/nestc/internal/ir"
)

// maxMismatches bounds how many differing elements one "all" check reports.
const maxMismatches = 5

// checkOutputs evaluates output expectations and returns one message per
// failure, in output name order.
func checkOutputs(outputs map[string]*engine.Buffer, expect map[string]OutputExpect) []string {
	var errs []string
	for _, name := range slices.Sorted(maps.Keys(expect)) {
		b, ok := outputs[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("output %q: pipeline has no such output", name))
			continue
		}
		errs = append(errs, checkOutput(name, b, expect[name])...)
	}
	return errs
}

func checkOutput(name string, b *engine.Buffer, e OutputExpect) []string {
	var errs []string
	if e.All != nil {
		mismatches := 0
		b.Each(func(coords []int64, v engine.Scalar) {
			if matches(v, *e.All, b.Type(), e.Tolerance) {
				return
			}
			mismatches++
			if mismatches <= maxMismatches {
				errs = append(errs, fmt.Sprintf("output %q at %v: expected %v, got %s", name, coords, *e.All, v))
			}
		})
		if mismatches > maxMismatches {
			errs = append(errs, fmt.Sprintf("output %q: %d more mismatches", name, mismatches-maxMismatches))
		}
	}

	for _, p := range e.Points {
		if !contains(b.Region(), p.At) {
			errs = append(errs, fmt.Sprintf("output %q: point %v is outside region %v", name, p.At, b.Region()))
			continue
		}
		if v := b.At(p.At...); !matches(v, p.Value, b.Type(), e.Tolerance) {
			errs = append(errs, fmt.Sprintf("output %q at %v: expected %v, got %s", name, p.At, p.Value, v))
		}
	}
	return errs
}

// matches compares v against want converted to the element type, so an
// expected 0.1 matches a float32 output holding float32(0.1).
func matches(v engine.Scalar, want float64, t ir.ScalarType, tolerance float64) bool {
	w := engine.Float64(want).Convert(t)
	if tolerance == 0 {
		return v.Float() == w.Float()
	}
	return math.Abs(v.Float()-w.Float()) <= tolerance
}

func contains(region []ir.Range, at []int64) bool {
	if len(region) != len(at) {
		return false
	}
	for d, r := range region {
		if at[d] < r.Min || at[d] >= r.Min+r.Extent {
			return false
		}
	}
	return true
}
